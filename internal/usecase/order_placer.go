package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"TradeSim/internal/domain/models"
	drepo "TradeSim/internal/domain/repository"
)

// Order validation failures. Rejections happen before any state mutation.
var (
	ErrNoChallenge         = fmt.Errorf("no active challenge")
	ErrUnknownSymbol       = fmt.Errorf("unknown symbol")
	ErrInvalidSide         = fmt.Errorf("side must be buy or sell")
	ErrInvalidQuantity     = fmt.Errorf("quantity must be positive")
	ErrInsufficientBalance = fmt.Errorf("insufficient balance for this order")
)

// OrderPlacer validates an order against the challenge's balance, appends the
// trade to the log, updates the challenge balances and publishes the insert
// notification that drives incremental holdings updates everywhere else.
type OrderPlacer struct {
	trades     drepo.TradeStore
	feed       drepo.TradeFeed
	challenges drepo.ChallengeStore
	metrics    drepo.Metrics
}

// NewOrderPlacer creates an OrderPlacer.
func NewOrderPlacer(
	trades drepo.TradeStore,
	feed drepo.TradeFeed,
	challenges drepo.ChallengeStore,
	metrics drepo.Metrics,
) *OrderPlacer {
	return &OrderPlacer{trades: trades, feed: feed, challenges: challenges, metrics: metrics}
}

// Place executes an order at the given tick's price. On success it returns
// the recorded trade and the challenge with refreshed balances.
func (p *OrderPlacer) Place(
	ctx context.Context,
	ch *models.Challenge,
	tick *models.PriceTick,
	req *models.PlaceOrderRequest,
) (*models.Trade, *models.Challenge, error) {
	if ch == nil {
		return nil, nil, ErrNoChallenge
	}
	if tick == nil {
		return nil, nil, ErrUnknownSymbol
	}
	side := models.Side(req.Side)
	if !side.Valid() {
		return nil, nil, ErrInvalidSide
	}
	if req.Quantity <= 0 || math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return nil, nil, ErrInvalidQuantity
	}

	total := tick.Price * req.Quantity
	if side == models.SideBuy && ch.CurrentBalance < total {
		return nil, nil, ErrInsufficientBalance
	}

	trade := &models.Trade{
		ID:          uuid.NewString(),
		UserID:      ch.UserID,
		ChallengeID: ch.ID,
		Symbol:      tick.Symbol,
		Side:        side,
		Quantity:    req.Quantity,
		EntryPrice:  tick.Price,
		Status:      "open",
		CreatedAt:   time.Now().UTC(),
	}

	if err := p.trades.Append(ctx, trade); err != nil {
		p.metrics.RecordError("trade_append")
		return nil, nil, fmt.Errorf("append trade: %w", err)
	}

	updated := applyOrderToChallenge(ch, side, total)
	if err := p.challenges.UpdateBalances(ctx, updated); err != nil {
		p.metrics.RecordError("challenge_update")
		return nil, nil, fmt.Errorf("update challenge: %w", err)
	}

	// Notification is best-effort: the trade is durable, subscribers converge
	// on the next full reload even if the publish is lost.
	if p.feed != nil {
		if err := p.feed.Publish(ctx, trade); err != nil {
			p.metrics.RecordError("trade_publish")
		}
	}

	p.metrics.RecordOrderPlaced(string(side), trade.Symbol)
	return trade, updated, nil
}

// applyOrderToChallenge recomputes the cash balances after an order: buys
// debit, sells credit, profit/loss figures follow from the new balance
// against the starting balance.
func applyOrderToChallenge(ch *models.Challenge, side models.Side, total float64) *models.Challenge {
	out := *ch
	if side == models.SideBuy {
		out.CurrentBalance = ch.CurrentBalance - total
	} else {
		out.CurrentBalance = ch.CurrentBalance + total
	}
	out.HighestBalance = math.Max(ch.HighestBalance, out.CurrentBalance)

	profit := out.CurrentBalance - ch.StartingBalance
	out.TotalProfit = math.Max(profit, 0)
	out.TotalLoss = math.Max(-profit, 0)
	if ch.StartingBalance > 0 {
		out.DailyLossPercent = out.TotalLoss / ch.StartingBalance * 100
	} else {
		out.DailyLossPercent = 0
	}
	out.TradingDays = ch.TradingDays + 1
	out.UpdatedAt = time.Now().UTC()
	return &out
}
