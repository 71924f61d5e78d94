package repository

import (
	"context"
	"time"

	"TradeSim/internal/domain/models"
)

// TradeStore is the append-only trade log, keyed by challenge id.
// Inserts are the sole mutation; records are never updated or deleted.
type TradeStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Append(ctx context.Context, t *models.Trade) error
	// List returns trades for a challenge ordered oldest first.
	List(ctx context.Context, challengeID string, from, to time.Time, limit int) ([]*models.Trade, error)
	Count(ctx context.Context, challengeID string) (int64, error)
	Health(ctx context.Context) error
	Close() error
}

// TradeFeed publishes a notification for every inserted trade so that
// subscribed dashboards converge without refetching the whole log.
type TradeFeed interface {
	Publish(ctx context.Context, t *models.Trade) error
	Close() error
}

// MarketData returns the latest tick per symbol. The mapping may be partial
// or empty on upstream failure; callers retain last-known prices.
type MarketData interface {
	Fetch(ctx context.Context, market string, symbols []string) (map[string]models.PriceTick, error)
}

// ChallengeStore reads and updates challenge records.
type ChallengeStore interface {
	Get(ctx context.Context, id string) (*models.Challenge, error)
	ActiveForUser(ctx context.Context, userID string) (*models.Challenge, error)
	UpdateBalances(ctx context.Context, c *models.Challenge) error
	Close() error
}

type Metrics interface {
	RecordOrderPlaced(side, symbol string)
	RecordRefresh(source string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
