package signal

import (
	"math"
	"sort"

	"TradeSim/internal/domain/models"
)

// Stop distance is a fixed fraction of the daily loss budget, floored so a
// tiny budget never produces a zero-width stop.
const (
	minStopPct       = 0.0025
	budgetStopShare  = 0.2
	momentumBreakout = 0.8
)

// Reasons attached to signals, one fixed string per rule.
const (
	reasonHalted   = "market halted"
	reasonHighVol  = "excessive volatility"
	reasonBullish  = "bullish momentum"
	reasonBearish  = "bearish pressure"
	reasonNeutral  = "neutral"
	alertMsgHigh   = "excessive volatility"
	alertMsgMedium = "possible unconfirmed breakout"
	alertMsgLow    = "risk under control"
)

// Engine derives signals, plans and alerts from price ticks, parameterized by
// the challenge's daily loss limit. Engines are pure and cheap; construct one
// per evaluation.
type Engine struct {
	slPctBase float64
}

// New creates an engine for the given daily loss limit in percent (e.g. 5).
func New(dailyLossLimitPercent float64) *Engine {
	return &Engine{
		slPctBase: math.Max(minStopPct, dailyLossLimitPercent/100*budgetStopShare),
	}
}

// StopPct returns the stop-loss distance as a price fraction.
func (e *Engine) StopPct() float64 { return e.slPctBase }

// RiskReward maps absolute volatility to a reward multiple. Noisier
// instruments get a tighter multiple.
func RiskReward(vol float64) float64 {
	switch {
	case vol >= 3:
		return 1.5
	case vol >= 1.5:
		return 2.0
	default:
		return 2.5
	}
}

// RiskBucket maps absolute volatility to a risk level.
func RiskBucket(vol float64) models.RiskLevel {
	switch {
	case vol >= 3:
		return models.RiskHigh
	case vol >= 1.5:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Signal derives the directional signal for one tick. Rules are evaluated in
// priority order, first match wins: halted, high volatility, momentum up,
// momentum down, neutral. A strict > on the momentum threshold keeps an
// exactly-0.8% move at HOLD.
func (e *Engine) Signal(t *models.PriceTick) models.Signal {
	vol := math.Abs(t.ChangePercent)
	risk := RiskBucket(vol)
	rr := RiskReward(vol)

	action := models.ActionHold
	reason := reasonNeutral
	switch {
	case t.Halted():
		action = models.ActionStop
		reason = reasonHalted
	case risk == models.RiskHigh:
		action = models.ActionStop
		reason = reasonHighVol
	case t.ChangePercent > momentumBreakout:
		action = models.ActionBuy
		reason = reasonBullish
	case t.ChangePercent < -momentumBreakout:
		action = models.ActionSell
		reason = reasonBearish
	}

	entry := t.Price
	stopLoss, takeProfit := entry, entry
	switch action {
	case models.ActionBuy:
		stopLoss = entry * (1 - e.slPctBase)
		takeProfit = entry * (1 + e.slPctBase*rr)
	case models.ActionSell:
		stopLoss = entry * (1 + e.slPctBase)
		takeProfit = entry * (1 - e.slPctBase*rr)
	}

	return models.Signal{
		Symbol:     t.Symbol,
		Action:     action,
		Confidence: confidence(vol, risk),
		Entry:      entry,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Reason:     reason,
		Risk:       risk,
	}
}

func confidence(vol float64, risk models.RiskLevel) float64 {
	base := 70 + math.Min(vol, 3)*10
	var penalty float64
	switch risk {
	case models.RiskHigh:
		penalty = 20
	case models.RiskMedium:
		penalty = 8
	}
	return math.Max(50, math.Min(95, base-penalty))
}

// Signals derives one signal per tick, in the given order.
func (e *Engine) Signals(ticks []models.PriceTick) []models.Signal {
	out := make([]models.Signal, 0, len(ticks))
	for i := range ticks {
		out = append(out, e.Signal(&ticks[i]))
	}
	return out
}

// Plan builds the bidirectional trade plan for the selected instrument. Both
// branches share the same stop distance and reward multiple; invalidation is
// the stop of whichever branch the current signal favors, or the price itself
// when the signal is directionless.
func (e *Engine) Plan(t *models.PriceTick) models.TradePlan {
	rr := RiskReward(math.Abs(t.ChangePercent))
	bullish := models.PlanLeg{
		Entry:      t.Price,
		StopLoss:   t.Price * (1 - e.slPctBase),
		TakeProfit: t.Price * (1 + e.slPctBase*rr),
		RiskReward: rr,
	}
	bearish := models.PlanLeg{
		Entry:      t.Price,
		StopLoss:   t.Price * (1 + e.slPctBase),
		TakeProfit: t.Price * (1 - e.slPctBase*rr),
		RiskReward: rr,
	}

	invalidation := t.Price
	switch e.Signal(t).Action {
	case models.ActionBuy:
		invalidation = bullish.StopLoss
	case models.ActionSell:
		invalidation = bearish.StopLoss
	}

	return models.TradePlan{
		Symbol:       t.Symbol,
		Bullish:      bullish,
		Bearish:      bearish,
		Invalidation: invalidation,
	}
}

// Alert summarizes the risk posture of the selected instrument.
func (e *Engine) Alert(t *models.PriceTick) models.RiskAlert {
	level := RiskBucket(math.Abs(t.ChangePercent))

	msg := alertMsgLow
	switch level {
	case models.RiskHigh:
		msg = alertMsgHigh
	case models.RiskMedium:
		msg = alertMsgMedium
	}

	rec := models.RecommendTrade
	if level == models.RiskHigh {
		rec = models.RecommendHold
	} else if e.Signal(t).Action == models.ActionStop {
		rec = models.RecommendExit
	}

	return models.RiskAlert{Level: level, Message: msg, Recommendation: rec}
}

// Opportunities ranks actionable signals: directional, confident and not
// high-risk, best first, capped at maxOpportunities.
const maxOpportunities = 6

func Opportunities(signals []models.Signal) []models.Signal {
	out := make([]models.Signal, 0, maxOpportunities)
	for _, s := range signals {
		if s.Action != models.ActionBuy && s.Action != models.ActionSell {
			continue
		}
		if s.Confidence < 70 || s.Risk == models.RiskHigh {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > maxOpportunities {
		out = out[:maxOpportunities]
	}
	return out
}
