package models

import "time"

// MarketStateHalted marks an instrument whose venue suspended trading.
// Other states ("REGULAR", "PRE", "POST", ...) pass through from the feed.
const MarketStateHalted = "HALTED"

// PriceTick is a single price observation for one instrument.
type PriceTick struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Currency      string    `json:"currency"`
	Market        string    `json:"market,omitempty"`
	MarketState   string    `json:"marketState,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Halted reports whether the instrument's venue is suspended.
func (t *PriceTick) Halted() bool {
	return t.MarketState == MarketStateHalted
}
