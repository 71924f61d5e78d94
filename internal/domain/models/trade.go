package models

import "time"

// Side of a trade order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Trade is an immutable fact in the per-challenge trade log. Trades are
// appended on order placement and never mutated afterwards.
type Trade struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
