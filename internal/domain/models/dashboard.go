package models

import "time"

// Snapshot is the read-only view handed to the presentation layer. It is
// replaced atomically on every recomputation; consumers never mutate it.
type Snapshot struct {
	ChallengeID   string             `json:"challenge_id"`
	Selected      string             `json:"selected_symbol,omitempty"`
	Holdings      []Holding          `json:"holdings"`
	Signals       []Signal           `json:"signals"`
	Plan          *TradePlan         `json:"plan,omitempty"`
	Alert         *RiskAlert         `json:"alert,omitempty"`
	Opportunities []Signal           `json:"opportunities"`
	Realized      map[string]float64 `json:"realized_by_symbol,omitempty"`
	RecentTrades  []Trade            `json:"recent_trades"`
	TradeCount    int64              `json:"trade_count"`
	LastUpdate    time.Time          `json:"last_update"`
}
