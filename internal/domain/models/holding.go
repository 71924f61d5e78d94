package models

// Holding is an aggregated open position in one instrument, derived from the
// trade log and marked to the latest known price. Holdings have no identity
// beyond their symbol and are fully replaced on every recomputation.
type Holding struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	MarketPrice   float64 `json:"market_price"`
	Value         float64 `json:"value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
}
