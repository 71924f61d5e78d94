package models

// Action is the directional recommendation for an instrument.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionStop Action = "STOP"
)

// RiskLevel buckets realized volatility.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Recommendation is the aggregate risk-alert advice.
type Recommendation string

const (
	RecommendHold  Recommendation = "HOLD"
	RecommendExit  Recommendation = "EXIT"
	RecommendTrade Recommendation = "TRADE"
)

// Signal is a derived, ephemeral trade recommendation for one instrument.
// Recomputed on every tick batch; never persisted.
type Signal struct {
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Reason     string    `json:"reason"`
	Risk       RiskLevel `json:"risk"`
}

// PlanLeg is one directional branch of a trade plan.
type PlanLeg struct {
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	RiskReward float64 `json:"rr"`
}

// TradePlan carries both a bullish and a bearish branch for the selected
// instrument, plus the price at which the current bias is invalidated.
type TradePlan struct {
	Symbol       string  `json:"symbol"`
	Bullish      PlanLeg `json:"bullish"`
	Bearish      PlanLeg `json:"bearish"`
	Invalidation float64 `json:"invalidation"`
}

// RiskAlert summarizes the risk posture of the selected instrument.
type RiskAlert struct {
	Level          RiskLevel      `json:"level"`
	Message        string         `json:"message"`
	Recommendation Recommendation `json:"recommendation"`
}
