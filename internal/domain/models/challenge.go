package models

import "time"

// Challenge statuses.
const (
	ChallengeActive = "active"
	ChallengePassed = "passed"
	ChallengeFailed = "failed"
)

// ChallengePlan is the purchased tier: targets and limits, fixed at purchase.
type ChallengePlan struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	AccountSize           float64 `json:"account_size"`
	ProfitTargetPercent   float64 `json:"profit_target"`
	DailyLossLimitPercent float64 `json:"daily_loss_limit"`
	MaxLossLimitPercent   float64 `json:"max_loss_limit"`
}

// Challenge is a simulated funded-trading account tracked against its plan.
type Challenge struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	Status           string        `json:"status"`
	Phase            int           `json:"phase"`
	StartingBalance  float64       `json:"starting_balance"`
	CurrentBalance   float64       `json:"current_balance"`
	HighestBalance   float64       `json:"highest_balance"`
	TotalProfit      float64       `json:"total_profit"`
	TotalLoss        float64       `json:"total_loss"`
	DailyLossPercent float64       `json:"daily_loss"`
	TradingDays      int           `json:"trading_days"`
	Plan             ChallengePlan `json:"plan"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// DailyLossLimit returns the plan's daily loss limit in percent, falling back
// to 5 when the plan carries no limit.
func (c *Challenge) DailyLossLimit() float64 {
	if c == nil || c.Plan.DailyLossLimitPercent <= 0 {
		return 5
	}
	return c.Plan.DailyLossLimitPercent
}
