package signal

import (
	"math"
	"testing"

	"TradeSim/internal/domain/models"
)

func tick(symbol string, price, changePct float64) *models.PriceTick {
	return &models.PriceTick{Symbol: symbol, Price: price, ChangePercent: changePct}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStopPctScalesWithDailyLimit(t *testing.T) {
	if got := New(5).StopPct(); !approx(got, 0.01) {
		t.Fatalf("slPct = %v, want 0.01", got)
	}
	// floor kicks in for degenerate budgets
	if got := New(0.5).StopPct(); !approx(got, 0.0025) {
		t.Fatalf("slPct = %v, want floor 0.0025", got)
	}
}

func TestRiskBucketAndRewardBreakpoints(t *testing.T) {
	cases := []struct {
		vol    float64
		bucket models.RiskLevel
		rr     float64
	}{
		{0.5, models.RiskLow, 2.5},
		{1.5, models.RiskMedium, 2.0},
		{2.0, models.RiskMedium, 2.0},
		{3.0, models.RiskHigh, 1.5},
		{4.0, models.RiskHigh, 1.5},
	}
	for _, c := range cases {
		if got := RiskBucket(c.vol); got != c.bucket {
			t.Fatalf("bucket(%v) = %v, want %v", c.vol, got, c.bucket)
		}
		if got := RiskReward(c.vol); !approx(got, c.rr) {
			t.Fatalf("rr(%v) = %v, want %v", c.vol, got, c.rr)
		}
	}
}

func TestSignalWorkedExample(t *testing.T) {
	// dailyLossLimit=5 -> slPct=0.01; +2.0% at 100 -> BUY, medium risk, RR 2.0
	s := New(5).Signal(tick("AAPL", 100, 2.0))
	if s.Action != models.ActionBuy {
		t.Fatalf("action = %v, want BUY", s.Action)
	}
	if s.Risk != models.RiskMedium {
		t.Fatalf("risk = %v, want medium", s.Risk)
	}
	if !approx(s.StopLoss, 99.0) {
		t.Fatalf("stop = %v, want 99.0", s.StopLoss)
	}
	if !approx(s.TakeProfit, 102.0) {
		t.Fatalf("take profit = %v, want 102.0", s.TakeProfit)
	}
	if !approx(s.Confidence, 82) {
		t.Fatalf("confidence = %v, want 82", s.Confidence)
	}
}

func TestMomentumThresholdIsStrict(t *testing.T) {
	e := New(5)
	if s := e.Signal(tick("AAPL", 100, 0.8)); s.Action != models.ActionHold {
		t.Fatalf("exactly 0.8%% should HOLD, got %v", s.Action)
	}
	if s := e.Signal(tick("AAPL", 100, -0.8)); s.Action != models.ActionHold {
		t.Fatalf("exactly -0.8%% should HOLD, got %v", s.Action)
	}
	if s := e.Signal(tick("AAPL", 100, 0.81)); s.Action != models.ActionBuy {
		t.Fatalf("0.81%% should BUY, got %v", s.Action)
	}
	if s := e.Signal(tick("AAPL", 100, -0.81)); s.Action != models.ActionSell {
		t.Fatalf("-0.81%% should SELL, got %v", s.Action)
	}
}

func TestHaltedAndHighVolStop(t *testing.T) {
	e := New(5)

	halted := tick("IAM.MA", 125, 2.0)
	halted.MarketState = models.MarketStateHalted
	s := e.Signal(halted)
	if s.Action != models.ActionStop {
		t.Fatalf("halted market: action = %v, want STOP", s.Action)
	}
	// no directional levels on STOP
	if !approx(s.StopLoss, 125) || !approx(s.TakeProfit, 125) {
		t.Fatalf("STOP should pin levels to price: %+v", s)
	}

	s = e.Signal(tick("TSLA", 200, 4.0))
	if s.Action != models.ActionStop || s.Risk != models.RiskHigh {
		t.Fatalf("high vol: got action=%v risk=%v", s.Action, s.Risk)
	}
}

func TestSellLevelsMirrorBuy(t *testing.T) {
	s := New(5).Signal(tick("ETH-USD", 1000, -2.0))
	if s.Action != models.ActionSell {
		t.Fatalf("action = %v, want SELL", s.Action)
	}
	if !approx(s.StopLoss, 1010) {
		t.Fatalf("stop = %v, want 1010", s.StopLoss)
	}
	if !approx(s.TakeProfit, 980) {
		t.Fatalf("take profit = %v, want 980", s.TakeProfit)
	}
}

func TestConfidenceMonotonicity(t *testing.T) {
	e := New(5)
	low := e.Signal(tick("A", 100, 0.5))
	med := e.Signal(tick("A", 100, 2.0))
	high := e.Signal(tick("A", 100, 4.0))

	if low.Risk != models.RiskLow || med.Risk != models.RiskMedium || high.Risk != models.RiskHigh {
		t.Fatalf("buckets not monotone: %v %v %v", low.Risk, med.Risk, high.Risk)
	}
	// penalties 0, 8, 20; base saturates at vol 3
	if !approx(low.Confidence, 75) {
		t.Fatalf("low confidence = %v, want 75", low.Confidence)
	}
	if !approx(med.Confidence, 82) {
		t.Fatalf("medium confidence = %v, want 82", med.Confidence)
	}
	if !approx(high.Confidence, 80) {
		t.Fatalf("high confidence = %v, want 80", high.Confidence)
	}
	for _, s := range []models.Signal{low, med, high} {
		if s.Confidence < 50 || s.Confidence > 95 {
			t.Fatalf("confidence out of clamp: %v", s.Confidence)
		}
	}
}

func TestPlanInvalidationTracksSignal(t *testing.T) {
	e := New(5)

	p := e.Plan(tick("AAPL", 100, 2.0)) // BUY bias
	if !approx(p.Invalidation, p.Bullish.StopLoss) {
		t.Fatalf("BUY bias invalidation = %v, want bullish stop %v", p.Invalidation, p.Bullish.StopLoss)
	}

	p = e.Plan(tick("AAPL", 100, -2.0)) // SELL bias
	if !approx(p.Invalidation, p.Bearish.StopLoss) {
		t.Fatalf("SELL bias invalidation = %v, want bearish stop %v", p.Invalidation, p.Bearish.StopLoss)
	}

	p = e.Plan(tick("AAPL", 100, 0.1)) // HOLD
	if !approx(p.Invalidation, 100) {
		t.Fatalf("HOLD invalidation = %v, want price", p.Invalidation)
	}
	if !approx(p.Bullish.RiskReward, p.Bearish.RiskReward) {
		t.Fatalf("branches should share RR: %v vs %v", p.Bullish.RiskReward, p.Bearish.RiskReward)
	}
}

func TestAlertRecommendation(t *testing.T) {
	e := New(5)

	a := e.Alert(tick("A", 100, 4.0))
	if a.Level != models.RiskHigh || a.Recommendation != models.RecommendHold {
		t.Fatalf("high vol alert = %+v", a)
	}

	halted := tick("A", 100, 0.5)
	halted.MarketState = models.MarketStateHalted
	a = e.Alert(halted)
	if a.Level != models.RiskLow || a.Recommendation != models.RecommendExit {
		t.Fatalf("halted low-vol alert = %+v", a)
	}

	a = e.Alert(tick("A", 100, 2.0))
	if a.Level != models.RiskMedium || a.Recommendation != models.RecommendTrade {
		t.Fatalf("medium alert = %+v", a)
	}
}

func TestOpportunitiesFilterAndRank(t *testing.T) {
	e := New(5)
	ticks := []models.PriceTick{
		*tick("S1", 100, 2.9),  // BUY, medium, conf 91
		*tick("S2", 100, -2.0), // SELL, medium, conf 82
		*tick("S3", 100, 0.9),  // BUY, low, conf 79
		*tick("S4", 100, 0.1),  // HOLD, filtered
		*tick("S5", 100, 4.0),  // STOP high risk, filtered
		*tick("S6", 100, 2.5),  // BUY, medium, conf 87
		*tick("S7", 100, -1.6), // SELL, medium, conf 78
		*tick("S8", 100, 1.0),  // BUY, low, conf 80
		*tick("S9", 100, -2.9), // SELL, medium, conf 91
	}
	ops := Opportunities(e.Signals(ticks))
	if len(ops) != 6 {
		t.Fatalf("expected top 6, got %d", len(ops))
	}
	for i := 1; i < len(ops); i++ {
		if ops[i].Confidence > ops[i-1].Confidence {
			t.Fatalf("not sorted by confidence: %v after %v", ops[i].Confidence, ops[i-1].Confidence)
		}
	}
	for _, o := range ops {
		if o.Action != models.ActionBuy && o.Action != models.ActionSell {
			t.Fatalf("non-directional opportunity %v", o.Action)
		}
		if o.Risk == models.RiskHigh || o.Confidence < 70 {
			t.Fatalf("filtered signal leaked: %+v", o)
		}
	}
}
