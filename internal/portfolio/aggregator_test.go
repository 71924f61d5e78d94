package portfolio

import (
	"math"
	"testing"
	"time"

	"TradeSim/internal/domain/models"
)

func trade(symbol string, side models.Side, qty, price float64) *models.Trade {
	return &models.Trade{
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: price,
		CreatedAt:  time.Now(),
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRebuildEmpty(t *testing.T) {
	got := Rebuild(nil).Holdings(map[string]float64{"AAPL": 100}, nil)
	if len(got) != 0 {
		t.Fatalf("expected no holdings, got %d", len(got))
	}
}

func TestBuysAccumulateWeightedAverage(t *testing.T) {
	b := Rebuild([]*models.Trade{
		trade("AAPL", models.SideBuy, 10, 100),
		trade("AAPL", models.SideBuy, 5, 110),
	})
	hs := b.Holdings(map[string]float64{"AAPL": 120}, nil)
	if len(hs) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(hs))
	}
	h := hs[0]
	if !approx(h.Quantity, 15) {
		t.Fatalf("quantity = %v, want 15", h.Quantity)
	}
	wantAvg := (10*100.0 + 5*110.0) / 15
	if !approx(h.AvgEntryPrice, wantAvg) {
		t.Fatalf("avg = %v, want %v", h.AvgEntryPrice, wantAvg)
	}
	if !approx(h.Value, 1800) {
		t.Fatalf("value = %v, want 1800", h.Value)
	}
	if !approx(h.UnrealizedPnL, (120-wantAvg)*15) {
		t.Fatalf("pnl = %v, want %v", h.UnrealizedPnL, (120-wantAvg)*15)
	}
}

func TestPartialSellPreservesAverageCost(t *testing.T) {
	b := Rebuild([]*models.Trade{
		trade("AAPL", models.SideBuy, 10, 100),
		trade("AAPL", models.SideBuy, 5, 110),
	})
	avgBefore := b.Position("AAPL").AvgEntryPrice()

	b.Apply(trade("AAPL", models.SideSell, 10, 120))
	pos := b.Position("AAPL")
	if !approx(pos.Quantity, 5) {
		t.Fatalf("quantity = %v, want 5", pos.Quantity)
	}
	if !approx(pos.AvgEntryPrice(), avgBefore) {
		t.Fatalf("avg changed on partial sell: %v -> %v", avgBefore, pos.AvgEntryPrice())
	}
	if !approx(pos.CostBasis, 5*avgBefore) {
		t.Fatalf("cost basis = %v, want %v", pos.CostBasis, 5*avgBefore)
	}
	// sold 10 at 120 against an average of avgBefore
	if !approx(pos.RealizedPnL, (120-avgBefore)*10) {
		t.Fatalf("realized = %v, want %v", pos.RealizedPnL, (120-avgBefore)*10)
	}
}

func TestOversellClampsToZero(t *testing.T) {
	b := Rebuild([]*models.Trade{
		trade("TSLA", models.SideBuy, 3, 200),
		trade("TSLA", models.SideSell, 10, 210),
	})
	pos := b.Position("TSLA")
	if pos.Quantity < 0 {
		t.Fatalf("quantity went negative: %v", pos.Quantity)
	}
	if !approx(pos.Quantity, 0) {
		t.Fatalf("quantity = %v, want 0", pos.Quantity)
	}
	hs := b.Holdings(map[string]float64{"TSLA": 210}, nil)
	if len(hs) != 0 {
		t.Fatalf("fully sold symbol still in view: %+v", hs)
	}
}

func TestSellOnEmptyBookIsNoopQuantity(t *testing.T) {
	b := NewBook()
	b.Apply(trade("GOOGL", models.SideSell, 4, 150))
	pos := b.Position("GOOGL")
	if !approx(pos.Quantity, 0) || !approx(pos.CostBasis, 0) {
		t.Fatalf("unexpected position %+v", pos)
	}
}

func TestNonNegativityAcrossSequences(t *testing.T) {
	seqs := [][]*models.Trade{
		{trade("A", models.SideSell, 5, 10)},
		{trade("A", models.SideBuy, 1, 10), trade("A", models.SideSell, 2, 10), trade("A", models.SideBuy, 1, 12)},
		{trade("A", models.SideBuy, 2.5, 10), trade("A", models.SideSell, 2.5, 11), trade("A", models.SideSell, 0.1, 11)},
	}
	for i, seq := range seqs {
		b := Rebuild(seq)
		for _, h := range b.Holdings(nil, nil) {
			if h.Quantity < 0 {
				t.Fatalf("seq %d: negative quantity %v", i, h.Quantity)
			}
		}
	}
}

func TestIncrementalMatchesRebuild(t *testing.T) {
	log := []*models.Trade{
		trade("AAPL", models.SideBuy, 10, 100),
		trade("BTC-USD", models.SideBuy, 0.5, 40000),
		trade("AAPL", models.SideBuy, 5, 110),
		trade("AAPL", models.SideSell, 10, 120),
		trade("BTC-USD", models.SideSell, 0.2, 41000),
		trade("AAPL", models.SideBuy, 2, 90),
	}
	prices := map[string]float64{"AAPL": 120, "BTC-USD": 42000}

	full := Rebuild(log).Holdings(prices, nil)

	// Sequential incremental application, reconstructing the accumulator from
	// the holdings view and realized map at every step the way a live
	// dashboard does.
	var view []models.Holding
	var realized map[string]float64
	for _, tr := range log {
		b := FromHoldings(view, realized)
		b.Apply(tr)
		view = b.Holdings(prices, view)
		realized = b.Realized()
	}

	if len(full) != len(view) {
		t.Fatalf("holding counts differ: %d vs %d", len(full), len(view))
	}
	for i := range full {
		f, v := full[i], view[i]
		if f.Symbol != v.Symbol || !approx(f.Quantity, v.Quantity) ||
			!approx(f.AvgEntryPrice, v.AvgEntryPrice) || !approx(f.UnrealizedPnL, v.UnrealizedPnL) ||
			!approx(f.RealizedPnL, v.RealizedPnL) {
			t.Fatalf("holding %d differs: full=%+v incremental=%+v", i, f, v)
		}
	}
}

func TestRealizedSurvivesFlatPosition(t *testing.T) {
	// Closing a position drops it from the holdings view; reopening it must
	// not forget the realized P/L accumulated before the flat stretch.
	log := []*models.Trade{
		trade("IAM.MA", models.SideBuy, 10, 100),
		trade("IAM.MA", models.SideSell, 10, 120),
		trade("IAM.MA", models.SideBuy, 5, 110),
	}
	prices := map[string]float64{"IAM.MA": 115}

	full := Rebuild(log).Holdings(prices, nil)

	var view []models.Holding
	var realized map[string]float64
	for _, tr := range log {
		b := FromHoldings(view, realized)
		b.Apply(tr)
		view = b.Holdings(prices, view)
		realized = b.Realized()
	}

	if len(full) != 1 || len(view) != 1 {
		t.Fatalf("unexpected holding counts %d %d", len(full), len(view))
	}
	if !approx(full[0].RealizedPnL, 200) {
		t.Fatalf("rebuild realized = %v, want 200", full[0].RealizedPnL)
	}
	if !approx(view[0].RealizedPnL, full[0].RealizedPnL) {
		t.Fatalf("incremental realized = %v, rebuild = %v", view[0].RealizedPnL, full[0].RealizedPnL)
	}
	if !approx(realized["IAM.MA"], 200) {
		t.Fatalf("realized map = %v, want 200", realized["IAM.MA"])
	}
}

func TestPriceAndTradeApplicationCommute(t *testing.T) {
	start := []models.Holding{{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100, MarketPrice: 105}}
	newPrices := map[string]float64{"AAPL": 110}
	tr := trade("AAPL", models.SideBuy, 5, 110)

	// price refresh then trade
	a := Reprice(start, newPrices)
	ba := FromHoldings(a, nil)
	ba.Apply(tr)
	first := ba.Holdings(newPrices, a)

	// trade then price refresh
	bb := FromHoldings(start, nil)
	bb.Apply(tr)
	second := Reprice(bb.Holdings(nil, start), newPrices)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("unexpected holding counts %d %d", len(first), len(second))
	}
	f, s := first[0], second[0]
	if !approx(f.Quantity, s.Quantity) || !approx(f.AvgEntryPrice, s.AvgEntryPrice) ||
		!approx(f.MarketPrice, s.MarketPrice) || !approx(f.UnrealizedPnL, s.UnrealizedPnL) {
		t.Fatalf("orders disagree: %+v vs %+v", f, s)
	}
}

func TestMissingPriceKeepsLastKnown(t *testing.T) {
	prior := []models.Holding{{Symbol: "IAM.MA", Quantity: 4, AvgEntryPrice: 120, MarketPrice: 125}}
	b := FromHoldings(prior, nil)
	hs := b.Holdings(map[string]float64{}, prior)
	if len(hs) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(hs))
	}
	if !approx(hs[0].MarketPrice, 125) {
		t.Fatalf("market price = %v, want last-known 125", hs[0].MarketPrice)
	}

	repriced := Reprice(prior, map[string]float64{"OTHER": 9})
	if !approx(repriced[0].MarketPrice, 125) {
		t.Fatalf("reprice dropped last-known price: %v", repriced[0].MarketPrice)
	}
}
