package usecase

import (
	"context"
	"testing"
	"time"

	"TradeSim/internal/domain/models"
	"TradeSim/pkg/cache"
)

func newTestDashboard(store *fakeTradeStore, market *fakeMarket, chs *fakeChallenges, snapCache cache.Service) *Dashboard {
	return NewDashboard(store, market, chs, nopMetrics{}, snapCache, testLogger(), "morocco", time.Hour)
}

func seedTrades(store *fakeTradeStore, challengeID string, trades ...*models.Trade) {
	for i, t := range trades {
		t.ChallengeID = challengeID
		t.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		store.trades = append(store.trades, t)
	}
}

func TestSelectChallengeRebuildsFromLog(t *testing.T) {
	store := &fakeTradeStore{}
	seedTrades(store, "ch-1",
		&models.Trade{ID: "t1", Symbol: "IAM.MA", Side: models.SideBuy, Quantity: 10, EntryPrice: 100},
		&models.Trade{ID: "t2", Symbol: "IAM.MA", Side: models.SideBuy, Quantity: 5, EntryPrice: 110},
		&models.Trade{ID: "t3", Symbol: "IAM.MA", Side: models.SideSell, Quantity: 5, EntryPrice: 120},
	)
	market := &fakeMarket{ticks: map[string]models.PriceTick{
		"IAM.MA": tick("IAM.MA", 120, 1.2),
	}}
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": testChallenge("ch-1", "u-1", 10000)}}
	d := newTestDashboard(store, market, chs, cache.NewMemoryCache())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	if err := d.SelectChallenge(ctx, "ch-1"); err != nil {
		t.Fatalf("select challenge: %v", err)
	}

	snap := d.Snapshot()
	if snap.ChallengeID != "ch-1" {
		t.Fatalf("expected challenge ch-1, got %q", snap.ChallengeID)
	}
	if snap.TradeCount != 3 {
		t.Fatalf("expected 3 trades, got %d", snap.TradeCount)
	}
	if len(snap.Holdings) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(snap.Holdings))
	}
	h := snap.Holdings[0]
	if h.Quantity != 10 {
		t.Fatalf("expected quantity 10, got %v", h.Quantity)
	}
	// avg entry stays at the weighted buy average after the partial sell
	want := (10*100.0 + 5*110.0) / 15.0
	if diff := h.AvgEntryPrice - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected avg entry %v, got %v", want, h.AvgEntryPrice)
	}
	if h.MarketPrice != 120 {
		t.Fatalf("expected market price 120, got %v", h.MarketPrice)
	}
	if len(snap.Signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(snap.Signals))
	}
	if len(snap.RecentTrades) != 3 || snap.RecentTrades[0].ID != "t3" {
		t.Fatalf("expected newest-first recent trades, got %+v", snap.RecentTrades)
	}
}

func TestSelectChallengeUnknownIDFails(t *testing.T) {
	store := &fakeTradeStore{}
	market := &fakeMarket{}
	chs := &fakeChallenges{byID: map[string]*models.Challenge{}}
	d := newTestDashboard(store, market, chs, nil)

	if err := d.SelectChallenge(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown challenge")
	}
}

func TestOnTradeUpdatesHoldingsIncrementally(t *testing.T) {
	store := &fakeTradeStore{}
	seedTrades(store, "ch-1",
		&models.Trade{ID: "t1", Symbol: "ATW.MA", Side: models.SideBuy, Quantity: 4, EntryPrice: 480},
	)
	market := &fakeMarket{ticks: map[string]models.PriceTick{
		"ATW.MA": tick("ATW.MA", 485, 0.5),
	}}
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": testChallenge("ch-1", "u-1", 10000)}}
	d := newTestDashboard(store, market, chs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	if err := d.SelectChallenge(ctx, "ch-1"); err != nil {
		t.Fatalf("select challenge: %v", err)
	}

	d.OnTrade(ctx, &models.Trade{
		ID: "t2", ChallengeID: "ch-1", Symbol: "ATW.MA",
		Side: models.SideBuy, Quantity: 2, EntryPrice: 490,
		CreatedAt: time.Now(),
	})

	snap := d.Snapshot()
	if snap.TradeCount != 2 {
		t.Fatalf("expected trade count 2, got %d", snap.TradeCount)
	}
	if len(snap.Holdings) != 1 || snap.Holdings[0].Quantity != 6 {
		t.Fatalf("expected 6 shares held, got %+v", snap.Holdings)
	}
	if snap.RecentTrades[0].ID != "t2" {
		t.Fatalf("expected t2 first in recent trades")
	}
}

func TestOnTradeIgnoresOtherChallenges(t *testing.T) {
	store := &fakeTradeStore{}
	market := &fakeMarket{ticks: map[string]models.PriceTick{"IAM.MA": tick("IAM.MA", 125, 0.4)}}
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": testChallenge("ch-1", "u-1", 10000)}}
	d := newTestDashboard(store, market, chs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	if err := d.SelectChallenge(ctx, "ch-1"); err != nil {
		t.Fatalf("select challenge: %v", err)
	}
	before := d.Snapshot().TradeCount

	d.OnTrade(ctx, &models.Trade{
		ID: "x", ChallengeID: "ch-other", Symbol: "IAM.MA",
		Side: models.SideBuy, Quantity: 1, EntryPrice: 125,
	})

	if got := d.Snapshot().TradeCount; got != before {
		t.Fatalf("trade for another challenge must not change the snapshot, count %d -> %d", before, got)
	}
}

func TestOnTradeDuplicateDeliveryAppliesOnce(t *testing.T) {
	store := &fakeTradeStore{}
	seedTrades(store, "ch-1",
		&models.Trade{ID: "t1", Symbol: "ATW.MA", Side: models.SideBuy, Quantity: 4, EntryPrice: 480},
	)
	market := &fakeMarket{ticks: map[string]models.PriceTick{"ATW.MA": tick("ATW.MA", 485, 0.5)}}
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": testChallenge("ch-1", "u-1", 10000)}}
	d := newTestDashboard(store, market, chs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	if err := d.SelectChallenge(ctx, "ch-1"); err != nil {
		t.Fatalf("select challenge: %v", err)
	}

	// A placed order arrives once from the handler and once from the feed.
	tr := &models.Trade{
		ID: "t2", ChallengeID: "ch-1", Symbol: "ATW.MA",
		Side: models.SideBuy, Quantity: 10, EntryPrice: 490,
		CreatedAt: time.Now(),
	}
	d.OnTrade(ctx, tr)
	d.OnTrade(ctx, tr)

	snap := d.Snapshot()
	if snap.TradeCount != 2 {
		t.Fatalf("expected trade count 2 after redelivery, got %d", snap.TradeCount)
	}
	if len(snap.Holdings) != 1 || snap.Holdings[0].Quantity != 14 {
		t.Fatalf("expected 14 shares after redelivery, got %+v", snap.Holdings)
	}

	// The feed may also replay a trade the full rebuild already folded in.
	d.OnTrade(ctx, &models.Trade{
		ID: "t1", ChallengeID: "ch-1", Symbol: "ATW.MA",
		Side: models.SideBuy, Quantity: 4, EntryPrice: 480,
	})
	snap = d.Snapshot()
	if snap.TradeCount != 2 || snap.Holdings[0].Quantity != 14 {
		t.Fatalf("replayed logged trade changed the snapshot: count=%d holdings=%+v",
			snap.TradeCount, snap.Holdings)
	}
}

func TestOnTradeRealizedMatchesRebuildAfterFlat(t *testing.T) {
	store := &fakeTradeStore{}
	seedTrades(store, "ch-1",
		&models.Trade{ID: "t1", Symbol: "IAM.MA", Side: models.SideBuy, Quantity: 10, EntryPrice: 100},
	)
	market := &fakeMarket{ticks: map[string]models.PriceTick{"IAM.MA": tick("IAM.MA", 115, 0.2)}}
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": testChallenge("ch-1", "u-1", 10000)}}
	d := newTestDashboard(store, market, chs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	if err := d.SelectChallenge(ctx, "ch-1"); err != nil {
		t.Fatalf("select challenge: %v", err)
	}

	// Close the position, then reopen it. The realized figure from the flat
	// stretch must survive the holdings-view round trip.
	sell := &models.Trade{ID: "t2", ChallengeID: "ch-1", Symbol: "IAM.MA",
		Side: models.SideSell, Quantity: 10, EntryPrice: 120, CreatedAt: time.Now()}
	rebuy := &models.Trade{ID: "t3", ChallengeID: "ch-1", Symbol: "IAM.MA",
		Side: models.SideBuy, Quantity: 5, EntryPrice: 110, CreatedAt: time.Now()}
	d.OnTrade(ctx, sell)
	d.OnTrade(ctx, rebuy)

	snap := d.Snapshot()
	if len(snap.Holdings) != 1 {
		t.Fatalf("expected 1 holding, got %+v", snap.Holdings)
	}
	if got := snap.Holdings[0].RealizedPnL; got != 200 {
		t.Fatalf("incremental realized = %v, want 200", got)
	}

	// A fresh rebuild over the same log must agree.
	seedTrades(store, "ch-1", sell, rebuy)
	if err := d.SelectChallenge(ctx, "ch-1"); err != nil {
		t.Fatalf("reselect challenge: %v", err)
	}
	snap = d.Snapshot()
	if got := snap.Holdings[0].RealizedPnL; got != 200 {
		t.Fatalf("rebuild realized = %v, want 200", got)
	}
}

func TestSelectInstrumentDerivesPlanAndAlert(t *testing.T) {
	store := &fakeTradeStore{}
	market := &fakeMarket{ticks: map[string]models.PriceTick{
		"IAM.MA": tick("IAM.MA", 100, 1.2),
		"ATW.MA": tick("ATW.MA", 485, -0.3),
	}}
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": testChallenge("ch-1", "u-1", 10000)}}
	d := newTestDashboard(store, market, chs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	if err := d.SelectChallenge(ctx, "ch-1"); err != nil {
		t.Fatalf("select challenge: %v", err)
	}

	snap := d.Snapshot()
	if snap.Plan != nil || snap.Alert != nil {
		t.Fatalf("no instrument selected yet, plan/alert must be nil")
	}

	d.SelectInstrument(ctx, "IAM.MA")
	snap = d.Snapshot()
	if snap.Selected != "IAM.MA" {
		t.Fatalf("expected selected IAM.MA, got %q", snap.Selected)
	}
	if snap.Plan == nil || snap.Alert == nil {
		t.Fatalf("expected plan and alert for selected instrument")
	}
	if snap.Plan.Symbol != "IAM.MA" {
		t.Fatalf("plan symbol mismatch: %q", snap.Plan.Symbol)
	}

	// Switching to a symbol without a tick clears both.
	d.SelectInstrument(ctx, "BCP.MA")
	snap = d.Snapshot()
	if snap.Plan != nil || snap.Alert != nil {
		t.Fatalf("plan/alert must clear when the symbol has no tick")
	}
}

func TestCachedSnapshotPaintsWhenLogUnavailable(t *testing.T) {
	shared := cache.NewMemoryCache()
	market := &fakeMarket{ticks: map[string]models.PriceTick{"IAM.MA": tick("IAM.MA", 125, 0.9)}}
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": testChallenge("ch-1", "u-1", 10000)}}

	store := &fakeTradeStore{}
	seedTrades(store, "ch-1",
		&models.Trade{ID: "t1", Symbol: "IAM.MA", Side: models.SideBuy, Quantity: 8, EntryPrice: 120},
	)
	first := newTestDashboard(store, market, chs, shared)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first.Start(ctx)
	if err := first.SelectChallenge(ctx, "ch-1"); err != nil {
		t.Fatalf("first select: %v", err)
	}

	// A fresh instance with an unreachable trade log still paints the
	// cached snapshot even though the rebuild fails.
	broken := &fakeTradeStore{failAll: true}
	second := newTestDashboard(broken, market, chs, shared)
	if err := second.SelectChallenge(ctx, "ch-1"); err == nil {
		t.Fatalf("expected rebuild error from broken store")
	}
	snap := second.Snapshot()
	if len(snap.Holdings) != 1 || snap.Holdings[0].Quantity != 8 {
		t.Fatalf("expected cached holdings to paint, got %+v", snap.Holdings)
	}
}

func TestSubscribeReceivesSnapshotUpdates(t *testing.T) {
	store := &fakeTradeStore{}
	seedTrades(store, "ch-1",
		&models.Trade{ID: "t1", Symbol: "IAM.MA", Side: models.SideBuy, Quantity: 8, EntryPrice: 120},
	)
	market := &fakeMarket{ticks: map[string]models.PriceTick{"IAM.MA": tick("IAM.MA", 125, 0.9)}}
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": testChallenge("ch-1", "u-1", 10000)}}
	d := newTestDashboard(store, market, chs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	ch := d.Subscribe()
	defer d.Unsubscribe(ch)

	// The authoritative rebuild after a challenge switch must push, not wait
	// for the next poll.
	if err := d.SelectChallenge(ctx, "ch-1"); err != nil {
		t.Fatalf("select challenge: %v", err)
	}
	select {
	case snap := <-ch:
		if snap == nil || snap.ChallengeID != "ch-1" || len(snap.Holdings) != 1 {
			t.Fatalf("unexpected rebuild snapshot: %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot delivered after challenge rebuild")
	}

	d.SelectInstrument(ctx, "IAM.MA")
	select {
	case snap := <-ch:
		if snap == nil {
			t.Fatalf("nil snapshot delivered")
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot delivered to subscriber")
	}
}
