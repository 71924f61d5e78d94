package usecase

import (
	"context"
	"errors"
	"testing"

	"TradeSim/internal/domain/models"
)

func newTestPlacer(store *fakeTradeStore, feed *fakeFeed, chs *fakeChallenges) *OrderPlacer {
	return NewOrderPlacer(store, feed, chs, nopMetrics{})
}

func TestPlaceRejectsBeforeMutation(t *testing.T) {
	store := &fakeTradeStore{}
	feed := &fakeFeed{}
	chs := &fakeChallenges{byID: map[string]*models.Challenge{}}
	p := newTestPlacer(store, feed, chs)

	ch := testChallenge("ch-1", "u-1", 1000)
	tk := tick("IAM.MA", 125, 0.5)

	cases := []struct {
		name string
		ch   *models.Challenge
		tick *models.PriceTick
		req  *models.PlaceOrderRequest
		want error
	}{
		{"no challenge", nil, &tk, &models.PlaceOrderRequest{Symbol: "IAM.MA", Side: "buy", Quantity: 1}, ErrNoChallenge},
		{"unknown symbol", ch, nil, &models.PlaceOrderRequest{Symbol: "XXX", Side: "buy", Quantity: 1}, ErrUnknownSymbol},
		{"bad side", ch, &tk, &models.PlaceOrderRequest{Symbol: "IAM.MA", Side: "short", Quantity: 1}, ErrInvalidSide},
		{"zero quantity", ch, &tk, &models.PlaceOrderRequest{Symbol: "IAM.MA", Side: "buy", Quantity: 0}, ErrInvalidQuantity},
		{"negative quantity", ch, &tk, &models.PlaceOrderRequest{Symbol: "IAM.MA", Side: "sell", Quantity: -3}, ErrInvalidQuantity},
		{"insufficient balance", ch, &tk, &models.PlaceOrderRequest{Symbol: "IAM.MA", Side: "buy", Quantity: 100}, ErrInsufficientBalance},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := p.Place(context.Background(), tc.ch, tc.tick, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if store.appends != 0 {
		t.Fatalf("rejections must not append trades, got %d", store.appends)
	}
	if chs.updates != 0 {
		t.Fatalf("rejections must not update challenges, got %d", chs.updates)
	}
	if len(feed.published) != 0 {
		t.Fatalf("rejections must not publish, got %d", len(feed.published))
	}
}

func TestPlaceBuyDebitsBalance(t *testing.T) {
	store := &fakeTradeStore{}
	feed := &fakeFeed{}
	ch := testChallenge("ch-1", "u-1", 10000)
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": ch}}
	p := newTestPlacer(store, feed, chs)

	tk := tick("IAM.MA", 125, 0.5)
	trade, updated, err := p.Place(context.Background(), ch, &tk,
		&models.PlaceOrderRequest{Symbol: "IAM.MA", Side: "buy", Quantity: 4})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if trade.ID == "" {
		t.Fatalf("expected generated trade id")
	}
	if trade.EntryPrice != 125 || trade.Quantity != 4 {
		t.Fatalf("trade executed at wrong terms: %+v", trade)
	}
	if updated.CurrentBalance != 10000-4*125 {
		t.Fatalf("expected balance %v, got %v", 10000-4*125, updated.CurrentBalance)
	}
	if updated.TotalLoss != 500 || updated.TotalProfit != 0 {
		t.Fatalf("expected 500 total loss, got profit=%v loss=%v", updated.TotalProfit, updated.TotalLoss)
	}
	if updated.DailyLossPercent != 5 {
		t.Fatalf("expected daily loss 5%%, got %v", updated.DailyLossPercent)
	}
	if store.appends != 1 {
		t.Fatalf("expected 1 append, got %d", store.appends)
	}
	if len(feed.published) != 1 || feed.published[0].ID != trade.ID {
		t.Fatalf("expected trade published to feed")
	}
	if chs.updates != 1 {
		t.Fatalf("expected challenge update, got %d", chs.updates)
	}
}

func TestPlaceSellCreditsBalance(t *testing.T) {
	store := &fakeTradeStore{}
	feed := &fakeFeed{}
	ch := testChallenge("ch-1", "u-1", 10000)
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": ch}}
	p := newTestPlacer(store, feed, chs)

	tk := tick("ATW.MA", 500, -0.2)
	_, updated, err := p.Place(context.Background(), ch, &tk,
		&models.PlaceOrderRequest{Symbol: "ATW.MA", Side: "sell", Quantity: 2})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if updated.CurrentBalance != 11000 {
		t.Fatalf("expected balance 11000, got %v", updated.CurrentBalance)
	}
	if updated.HighestBalance != 11000 {
		t.Fatalf("expected highest balance to track, got %v", updated.HighestBalance)
	}
	if updated.TotalProfit != 1000 || updated.TotalLoss != 0 {
		t.Fatalf("expected 1000 profit, got profit=%v loss=%v", updated.TotalProfit, updated.TotalLoss)
	}
}

func TestPlaceStoreFailureLeavesChallengeUntouched(t *testing.T) {
	store := &fakeTradeStore{failAll: true}
	feed := &fakeFeed{}
	ch := testChallenge("ch-1", "u-1", 10000)
	chs := &fakeChallenges{byID: map[string]*models.Challenge{"ch-1": ch}}
	p := newTestPlacer(store, feed, chs)

	tk := tick("IAM.MA", 125, 0.5)
	_, _, err := p.Place(context.Background(), ch, &tk,
		&models.PlaceOrderRequest{Symbol: "IAM.MA", Side: "buy", Quantity: 1})
	if err == nil {
		t.Fatalf("expected append failure to surface")
	}
	if chs.updates != 0 {
		t.Fatalf("balance must not change when the log append fails")
	}
	if len(feed.published) != 0 {
		t.Fatalf("nothing may be published when the log append fails")
	}
}
