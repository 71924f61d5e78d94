package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeSim/internal/domain/models"
	applogger "TradeSim/pkg/logger"
)

type fakeTradeStore struct {
	mu      sync.Mutex
	trades  []*models.Trade
	failAll bool
	appends int
}

func (s *fakeTradeStore) Init(ctx context.Context) error { return nil }

func (s *fakeTradeStore) Append(ctx context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return fmt.Errorf("store down")
	}
	s.appends++
	cp := *t
	s.trades = append(s.trades, &cp)
	return nil
}

func (s *fakeTradeStore) List(ctx context.Context, challengeID string, from, to time.Time, limit int) ([]*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, fmt.Errorf("store down")
	}
	var out []*models.Trade
	for _, t := range s.trades {
		if t.ChallengeID == challengeID {
			out = append(out, t)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeTradeStore) Count(ctx context.Context, challengeID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return 0, fmt.Errorf("store down")
	}
	var n int64
	for _, t := range s.trades {
		if t.ChallengeID == challengeID {
			n++
		}
	}
	return n, nil
}

func (s *fakeTradeStore) Health(ctx context.Context) error { return nil }
func (s *fakeTradeStore) Close() error                     { return nil }

type fakeMarket struct {
	mu    sync.Mutex
	ticks map[string]models.PriceTick
	err   error
}

func (m *fakeMarket) Fetch(ctx context.Context, market string, symbols []string) (map[string]models.PriceTick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]models.PriceTick, len(m.ticks))
	for k, v := range m.ticks {
		out[k] = v
	}
	return out, nil
}

type fakeChallenges struct {
	mu      sync.Mutex
	byID    map[string]*models.Challenge
	updates int
}

func (s *fakeChallenges) Get(ctx context.Context, id string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("challenge %s not found", id)
	}
	cp := *ch
	return &cp, nil
}

func (s *fakeChallenges) ActiveForUser(ctx context.Context, userID string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.byID {
		if ch.UserID == userID && ch.Status == models.ChallengeActive {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no active challenge for %s", userID)
}

func (s *fakeChallenges) UpdateBalances(ctx context.Context, c *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	cp := *c
	s.byID[c.ID] = &cp
	return nil
}

func (s *fakeChallenges) Close() error { return nil }

type fakeFeed struct {
	mu        sync.Mutex
	published []*models.Trade
}

func (f *fakeFeed) Publish(ctx context.Context, t *models.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.published = append(f.published, &cp)
	return nil
}

func (f *fakeFeed) Close() error { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordOrderPlaced(side, symbol string)      {}
func (nopMetrics) RecordRefresh(source string)                {}
func (nopMetrics) RecordError(kind string)                    {}
func (nopMetrics) RecordLastPrice(symbol string, price float64) {}
func (nopMetrics) RecordLatency(op string, seconds float64)   {}

func testLogger() *applogger.Logger {
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		panic(err)
	}
	return l
}

func testChallenge(id, userID string, balance float64) *models.Challenge {
	return &models.Challenge{
		ID:              id,
		UserID:          userID,
		Status:          models.ChallengeActive,
		Phase:           1,
		StartingBalance: balance,
		CurrentBalance:  balance,
		HighestBalance:  balance,
		Plan: models.ChallengePlan{
			ID:                    "plan-10k",
			Name:                  "Standard 10K",
			AccountSize:           balance,
			ProfitTargetPercent:   10,
			DailyLossLimitPercent: 5,
			MaxLossLimitPercent:   10,
		},
	}
}

func tick(symbol string, price, changePct float64) models.PriceTick {
	return models.PriceTick{
		Symbol:        symbol,
		Price:         price,
		Change:        price * changePct / 100,
		ChangePercent: changePct,
		Currency:      "MAD",
		Market:        "morocco",
		MarketState:   "REGULAR",
		Timestamp:     time.Now(),
	}
}
