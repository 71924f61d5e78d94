package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"TradeSim/internal/domain/models"
	drepo "TradeSim/internal/domain/repository"
	"TradeSim/internal/portfolio"
	"TradeSim/internal/signal"
	"TradeSim/pkg/cache"
	applogger "TradeSim/pkg/logger"
)

const (
	recentTradesKeep = 50
	appliedIDsKeep   = 256
	snapshotCacheTTL = 24 * time.Hour
)

func snapshotCacheKey(challengeID string) string {
	return "tradesim:snapshot:" + challengeID
}

// Dashboard maintains the latest derived view for the selected challenge:
// holdings marked to market, per-instrument signals, the selected
// instrument's trade plan and risk alert, and ranked opportunities.
//
// Two triggers feed it: a periodic price refresh and a per-trade push from
// the feed. A single mutex serializes them; price application never touches
// cost-basis state and trade application never touches price state, so the
// two commute and any interleaving converges to the same snapshot.
type Dashboard struct {
	trades     drepo.TradeStore
	market     drepo.MarketData
	challenges drepo.ChallengeStore
	metrics    drepo.Metrics
	snapCache  cache.Service
	logger     *applogger.Logger

	scope    string
	interval time.Duration

	mu        sync.RWMutex
	gen       uint64
	challenge *models.Challenge
	selected  string
	ticks     map[string]models.PriceTick
	snap      *models.Snapshot
	applied   map[string]struct{}
	appliedQ  []string
	subs      map[chan *models.Snapshot]struct{}
}

// NewDashboard creates a dashboard over the given collaborators. scope is the
// market filter passed to the price proxy ("all", "international", "morocco").
func NewDashboard(
	trades drepo.TradeStore,
	market drepo.MarketData,
	challenges drepo.ChallengeStore,
	metrics drepo.Metrics,
	snapCache cache.Service,
	l *applogger.Logger,
	scope string,
	interval time.Duration,
) *Dashboard {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if scope == "" {
		scope = "all"
	}
	return &Dashboard{
		trades:     trades,
		market:     market,
		challenges: challenges,
		metrics:    metrics,
		snapCache:  snapCache,
		logger:     l,
		scope:      scope,
		interval:   interval,
		ticks:      make(map[string]models.PriceTick),
		applied:    make(map[string]struct{}),
		subs:       make(map[chan *models.Snapshot]struct{}),
	}
}

// Start runs the price poll loop until ctx is done. Fetch failures are
// logged and surfaced as a stale snapshot; the next tick naturally retries.
func (d *Dashboard) Start(ctx context.Context) {
	d.refreshPrices(ctx)
	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.refreshPrices(ctx)
			}
		}
	}()
}

// SelectChallenge switches the dashboard to a challenge: cached snapshot
// first for instant paint, then an authoritative rebuild from the trade log.
// Any in-flight result for a previous selection is discarded by generation.
func (d *Dashboard) SelectChallenge(ctx context.Context, challengeID string) error {
	ch, err := d.challenges.Get(ctx, challengeID)
	if err != nil {
		return fmt.Errorf("load challenge: %w", err)
	}

	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.challenge = ch
	d.selected = ""
	d.snap = &models.Snapshot{ChallengeID: challengeID}
	d.mu.Unlock()

	// Two-tier cache paint: stale is acceptable until the rebuild lands.
	if d.snapCache != nil {
		var cached models.Snapshot
		if err := d.snapCache.Get(ctx, snapshotCacheKey(challengeID), &cached); err == nil && cached.ChallengeID == challengeID {
			d.mu.Lock()
			if d.gen == gen {
				d.snap = &cached
			}
			d.mu.Unlock()
			d.notify()
		}
	}

	start := time.Now()
	log, err := d.trades.List(ctx, challengeID, time.Time{}, time.Now(), 1000)
	if err != nil {
		d.metrics.RecordError("trade_log_load")
		return fmt.Errorf("load trade log: %w", err)
	}
	count, err := d.trades.Count(ctx, challengeID)
	if err != nil {
		count = int64(len(log))
	}
	d.metrics.RecordLatency("trade_log_load", time.Since(start).Seconds())

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return nil // selection changed while loading; drop the result
	}
	book := portfolio.Rebuild(log)
	holdings := book.Holdings(d.priceMapLocked(), nil)

	recent := make([]models.Trade, 0, recentTradesKeep)
	for i := len(log) - 1; i >= 0 && len(recent) < recentTradesKeep; i-- {
		recent = append(recent, *log[i])
	}

	// The rebuild already folded every trade in the log; the feed may still
	// redeliver the tail of it.
	d.applied = make(map[string]struct{})
	d.appliedQ = d.appliedQ[:0]
	for _, tr := range log {
		d.markAppliedLocked(tr.ID)
	}

	d.snap = &models.Snapshot{
		ChallengeID:  challengeID,
		Holdings:     holdings,
		Realized:     book.Realized(),
		RecentTrades: recent,
		TradeCount:   count,
		LastUpdate:   time.Now(),
	}
	d.deriveLocked()
	d.publishLocked(ctx)
	d.mu.Unlock()
	d.notify()
	return nil
}

// SelectInstrument sets the active instrument for plan and alert derivation.
func (d *Dashboard) SelectInstrument(ctx context.Context, symbol string) {
	d.mu.Lock()
	d.gen++
	d.selected = symbol
	d.deriveLocked()
	d.publishLocked(ctx)
	d.mu.Unlock()
	d.notify()
}

// OnTrade applies one freshly inserted trade incrementally: the accumulator
// is reconstructed from the current holdings view, the trade folded in, and
// derived outputs recomputed. Trades for other challenges are ignored.
//
// A self-placed order reaches the dashboard twice, once directly from the
// order handler and once through the feed. Each trade id is folded in at
// most once; redeliveries are dropped.
func (d *Dashboard) OnTrade(ctx context.Context, t *models.Trade) {
	if t == nil {
		return
	}
	d.mu.Lock()
	if d.snap == nil || d.snap.ChallengeID != t.ChallengeID {
		d.mu.Unlock()
		return
	}
	if t.ID != "" {
		if _, dup := d.applied[t.ID]; dup {
			d.mu.Unlock()
			return
		}
		d.markAppliedLocked(t.ID)
	}
	book := portfolio.FromHoldings(d.snap.Holdings, d.snap.Realized)
	book.Apply(t)
	d.snap.Holdings = book.Holdings(d.priceMapLocked(), d.snap.Holdings)
	d.snap.Realized = book.Realized()

	recent := append([]models.Trade{*t}, d.snap.RecentTrades...)
	if len(recent) > recentTradesKeep {
		recent = recent[:recentTradesKeep]
	}
	d.snap.RecentTrades = recent
	d.snap.TradeCount++
	d.snap.LastUpdate = time.Now()
	d.deriveLocked()
	d.publishLocked(ctx)
	d.mu.Unlock()

	d.metrics.RecordRefresh("trade")
	d.notify()
}

// markAppliedLocked records a folded trade id, evicting the oldest once the
// window is full. Caller holds d.mu.
func (d *Dashboard) markAppliedLocked(id string) {
	if id == "" {
		return
	}
	if _, ok := d.applied[id]; ok {
		return
	}
	d.applied[id] = struct{}{}
	d.appliedQ = append(d.appliedQ, id)
	if len(d.appliedQ) > appliedIDsKeep {
		delete(d.applied, d.appliedQ[0])
		d.appliedQ = d.appliedQ[1:]
	}
}

// Process adapts OnTrade to the trade-event processor interface used by the
// feed pipeline.
func (d *Dashboard) Process(ctx context.Context, t *models.Trade) error {
	d.OnTrade(ctx, t)
	return nil
}

// refreshPrices polls the market-data collaborator and re-derives everything
// price-dependent. Missing symbols keep their last-known tick.
func (d *Dashboard) refreshPrices(ctx context.Context) {
	start := time.Now()
	fetched, err := d.market.Fetch(ctx, d.scope, nil)
	d.metrics.RecordLatency("market_fetch", time.Since(start).Seconds())
	if err != nil {
		d.metrics.RecordError("market_fetch")
		d.logger.Warn("market data fetch failed", applogger.Error(err))
		return
	}

	d.mu.Lock()
	for sym, tk := range fetched {
		d.ticks[sym] = tk
		d.metrics.RecordLastPrice(sym, tk.Price)
	}
	if d.snap != nil {
		d.snap.Holdings = portfolio.Reprice(d.snap.Holdings, d.priceMapLocked())
		d.snap.LastUpdate = time.Now()
	}
	d.deriveLocked()
	d.publishLocked(ctx)
	d.mu.Unlock()

	d.metrics.RecordRefresh("prices")
	d.notify()
}

// priceMapLocked flattens last-known ticks to symbol -> price. Caller holds mu.
func (d *Dashboard) priceMapLocked() map[string]float64 {
	m := make(map[string]float64, len(d.ticks))
	for sym, tk := range d.ticks {
		m[sym] = tk.Price
	}
	return m
}

// deriveLocked recomputes signals, opportunities, plan and alert from the
// last-known ticks. Caller holds mu.
func (d *Dashboard) deriveLocked() {
	if d.snap == nil {
		return
	}
	if len(d.ticks) == 0 {
		d.snap.Signals = nil
		d.snap.Opportunities = nil
		d.snap.Plan = nil
		d.snap.Alert = nil
		d.snap.Selected = d.selected
		return
	}

	var limit float64 = 5
	if d.challenge != nil {
		limit = d.challenge.DailyLossLimit()
	}
	eng := signal.New(limit)

	ticks := make([]models.PriceTick, 0, len(d.ticks))
	for _, tk := range d.ticks {
		ticks = append(ticks, tk)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Symbol < ticks[j].Symbol })

	sigs := eng.Signals(ticks)
	d.snap.Signals = sigs
	d.snap.Opportunities = signal.Opportunities(sigs)
	d.snap.Selected = d.selected

	d.snap.Plan = nil
	d.snap.Alert = nil
	if d.selected != "" {
		if tk, ok := d.ticks[d.selected]; ok {
			plan := eng.Plan(&tk)
			alert := eng.Alert(&tk)
			d.snap.Plan = &plan
			d.snap.Alert = &alert
		}
	}
}

// publishLocked write-throughs the snapshot to the two-tier cache so a
// reconnecting client paints instantly. Caller holds mu.
func (d *Dashboard) publishLocked(ctx context.Context) {
	if d.snapCache == nil || d.snap == nil || d.snap.ChallengeID == "" {
		return
	}
	if err := d.snapCache.Set(ctx, snapshotCacheKey(d.snap.ChallengeID), d.snap, snapshotCacheTTL); err != nil {
		d.metrics.RecordError("snapshot_cache")
	}
}

// Snapshot returns the current view. The returned value is a copy; slices are
// shared but treated as immutable by all consumers.
func (d *Dashboard) Snapshot() *models.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.snap == nil {
		return &models.Snapshot{}
	}
	s := *d.snap
	return &s
}

// Challenge returns the currently selected challenge, nil if none.
func (d *Dashboard) Challenge() *models.Challenge {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.challenge
}

// ActiveChallengeFor looks up the user's active challenge record.
func (d *Dashboard) ActiveChallengeFor(ctx context.Context, userID string) (*models.Challenge, error) {
	return d.challenges.ActiveForUser(ctx, userID)
}

// SetChallenge replaces the cached challenge record after a balance update.
func (d *Dashboard) SetChallenge(c *models.Challenge) {
	d.mu.Lock()
	if d.challenge == nil || c == nil || d.challenge.ID == c.ID {
		d.challenge = c
	}
	d.mu.Unlock()
}

// Ticks returns the last-known tick per symbol.
func (d *Dashboard) Ticks() map[string]models.PriceTick {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]models.PriceTick, len(d.ticks))
	for k, v := range d.ticks {
		out[k] = v
	}
	return out
}

// Subscribe registers a channel receiving every new snapshot. Slow receivers
// drop updates rather than block the writer.
func (d *Dashboard) Subscribe() chan *models.Snapshot {
	ch := make(chan *models.Snapshot, 8)
	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel.
func (d *Dashboard) Unsubscribe(ch chan *models.Snapshot) {
	d.mu.Lock()
	delete(d.subs, ch)
	d.mu.Unlock()
	close(ch)
}

func (d *Dashboard) notify() {
	snap := d.Snapshot()
	d.mu.RLock()
	for ch := range d.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	d.mu.RUnlock()
}
