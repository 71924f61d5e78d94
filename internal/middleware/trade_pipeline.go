package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeSim/internal/domain/models"
	drepo "TradeSim/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Trade) error
}

// TradePipeline sits between the trade feed consumer and the dashboard.
// It validates incoming trade events, throttles bursts per symbol, and
// buffers events when the downstream processor fails, retrying with backoff.
type TradePipeline struct {
	proc    Proc
	metrics drepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.Trade
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	// per-symbol last accepted time for the throttle window
	lastSeen map[string]time.Time
}

type PipelineOption func(*TradePipeline)

// WithMaxRPS sets the max accepted trade events per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TradePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *TradePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewTradePipeline creates a pipeline for the given downstream processor.
func NewTradePipeline(proc Proc, metrics drepo.Metrics, opts ...PipelineOption) *TradePipeline {
	p := &TradePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Trade, p.bufSize)
	return p
}

// Start launches background retry of buffered trade events.
func (p *TradePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case t := <-p.bufCh:
				if t == nil {
					continue
				}
				if err := p.proc.Process(ctx, t); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background retry loop.
func (p *TradePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles and forwards one trade event, buffering it
// for retry when the downstream processor fails.
func (p *TradePipeline) Process(ctx context.Context, t *models.Trade) error {
	start := time.Now()
	if err := validateTradeEvent(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(t.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateTradeEvent(t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade nil")
	}
	if t.Symbol == "" || t.ChallengeID == "" {
		return fmt.Errorf("symbol or challenge empty")
	}
	if !t.Side.Valid() {
		return fmt.Errorf("unknown side %q", t.Side)
	}
	if t.Quantity <= 0 || t.EntryPrice <= 0 {
		return fmt.Errorf("non-positive quantity/price")
	}
	return nil
}

func (p *TradePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	min := time.Second / time.Duration(p.maxRPS)
	if !last.IsZero() && now.Sub(last) < min {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
