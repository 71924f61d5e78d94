package usecase

import (
	"context"
	"encoding/json"
	"time"

	"TradeSim/internal/domain/models"
	drepo "TradeSim/internal/domain/repository"
	pkgkafka "TradeSim/pkg/kafka"
)

// KafkaTradesHandler consumes trade-insert notifications and forwards them to
// the dashboard, which applies each trade incrementally. This is the
// subscription half of the trade feed; teardown is the consumer's Stop.
type KafkaTradesHandler struct {
	topic   string
	proc    Proc
	metrics drepo.Metrics
}

// Proc is the downstream consumer of trade events (the pipeline or the
// dashboard directly).
type Proc interface {
	Process(ctx context.Context, t *models.Trade) error
}

func NewKafkaTradesHandler(topic string, proc Proc, metrics drepo.Metrics) *KafkaTradesHandler {
	return &KafkaTradesHandler{topic: topic, proc: proc, metrics: metrics}
}

func (h *KafkaTradesHandler) Topic() string { return h.topic }

func (h *KafkaTradesHandler) Handle(ctx context.Context, b []byte) error {
	var t models.Trade
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	// push-to-apply latency, event time to now
	if !t.CreatedAt.IsZero() {
		h.metrics.RecordLatency("trade_push_e2e_seconds", time.Since(t.CreatedAt).Seconds())
	}
	if err := h.proc.Process(ctx, &t); err != nil {
		h.metrics.RecordError("consumer_process")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTradesHandler)(nil)
