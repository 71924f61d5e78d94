package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TradeSim/internal/domain/models"
	"TradeSim/internal/domain/repository"
	pkgkafka "TradeSim/pkg/kafka"
)

// ClickHouseTradeStore implements the append-only trade log on ClickHouse.
type ClickHouseTradeStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseTradeStore creates the ClickHouse-backed trade log.
func NewClickHouseTradeStore(db *sql.DB, table string) repository.TradeStore {
	return &ClickHouseTradeStore{db: db, table: table}
}

func (s *ClickHouseTradeStore) Init(ctx context.Context) error {
	return nil // schema init in pkg
}

func (s *ClickHouseTradeStore) Append(ctx context.Context, t *models.Trade) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (id, user_id, challenge_id, symbol, side, quantity, entry_price, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table)
	_, err := s.db.ExecContext(ctx, q,
		t.ID,
		t.UserID,
		t.ChallengeID,
		t.Symbol,
		string(t.Side),
		t.Quantity,
		t.EntryPrice,
		t.Status,
		t.CreatedAt,
	)
	return err
}

// List returns the challenge's trades ordered oldest first, the order the
// ledger fold expects.
func (s *ClickHouseTradeStore) List(ctx context.Context, challengeID string, from, to time.Time, limit int) ([]*models.Trade, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if limit <= 0 {
		limit = 1000
	}
	q := fmt.Sprintf(
		"SELECT id, user_id, challenge_id, symbol, side, quantity, entry_price, status, created_at FROM %s WHERE challenge_id = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at ASC LIMIT ?",
		s.table)
	rows, err := s.db.QueryContext(ctx, q, challengeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		var t models.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.UserID, &t.ChallengeID, &t.Symbol, &side, &t.Quantity, &t.EntryPrice, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *ClickHouseTradeStore) Count(ctx context.Context, challengeID string) (int64, error) {
	q := fmt.Sprintf("SELECT count() FROM %s WHERE challenge_id = ?", s.table)
	var n int64
	if err := s.db.QueryRowContext(ctx, q, challengeID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *ClickHouseTradeStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseTradeStore) Close() error {
	return nil // managed by pkg
}

// KafkaTradeFeed implements TradeFeed on a Kafka topic. Keying by challenge
// id keeps a challenge's events in order on one partition.
type KafkaTradeFeed struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTradeFeed creates the Kafka trade-insert feed.
func NewKafkaTradeFeed(producer *pkgkafka.Producer, topic string) repository.TradeFeed {
	return &KafkaTradeFeed{producer: producer, topic: topic}
}

func (f *KafkaTradeFeed) Publish(ctx context.Context, t *models.Trade) error {
	return f.producer.Publish(ctx, f.topic, []byte(t.ChallengeID), t)
}

func (f *KafkaTradeFeed) Close() error {
	if f.producer != nil {
		return f.producer.Close()
	}
	return nil
}
