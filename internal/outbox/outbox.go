// Package outbox records events in the same transaction as the state change
// that caused them, and relays them to the broker afterwards.
package outbox

import (
	"context"
	"time"

	"backend-socialpost/internal/db"
	"backend-socialpost/internal/logging"

	"github.com/jackc/pgx/v5"
)

const defaultBatch = 50

type Message struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

type Publisher interface {
	Publish(ctx context.Context, exchange, key string, body []byte) error
}

// Enqueue must be called with the transaction that writes the triggering row.
func Enqueue(ctx context.Context, q db.Querier, exchange, key string, payload []byte) error {
	_, err := q.Exec(ctx, `
		INSERT INTO outbox (exchange, routing_key, payload)
		VALUES ($1,$2,$3)
	`, exchange, key, payload)
	return err
}

type Relay struct {
	db       db.TxQuerier
	pub      Publisher
	logger   logging.Logger
	interval time.Duration
	batch    int
}

func NewRelay(q db.TxQuerier, pub Publisher, logger logging.Logger, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{db: q, pub: pub, logger: logger, interval: interval, batch: defaultBatch}
}

// Run flushes the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if n, err := r.Flush(ctx); err != nil {
			r.logger.Error(ctx, "outbox flush failed", "error", err)
		} else if n > 0 {
			r.logger.Debug(ctx, "outbox flushed", "delivered", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush publishes pending messages in id order and returns how many were
// delivered. It stops at the first publish failure so later events never
// overtake earlier ones; the failed row's attempts counter is bumped.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	delivered := 0
	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		pending, err := r.pending(ctx, tx)
		if err != nil {
			return err
		}

		for _, m := range pending {
			if err := r.pub.Publish(ctx, m.Exchange, m.RoutingKey, m.Payload); err != nil {
				r.logger.Warn(ctx, "outbox publish failed", "id", m.ID, "routing_key", m.RoutingKey, "attempts", m.Attempts+1, "error", err)
				_, uerr := tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id=$1`, m.ID)
				return uerr
			}
			if _, err := tx.Exec(ctx, `UPDATE outbox SET delivered_at = now() WHERE id=$1`, m.ID); err != nil {
				return err
			}
			delivered++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return delivered, nil
}

func (r *Relay) pending(ctx context.Context, tx pgx.Tx) ([]Message, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, exchange, routing_key, payload, attempts
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Exchange, &m.RoutingKey, &m.Payload, &m.Attempts); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
