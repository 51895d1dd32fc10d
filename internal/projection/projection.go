// Package projection keeps a local, read-only copy of Identity-Issuer
// accounts (id, username) in services that reference them.
package projection

import (
	"context"

	"backend-socialpost/internal/db"
	"backend-socialpost/internal/events"
	"backend-socialpost/internal/logging"
	"backend-socialpost/internal/shared/apperr"
)

type Store struct {
	db       db.Querier
	logger   logging.Logger
	onUpsert func(ctx context.Context, id int64)
}

// NewStore projects into the users table reachable through q. onUpsert, when
// set, runs after each successful write (e.g. to drop a cache entry).
func NewStore(q db.Querier, logger logging.Logger, onUpsert func(ctx context.Context, id int64)) *Store {
	return &Store{db: q, logger: logger, onUpsert: onUpsert}
}

func (s *Store) Upsert(ctx context.Context, account events.AccountCreated) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, username)
		VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
	`, account.ID, account.Username)
	if err != nil {
		return err
	}
	if s.onUpsert != nil {
		s.onUpsert(ctx, account.ID)
	}
	return nil
}

// Handle is a broker.Handler for account.created deliveries. Malformed bodies
// and username clashes with locally provisioned rows are logged and acked.
func (s *Store) Handle(ctx context.Context, body []byte) error {
	account, err := events.ParseAccountCreated(body)
	if err != nil {
		s.logger.Warn(ctx, "dropping malformed account event", "error", err)
		return nil
	}
	if err := s.Upsert(ctx, account); err != nil {
		if apperr.IsUniqueViolation(err) {
			s.logger.Warn(ctx, "account projection clashes with existing username", "id", account.ID, "username", account.Username)
			return nil
		}
		return err
	}
	s.logger.Debug(ctx, "account projected", "id", account.ID)
	return nil
}
