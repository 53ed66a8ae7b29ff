package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = fmt.Errorf("%w: idempotent request already processed", ErrConflict)

// ErrInvalidIdempotencyKey indicates a key that is not a UUID.
var ErrInvalidIdempotencyKey = fmt.Errorf("%w: idempotency key must be a UUID", ErrValidation)

// NormaliseIdempotencyKey parses key as a UUID and returns its canonical form.
func NormaliseIdempotencyKey(key string) (string, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return "", ErrInvalidIdempotencyKey
	}
	return id.String(), nil
}

// Reserve claims key within scope. A key already claimed yields ErrIdempotencyConflict.
func (s *IdempotencyStore) Reserve(ctx context.Context, scope, key string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if scope == "" {
		return fmt.Errorf("%w: idempotency scope required", ErrValidation)
	}
	key, err := NormaliseIdempotencyKey(key)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, scope, s.now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return fmt.Errorf("%w: idempotency reserve: %w", ErrStore, err)
	}
	return nil
}

// Release removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if s == nil {
		return nil
	}
	key, err := NormaliseIdempotencyKey(key)
	if err != nil {
		return err
	}
	if _, err = s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1 AND module=$2`, key, scope); err != nil {
		return fmt.Errorf("%w: idempotency release: %w", ErrStore, err)
	}
	return nil
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-olderThan)
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: idempotency cleanup: %w", ErrStore, err)
	}
	return tag.RowsAffected(), nil
}
