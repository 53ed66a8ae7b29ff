package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
	rows  int64
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", f.rows)), nil
}

func TestUserSafeMessage(t *testing.T) {
	require.Empty(t, UserSafeMessage(nil))

	validation := fmt.Errorf("%w: quantity must be positive", ErrValidation)
	require.Equal(t, validation.Error(), UserSafeMessage(validation))

	store := fmt.Errorf("%w: connection refused", ErrStore)
	require.Equal(t, "internal error, please retry later", UserSafeMessage(store))
	require.Equal(t, "internal error, please retry later", UserSafeMessage(errors.New("boom")))
}

func TestNormaliseIdempotencyKey(t *testing.T) {
	key, err := NormaliseIdempotencyKey("6F9619FF-8B86-D011-B42D-00C04FC964FF")
	require.NoError(t, err)
	require.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", key)

	_, err = NormaliseIdempotencyKey("retry-1")
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, ErrInvalidIdempotencyKey)
}

func TestIdempotencyConflictIsConflict(t *testing.T) {
	require.ErrorIs(t, ErrIdempotencyConflict, ErrConflict)
}

func TestValidateAuditLog(t *testing.T) {
	require.NoError(t, ValidateAuditLog(AuditLog{Action: "inventory:receive", Entity: "product", EntityID: "7"}))
	err := ValidateAuditLog(AuditLog{Action: "inventory:receive"})
	require.ErrorIs(t, err, ErrValidation)
}

const testKey = "6f9619ff-8b86-d011-b42d-00c04fc964ff"

func TestIdempotencyReserve(t *testing.T) {
	db := &fakeExecer{}
	store := NewIdempotencyStore(db)

	require.NoError(t, store.Reserve(context.Background(), "inventory:receive", strings.ToUpper(testKey)))
	require.Len(t, db.calls, 1)
	require.Equal(t, testKey, db.calls[0].args[0])
	require.Equal(t, "inventory:receive", db.calls[0].args[1])

	require.ErrorIs(t, store.Reserve(context.Background(), "", testKey), ErrValidation)
	require.ErrorIs(t, store.Reserve(context.Background(), "inventory:receive", "retry-1"), ErrInvalidIdempotencyKey)
}

func TestIdempotencyReserveMapsUniqueViolation(t *testing.T) {
	store := NewIdempotencyStore(&fakeExecer{err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"})})
	err := store.Reserve(context.Background(), "inventory:checkout", testKey)
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.ErrorIs(t, err, ErrConflict)

	store = NewIdempotencyStore(&fakeExecer{err: errors.New("conn reset")})
	err = store.Reserve(context.Background(), "inventory:checkout", testKey)
	require.ErrorIs(t, err, ErrStore)
	require.NotErrorIs(t, err, ErrConflict)
}

func TestIdempotencyCleanup(t *testing.T) {
	db := &fakeExecer{rows: 4}
	store := NewIdempotencyStore(db)
	store.now = func() time.Time { return time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC) }

	removed, err := store.Cleanup(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(4), removed)
	require.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), db.calls[0].args[0])

	var nilStore *IdempotencyStore
	removed, err = nilStore.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &fakeExecer{}
	logger := NewAuditLogger(db)

	err := logger.Record(context.Background(), AuditLog{
		Action: "inventory:checkout", Entity: "product", EntityID: "7",
		Meta: map[string]any{"qty": 3},
	})
	require.NoError(t, err)
	args := db.calls[0].args
	require.Nil(t, args[0])
	require.JSONEq(t, `{"qty":3}`, string(args[4].([]byte)))
	require.False(t, args[5].(time.Time).IsZero())

	require.NoError(t, logger.Record(context.Background(), AuditLog{ActorID: 12, Action: "a", Entity: "e", EntityID: "1"}))
	require.Equal(t, int64(12), db.calls[1].args[0])
	require.Nil(t, db.calls[1].args[4].([]byte))

	require.ErrorIs(t, logger.Record(context.Background(), AuditLog{Action: "a"}), ErrValidation)

	failing := NewAuditLogger(&fakeExecer{err: errors.New("disk full")})
	require.ErrorIs(t, failing.Record(context.Background(), AuditLog{Action: "a", Entity: "e", EntityID: "1"}), ErrStore)
}
