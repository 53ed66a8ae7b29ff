package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement without returning rows. *pgxpool.Pool and pgx.Tx
// satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// ValidateAuditLog checks the columns audit_logs requires.
func ValidateAuditLog(log AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return fmt.Errorf("%w: audit log requires action/entity/entity_id", ErrValidation)
	}
	return nil
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if err := ValidateAuditLog(log); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	var meta []byte
	if len(log.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(log.Meta); err != nil {
			return fmt.Errorf("%w: audit meta: %v", ErrValidation, err)
		}
	}
	var actor any
	if log.ActorID > 0 {
		actor = log.ActorID
	}
	_, err := l.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`, actor, log.Action, log.Entity, log.EntityID, meta, log.At)
	if err != nil {
		return fmt.Errorf("%w: audit record: %w", ErrStore, err)
	}
	return nil
}
