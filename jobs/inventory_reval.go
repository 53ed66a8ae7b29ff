package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockpool/internal/inventory"
)

const (
	// TaskInventoryRevaluation reprices imported stock at a new FX multiplier.
	TaskInventoryRevaluation = "inventory:revaluation"
)

// InventoryRevaluationPayload carries the requested currency. The multiplier
// travels as a decimal string so no precision is lost in JSON.
type InventoryRevaluationPayload struct {
	NewCurrency string    `json:"new_currency"`
	ActorID     int64     `json:"actor_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewInventoryRevaluationTask constructs an Asynq task for inventory revaluation.
func NewInventoryRevaluationTask(payload InventoryRevaluationPayload, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)}, opts...)
	return asynq.NewTask(TaskInventoryRevaluation, body, opts...), nil
}

// Revaluer applies a currency change to the catalogue.
type Revaluer interface {
	RevalueCurrency(ctx context.Context, newCurrency decimal.Decimal, actorID int64) (inventory.RevalueResult, error)
}

// InventoryRevaluationJob runs queued currency revaluations.
type InventoryRevaluationJob struct {
	Service Revaluer
	Logger  *slog.Logger
}

// NewInventoryRevaluationJob initialises the revaluation handler.
func NewInventoryRevaluationJob(svc Revaluer, logger *slog.Logger) *InventoryRevaluationJob {
	return &InventoryRevaluationJob{Service: svc, Logger: logger}
}

// Handle decodes the payload and runs the revaluation. Payloads that can never
// succeed are not retried.
func (j *InventoryRevaluationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("inventory revaluation: handler not configured")
	}
	var payload InventoryRevaluationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("inventory revaluation: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	currency, err := decimal.NewFromString(payload.NewCurrency)
	if err != nil {
		return fmt.Errorf("inventory revaluation: currency %q: %w", payload.NewCurrency, asynq.SkipRetry)
	}

	logger := j.logger().With(
		slog.String("currency", currency.String()),
		slog.Int64("actor_id", payload.ActorID),
	)
	start := time.Now()
	result, err := j.Service.RevalueCurrency(ctx, currency, payload.ActorID)
	if err != nil {
		logger.Error("revaluation failed", slog.Any("error", err))
		if inventory.IsValidation(err) {
			return fmt.Errorf("inventory revaluation: %w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	logger.Info("completed revaluation",
		slog.Int64("run_id", result.RunID),
		slog.Int("rows", result.RowsRevalued),
		slog.Duration("queued_for", start.Sub(payload.RequestedAt)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *InventoryRevaluationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
