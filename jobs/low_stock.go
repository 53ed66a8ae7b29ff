package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskInventoryLowStock notifies that a product reached its reorder level.
	TaskInventoryLowStock = "inventory:low_stock"

	lowStockWindow = time.Hour
)

// LowStockPayload describes a product at or below its alert quantity.
type LowStockPayload struct {
	ProductID int64     `json:"product_id"`
	Model     string    `json:"model"`
	StockQty  int64     `json:"stock_qty"`
	AlertQty  int64     `json:"alert_qty"`
	Source    string    `json:"source"`
	RaisedAt  time.Time `json:"raised_at"`
}

// LowStockTaskID keys alerts per product and hour so repeated sales inside the
// window enqueue a single notification.
func LowStockTaskID(productID int64, at time.Time) string {
	return "low_stock:" + strconv.FormatInt(productID, 10) + ":" + at.UTC().Truncate(lowStockWindow).Format("2006010215")
}

// NewLowStockTask constructs the low stock notification task.
func NewLowStockTask(payload LowStockPayload) (*asynq.Task, error) {
	if payload.ProductID <= 0 {
		return nil, errors.New("low stock: product id required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryLowStock, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.TaskID(LowStockTaskID(payload.ProductID, payload.RaisedAt)),
		asynq.Retention(lowStockWindow),
	), nil
}

// LowStockJob delivers low stock notifications to the operations log.
type LowStockJob struct {
	Logger *slog.Logger
}

// NewLowStockJob initialises the handler.
func NewLowStockJob(logger *slog.Logger) *LowStockJob {
	return &LowStockJob{Logger: logger}
}

// Handle emits the notification.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("low stock: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := slog.Default()
	if j != nil && j.Logger != nil {
		logger = j.Logger
	}
	logger.WarnContext(ctx, "product below reorder level",
		slog.Int64("product_id", payload.ProductID),
		slog.String("model", payload.Model),
		slog.Int64("stock_qty", payload.StockQty),
		slog.Int64("alert_qty", payload.AlertQty),
		slog.String("source", payload.Source),
		slog.Time("raised_at", payload.RaisedAt),
	)
	return nil
}
