package integration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/odyssey-erp/stockpool/internal/inventory"
	"github.com/odyssey-erp/stockpool/jobs"
)

// LowStockPublisher queues low stock notifications for the worker.
type LowStockPublisher interface {
	EnqueueLowStock(ctx context.Context, payload jobs.LowStockPayload) error
}

// AlertRecorder counts raised alerts.
type AlertRecorder interface {
	ObserveLowStock()
}

// Hooks wires inventory domain events into background processing.
type Hooks struct {
	publisher LowStockPublisher
	metrics   AlertRecorder
	logger    *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(publisher LowStockPublisher, metrics AlertRecorder, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{publisher: publisher, metrics: metrics, logger: logger}
}

var _ inventory.IntegrationHandler = (*Hooks)(nil)

// HandleLowStock publishes an alert for a product that reached its reorder level.
func (h *Hooks) HandleLowStock(ctx context.Context, evt inventory.LowStockEvent) error {
	if h == nil {
		return nil
	}
	if evt.ProductID <= 0 {
		return errors.New("integration: low stock product id required")
	}
	if h.metrics != nil {
		h.metrics.ObserveLowStock()
	}
	h.logger.InfoContext(ctx, "low stock alert raised",
		slog.Int64("product_id", evt.ProductID),
		slog.Int64("stock_qty", evt.StockQty),
		slog.Int64("alert_qty", evt.AlertQty))
	if h.publisher == nil {
		return nil
	}
	return h.publisher.EnqueueLowStock(ctx, lowStockPayload(evt))
}
