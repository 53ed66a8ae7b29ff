package inventory

import (
	"context"
	"time"
)

// LowStockEvent is raised when a deduction leaves a product at or below its alert quantity.
type LowStockEvent struct {
	ProductID int64
	Model     string
	StockQty  int64
	AlertQty  int64
	Source    MovementKind
	RaisedAt  time.Time
}

// IntegrationHandler receives low stock events after the deduction that raised
// them has committed.
type IntegrationHandler interface {
	HandleLowStock(ctx context.Context, evt LowStockEvent) error
}
