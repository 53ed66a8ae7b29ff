package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockpool/internal/inventory"
	"github.com/odyssey-erp/stockpool/jobs"
)

type capturePublisher struct {
	payloads []jobs.LowStockPayload
}

func (c *capturePublisher) EnqueueLowStock(_ context.Context, payload jobs.LowStockPayload) error {
	c.payloads = append(c.payloads, payload)
	return nil
}

type alertCounter struct{ n int }

func (a *alertCounter) ObserveLowStock() { a.n++ }

func TestHandleLowStockPublishesPayload(t *testing.T) {
	pub := &capturePublisher{}
	counter := &alertCounter{}
	hooks := NewHooks(pub, counter, nil)

	raised := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	err := hooks.HandleLowStock(context.Background(), inventory.LowStockEvent{
		ProductID: 12,
		Model:     "XR-200",
		StockQty:  2,
		AlertQty:  5,
		Source:    inventory.MovementSale,
		RaisedAt:  raised,
	})
	require.NoError(t, err)
	require.Equal(t, 1, counter.n)
	require.Len(t, pub.payloads, 1)
	require.Equal(t, jobs.LowStockPayload{
		ProductID: 12,
		Model:     "XR-200",
		StockQty:  2,
		AlertQty:  5,
		Source:    "SALE",
		RaisedAt:  raised,
	}, pub.payloads[0])
}

func TestHandleLowStockRequiresProduct(t *testing.T) {
	hooks := NewHooks(&capturePublisher{}, nil, nil)
	require.Error(t, hooks.HandleLowStock(context.Background(), inventory.LowStockEvent{}))

	var nilHooks *Hooks
	require.NoError(t, nilHooks.HandleLowStock(context.Background(), inventory.LowStockEvent{ProductID: 1}))
}
