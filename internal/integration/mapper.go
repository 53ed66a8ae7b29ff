package integration

import (
	"github.com/odyssey-erp/stockpool/internal/inventory"
	"github.com/odyssey-erp/stockpool/jobs"
)

func lowStockPayload(evt inventory.LowStockEvent) jobs.LowStockPayload {
	return jobs.LowStockPayload{
		ProductID: evt.ProductID,
		Model:     evt.Model,
		StockQty:  evt.StockQty,
		AlertQty:  evt.AlertQty,
		Source:    string(evt.Source),
		RaisedAt:  evt.RaisedAt,
	}
}
