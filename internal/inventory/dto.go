package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

type receiveRequest struct {
	SeaQty         int64           `json:"sea_qty" validate:"gte=0"`
	AirQty         int64           `json:"air_qty" validate:"gte=0"`
	LocalQty       int64           `json:"local_qty" validate:"gte=0"`
	LocalUnitPrice decimal.Decimal `json:"local_unit_price"`
	ShipmentDate   *time.Time      `json:"shipment_date"`
}

func (r receiveRequest) input(productID int64) ReceiveInput {
	return ReceiveInput{
		ProductID:      productID,
		SeaQty:         r.SeaQty,
		AirQty:         r.AirQty,
		LocalQty:       r.LocalQty,
		LocalUnitPrice: r.LocalUnitPrice,
		ShipmentDate:   r.ShipmentDate,
	}
}

type bulkReceiveLine struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	receiveRequest
}

type bulkReceiveRequest struct {
	Items []bulkReceiveLine `json:"items" validate:"required,min=1,max=500,dive"`
}

type checkoutItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int64 `json:"qty" validate:"required,gt=0"`
}

type checkoutRequest struct {
	Ref   string                `json:"ref" validate:"max=64"`
	Items []checkoutItemRequest `json:"items" validate:"required,min=1,max=500,dive"`
}

type revalueRequest struct {
	NewCurrency decimal.Decimal `json:"new_currency"`
	Async       bool            `json:"async"`
}

type loanRequest struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Qty       int64            `json:"qty" validate:"required,gt=0"`
	UnitCost  *decimal.Decimal `json:"unit_cost"`
	Type      string           `json:"type" validate:"max=32"`
	Label     string           `json:"label" validate:"max=128"`
}

type returnRequest struct {
	Qty int64 `json:"qty" validate:"required,gt=0"`
}

type productResponse struct {
	ID               int64           `json:"id"`
	Model            string          `json:"model"`
	Yuan             decimal.Decimal `json:"yuan"`
	Currency         decimal.Decimal `json:"currency"`
	Weight           decimal.Decimal `json:"weight"`
	ShipmentTax      decimal.Decimal `json:"shipment_tax"`
	ShipmentTaxAir   decimal.Decimal `json:"shipment_tax_air"`
	Sea              decimal.Decimal `json:"sea"`
	Air              decimal.Decimal `json:"air"`
	StockQty         int64           `json:"stock_qty"`
	LocalQty         int64           `json:"local_qty"`
	AirStockQty      int64           `json:"air_stock_qty"`
	SeaStockQty      int64           `json:"sea_stock_qty"`
	AvgPurchasePrice decimal.Decimal `json:"avg_purchase_price"`
	AlertQty         int64           `json:"alert_qty"`
	ShipmentDate     *time.Time      `json:"shipment_date,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func newProductResponse(p Product) productResponse {
	return productResponse{
		ID:               p.ID,
		Model:            p.Model,
		Yuan:             p.Yuan,
		Currency:         p.Currency,
		Weight:           p.Weight,
		ShipmentTax:      p.ShipmentTax,
		ShipmentTaxAir:   p.ShipmentTaxAir,
		Sea:              p.Sea,
		Air:              p.Air,
		StockQty:         p.StockQty,
		LocalQty:         p.LocalQty,
		AirStockQty:      p.AirStockQty,
		SeaStockQty:      p.SeaStockQty,
		AvgPurchasePrice: p.AvgPurchasePrice,
		AlertQty:         p.AlertQty,
		ShipmentDate:     p.ShipmentDate,
		UpdatedAt:        p.UpdatedAt,
	}
}

type receiveResponse struct {
	NewAvgCost    decimal.Decimal `json:"new_avg_cost"`
	TotalReceived int64           `json:"total_received"`
	Product       productResponse `json:"product"`
}

func newReceiveResponse(r ReceiveResult) receiveResponse {
	return receiveResponse{
		NewAvgCost:    r.NewAvgCost,
		TotalReceived: r.TotalReceived,
		Product:       newProductResponse(r.Product),
	}
}

type checkoutLineResponse struct {
	ProductID int64           `json:"product_id"`
	Qty       int64           `json:"qty"`
	Shortfall int64           `json:"shortfall"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	StockQty  int64           `json:"stock_qty"`
}

type checkoutResponse struct {
	Lines []checkoutLineResponse `json:"lines"`
}

func newCheckoutResponse(r CheckoutResult) checkoutResponse {
	lines := make([]checkoutLineResponse, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, checkoutLineResponse(l))
	}
	return checkoutResponse{Lines: lines}
}

type revalueResponse struct {
	RunID        int64           `json:"run_id,omitempty"`
	TaskID       string          `json:"task_id,omitempty"`
	NewCurrency  decimal.Decimal `json:"new_currency"`
	RowsRevalued int             `json:"rows_revalued"`
	Queued       bool            `json:"queued"`
}

type serviceLogResponse struct {
	ID         int64           `json:"id"`
	ProductID  int64           `json:"product_id"`
	Model      string          `json:"model"`
	Qty        int64           `json:"qty"`
	Type       string          `json:"type"`
	ReturnCost decimal.Decimal `json:"return_cost"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func newServiceLogResponse(e ServiceLogEntry) serviceLogResponse {
	return serviceLogResponse{
		ID:         e.ID,
		ProductID:  e.ProductID,
		Model:      e.Model,
		Qty:        e.Qty,
		Type:       e.Type,
		ReturnCost: e.ReturnCost,
		Status:     string(e.Status),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

type movementResponse struct {
	ID         int64           `json:"id"`
	Kind       string          `json:"kind"`
	Ref        string          `json:"ref,omitempty"`
	LocalDelta int64           `json:"local_delta"`
	AirDelta   int64           `json:"air_delta"`
	SeaDelta   int64           `json:"sea_delta"`
	Shortfall  int64           `json:"shortfall"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	AvgAfter   decimal.Decimal `json:"avg_after"`
	StockAfter int64           `json:"stock_after"`
	CreatedAt  time.Time       `json:"created_at"`
}

func newMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:         m.ID,
		Kind:       string(m.Kind),
		Ref:        m.Ref,
		LocalDelta: m.LocalDelta,
		AirDelta:   m.AirDelta,
		SeaDelta:   m.SeaDelta,
		Shortfall:  m.Shortfall,
		UnitCost:   m.UnitCost,
		AvgAfter:   m.AvgAfter,
		StockAfter: m.StockAfter,
		CreatedAt:  m.CreatedAt,
	}
}
