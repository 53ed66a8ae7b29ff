package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockpool/internal/shared"
)

// Tranches partitions a product's sellable stock by provenance.
type Tranches struct {
	Local int64
	Air   int64
	Sea   int64
}

// Total returns the quantity held across all tranches.
func (t Tranches) Total() int64 {
	return t.Local + t.Air + t.Sea
}

// Product is the per-SKU stock and cost snapshot owned by the store.
type Product struct {
	ID             int64
	Model          string
	Yuan           decimal.Decimal
	Currency       decimal.Decimal
	Weight         decimal.Decimal
	ShipmentTax    decimal.Decimal
	ShipmentTaxAir decimal.Decimal
	// Sea and Air cache the landed unit cost per route.
	Sea              decimal.Decimal
	Air              decimal.Decimal
	StockQty         int64
	LocalQty         int64
	AirStockQty      int64
	SeaStockQty      int64
	AvgPurchasePrice decimal.Decimal
	AlertQty         int64
	ShipmentDate     *time.Time
	UpdatedAt        time.Time
}

// Tranches returns the provenance split of the product stock.
func (p Product) Tranches() Tranches {
	return Tranches{Local: p.LocalQty, Air: p.AirStockQty, Sea: p.SeaStockQty}
}

// SetTranches replaces the tranche levels and keeps StockQty equal to their sum.
func (p *Product) SetTranches(t Tranches) {
	p.LocalQty = t.Local
	p.AirStockQty = t.Air
	p.SeaStockQty = t.Sea
	p.StockQty = t.Total()
}

// Imported reports whether the product carries source-currency pricing.
func (p Product) Imported() bool {
	return p.Yuan.IsPositive()
}

// BelowAlert reports whether stock has fallen to the reorder threshold.
func (p Product) BelowAlert() bool {
	return p.AlertQty > 0 && p.StockQty <= p.AlertQty
}

// ServiceLogStatus enumerates service loan states.
type ServiceLogStatus string

const (
	// ServiceLogActive marks units still out on loan.
	ServiceLogActive ServiceLogStatus = "active"
	// ServiceLogReturned is terminal; qty is zero.
	ServiceLogReturned ServiceLogStatus = "returned"
)

// ServiceLogEntry tracks stock removed from sale for repair or damage.
type ServiceLogEntry struct {
	ID         int64
	ProductID  int64
	Model      string
	Qty        int64
	Type       string
	ReturnCost decimal.Decimal
	Status     ServiceLogStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MovementKind enumerates stock movement log kinds.
type MovementKind string

const (
	MovementReceive       MovementKind = "RECEIVE"
	MovementSale          MovementKind = "SALE"
	MovementServiceLoan   MovementKind = "SERVICE_LOAN"
	MovementServiceReturn MovementKind = "SERVICE_RETURN"
	MovementRevalue       MovementKind = "REVALUE"
)

// Movement is one stock card line written alongside every product mutation.
type Movement struct {
	ID         int64
	ProductID  int64
	Kind       MovementKind
	Ref        string
	LocalDelta int64
	AirDelta   int64
	SeaDelta   int64
	Shortfall  int64
	UnitCost   decimal.Decimal
	AvgAfter   decimal.Decimal
	StockAfter int64
	CreatedAt  time.Time
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time // exclusive
	Limit     int
}

// RevaluationRun records one FX change applied across the catalogue.
type RevaluationRun struct {
	ID           int64
	NewCurrency  decimal.Decimal
	RowsRevalued int
	ActorID      int64
	CreatedAt    time.Time
}

// ReceiveInput describes an arrival of stock from any mix of sources.
type ReceiveInput struct {
	ProductID      int64
	SeaQty         int64
	AirQty         int64
	LocalQty       int64
	LocalUnitPrice decimal.Decimal
	ShipmentDate   *time.Time
	IdempotencyKey string
	ActorID        int64
}

// BulkReceiveInput groups arrivals posted together under one idempotency key.
type BulkReceiveInput struct {
	Items          []ReceiveInput
	IdempotencyKey string
}

// ReceiveResult reports the outcome of a receipt.
type ReceiveResult struct {
	NewAvgCost    decimal.Decimal
	TotalReceived int64
	Product       Product
}

// CheckoutItem is one sale line.
type CheckoutItem struct {
	ProductID int64
	Qty       int64
}

// CheckoutInput groups sale lines posted together.
type CheckoutInput struct {
	Items          []CheckoutItem
	Ref            string
	IdempotencyKey string
	ActorID        int64
}

// CheckoutLine reports how one sale line was applied.
type CheckoutLine struct {
	ProductID int64
	Qty       int64
	Shortfall int64
	UnitCost  decimal.Decimal
	StockQty  int64
}

// CheckoutResult lists applied lines in request order.
type CheckoutResult struct {
	Lines []CheckoutLine
}

// RevalueResult summarises a currency revaluation.
type RevalueResult struct {
	RunID        int64
	NewCurrency  decimal.Decimal
	RowsRevalued int
}

// LoanInput describes stock leaving for service.
type LoanInput struct {
	ProductID int64
	Qty       int64
	// UnitCost is the cost snapshot; nil uses the product average.
	UnitCost *decimal.Decimal
	Type     string
	Label    string
	ActorID  int64
}

// ReturnInput describes units coming back from service.
type ReturnInput struct {
	LogID   int64
	Qty     int64
	ActorID int64
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: quantity must be positive", shared.ErrValidation)
	// ErrNegativeQuantity indicates a negative receipt quantity.
	ErrNegativeQuantity = fmt.Errorf("%w: inventory: quantity cannot be negative", shared.ErrValidation)
	// ErrNothingToReceive indicates a receipt with every quantity zero.
	ErrNothingToReceive = fmt.Errorf("%w: inventory: receipt has no quantity", shared.ErrValidation)
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = fmt.Errorf("%w: inventory: unit cost must be >= 0", shared.ErrValidation)
	// ErrInvalidCurrency indicates a non-positive FX multiplier.
	ErrInvalidCurrency = fmt.Errorf("%w: inventory: currency must be > 0", shared.ErrValidation)
	// ErrProductRequired indicates a missing product id.
	ErrProductRequired = fmt.Errorf("%w: inventory: product required", shared.ErrValidation)
	// ErrEmptyCheckout indicates a checkout without lines.
	ErrEmptyCheckout = fmt.Errorf("%w: inventory: checkout requires at least one item", shared.ErrValidation)
	// ErrReturnExceedsLoan indicates returning more than is still on loan.
	ErrReturnExceedsLoan = fmt.Errorf("%w: inventory: return exceeds quantity on loan", shared.ErrValidation)

	// ErrProductNotFound indicates missing product row.
	ErrProductNotFound = fmt.Errorf("%w: inventory: product", shared.ErrNotFound)
	// ErrServiceLogNotFound indicates missing service log row.
	ErrServiceLogNotFound = fmt.Errorf("%w: inventory: service log", shared.ErrNotFound)

	// ErrAlreadyReturned indicates the loan is closed.
	ErrAlreadyReturned = fmt.Errorf("%w: inventory: service log already returned", shared.ErrConflict)
	// ErrInsufficientStock triggered when oversell is rejected.
	ErrInsufficientStock = fmt.Errorf("%w: inventory: insufficient stock", shared.ErrConflict)
)

// IsValidation reports whether err is caller-correctable.
func IsValidation(err error) bool {
	return errors.Is(err, shared.ErrValidation)
}
