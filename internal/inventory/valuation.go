package inventory

import "github.com/shopspring/decimal"

// Holding is the quantity and average cost already on hand.
type Holding struct {
	Qty     int64
	AvgCost decimal.Decimal
}

// Batch is an incoming lot with a known unit cost.
type Batch struct {
	Qty      int64
	UnitCost decimal.Decimal
}

// WeightedAverage returns the new average unit cost after adding batches to
// current. Batches with non-positive qty are ignored; with none left the
// current average is returned. An empty resulting pool is costless.
func WeightedAverage(current Holding, batches ...Batch) decimal.Decimal {
	incomingQty := int64(0)
	incomingValue := decimal.Zero
	for _, b := range batches {
		if b.Qty <= 0 {
			continue
		}
		incomingQty += b.Qty
		incomingValue = incomingValue.Add(decimal.NewFromInt(b.Qty).Mul(b.UnitCost))
	}
	if incomingQty == 0 {
		return current.AvgCost
	}
	newQty := current.Qty + incomingQty
	if newQty <= 0 {
		return decimal.Zero
	}
	oldValue := decimal.NewFromInt(current.Qty).Mul(current.AvgCost)
	avg := oldValue.Add(incomingValue).Div(decimal.NewFromInt(newQty))
	if avg.IsNegative() {
		return decimal.Zero
	}
	return avg
}

func landedCost(yuan, currency, weight, rate decimal.Decimal) decimal.Decimal {
	return yuan.Mul(currency).Add(weight.Mul(rate))
}

// SeaLandedCost is yuan*currency + weight*shipmenttax.
func SeaLandedCost(p Product) decimal.Decimal {
	return landedCost(p.Yuan, p.Currency, p.Weight, p.ShipmentTax)
}

// AirLandedCost is yuan*currency + weight*shipmenttaxair.
func AirLandedCost(p Product) decimal.Decimal {
	return landedCost(p.Yuan, p.Currency, p.Weight, p.ShipmentTaxAir)
}

// receiptBatches prices each source of an arrival against the product.
func receiptBatches(p Product, in ReceiveInput) []Batch {
	return []Batch{
		{Qty: in.SeaQty, UnitCost: SeaLandedCost(p)},
		{Qty: in.AirQty, UnitCost: AirLandedCost(p)},
		{Qty: in.LocalQty, UnitCost: in.LocalUnitPrice},
	}
}

// applyReceipt returns p with the arrival folded in and the blended unit cost
// of the incoming stock.
func applyReceipt(p Product, in ReceiveInput) (Product, decimal.Decimal) {
	batches := receiptBatches(p, in)
	before := p.Tranches()
	p.AvgPurchasePrice = WeightedAverage(Holding{Qty: before.Total(), AvgCost: p.AvgPurchasePrice}, batches...)
	p.Sea = SeaLandedCost(p)
	p.Air = AirLandedCost(p)
	p.SetTranches(Tranches{
		Local: before.Local + in.LocalQty,
		Air:   before.Air + in.AirQty,
		Sea:   before.Sea + in.SeaQty,
	})
	if in.ShipmentDate != nil {
		date := *in.ShipmentDate
		p.ShipmentDate = &date
	}
	return p, WeightedAverage(Holding{}, batches...)
}
