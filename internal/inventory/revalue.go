package inventory

import "github.com/shopspring/decimal"

// importValue prices the air and sea tranches at the given multiplier.
func importValue(p Product, currency decimal.Decimal) decimal.Decimal {
	sea := landedCost(p.Yuan, currency, p.Weight, p.ShipmentTax)
	air := landedCost(p.Yuan, currency, p.Weight, p.ShipmentTaxAir)
	return decimal.NewFromInt(p.SeaStockQty).Mul(sea).
		Add(decimal.NewFromInt(p.AirStockQty).Mul(air))
}

// Revalue reprices the imported tranches of p at newCurrency. The value held
// in the local tranche is carried over unchanged into the new average.
func Revalue(p Product, newCurrency decimal.Decimal) Product {
	if !p.Imported() {
		return p
	}
	qty := decimal.NewFromInt(p.StockQty)
	oldTotal := qty.Mul(p.AvgPurchasePrice)
	localValue := oldTotal.Sub(importValue(p, p.Currency))
	newImport := importValue(p, newCurrency)

	p.Currency = newCurrency
	p.AvgPurchasePrice = decimal.Zero
	// Sales drain the local tranche at the blended average, so the carried
	// local value can go negative; the average never does.
	if p.StockQty > 0 {
		if avg := localValue.Add(newImport).Div(qty); avg.IsPositive() {
			p.AvgPurchasePrice = avg
		}
	}
	p.Sea = SeaLandedCost(p)
	p.Air = AirLandedCost(p)
	return p
}

// RevalueAll applies Revalue to every imported row and drops the rest.
func RevalueAll(rows []Product, newCurrency decimal.Decimal) []Product {
	out := make([]Product, 0, len(rows))
	for _, p := range rows {
		if !p.Imported() {
			continue
		}
		out = append(out, Revalue(p, newCurrency))
	}
	return out
}
