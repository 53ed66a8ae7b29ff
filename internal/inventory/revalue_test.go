package inventory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// stockedImport holds 2 local, 2 air and 4 sea units at an average of 21.
func stockedImport() Product {
	p := importedProduct()
	p.SetTranches(Tranches{Local: 2, Air: 2, Sea: 4})
	p.AvgPurchasePrice = d("21")
	p.Sea = SeaLandedCost(p)
	p.Air = AirLandedCost(p)
	return p
}

func TestRevaluePreservesLocalValue(t *testing.T) {
	p := stockedImport()
	oldLocal := d("8").Mul(p.AvgPurchasePrice).Sub(importValue(p, p.Currency))

	out := Revalue(p, d("3"))

	requireDecimal(t, "3", out.Currency)
	requireDecimal(t, "32", out.Sea)
	requireDecimal(t, "36", out.Air)
	newLocal := d("8").Mul(out.AvgPurchasePrice).Sub(importValue(out, out.Currency))
	require.True(t, oldLocal.Sub(newLocal).Abs().LessThan(d("0.000001")))
	// (168 - 140) + 4*32 + 2*36 = 228 over 8 units
	requireDecimal(t, "28.5", out.AvgPurchasePrice)
	require.Equal(t, p.Tranches(), out.Tranches())
}

func TestRevalueIsIdempotent(t *testing.T) {
	once := Revalue(stockedImport(), d("2.7"))
	twice := Revalue(once, d("2.7"))
	requireDecimal(t, once.AvgPurchasePrice.String(), twice.AvgPurchasePrice)
	requireDecimal(t, once.Sea.String(), twice.Sea)
	requireDecimal(t, once.Air.String(), twice.Air)
}

func TestRevalueRoundTrip(t *testing.T) {
	p := stockedImport()
	back := Revalue(Revalue(p, d("3.3")), p.Currency)
	require.True(t, p.AvgPurchasePrice.Sub(back.AvgPurchasePrice).Abs().LessThan(d("0.000001")))
	requireDecimal(t, p.Sea.String(), back.Sea)
	requireDecimal(t, p.Air.String(), back.Air)
}

func TestRevalueEmptyStockResetsAverage(t *testing.T) {
	p := importedProduct()
	p.AvgPurchasePrice = d("9")
	out := Revalue(p, d("4"))
	require.True(t, out.AvgPurchasePrice.IsZero())
	requireDecimal(t, "42", out.Sea)
}

func TestRevalueSkipsLocalOnlyProducts(t *testing.T) {
	local := Product{ID: 2, Model: "LOCAL", Currency: d("2"), AvgPurchasePrice: d("7")}
	local.SetTranches(Tranches{Local: 5})

	require.Equal(t, local, Revalue(local, d("9")))

	rows := RevalueAll([]Product{local, stockedImport()}, d("3"))
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].ID)
}

func TestRevalueNeverWritesNegativeAverage(t *testing.T) {
	p := Product{ID: 3, Model: "DRAINED", Yuan: d("45"), Currency: d("2"), Weight: d("1"), ShipmentTax: d("10"), ShipmentTaxAir: d("10")}
	p.SetTranches(Tranches{Local: 10, Sea: 10})
	p.AvgPurchasePrice = WeightedAverage(Holding{},
		Batch{Qty: 10, UnitCost: d("1")},
		Batch{Qty: 10, UnitCost: SeaLandedCost(p)})
	requireDecimal(t, "50.5", p.AvgPurchasePrice)

	// a sale empties the local tranche at the blended cost
	p.SetTranches(Deduct(p.Tranches(), 10).After)
	require.Equal(t, Tranches{Sea: 10}, p.Tranches())

	out := Revalue(p, d("0.1"))
	require.True(t, out.AvgPurchasePrice.IsZero(), "got %s", out.AvgPurchasePrice)
	requireDecimal(t, "14.5", out.Sea)
	require.Equal(t, int64(10), out.StockQty)

	// a rise still reprices normally
	up := Revalue(p, d("3"))
	// (505 - 1000) + 10*145 = 955 over 10 units
	requireDecimal(t, "95.5", up.AvgPurchasePrice)
}
