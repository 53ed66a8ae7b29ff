package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestWeightedAverageMixedReceipt(t *testing.T) {
	avg := WeightedAverage(Holding{},
		Batch{Qty: 10, UnitCost: d("5")},
		Batch{Qty: 5, UnitCost: d("8")},
		Batch{Qty: 0, UnitCost: d("99")},
	)
	requireDecimal(t, "6", avg)
}

func TestWeightedAverageSingleBatchOnEmptyPool(t *testing.T) {
	for _, cost := range []string{"0", "1.25", "17.333"} {
		avg := WeightedAverage(Holding{Qty: 0, AvgCost: d("42")}, Batch{Qty: 7, UnitCost: d(cost)})
		requireDecimal(t, cost, avg)
	}
}

func TestWeightedAverageBlendsExistingStock(t *testing.T) {
	avg := WeightedAverage(Holding{Qty: 20, AvgCost: d("10")}, Batch{Qty: 5, UnitCost: d("20")})
	requireDecimal(t, "12", avg)
}

func TestWeightedAverageNoIncomingIsNoop(t *testing.T) {
	current := Holding{Qty: 4, AvgCost: d("3.5")}
	requireDecimal(t, "3.5", WeightedAverage(current))
	requireDecimal(t, "3.5", WeightedAverage(current, Batch{Qty: 0, UnitCost: d("9")}, Batch{Qty: -2, UnitCost: d("9")}))
}

func TestWeightedAverageEmptyPoolIsCostless(t *testing.T) {
	avg := WeightedAverage(Holding{Qty: -3, AvgCost: d("10")}, Batch{Qty: 3, UnitCost: d("4")})
	require.True(t, avg.IsZero())
}

func TestWeightedAverageNeverNegative(t *testing.T) {
	avg := WeightedAverage(Holding{Qty: 10, AvgCost: d("-50")}, Batch{Qty: 1, UnitCost: d("1")})
	require.False(t, avg.IsNegative())
}

func importedProduct() Product {
	return Product{
		ID:             1,
		Model:          "HX-9",
		Yuan:           d("10"),
		Currency:       d("2"),
		Weight:         d("0.5"),
		ShipmentTax:    d("4"),
		ShipmentTaxAir: d("12"),
	}
}

func TestLandedCosts(t *testing.T) {
	p := importedProduct()
	requireDecimal(t, "22", SeaLandedCost(p))
	requireDecimal(t, "26", AirLandedCost(p))
}

func TestApplyReceiptFoldsTranches(t *testing.T) {
	p := importedProduct()
	p.SetTranches(Tranches{Local: 2, Air: 0, Sea: 0})
	p.AvgPurchasePrice = d("10")
	shipped := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	updated, incoming := applyReceipt(p, ReceiveInput{
		ProductID:      1,
		SeaQty:         4,
		AirQty:         2,
		LocalQty:       2,
		LocalUnitPrice: d("15"),
		ShipmentDate:   &shipped,
	})

	// (2*10 + 4*22 + 2*26 + 2*15) / 10
	requireDecimal(t, "19", updated.AvgPurchasePrice)
	// (4*22 + 2*26 + 2*15) / 8
	requireDecimal(t, "21.25", incoming)
	require.Equal(t, Tranches{Local: 4, Air: 2, Sea: 4}, updated.Tranches())
	require.Equal(t, int64(10), updated.StockQty)
	requireDecimal(t, "22", updated.Sea)
	requireDecimal(t, "26", updated.Air)
	require.NotNil(t, updated.ShipmentDate)
	require.True(t, updated.ShipmentDate.Equal(shipped))
}

func TestApplyReceiptKeepsShipmentDateWhenAbsent(t *testing.T) {
	p := importedProduct()
	prev := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	p.ShipmentDate = &prev

	updated, _ := applyReceipt(p, ReceiveInput{ProductID: 1, LocalQty: 1, LocalUnitPrice: d("3")})
	require.True(t, updated.ShipmentDate.Equal(prev))
}
