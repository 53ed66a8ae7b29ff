package inventory

// Allocation describes how a deduction was spread over the tranches.
type Allocation struct {
	After     Tranches
	FromLocal int64
	FromAir   int64
	FromSea   int64
	// Shortfall is the quantity requested beyond what the tranches held.
	Shortfall int64
}

// Deducted returns the quantity actually taken from stock.
func (a Allocation) Deducted() int64 {
	return a.FromLocal + a.FromAir + a.FromSea
}

// Deduct drains qty from t in fixed order local, air, sea. Tranches never go
// negative; a negative input level is treated as empty and any uncovered
// quantity is reported as Shortfall.
func Deduct(t Tranches, qty int64) Allocation {
	t = Tranches{Local: max(t.Local, 0), Air: max(t.Air, 0), Sea: max(t.Sea, 0)}
	if qty <= 0 {
		return Allocation{After: t}
	}
	remaining := qty
	take := func(level int64) int64 {
		n := min(level, remaining)
		remaining -= n
		return n
	}
	a := Allocation{}
	a.FromLocal = take(t.Local)
	a.FromAir = take(t.Air)
	a.FromSea = take(t.Sea)
	a.After = Tranches{
		Local: t.Local - a.FromLocal,
		Air:   t.Air - a.FromAir,
		Sea:   t.Sea - a.FromSea,
	}
	a.Shortfall = remaining
	return a
}
