package inventory

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultLoanType is used when a loan carries no category.
const DefaultLoanType = "Repair"

// normaliseLoanType trims and title-cases the free-form loan category.
func normaliseLoanType(raw string) string {
	t := strings.Join(strings.Fields(raw), " ")
	if t == "" {
		return DefaultLoanType
	}
	return cases.Title(language.English).String(strings.ToLower(t))
}

// newServiceLoan opens an active log entry for qty units of p.
func newServiceLoan(p Product, in LoanInput, costSnapshot decimal.Decimal, now time.Time) ServiceLogEntry {
	label := strings.TrimSpace(in.Label)
	if label == "" {
		label = p.Model
	}
	return ServiceLogEntry{
		ProductID:  p.ID,
		Model:      label,
		Qty:        in.Qty,
		Type:       normaliseLoanType(in.Type),
		ReturnCost: costSnapshot,
		Status:     ServiceLogActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ApplyReturn moves qty units of entry back from service. Returning the last
// unit closes the entry; a returned entry accepts no further changes.
func ApplyReturn(entry ServiceLogEntry, qty int64, now time.Time) (ServiceLogEntry, error) {
	if entry.Status == ServiceLogReturned {
		return entry, ErrAlreadyReturned
	}
	if qty <= 0 {
		return entry, ErrInvalidQuantity
	}
	if qty > entry.Qty {
		return entry, ErrReturnExceedsLoan
	}
	entry.Qty -= qty
	if entry.Qty == 0 {
		entry.Status = ServiceLogReturned
	}
	entry.UpdatedAt = now
	return entry, nil
}
