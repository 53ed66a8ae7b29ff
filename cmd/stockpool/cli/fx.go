package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockpool/internal/inventory"
)

// ImportedLister reads the imported catalogue without locking it.
type ImportedLister interface {
	ListImportedProducts(ctx context.Context) ([]inventory.Product, error)
}

// Revaluer applies a currency change synchronously.
type Revaluer interface {
	RevalueCurrency(ctx context.Context, newCurrency decimal.Decimal, actorID int64) (inventory.RevalueResult, error)
}

// RevaluationQueue hands a currency change to the worker.
type RevaluationQueue interface {
	EnqueueRevaluation(ctx context.Context, newCurrency decimal.Decimal, actorID int64) (string, error)
}

// FXOpsCLI offers operational helpers around the FX multiplier used to price
// imported stock.
type FXOpsCLI struct {
	lister   ImportedLister
	revaluer Revaluer
	queue    RevaluationQueue
}

// NewFXOpsCLI constructs a new helper instance. The queue may be nil when
// async runs are not needed.
func NewFXOpsCLI(lister ImportedLister, revaluer Revaluer, queue RevaluationQueue) (*FXOpsCLI, error) {
	if lister == nil || revaluer == nil {
		return nil, errors.New("fx cli: repository and service required")
	}
	return &FXOpsCLI{lister: lister, revaluer: revaluer, queue: queue}, nil
}

// RevalueOptions defines available flags for the fx revalue command.
type RevalueOptions struct {
	Currency   string
	ActorID    int64
	DryRun     bool
	Async      bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RevaluePreviewRow shows one product before and after the change.
type RevaluePreviewRow struct {
	ProductID int64           `json:"product_id"`
	Model     string          `json:"model"`
	StockQty  int64           `json:"stock_qty"`
	OldAvg    decimal.Decimal `json:"old_avg"`
	NewAvg    decimal.Decimal `json:"new_avg"`
	NewSea    decimal.Decimal `json:"new_sea"`
	NewAir    decimal.Decimal `json:"new_air"`
}

// RevalueSummary describes the JSON response for fx revalue.
type RevalueSummary struct {
	NewCurrency  decimal.Decimal     `json:"new_currency"`
	DryRun       bool                `json:"dry_run"`
	Queued       bool                `json:"queued"`
	TaskID       string              `json:"task_id,omitempty"`
	RunID        int64               `json:"run_id,omitempty"`
	RowsRevalued int                 `json:"rows_revalued"`
	Preview      []RevaluePreviewRow `json:"preview,omitempty"`
}

// Preview computes the repriced catalogue without writing it.
func (c *FXOpsCLI) Preview(ctx context.Context, newCurrency decimal.Decimal) ([]RevaluePreviewRow, error) {
	rows, err := c.lister.ListImportedProducts(ctx)
	if err != nil {
		return nil, err
	}
	before := make(map[int64]inventory.Product, len(rows))
	for _, p := range rows {
		before[p.ID] = p
	}
	after := inventory.RevalueAll(rows, newCurrency)
	out := make([]RevaluePreviewRow, 0, len(after))
	for _, p := range after {
		out = append(out, RevaluePreviewRow{
			ProductID: p.ID,
			Model:     p.Model,
			StockQty:  p.StockQty,
			OldAvg:    before[p.ID].AvgPurchasePrice,
			NewAvg:    p.AvgPurchasePrice,
			NewSea:    p.Sea,
			NewAir:    p.Air,
		})
	}
	return out, nil
}

// RevalueCommand executes the fx revalue workflow and prints the outcome.
func (c *FXOpsCLI) RevalueCommand(ctx context.Context, opts RevalueOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	currency, err := decimal.NewFromString(strings.TrimSpace(opts.Currency))
	if err != nil || !currency.IsPositive() {
		_, _ = fmt.Fprintf(opts.Stderr, "fx revalue: invalid currency %q (expected a positive decimal)\n", opts.Currency)
		return 1
	}
	if opts.DryRun && opts.Async {
		_, _ = fmt.Fprintln(opts.Stderr, "fx revalue: --dry-run and --async cannot be combined")
		return 1
	}

	summary := RevalueSummary{NewCurrency: currency, DryRun: opts.DryRun}
	switch {
	case opts.DryRun:
		summary.Preview, err = c.Preview(ctx, currency)
		summary.RowsRevalued = len(summary.Preview)
	case opts.Async:
		if c.queue == nil {
			err = errors.New("job queue not configured")
			break
		}
		summary.TaskID, err = c.queue.EnqueueRevaluation(ctx, currency, opts.ActorID)
		summary.Queued = err == nil
	default:
		var result inventory.RevalueResult
		result, err = c.revaluer.RevalueCurrency(ctx, currency, opts.ActorID)
		summary.RunID = result.RunID
		summary.RowsRevalued = result.RowsRevalued
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx revalue: %v\n", err)
		return 1
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx revalue: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderRevalueHuman(opts.Stdout, summary)
	return 0
}

func renderRevalueHuman(out io.Writer, s RevalueSummary) {
	switch {
	case s.DryRun:
		_, _ = fmt.Fprintf(out, "Dry run at currency %s: %d imported product(s) would change\n", s.NewCurrency, s.RowsRevalued)
		for _, row := range s.Preview {
			_, _ = fmt.Fprintf(out, " - #%d %s qty=%d avg %s -> %s (sea %s, air %s)\n",
				row.ProductID, row.Model, row.StockQty, row.OldAvg.StringFixed(2), row.NewAvg.StringFixed(2),
				row.NewSea.StringFixed(2), row.NewAir.StringFixed(2))
		}
	case s.Queued:
		_, _ = fmt.Fprintf(out, "Revaluation to %s queued as task %s\n", s.NewCurrency, s.TaskID)
	default:
		_, _ = fmt.Fprintf(out, "Revaluation run %d applied currency %s to %d product(s)\n", s.RunID, s.NewCurrency, s.RowsRevalued)
	}
}
