package inventory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockpool/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListActiveServiceLogs(ctx context.Context) ([]ServiceLogEntry, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort reserves caller supplied keys so retried requests apply once.
type IdempotencyPort interface {
	Reserve(ctx context.Context, scope, key string) error
	Release(ctx context.Context, scope, key string) error
}

// LoanCache caches the active service loan listing.
type LoanCache interface {
	FetchActive(ctx context.Context, loader func(context.Context) ([]ServiceLogEntry, error)) ([]ServiceLogEntry, error)
	Invalidate(ctx context.Context) error
}

// Recorder receives engine metrics.
type Recorder interface {
	ObserveMovement(kind string, qty int64)
	ObserveShortfall(qty int64)
	ObserveRevaluation(rows int)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// RejectOversell fails deductions the tranches cannot cover instead of
	// clamping them at zero.
	RejectOversell bool
	BatchSize      int
	BatchPause     time.Duration
}

// DefaultBatchSize caps the lines handled in one bulk transaction.
const DefaultBatchSize = 50

// ServiceDeps collects collaborators; only Repo is mandatory.
type ServiceDeps struct {
	Repo        RepositoryPort
	Audit       AuditPort
	Idempotency IdempotencyPort
	Integration IntegrationHandler
	Cache       LoanCache
	Metrics     Recorder
	Logger      *slog.Logger
}

// Service coordinates inventory valuation and stock movements.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	integration IntegrationHandler
	cache       LoanCache
	metrics     Recorder
	logger      *slog.Logger
	cfg         ServiceConfig
	now         func() time.Time
}

// NewService builds Service.
func NewService(deps ServiceDeps, cfg ServiceConfig) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repo,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		integration: deps.Integration,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetProduct returns the current product snapshot.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrProductRequired
	}
	return s.repo.GetProduct(ctx, id)
}

// ListMovements returns the stock card of one product.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID <= 0 {
		return nil, ErrProductRequired
	}
	return s.repo.ListMovements(ctx, filter)
}

// ReceiveStock books an arrival of sea, air and local stock and recomputes the
// weighted-average cost under the product row lock.
func (s *Service) ReceiveStock(ctx context.Context, input ReceiveInput) (ReceiveResult, error) {
	if err := validateReceipt(input); err != nil {
		return ReceiveResult{}, err
	}
	release, err := s.reserve(ctx, "inventory:receive", input.IdempotencyKey)
	if err != nil {
		return ReceiveResult{}, err
	}
	var result ReceiveResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := s.receiveOne(ctx, tx, input)
		result = res
		return err
	})
	if err != nil {
		release()
		return ReceiveResult{}, err
	}
	s.afterReceipt(ctx, input, result)
	return result, nil
}

// ReceiveStockBulk books several arrivals, one transaction per chunk. Results
// for chunks committed before a failure are returned alongside the error. The
// idempotency key covers the whole request and is only given back when
// nothing was committed.
func (s *Service) ReceiveStockBulk(ctx context.Context, input BulkReceiveInput) ([]ReceiveResult, error) {
	inputs := input.Items
	if len(inputs) == 0 {
		return nil, ErrNothingToReceive
	}
	for i, in := range inputs {
		if err := validateReceipt(in); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	release, err := s.reserve(ctx, "inventory:receive_bulk", input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	results := make([]ReceiveResult, 0, len(inputs))
	for idx, chunk := range s.chunks(len(inputs)) {
		if err := s.pause(ctx, idx); err != nil {
			return results, err
		}
		lines := inputs[chunk[0]:chunk[1]]
		order := lockOrder(len(lines), func(i int) int64 { return lines[i].ProductID })
		chunkResults := make([]ReceiveResult, len(lines))
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			for _, i := range order {
				res, err := s.receiveOne(ctx, tx, lines[i])
				if err != nil {
					return fmt.Errorf("line %d: %w", chunk[0]+i+1, err)
				}
				chunkResults[i] = res
			}
			return nil
		})
		if err != nil {
			if idx == 0 {
				release()
			}
			return results, err
		}
		for i, res := range chunkResults {
			s.afterReceipt(ctx, lines[i], res)
		}
		results = append(results, chunkResults...)
	}
	return results, nil
}

func (s *Service) receiveOne(ctx context.Context, tx TxRepository, input ReceiveInput) (ReceiveResult, error) {
	product, err := tx.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return ReceiveResult{}, err
	}
	updated, incomingCost := applyReceipt(product, input)
	updated.UpdatedAt = s.now()
	if err := tx.UpdateProduct(ctx, updated); err != nil {
		return ReceiveResult{}, err
	}
	mv := Movement{
		ProductID:  updated.ID,
		Kind:       MovementReceive,
		LocalDelta: input.LocalQty,
		AirDelta:   input.AirQty,
		SeaDelta:   input.SeaQty,
		UnitCost:   incomingCost,
		AvgAfter:   updated.AvgPurchasePrice,
		StockAfter: updated.StockQty,
		CreatedAt:  updated.UpdatedAt,
	}
	if _, err := tx.InsertMovement(ctx, mv); err != nil {
		return ReceiveResult{}, err
	}
	return ReceiveResult{
		NewAvgCost:    updated.AvgPurchasePrice,
		TotalReceived: input.SeaQty + input.AirQty + input.LocalQty,
		Product:       updated,
	}, nil
}

func (s *Service) afterReceipt(ctx context.Context, input ReceiveInput, result ReceiveResult) {
	if s.metrics != nil {
		s.metrics.ObserveMovement(string(MovementReceive), result.TotalReceived)
	}
	s.record(ctx, input.ActorID, "inventory:receive", "product", result.Product.ID, map[string]any{
		"sea_qty":      input.SeaQty,
		"air_qty":      input.AirQty,
		"local_qty":    input.LocalQty,
		"new_avg_cost": result.NewAvgCost.String(),
	})
}

// Checkout deducts each sale line through the tranche waterfall. Lines are
// posted one transaction per chunk; lines of chunks committed before a
// failure are returned alongside the error.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (CheckoutResult, error) {
	if len(input.Items) == 0 {
		return CheckoutResult{}, ErrEmptyCheckout
	}
	for i, item := range input.Items {
		if item.ProductID <= 0 {
			return CheckoutResult{}, fmt.Errorf("line %d: %w", i+1, ErrProductRequired)
		}
		if item.Qty <= 0 {
			return CheckoutResult{}, fmt.Errorf("line %d: %w", i+1, ErrInvalidQuantity)
		}
	}
	release, err := s.reserve(ctx, "inventory:checkout", input.IdempotencyKey)
	if err != nil {
		return CheckoutResult{}, err
	}
	result := CheckoutResult{Lines: make([]CheckoutLine, 0, len(input.Items))}
	var alerts []LowStockEvent
	for idx, chunk := range s.chunks(len(input.Items)) {
		if err := s.pause(ctx, idx); err != nil {
			return result, err
		}
		items := input.Items[chunk[0]:chunk[1]]
		order := lockOrder(len(items), func(i int) int64 { return items[i].ProductID })
		lines := make([]CheckoutLine, len(items))
		var chunkAlerts []LowStockEvent
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			chunkAlerts = chunkAlerts[:0]
			for _, i := range order {
				product, alloc, err := s.deduct(ctx, tx, items[i].ProductID, items[i].Qty, MovementSale, input.Ref, s.cfg.RejectOversell)
				if err != nil {
					return fmt.Errorf("line %d: %w", chunk[0]+i+1, err)
				}
				lines[i] = CheckoutLine{
					ProductID: product.ID,
					Qty:       items[i].Qty,
					Shortfall: alloc.Shortfall,
					UnitCost:  product.AvgPurchasePrice,
					StockQty:  product.StockQty,
				}
				if product.BelowAlert() {
					chunkAlerts = append(chunkAlerts, s.lowStock(product, MovementSale))
				}
			}
			return nil
		})
		if err != nil {
			if idx == 0 {
				release()
			}
			return result, err
		}
		result.Lines = append(result.Lines, lines...)
		alerts = append(alerts, chunkAlerts...)
	}
	for _, line := range result.Lines {
		if s.metrics != nil {
			s.metrics.ObserveMovement(string(MovementSale), line.Qty)
			if line.Shortfall > 0 {
				s.metrics.ObserveShortfall(line.Shortfall)
			}
		}
		if line.Shortfall > 0 {
			s.logger.Warn("checkout oversold product",
				slog.Int64("product_id", line.ProductID),
				slog.Int64("qty", line.Qty),
				slog.Int64("shortfall", line.Shortfall))
		}
	}
	s.notifyLowStock(ctx, alerts)
	s.record(ctx, input.ActorID, "inventory:checkout", "checkout", 0, map[string]any{
		"ref":   input.Ref,
		"lines": len(result.Lines),
	})
	return result, nil
}

// deduct locks the product, drains qty through the waterfall and writes the
// product and its movement line. With strict set a shortfall fails the call.
func (s *Service) deduct(ctx context.Context, tx TxRepository, productID, qty int64, kind MovementKind, ref string, strict bool) (Product, Allocation, error) {
	product, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return Product{}, Allocation{}, err
	}
	alloc := Deduct(product.Tranches(), qty)
	if alloc.Shortfall > 0 && strict {
		return Product{}, Allocation{}, fmt.Errorf("%w: product %d short by %d", ErrInsufficientStock, productID, alloc.Shortfall)
	}
	product.SetTranches(alloc.After)
	product.UpdatedAt = s.now()
	if err := tx.UpdateProduct(ctx, product); err != nil {
		return Product{}, Allocation{}, err
	}
	mv := Movement{
		ProductID:  product.ID,
		Kind:       kind,
		Ref:        ref,
		LocalDelta: -alloc.FromLocal,
		AirDelta:   -alloc.FromAir,
		SeaDelta:   -alloc.FromSea,
		Shortfall:  alloc.Shortfall,
		UnitCost:   product.AvgPurchasePrice,
		AvgAfter:   product.AvgPurchasePrice,
		StockAfter: product.StockQty,
		CreatedAt:  product.UpdatedAt,
	}
	if _, err := tx.InsertMovement(ctx, mv); err != nil {
		return Product{}, Allocation{}, err
	}
	return product, alloc, nil
}

// RevalueCurrency reprices every imported product at the new FX multiplier in
// a single transaction.
func (s *Service) RevalueCurrency(ctx context.Context, newCurrency decimal.Decimal, actorID int64) (RevalueResult, error) {
	if !newCurrency.IsPositive() {
		return RevalueResult{}, ErrInvalidCurrency
	}
	var result RevalueResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.ListImportedProducts(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		revalued := RevalueAll(rows, newCurrency)
		movements := make([]Movement, 0, len(revalued))
		for i := range revalued {
			revalued[i].UpdatedAt = now
			movements = append(movements, Movement{
				ProductID:  revalued[i].ID,
				Kind:       MovementRevalue,
				Ref:        "currency:" + newCurrency.String(),
				UnitCost:   revalued[i].AvgPurchasePrice,
				AvgAfter:   revalued[i].AvgPurchasePrice,
				StockAfter: revalued[i].StockQty,
				CreatedAt:  now,
			})
		}
		run := RevaluationRun{NewCurrency: newCurrency, RowsRevalued: len(revalued), ActorID: actorID, CreatedAt: now}
		runID, err := tx.SaveRevaluation(ctx, run, revalued, movements)
		if err != nil {
			return err
		}
		result = RevalueResult{RunID: runID, NewCurrency: newCurrency, RowsRevalued: len(revalued)}
		return nil
	})
	if err != nil {
		return RevalueResult{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveRevaluation(result.RowsRevalued)
	}
	s.logger.Info("currency revalued",
		slog.String("currency", newCurrency.String()),
		slog.Int("rows", result.RowsRevalued))
	s.record(ctx, actorID, "inventory:revalue", "currency_revaluation", result.RunID, map[string]any{
		"currency": newCurrency.String(),
		"rows":     result.RowsRevalued,
	})
	return result, nil
}

// LoanToService removes stock from sale for repair and opens a service log.
// A loan must be fully covered by stock on hand, whatever the oversell policy,
// since every loaned unit comes back into the local tranche on return.
func (s *Service) LoanToService(ctx context.Context, input LoanInput) (ServiceLogEntry, error) {
	if input.ProductID <= 0 {
		return ServiceLogEntry{}, ErrProductRequired
	}
	if input.Qty <= 0 {
		return ServiceLogEntry{}, ErrInvalidQuantity
	}
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return ServiceLogEntry{}, ErrInvalidUnitCost
	}
	var (
		entry ServiceLogEntry
		alert *LowStockEvent
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, _, err := s.deduct(ctx, tx, input.ProductID, input.Qty, MovementServiceLoan, "", true)
		if err != nil {
			return err
		}
		snapshot := product.AvgPurchasePrice
		if input.UnitCost != nil {
			snapshot = *input.UnitCost
		}
		entry = newServiceLoan(product, input, snapshot, product.UpdatedAt)
		id, err := tx.InsertServiceLog(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id
		if product.BelowAlert() {
			evt := s.lowStock(product, MovementServiceLoan)
			alert = &evt
		}
		return nil
	})
	if err != nil {
		return ServiceLogEntry{}, err
	}
	s.invalidateLoans(ctx)
	if alert != nil {
		s.notifyLowStock(ctx, []LowStockEvent{*alert})
	}
	if s.metrics != nil {
		s.metrics.ObserveMovement(string(MovementServiceLoan), input.Qty)
	}
	s.record(ctx, input.ActorID, "inventory:service_loan", "service_log", entry.ID, map[string]any{
		"product_id": entry.ProductID,
		"qty":        entry.Qty,
		"type":       entry.Type,
	})
	return entry, nil
}

// ReturnFromService brings units back from service into the local tranche.
func (s *Service) ReturnFromService(ctx context.Context, input ReturnInput) (ServiceLogEntry, error) {
	if input.LogID <= 0 {
		return ServiceLogEntry{}, fmt.Errorf("%w: inventory: service log required", shared.ErrValidation)
	}
	var entry ServiceLogEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetServiceLogForUpdate(ctx, input.LogID)
		if err != nil {
			return err
		}
		now := s.now()
		updated, err := ApplyReturn(current, input.Qty, now)
		if err != nil {
			return err
		}
		product, err := tx.GetProductForUpdate(ctx, current.ProductID)
		if err != nil {
			return err
		}
		t := product.Tranches()
		t.Local += input.Qty
		product.SetTranches(t)
		product.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, product); err != nil {
			return err
		}
		if err := tx.UpdateServiceLog(ctx, updated); err != nil {
			return err
		}
		mv := Movement{
			ProductID:  product.ID,
			Kind:       MovementServiceReturn,
			Ref:        "service_log:" + strconv.FormatInt(updated.ID, 10),
			LocalDelta: input.Qty,
			UnitCost:   updated.ReturnCost,
			AvgAfter:   product.AvgPurchasePrice,
			StockAfter: product.StockQty,
			CreatedAt:  now,
		}
		if _, err := tx.InsertMovement(ctx, mv); err != nil {
			return err
		}
		entry = updated
		return nil
	})
	if err != nil {
		return ServiceLogEntry{}, err
	}
	s.invalidateLoans(ctx)
	if s.metrics != nil {
		s.metrics.ObserveMovement(string(MovementServiceReturn), input.Qty)
	}
	s.record(ctx, input.ActorID, "inventory:service_return", "service_log", entry.ID, map[string]any{
		"qty":       input.Qty,
		"remaining": entry.Qty,
		"status":    string(entry.Status),
	})
	return entry, nil
}

// ListActiveServiceLoans lists loans still holding stock.
func (s *Service) ListActiveServiceLoans(ctx context.Context) ([]ServiceLogEntry, error) {
	if s.cache == nil {
		return s.repo.ListActiveServiceLogs(ctx)
	}
	entries, err := s.cache.FetchActive(ctx, s.repo.ListActiveServiceLogs)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("service loan cache fallback", slog.Any("error", err))
		return s.repo.ListActiveServiceLogs(ctx)
	}
	return entries, err
}

func validateReceipt(input ReceiveInput) error {
	if input.ProductID <= 0 {
		return ErrProductRequired
	}
	if input.SeaQty < 0 || input.AirQty < 0 || input.LocalQty < 0 {
		return ErrNegativeQuantity
	}
	if input.SeaQty+input.AirQty+input.LocalQty == 0 {
		return ErrNothingToReceive
	}
	if input.LocalQty > 0 && input.LocalUnitPrice.IsNegative() {
		return ErrInvalidUnitCost
	}
	return nil
}

// reserve claims an idempotency key; the returned func gives it back after a
// failed attempt.
func (s *Service) reserve(ctx context.Context, scope, key string) (func(), error) {
	if s.idempotency == nil || key == "" {
		return func() {}, nil
	}
	if err := s.idempotency.Reserve(ctx, scope, key); err != nil {
		return nil, err
	}
	return func() {
		if err := s.idempotency.Release(context.WithoutCancel(ctx), scope, key); err != nil {
			s.logger.Warn("release idempotency key", slog.String("scope", scope), slog.Any("error", err))
		}
	}, nil
}

// chunks yields [start,end) bounds of at most BatchSize items, keyed by chunk index.
func (s *Service) chunks(n int) iter.Seq2[int, [2]int] {
	size := s.cfg.BatchSize
	return func(yield func(int, [2]int) bool) {
		for i, start := 0, 0; start < n; i, start = i+1, start+size {
			if !yield(i, [2]int{start, min(start+size, n)}) {
				return
			}
		}
	}
}

// pause sleeps between chunks so long bulk runs do not starve other writers.
func (s *Service) pause(ctx context.Context, chunk int) error {
	if chunk == 0 || s.cfg.BatchPause <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.cfg.BatchPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// lockOrder returns item indexes sorted by product id, keeping request order
// for repeated ids, so concurrent bulk writers lock rows in the same order.
func lockOrder(n int, productID func(int) int64) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(productID(a), productID(b))
	})
	return order
}

func (s *Service) lowStock(p Product, source MovementKind) LowStockEvent {
	return LowStockEvent{
		ProductID: p.ID,
		Model:     p.Model,
		StockQty:  p.StockQty,
		AlertQty:  p.AlertQty,
		Source:    source,
		RaisedAt:  p.UpdatedAt,
	}
}

func (s *Service) notifyLowStock(ctx context.Context, events []LowStockEvent) {
	if s.integration == nil {
		return
	}
	for _, evt := range events {
		if err := s.integration.HandleLowStock(ctx, evt); err != nil {
			s.logger.Warn("low stock notification failed",
				slog.Int64("product_id", evt.ProductID),
				slog.Any("error", err))
		}
	}
}

func (s *Service) invalidateLoans(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate service loan cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
