package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockpool/internal/platform/db"
	"github.com/odyssey-erp/stockpool/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	ListImportedProducts(ctx context.Context) ([]Product, error)
	SaveRevaluation(ctx context.Context, run RevaluationRun, rows []Product, movements []Movement) (int64, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	InsertServiceLog(ctx context.Context, e ServiceLogEntry) (int64, error)
	GetServiceLogForUpdate(ctx context.Context, id int64) (ServiceLogEntry, error)
	UpdateServiceLog(ctx context.Context, e ServiceLogEntry) error
}

type txRepository struct {
	tx pgx.Tx
}

const productColumns = `id, model, yuan, currency, weight, shipmenttax, shipmenttaxair, sea, air,
stock_qty, local_qty, air_stock_qty, sea_stock_qty, avg_purchase_price, alert_qty, shipment_date, updated_at`

const serviceLogColumns = `id, product_id, model, qty, type, return_cost, status, created_at, updated_at`

// WithTx executes the callback inside a read-committed transaction. Product
// and service log rows are read FOR UPDATE, so writers to the same row queue
// on the lock and then see the committed state.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("%w: inventory repository not initialised", shared.ErrStore)
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) &&
		!errors.Is(err, shared.ErrConflict) && !errors.Is(err, shared.ErrStore) {
		return storeErr("tx", err)
	}
	return err
}

// GetProduct reads a product without locking it.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	if r == nil || r.pool == nil {
		return Product{}, fmt.Errorf("%w: inventory repository not initialised", shared.ErrStore)
	}
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if err != nil {
		return Product{}, productErr(err)
	}
	return p, nil
}

// ListImportedProducts returns the imported catalogue outside a transaction,
// for previews.
func (r *Repository) ListImportedProducts(ctx context.Context) ([]Product, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("%w: inventory repository not initialised", shared.ErrStore)
	}
	return listImported(ctx, r.pool, "")
}

// ListActiveServiceLogs returns open service loans, newest first.
func (r *Repository) ListActiveServiceLogs(ctx context.Context) ([]ServiceLogEntry, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("%w: inventory repository not initialised", shared.ErrStore)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+serviceLogColumns+` FROM service_logs
WHERE status=$1 ORDER BY created_at DESC, id DESC`, string(ServiceLogActive))
	if err != nil {
		return nil, storeErr("list service logs", err)
	}
	defer rows.Close()
	entries := []ServiceLogEntry{}
	for rows.Next() {
		e, err := scanServiceLog(rows)
		if err != nil {
			return nil, storeErr("scan service log", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list service logs", err)
	}
	return entries, nil
}

// ListMovements returns a product's stock card in posting order.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("%w: inventory repository not initialised", shared.ErrStore)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, kind, ref, local_delta, air_delta, sea_delta, shortfall, unit_cost, avg_after, stock_after, created_at
FROM stock_movements
WHERE product_id=$1 AND created_at >= COALESCE($2::timestamptz, '-infinity') AND created_at < COALESCE($3::timestamptz, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $4`, filter.ProductID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, storeErr("list movements", err)
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.ProductID, &kind, &m.Ref, &m.LocalDelta, &m.AirDelta, &m.SeaDelta, &m.Shortfall, &m.UnitCost, &m.AvgAfter, &m.StockAfter, &m.CreatedAt); err != nil {
			return nil, storeErr("scan movement", err)
		}
		m.Kind = MovementKind(kind)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list movements", err)
	}
	return movements, nil
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Product{}, productErr(err)
	}
	return p, nil
}

func (r *txRepository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.tx.Exec(ctx, updateProductSQL, productArgs(p)...)
	if err != nil {
		return storeErr("update product", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

const updateProductSQL = `UPDATE products SET currency=$2, sea=$3, air=$4, stock_qty=$5, local_qty=$6, air_stock_qty=$7,
sea_stock_qty=$8, avg_purchase_price=$9, shipment_date=$10, updated_at=$11 WHERE id=$1`

func productArgs(p Product) []any {
	return []any{p.ID, p.Currency, p.Sea, p.Air, p.StockQty, p.LocalQty, p.AirStockQty, p.SeaStockQty,
		p.AvgPurchasePrice, p.ShipmentDate, p.UpdatedAt}
}

// ListImportedProducts locks every row priced in source currency, in id order
// like every other writer, so receipts cannot interleave with a revaluation.
func (r *txRepository) ListImportedProducts(ctx context.Context) ([]Product, error) {
	return listImported(ctx, r.tx, " FOR UPDATE")
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listImported(ctx context.Context, q querier, lock string) ([]Product, error) {
	rows, err := q.Query(ctx, `SELECT `+productColumns+` FROM products WHERE yuan > 0 ORDER BY id`+lock)
	if err != nil {
		return nil, storeErr("list imported products", err)
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storeErr("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list imported products", err)
	}
	return products, nil
}

// SaveRevaluation writes the run header, every repriced row and its movement
// line in one pipelined batch.
func (r *txRepository) SaveRevaluation(ctx context.Context, run RevaluationRun, rows []Product, movements []Movement) (int64, error) {
	var runID int64
	err := r.tx.QueryRow(ctx, `INSERT INTO currency_revaluations (new_currency, rows_revalued, actor_id, created_at)
VALUES ($1,$2,$3,$4) RETURNING id`, run.NewCurrency, run.RowsRevalued, nullInt(run.ActorID), run.CreatedAt).Scan(&runID)
	if err != nil {
		return 0, storeErr("insert revaluation", err)
	}
	if len(rows) == 0 && len(movements) == 0 {
		return runID, nil
	}
	batch := &pgx.Batch{}
	for _, p := range rows {
		batch.Queue(updateProductSQL, productArgs(p)...)
	}
	for _, m := range movements {
		batch.Queue(insertMovementSQL, movementArgs(m)...)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, storeErr("apply revaluation", err)
	}
	return runID, nil
}

const insertMovementSQL = `INSERT INTO stock_movements (product_id, kind, ref, local_delta, air_delta, sea_delta, shortfall, unit_cost, avg_after, stock_after, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`

func movementArgs(m Movement) []any {
	return []any{m.ProductID, string(m.Kind), m.Ref, m.LocalDelta, m.AirDelta, m.SeaDelta, m.Shortfall,
		m.UnitCost, m.AvgAfter, m.StockAfter, m.CreatedAt}
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	if err := r.tx.QueryRow(ctx, insertMovementSQL, movementArgs(m)...).Scan(&id); err != nil {
		return 0, storeErr("insert movement", err)
	}
	return id, nil
}

func (r *txRepository) InsertServiceLog(ctx context.Context, e ServiceLogEntry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO service_logs (product_id, model, qty, type, return_cost, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`, e.ProductID, e.Model, e.Qty, e.Type, e.ReturnCost, string(e.Status), e.CreatedAt, e.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, storeErr("insert service log", err)
	}
	return id, nil
}

func (r *txRepository) GetServiceLogForUpdate(ctx context.Context, id int64) (ServiceLogEntry, error) {
	e, err := scanServiceLog(r.tx.QueryRow(ctx, `SELECT `+serviceLogColumns+` FROM service_logs WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServiceLogEntry{}, ErrServiceLogNotFound
		}
		return ServiceLogEntry{}, storeErr("get service log", err)
	}
	return e, nil
}

func (r *txRepository) UpdateServiceLog(ctx context.Context, e ServiceLogEntry) error {
	tag, err := r.tx.Exec(ctx, `UPDATE service_logs SET qty=$2, status=$3, updated_at=$4 WHERE id=$1 AND status=$5`,
		e.ID, e.Qty, string(e.Status), e.UpdatedAt, string(ServiceLogActive))
	if err != nil {
		return storeErr("update service log", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReturned
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Model, &p.Yuan, &p.Currency, &p.Weight, &p.ShipmentTax, &p.ShipmentTaxAir, &p.Sea, &p.Air,
		&p.StockQty, &p.LocalQty, &p.AirStockQty, &p.SeaStockQty, &p.AvgPurchasePrice, &p.AlertQty, &p.ShipmentDate, &p.UpdatedAt)
	return p, err
}

func scanServiceLog(row pgx.Row) (ServiceLogEntry, error) {
	var e ServiceLogEntry
	var status string
	err := row.Scan(&e.ID, &e.ProductID, &e.Model, &e.Qty, &e.Type, &e.ReturnCost, &status, &e.CreatedAt, &e.UpdatedAt)
	e.Status = ServiceLogStatus(status)
	return e, err
}

func productErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductNotFound
	}
	return storeErr("get product", err)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("inventory: %s: %w: %w", op, shared.ErrStore, err)
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
