package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the row-locked operations the ledger runs inside a transaction.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (Product, error)
	UpdateProductStock(ctx context.Context, productID int64, stock int64) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// WithTx executes the callback inside a read-committed transaction; row locks
// taken by GetProductForUpdate serialise concurrent movements per product.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// ListMovements returns the stock card for a product, oldest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, COALESCE(actor_id, 0), direction, reason, quantity, stock_before, stock_after, reference_id, COALESCE(reference_type, ''), occurred_at
FROM inventory_movements
WHERE product_id=$1
ORDER BY id ASC
LIMIT $2`, filter.ProductID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.ActorID, &m.Direction, &m.Reason, &m.Quantity, &m.StockBefore, &m.StockAfter, &m.ReferenceID, &m.ReferenceType, &m.OccurredAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// PgStockTx implements TxRepository on a pgx transaction. Other packages embed it
// so that stock movements share their transaction.
type PgStockTx struct {
	tx pgx.Tx
}

// NewTxRepository wraps tx.
func NewTxRepository(tx pgx.Tx) *PgStockTx {
	return &PgStockTx{tx: tx}
}

func (r *PgStockTx) GetProductForUpdate(ctx context.Context, productID int64) (Product, error) {
	var p Product
	err := r.tx.QueryRow(ctx, `SELECT id, name, sku, unit_price, stock_on_hand FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.Name, &p.SKU, &p.UnitPrice, &p.StockOnHand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("select product %d: %w", productID, err)
	}
	return p, nil
}

func (r *PgStockTx) UpdateProductStock(ctx context.Context, productID int64, stock int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET stock_on_hand=$2, updated_at=NOW() WHERE id=$1`, productID, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *PgStockTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (product_id, actor_id, direction, reason, quantity, stock_before, stock_after, reference_id, reference_type, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		m.ProductID, nullInt(m.ActorID), string(m.Direction), string(m.Reason), m.Quantity, m.StockBefore, m.StockAfter, m.ReferenceID, nullString(m.ReferenceType), m.OccurredAt).Scan(&id)
	return id, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
