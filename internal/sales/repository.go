package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// idempotencyModule scopes settlement keys in idempotency_keys.
const idempotencyModule = "sales:settle"

// Repository provides PostgreSQL backed persistence for sales operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Stock and credit writes share
// the sale's transaction through the embedded interfaces.
type TxRepository interface {
	inventory.TxRepository
	credit.TxRepository

	ClaimIdempotencyKey(ctx context.Context, key string) error
	CustomerExists(ctx context.Context, customerID int64) (bool, error)
	NextSaleID(ctx context.Context) (int64, error)
	NextSaleNumber(ctx context.Context, year int) (int64, error)
	InsertSale(ctx context.Context, sale Sale) error
	InsertSaleLine(ctx context.Context, line Line) (int64, error)
	GetSaleForUpdate(ctx context.Context, saleID int64) (Sale, error)
	MarkSaleVoided(ctx context.Context, saleID, actorID int64, at time.Time) error
}

type txRepo struct {
	*inventory.PgStockTx
	*credit.PgCreditTx
	tx pgx.Tx
}

// WithTx wraps callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			PgStockTx:  inventory.NewTxRepository(tx),
			PgCreditTx: credit.NewTxRepository(tx),
			tx:         tx,
		})
	})
}

const saleColumns = `s.id, s.number, s.customer_id, s.cashier_id, s.subtotal, s.discount, s.shipping_cost, s.tax, s.total,
s.payment_kind, s.status, s.created_at, s.voided_at, s.voided_by`

// GetSale loads a sale with its lines, payments and credit id.
func (r *Repository) GetSale(ctx context.Context, saleID int64) (Sale, error) {
	if r == nil {
		return Sale{}, errors.New("sales repository not initialised")
	}
	var creditID *int64
	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+`, c.id
FROM sales s
LEFT JOIN credits c ON c.sale_id = s.id
WHERE s.id=$1`, saleID)
	sale, err := scanSale(row, &creditID)
	if err != nil {
		return Sale{}, err
	}
	sale.CreditID = creditID
	if sale.Lines, err = queryLines(ctx, r.pool, saleID); err != nil {
		return Sale{}, err
	}
	payments, err := credit.NewRepository(r.pool).ListPaymentsBySale(ctx, saleID)
	if err != nil {
		return Sale{}, err
	}
	sale.Payments = payments
	return sale, nil
}

func (t *txRepo) ClaimIdempotencyKey(ctx context.Context, key string) error {
	return shared.ClaimKey(ctx, t.tx, key, idempotencyModule)
}

func (t *txRepo) CustomerExists(ctx context.Context, customerID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id=$1)`, customerID).Scan(&exists)
	return exists, err
}

func (t *txRepo) NextSaleID(ctx context.Context) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT nextval('sales_id_seq')`).Scan(&id)
	return id, err
}

// NextSaleNumber bumps the per-year counter; the upsert holds the series row
// lock until commit, so numbers stay gap-free across concurrent settlements.
func (t *txRepo) NextSaleNumber(ctx context.Context, year int) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_number_series (year, last_value) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET last_value = sale_number_series.last_value + 1
RETURNING last_value`, year).Scan(&n)
	return n, err
}

func (t *txRepo) InsertSale(ctx context.Context, sale Sale) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO sales (id, number, customer_id, cashier_id, subtotal, discount, shipping_cost, tax, total, payment_kind, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		sale.ID, sale.Number, sale.CustomerID, sale.CashierID, sale.Subtotal, sale.Discount, sale.ShippingCost,
		sale.Tax, sale.Total, string(sale.PaymentKind), string(sale.Status), sale.CreatedAt)
	return err
}

func (t *txRepo) InsertSaleLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_lines (sale_id, product_id, product_name, sku, unit_price, quantity, line_discount, subtotal)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		line.SaleID, line.ProductID, line.ProductName, line.SKU, line.UnitPrice, line.Quantity, line.LineDiscount, line.Subtotal).Scan(&id)
	return id, err
}

func (t *txRepo) GetSaleForUpdate(ctx context.Context, saleID int64) (Sale, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales s WHERE s.id=$1 FOR UPDATE`, saleID)
	sale, err := scanSale(row, nil)
	if err != nil {
		return Sale{}, err
	}
	if sale.Lines, err = queryLines(ctx, t.tx, saleID); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

func (t *txRepo) MarkSaleVoided(ctx context.Context, saleID, actorID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET status=$2, voided_at=$3, voided_by=$4 WHERE id=$1`,
		saleID, string(StatusVoided), at, actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, saleID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, product_name, sku, unit_price, quantity, line_discount, subtotal
FROM sale_lines WHERE sale_id=$1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.ProductName, &l.SKU, &l.UnitPrice, &l.Quantity, &l.LineDiscount, &l.Subtotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanSale(row pgx.Row, creditID **int64) (Sale, error) {
	var s Sale
	dest := []any{&s.ID, &s.Number, &s.CustomerID, &s.CashierID, &s.Subtotal, &s.Discount, &s.ShippingCost, &s.Tax, &s.Total,
		&s.PaymentKind, &s.Status, &s.CreatedAt, &s.VoidedAt, &s.VoidedBy}
	if creditID != nil {
		dest = append(dest, creditID)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, fmt.Errorf("scan sale: %w", err)
	}
	return s, nil
}
