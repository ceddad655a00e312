package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// TxRepository exposes the credit writes that run inside a caller-owned transaction.
type TxRepository interface {
	InsertCredit(ctx context.Context, c Credit) (int64, error)
	InsertInstallment(ctx context.Context, inst Installment) (int64, error)
	GetCreditForUpdate(ctx context.Context, creditID int64) (Credit, error)
	GetCreditBySaleForUpdate(ctx context.Context, saleID int64) (Credit, error)
	ListInstallmentsForUpdate(ctx context.Context, creditID int64) ([]Installment, error)
	UpdateInstallment(ctx context.Context, inst Installment) error
	UpdateCredit(ctx context.Context, c Credit) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	InsertAllocation(ctx context.Context, a Allocation) (int64, error)
}

// Repository persists credits in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("credit repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const creditColumns = `id, sale_id, customer_id, total_amount, remaining_amount, installment_count, installment_amount, start_date, status, created_at, updated_at`

const installmentColumns = `id, credit_id, sequence, amount, amount_paid, amount_remaining, due_date, status, paid_at`

// GetCredit loads a credit with its schedule.
func (r *Repository) GetCredit(ctx context.Context, creditID int64) (Detail, error) {
	if r == nil {
		return Detail{}, errors.New("credit repository not initialised")
	}
	c, err := scanCredit(r.pool.QueryRow(ctx, `SELECT `+creditColumns+` FROM credits WHERE id=$1`, creditID))
	if err != nil {
		return Detail{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+installmentColumns+` FROM installments WHERE credit_id=$1 ORDER BY sequence`, creditID)
	if err != nil {
		return Detail{}, err
	}
	installments, err := collectInstallments(rows)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Credit: c, Installments: installments}, nil
}

// GetCreditBySale returns the credit opened by a sale, if any.
func (r *Repository) GetCreditBySale(ctx context.Context, saleID int64) (Credit, error) {
	if r == nil {
		return Credit{}, errors.New("credit repository not initialised")
	}
	return scanCredit(r.pool.QueryRow(ctx, `SELECT `+creditColumns+` FROM credits WHERE sale_id=$1`, saleID))
}

// ListAllocations returns the allocation rows of a payment.
func (r *Repository) ListAllocations(ctx context.Context, paymentID int64) ([]Allocation, error) {
	if r == nil {
		return nil, errors.New("credit repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, payment_id, installment_id, amount_applied FROM payment_allocations WHERE payment_id=$1 ORDER BY id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Allocation{}
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.InstallmentID, &a.AmountApplied); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListPaymentsBySale returns every payment recorded against a sale.
func (r *Repository) ListPaymentsBySale(ctx context.Context, saleID int64) ([]Payment, error) {
	if r == nil {
		return nil, errors.New("credit repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, credit_id, amount, method, COALESCE(reference, ''), cashier_id, created_at
FROM payments WHERE sale_id=$1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.CreditID, &p.Amount, &p.Method, &p.Reference, &p.CashierID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkOverdue flips unpaid installments of active credits past their due date
// to OVERDUE. PARTIAL installments keep their status.
func (r *Repository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	if r == nil {
		return 0, errors.New("credit repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE installments i SET status='OVERDUE'
FROM credits c
WHERE c.id = i.credit_id AND c.status='ACTIVE'
  AND i.status='PENDING' AND i.amount_remaining > 0 AND i.due_date < $1`, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PgCreditTx implements TxRepository on a pgx transaction.
type PgCreditTx struct {
	tx pgx.Tx
}

// NewTxRepository wraps tx.
func NewTxRepository(tx pgx.Tx) *PgCreditTx {
	return &PgCreditTx{tx: tx}
}

func (r *PgCreditTx) InsertCredit(ctx context.Context, c Credit) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO credits (sale_id, customer_id, total_amount, remaining_amount, installment_count, installment_amount, start_date, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id`,
		c.SaleID, c.CustomerID, c.TotalAmount, c.RemainingAmount, c.InstallmentCount, c.InstallmentAmount, c.StartDate, string(c.Status)).Scan(&id)
	return id, err
}

func (r *PgCreditTx) InsertInstallment(ctx context.Context, inst Installment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO installments (credit_id, sequence, amount, amount_paid, amount_remaining, due_date, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		inst.CreditID, inst.Sequence, inst.Amount, inst.AmountPaid, inst.AmountRemaining, inst.DueDate, string(inst.Status)).Scan(&id)
	return id, err
}

func (r *PgCreditTx) GetCreditForUpdate(ctx context.Context, creditID int64) (Credit, error) {
	return scanCredit(r.tx.QueryRow(ctx, `SELECT `+creditColumns+` FROM credits WHERE id=$1 FOR UPDATE`, creditID))
}

func (r *PgCreditTx) GetCreditBySaleForUpdate(ctx context.Context, saleID int64) (Credit, error) {
	return scanCredit(r.tx.QueryRow(ctx, `SELECT `+creditColumns+` FROM credits WHERE sale_id=$1 FOR UPDATE`, saleID))
}

func (r *PgCreditTx) ListInstallmentsForUpdate(ctx context.Context, creditID int64) ([]Installment, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+installmentColumns+` FROM installments WHERE credit_id=$1 ORDER BY sequence FOR UPDATE`, creditID)
	if err != nil {
		return nil, err
	}
	return collectInstallments(rows)
}

func (r *PgCreditTx) UpdateInstallment(ctx context.Context, inst Installment) error {
	_, err := r.tx.Exec(ctx, `UPDATE installments SET amount_paid=$2, amount_remaining=$3, status=$4, paid_at=$5 WHERE id=$1`,
		inst.ID, inst.AmountPaid, inst.AmountRemaining, string(inst.Status), inst.PaidAt)
	return err
}

func (r *PgCreditTx) UpdateCredit(ctx context.Context, c Credit) error {
	tag, err := r.tx.Exec(ctx, `UPDATE credits SET remaining_amount=$2, status=$3, updated_at=NOW() WHERE id=$1`,
		c.ID, c.RemainingAmount, string(c.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCreditNotFound
	}
	return nil
}

func (r *PgCreditTx) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	var reference any
	if p.Reference != "" {
		reference = p.Reference
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO payments (sale_id, credit_id, amount, method, reference, cashier_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		p.SaleID, p.CreditID, p.Amount, p.Method, reference, p.CashierID, p.CreatedAt).Scan(&id)
	return id, err
}

func (r *PgCreditTx) InsertAllocation(ctx context.Context, a Allocation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO payment_allocations (payment_id, installment_id, amount_applied) VALUES ($1,$2,$3) RETURNING id`,
		a.PaymentID, a.InstallmentID, a.AmountApplied).Scan(&id)
	return id, err
}

func scanCredit(row pgx.Row) (Credit, error) {
	var c Credit
	err := row.Scan(&c.ID, &c.SaleID, &c.CustomerID, &c.TotalAmount, &c.RemainingAmount, &c.InstallmentCount,
		&c.InstallmentAmount, &c.StartDate, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credit{}, ErrCreditNotFound
		}
		return Credit{}, fmt.Errorf("scan credit: %w", err)
	}
	return c, nil
}

func collectInstallments(rows pgx.Rows) ([]Installment, error) {
	defer rows.Close()
	out := []Installment{}
	for rows.Next() {
		var inst Installment
		if err := rows.Scan(&inst.ID, &inst.CreditID, &inst.Sequence, &inst.Amount, &inst.AmountPaid, &inst.AmountRemaining,
			&inst.DueDate, &inst.Status, &inst.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}
