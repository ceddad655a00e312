package credit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Status enumerates credit lifecycle states.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusVoided    Status = "VOIDED"
)

// InstallmentStatus enumerates installment states.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentPartial InstallmentStatus = "PARTIAL"
	InstallmentPaid    InstallmentStatus = "PAID"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
)

const (
	// MinInstallments and MaxInstallments bound the schedule length.
	MinInstallments = 1
	MaxInstallments = 24
	// InstallmentPeriod separates consecutive due dates.
	InstallmentPeriod = 30 * 24 * time.Hour
)

// Credit is the receivable created by a CREDIT sale.
type Credit struct {
	ID                int64
	SaleID            int64
	CustomerID        int64
	TotalAmount       decimal.Decimal
	RemainingAmount   decimal.Decimal
	InstallmentCount  int
	InstallmentAmount decimal.Decimal
	StartDate         time.Time
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Installment is a single scheduled obligation of a credit.
type Installment struct {
	ID              int64
	CreditID        int64
	Sequence        int
	Amount          decimal.Decimal
	AmountPaid      decimal.Decimal
	AmountRemaining decimal.Decimal
	DueDate         time.Time
	Status          InstallmentStatus
	PaidAt          *time.Time
}

// Overdue reports whether the installment is unpaid past its due date.
func (i Installment) Overdue(now time.Time) bool {
	return i.Status != InstallmentPaid && i.AmountRemaining.IsPositive() && now.After(i.DueDate)
}

// DerivedStatus returns the status as of now. OVERDUE is not always persisted,
// so reads derive it from the due date.
func (i Installment) DerivedStatus(now time.Time) InstallmentStatus {
	switch {
	case !i.AmountRemaining.IsPositive():
		return InstallmentPaid
	case i.AmountPaid.IsPositive():
		return InstallmentPartial
	case now.After(i.DueDate):
		return InstallmentOverdue
	default:
		return InstallmentPending
	}
}

// Payment is an immutable money receipt. CreditID is nil for cash payments.
type Payment struct {
	ID        int64
	SaleID    int64
	CreditID  *int64
	Amount    decimal.Decimal
	Method    string
	Reference string
	CashierID int64
	CreatedAt time.Time
}

// Allocation records which installment absorbed how much of a payment.
type Allocation struct {
	ID            int64
	PaymentID     int64
	InstallmentID int64
	AmountApplied decimal.Decimal
}

// ApplyPaymentInput is the payload for an abono against a credit.
type ApplyPaymentInput struct {
	CreditID  int64
	Amount    decimal.Decimal
	Method    string
	Reference string
	ActorID   int64
}

// PaymentResult is the committed outcome of a distribution.
type PaymentResult struct {
	Payment      Payment
	Allocations  []Allocation
	Credit       Credit
	Installments []Installment
}

// Detail is the read model of a credit and its schedule.
type Detail struct {
	Credit       Credit
	Installments []Installment
}

var (
	ErrInvalidInstallmentCount = shared.NewDomainError("invalid_installment_count", "credit: installment count must be between 1 and 24")
	ErrCreditNotActive         = shared.NewDomainError("credit_not_active", "credit: credit is not active")
	ErrPaymentExceedsBalance   = shared.NewDomainError("payment_exceeds_balance", "credit: payment exceeds remaining balance")
	ErrInvalidAmount           = shared.NewDomainError("invalid_amount", "credit: amount must be positive with at most two decimals")
	ErrCreditNotFound          = shared.NewDomainError("credit_not_found", "credit: credit not found")
	// ErrCreditBusy means another instance holds the credit lock; callers may retry.
	ErrCreditBusy = shared.NewDomainError("credit_busy", "credit: credit is being updated, retry later")
)
