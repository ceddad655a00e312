package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// ============================================================================
// SALE
// ============================================================================

// PaymentKind selects how a sale is settled.
type PaymentKind string

const (
	PaymentCash   PaymentKind = "CASH"
	PaymentCredit PaymentKind = "CREDIT"
)

// Valid reports whether k is a known payment kind.
func (k PaymentKind) Valid() bool {
	return k == PaymentCash || k == PaymentCredit
}

// Status enumerates sale lifecycle states.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusVoided    Status = "VOIDED"
)

// Sale is a committed sale. Total = (Subtotal - Discount + ShippingCost) + Tax.
type Sale struct {
	ID           int64            `json:"id"`
	Number       string           `json:"number"`
	CustomerID   int64            `json:"customer_id"`
	CashierID    int64            `json:"cashier_id"`
	Lines        []Line           `json:"lines"`
	Payments     []credit.Payment `json:"-"`
	Subtotal     decimal.Decimal  `json:"subtotal"`
	Discount     decimal.Decimal  `json:"discount"`
	ShippingCost decimal.Decimal  `json:"shipping_cost"`
	Tax          decimal.Decimal  `json:"tax"`
	Total        decimal.Decimal  `json:"total"`
	PaymentKind  PaymentKind      `json:"payment_kind"`
	Status       Status           `json:"status"`
	CreditID     *int64           `json:"credit_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	VoidedAt     *time.Time       `json:"voided_at,omitempty"`
	VoidedBy     *int64           `json:"voided_by,omitempty"`
}

// Line snapshots the product at the time of sale.
type Line struct {
	ID           int64           `json:"id"`
	SaleID       int64           `json:"sale_id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	SKU          string          `json:"sku"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int64           `json:"quantity"`
	LineDiscount decimal.Decimal `json:"line_discount"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// ============================================================================
// SETTLEMENT INPUT / OUTPUT
// ============================================================================

// LineInput is a cart line as submitted by the POS.
type LineInput struct {
	ProductID    int64
	Quantity     int64
	LineDiscount decimal.Decimal
}

// PaymentInput is a payment supplied at settlement time.
type PaymentInput struct {
	Amount    decimal.Decimal
	Method    string
	Reference string
}

// SettleInput is the full settlement request.
type SettleInput struct {
	CustomerID       int64
	CashierID        int64
	Lines            []LineInput
	Discount         decimal.Decimal
	ShippingCost     decimal.Decimal
	PaymentKind      PaymentKind
	InstallmentCount int
	Payments         []PaymentInput
	IdempotencyKey   string
}

// Settlement is the committed outcome of SettleSale.
type Settlement struct {
	Sale         Sale
	Credit       *credit.Credit
	Installments []credit.Installment
	Payments     []credit.Payment
	Allocations  []credit.Allocation
}

var (
	ErrSaleNotCompleted       = shared.NewDomainError("sale_not_completed", "sales: sale is not completed")
	ErrHasOutstandingPayments = shared.NewDomainError("has_outstanding_payments", "sales: credit has recorded payments")
	ErrCustomerNotFound       = shared.NewDomainError("customer_not_found", "sales: customer not found")
	ErrEmptySale              = shared.NewDomainError("empty_sale", "sales: sale has no lines")
	ErrSaleNotFound           = shared.NewDomainError("sale_not_found", "sales: sale not found")
	ErrInvalidPaymentKind     = shared.NewDomainError("invalid_payment_kind", "sales: payment kind must be CASH or CREDIT")
	ErrInvalidIdempotencyKey  = shared.NewDomainError("invalid_idempotency_key", "sales: idempotency key must be a UUID")
)
