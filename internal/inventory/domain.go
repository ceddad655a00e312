package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Direction enumerates the sign of a stock movement.
type Direction string

const (
	// DirectionIn increments stock.
	DirectionIn Direction = "IN"
	// DirectionOut decrements stock.
	DirectionOut Direction = "OUT"
)

// Reason records why stock moved.
type Reason string

const (
	ReasonPurchase      Reason = "PURCHASE"
	ReasonSale          Reason = "SALE"
	ReasonReturn        Reason = "RETURN"
	ReasonAdjustmentPos Reason = "ADJUSTMENT_POS"
	ReasonAdjustmentNeg Reason = "ADJUSTMENT_NEG"
	ReasonLoss          Reason = "LOSS"
)

// Direction returns the only direction a reason may be posted with.
func (r Reason) Direction() (Direction, bool) {
	switch r {
	case ReasonPurchase, ReasonReturn, ReasonAdjustmentPos:
		return DirectionIn, true
	case ReasonSale, ReasonAdjustmentNeg, ReasonLoss:
		return DirectionOut, true
	}
	return "", false
}

// Product is the catalog row as seen by the ledger. Only StockOnHand is owned here.
type Product struct {
	ID          int64
	Name        string
	SKU         string
	UnitPrice   decimal.Decimal
	StockOnHand int64
}

// Movement is an immutable stock audit row.
type Movement struct {
	ID            int64
	ProductID     int64
	ActorID       int64
	Direction     Direction
	Reason        Reason
	Quantity      int64
	StockBefore   int64
	StockAfter    int64
	ReferenceID   *int64
	ReferenceType string
	OccurredAt    time.Time
}

// Signed returns the quantity with the sign of its direction.
func (m Movement) Signed() int64 {
	if m.Direction == DirectionOut {
		return -m.Quantity
	}
	return m.Quantity
}

// MovementInput describes a single debit or credit request.
type MovementInput struct {
	ProductID     int64
	Quantity      int64
	Reason        Reason
	ActorID       int64
	ReferenceID   *int64
	ReferenceType string
}

// MovementFilter narrows stock card queries.
type MovementFilter struct {
	ProductID int64
	Limit     int
}

var (
	// ErrInsufficientStock is returned when a debit exceeds stock on hand.
	ErrInsufficientStock = shared.NewDomainError("insufficient_stock", "inventory: insufficient stock")
	// ErrProductNotFound is returned for unknown products.
	ErrProductNotFound = shared.NewDomainError("product_not_found", "inventory: product not found")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = shared.NewDomainError("invalid_quantity", "inventory: quantity must be positive")
	// ErrInvalidReason indicates a reason posted with the wrong direction.
	ErrInvalidReason = shared.NewDomainError("invalid_reason", "inventory: reason not allowed for this direction")
)
