package credit

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/money"
)

// Plan is the outcome of distributing one payment over a schedule.
type Plan struct {
	// Installments is the whole schedule after the payment, in sequence order.
	Installments []Installment
	// Allocations holds one row per touched installment.
	Allocations []Allocation
}

// Remaining sums AmountRemaining over the schedule.
func (p Plan) Remaining() decimal.Decimal {
	return sumRemaining(p.Installments)
}

// ValidateAmount rejects non-positive amounts and sub-cent precision.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !money.HasCents(amount) {
		return ErrInvalidAmount
	}
	return nil
}

// Distribute splits amount evenly across installments that still owe money,
// oldest first. Passes repeat over the installments left unpaid until the
// whole amount is placed, so the allocations always sum to amount. The input
// slice is not modified.
func Distribute(amount decimal.Decimal, installments []Installment, now time.Time) (Plan, error) {
	if err := ValidateAmount(amount); err != nil {
		return Plan{}, err
	}
	schedule := make([]Installment, len(installments))
	copy(schedule, installments)
	sort.SliceStable(schedule, func(i, j int) bool { return schedule[i].Sequence < schedule[j].Sequence })
	if amount.GreaterThan(sumRemaining(schedule)) {
		return Plan{}, ErrPaymentExceedsBalance
	}

	applied := make(map[int]decimal.Decimal)
	var order []int
	left := amount
	for left.IsPositive() {
		pending := pendingIndexes(schedule)
		if len(pending) == 0 {
			break
		}
		share := money.Split(left, len(pending))
		if share.LessThan(money.Cent) {
			share = money.Cent
		}
		for _, idx := range pending {
			if !left.IsPositive() {
				break
			}
			inst := &schedule[idx]
			portion := money.Min(share, inst.AmountRemaining, left)
			inst.AmountPaid = inst.AmountPaid.Add(portion)
			inst.AmountRemaining = inst.AmountRemaining.Sub(portion)
			left = left.Sub(portion)
			if _, seen := applied[idx]; !seen {
				order = append(order, idx)
			}
			applied[idx] = applied[idx].Add(portion)
		}
	}

	allocations := make([]Allocation, 0, len(order))
	for _, idx := range order {
		inst := &schedule[idx]
		inst.Status = inst.DerivedStatus(now)
		if inst.Status == InstallmentPaid && inst.PaidAt == nil {
			paidAt := now
			inst.PaidAt = &paidAt
		}
		allocations = append(allocations, Allocation{InstallmentID: inst.ID, AmountApplied: applied[idx]})
	}
	return Plan{Installments: schedule, Allocations: allocations}, nil
}

// Apply records a payment against a credit inside tx: it locks the credit,
// distributes the amount, appends the payment and its allocations and
// rewrites the touched installments and the credit balance.
func Apply(ctx context.Context, tx TxRepository, input ApplyPaymentInput, now time.Time) (PaymentResult, error) {
	if err := ValidateAmount(input.Amount); err != nil {
		return PaymentResult{}, err
	}
	c, err := tx.GetCreditForUpdate(ctx, input.CreditID)
	if err != nil {
		return PaymentResult{}, err
	}
	if c.Status != StatusActive {
		return PaymentResult{}, ErrCreditNotActive
	}
	if input.Amount.GreaterThan(c.RemainingAmount) {
		return PaymentResult{}, ErrPaymentExceedsBalance
	}
	installments, err := tx.ListInstallmentsForUpdate(ctx, c.ID)
	if err != nil {
		return PaymentResult{}, err
	}
	plan, err := Distribute(input.Amount, installments, now)
	if err != nil {
		return PaymentResult{}, err
	}

	creditID := c.ID
	payment := Payment{
		SaleID:    c.SaleID,
		CreditID:  &creditID,
		Amount:    input.Amount,
		Method:    input.Method,
		Reference: input.Reference,
		CashierID: input.ActorID,
		CreatedAt: now,
	}
	paymentID, err := tx.InsertPayment(ctx, payment)
	if err != nil {
		return PaymentResult{}, err
	}
	payment.ID = paymentID

	byID := make(map[int64]Installment, len(plan.Installments))
	for _, inst := range plan.Installments {
		byID[inst.ID] = inst
	}
	for i := range plan.Allocations {
		alloc := &plan.Allocations[i]
		alloc.PaymentID = paymentID
		id, err := tx.InsertAllocation(ctx, *alloc)
		if err != nil {
			return PaymentResult{}, err
		}
		alloc.ID = id
		if err := tx.UpdateInstallment(ctx, byID[alloc.InstallmentID]); err != nil {
			return PaymentResult{}, err
		}
	}

	c.RemainingAmount = plan.Remaining()
	if c.RemainingAmount.IsZero() {
		c.Status = StatusCompleted
	}
	c.UpdatedAt = now
	if err := tx.UpdateCredit(ctx, c); err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{Payment: payment, Allocations: plan.Allocations, Credit: c, Installments: plan.Installments}, nil
}

func pendingIndexes(schedule []Installment) []int {
	var out []int
	for i, inst := range schedule {
		if inst.AmountRemaining.IsPositive() {
			out = append(out, i)
		}
	}
	return out
}

func sumRemaining(schedule []Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range schedule {
		total = total.Add(inst.AmountRemaining)
	}
	return total
}
