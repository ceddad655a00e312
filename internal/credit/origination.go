package credit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/money"
)

// OriginateInput describes the credit to open for a sale.
type OriginateInput struct {
	SaleID           int64
	CustomerID       int64
	Total            decimal.Decimal
	InstallmentCount int
	StartDate        time.Time
}

// ValidateInstallmentCount checks the schedule length bounds.
func ValidateInstallmentCount(count int) error {
	if count < MinInstallments || count > MaxInstallments {
		return ErrInvalidInstallmentCount
	}
	return nil
}

// BuildSchedule splits total into count installments due every 30 days after
// start. The final installment absorbs the rounding remainder so the schedule
// always sums to total.
func BuildSchedule(total decimal.Decimal, count int, start time.Time) (decimal.Decimal, []Installment, error) {
	if err := ValidateInstallmentCount(count); err != nil {
		return decimal.Zero, nil, err
	}
	if !total.IsPositive() || !money.HasCents(total) {
		return decimal.Zero, nil, ErrInvalidAmount
	}
	standard := money.Split(total, count)
	last := total.Sub(standard.Mul(decimal.NewFromInt(int64(count - 1))))
	if !standard.IsPositive() || last.IsNegative() {
		return decimal.Zero, nil, ErrInvalidInstallmentCount
	}

	start = truncateDate(start)
	schedule := make([]Installment, 0, count)
	for seq := 1; seq <= count; seq++ {
		amount := standard
		if seq == count {
			amount = last
		}
		schedule = append(schedule, Installment{
			Sequence:        seq,
			Amount:          amount,
			AmountPaid:      decimal.Zero,
			AmountRemaining: amount,
			DueDate:         start.Add(time.Duration(seq) * InstallmentPeriod),
			Status:          InstallmentPending,
		})
	}
	return standard, schedule, nil
}

// Originate persists an ACTIVE credit and its schedule inside tx.
func Originate(ctx context.Context, tx TxRepository, input OriginateInput) (Credit, []Installment, error) {
	standard, schedule, err := BuildSchedule(input.Total, input.InstallmentCount, input.StartDate)
	if err != nil {
		return Credit{}, nil, err
	}
	c := Credit{
		SaleID:            input.SaleID,
		CustomerID:        input.CustomerID,
		TotalAmount:       input.Total,
		RemainingAmount:   input.Total,
		InstallmentCount:  input.InstallmentCount,
		InstallmentAmount: standard,
		StartDate:         truncateDate(input.StartDate),
		Status:            StatusActive,
	}
	id, err := tx.InsertCredit(ctx, c)
	if err != nil {
		return Credit{}, nil, err
	}
	c.ID = id
	for i := range schedule {
		schedule[i].CreditID = id
		instID, err := tx.InsertInstallment(ctx, schedule[i])
		if err != nil {
			return Credit{}, nil, err
		}
		schedule[i].ID = instID
	}
	return c, schedule, nil
}

func truncateDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
