package credit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func schedule(amounts ...string) []Installment {
	out := make([]Installment, len(amounts))
	for i, a := range amounts {
		out[i] = Installment{
			ID:              int64(i + 1),
			CreditID:        1,
			Sequence:        i + 1,
			Amount:          dec(a),
			AmountPaid:      decimal.Zero,
			AmountRemaining: dec(a),
			DueDate:         start.AddDate(0, 0, 30*(i+1)),
			Status:          InstallmentPending,
		}
	}
	return out
}

func sumApplied(allocs []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.AmountApplied)
	}
	return total
}

func TestDistributeEvenSplitAcrossSchedule(t *testing.T) {
	amounts := make([]string, 12)
	for i := range amounts {
		amounts[i] = "100"
	}
	plan, err := Distribute(dec("300"), schedule(amounts...), start)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 12)
	for _, a := range plan.Allocations {
		require.True(t, a.AmountApplied.Equal(dec("25")))
	}
	for _, inst := range plan.Installments {
		require.True(t, inst.AmountRemaining.Equal(dec("75")))
		require.Equal(t, InstallmentPartial, inst.Status)
	}
	require.True(t, plan.Remaining().Equal(dec("900")))
}

func TestDistributeRepeatsPassesUntilPlaced(t *testing.T) {
	plan, err := Distribute(dec("150"), schedule("10", "100", "100"), start)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 3)
	require.True(t, plan.Allocations[0].AmountApplied.Equal(dec("10")))
	require.True(t, plan.Allocations[1].AmountApplied.Equal(dec("70")))
	require.True(t, plan.Allocations[2].AmountApplied.Equal(dec("70")))
	require.True(t, sumApplied(plan.Allocations).Equal(dec("150")))

	require.Equal(t, InstallmentPaid, plan.Installments[0].Status)
	require.NotNil(t, plan.Installments[0].PaidAt)
	require.Equal(t, InstallmentPartial, plan.Installments[1].Status)
}

func TestDistributeResidualCentsGoOldestFirst(t *testing.T) {
	plan, err := Distribute(dec("10"), schedule("50", "50", "50"), start)
	require.NoError(t, err)
	require.True(t, plan.Allocations[0].AmountApplied.Equal(dec("3.34")))
	require.True(t, plan.Allocations[1].AmountApplied.Equal(dec("3.33")))
	require.True(t, plan.Allocations[2].AmountApplied.Equal(dec("3.33")))

	plan, err = Distribute(dec("0.01"), schedule("50", "50", "50"), start)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	require.Equal(t, int64(1), plan.Allocations[0].InstallmentID)
}

func TestDistributeSkipsPaidInstallments(t *testing.T) {
	s := schedule("100", "100", "100")
	s[0].AmountPaid = dec("100")
	s[0].AmountRemaining = decimal.Zero
	s[0].Status = InstallmentPaid

	plan, err := Distribute(dec("200"), s, start)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	require.Equal(t, int64(2), plan.Allocations[0].InstallmentID)
	require.True(t, plan.Remaining().IsZero())
	for _, inst := range plan.Installments {
		require.Equal(t, InstallmentPaid, inst.Status)
	}
}

func TestDistributeDoesNotMutateInput(t *testing.T) {
	s := schedule("100", "100")
	_, err := Distribute(dec("50"), s, start)
	require.NoError(t, err)
	require.True(t, s[0].AmountRemaining.Equal(dec("100")))
	require.True(t, s[1].AmountPaid.IsZero())
}

func TestDistributeRejectsBadAmounts(t *testing.T) {
	s := schedule("100", "100")
	for _, amount := range []string{"0", "-1", "1.001"} {
		_, err := Distribute(dec(amount), s, start)
		require.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
	_, err := Distribute(dec("200.01"), s, start)
	require.ErrorIs(t, err, ErrPaymentExceedsBalance)
}

func TestDerivedStatus(t *testing.T) {
	inst := schedule("100")[0]
	require.Equal(t, InstallmentPending, inst.DerivedStatus(start))
	late := inst.DueDate.Add(time.Hour)
	require.Equal(t, InstallmentOverdue, inst.DerivedStatus(late))
	require.True(t, inst.Overdue(late))

	inst.AmountPaid = dec("10")
	inst.AmountRemaining = dec("90")
	require.Equal(t, InstallmentPartial, inst.DerivedStatus(late))

	inst.AmountPaid = dec("100")
	inst.AmountRemaining = decimal.Zero
	require.Equal(t, InstallmentPaid, inst.DerivedStatus(late))
	require.False(t, inst.Overdue(late))
}
