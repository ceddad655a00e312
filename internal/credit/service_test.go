package credit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/memstore"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var start = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type auditSpy struct {
	logs []shared.AuditLog
}

func (a *auditSpy) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func originate(t *testing.T, store *memstore.Store, total string, count int) credit.Credit {
	t.Helper()
	var c credit.Credit
	err := store.Credit().WithTx(context.Background(), func(ctx context.Context, tx credit.TxRepository) error {
		var err error
		c, _, err = credit.Originate(ctx, tx, credit.OriginateInput{
			SaleID:           42,
			CustomerID:       7,
			Total:            dec(total),
			InstallmentCount: count,
			StartDate:        start,
		})
		return err
	})
	require.NoError(t, err)
	return c
}

func newService(store *memstore.Store, opts ...credit.Option) (*credit.Service, *auditSpy) {
	audit := &auditSpy{}
	opts = append([]credit.Option{credit.WithClock(func() time.Time { return start.AddDate(0, 0, 1) })}, opts...)
	return credit.NewService(store.Credit(), audit, nil, nil, opts...), audit
}

func TestApplyPaymentSplitsEvenly(t *testing.T) {
	store := memstore.New()
	c := originate(t, store, "1200", 12)
	svc, audit := newService(store)

	res, err := svc.ApplyPayment(context.Background(), credit.ApplyPaymentInput{
		CreditID: c.ID, Amount: dec("300"), Method: "cash", ActorID: 3,
	})
	require.NoError(t, err)
	require.True(t, res.Credit.RemainingAmount.Equal(dec("900")))
	require.Equal(t, credit.StatusActive, res.Credit.Status)
	require.Equal(t, int64(42), res.Payment.SaleID)
	require.NotNil(t, res.Payment.CreditID)

	allocs, err := svc.ListAllocations(context.Background(), res.Payment.ID)
	require.NoError(t, err)
	require.Len(t, allocs, 12)
	for _, a := range allocs {
		require.True(t, a.AmountApplied.Equal(dec("25")))
	}

	detail, err := svc.GetCredit(context.Background(), c.ID)
	require.NoError(t, err)
	for _, inst := range detail.Installments {
		require.True(t, inst.AmountRemaining.Equal(dec("75")))
		require.Equal(t, credit.InstallmentPartial, inst.Status)
	}
	require.Len(t, audit.logs, 1)
	require.Equal(t, "credit:payment", audit.logs[0].Action)
}

func TestApplyPaymentExceedingBalanceLeavesStateUnchanged(t *testing.T) {
	store := memstore.New()
	c := originate(t, store, "1200", 12)
	svc, _ := newService(store)

	_, err := svc.ApplyPayment(context.Background(), credit.ApplyPaymentInput{CreditID: c.ID, Amount: dec("1200.01"), Method: "cash"})
	require.ErrorIs(t, err, credit.ErrPaymentExceedsBalance)
	require.True(t, shared.IsDomainError(err))

	detail, err := svc.GetCredit(context.Background(), c.ID)
	require.NoError(t, err)
	require.True(t, detail.Credit.RemainingAmount.Equal(dec("1200")))
	require.Empty(t, store.Payments())
	require.Empty(t, store.Allocations())
}

func TestApplyPaymentCompletesCredit(t *testing.T) {
	store := memstore.New()
	c := originate(t, store, "100", 3)
	svc, _ := newService(store)
	ctx := context.Background()

	_, err := svc.ApplyPayment(ctx, credit.ApplyPaymentInput{CreditID: c.ID, Amount: dec("40"), Method: "cash"})
	require.NoError(t, err)
	res, err := svc.ApplyPayment(ctx, credit.ApplyPaymentInput{CreditID: c.ID, Amount: dec("60"), Method: "transfer", Reference: "TRX-9"})
	require.NoError(t, err)
	require.True(t, res.Credit.RemainingAmount.IsZero())
	require.Equal(t, credit.StatusCompleted, res.Credit.Status)
	for _, inst := range res.Installments {
		require.Equal(t, credit.InstallmentPaid, inst.Status)
		require.True(t, inst.Amount.Equal(inst.AmountPaid.Add(inst.AmountRemaining)))
	}

	_, err = svc.ApplyPayment(ctx, credit.ApplyPaymentInput{CreditID: c.ID, Amount: dec("1"), Method: "cash"})
	require.ErrorIs(t, err, credit.ErrCreditNotActive)
}

func TestApplyPaymentValidation(t *testing.T) {
	store := memstore.New()
	c := originate(t, store, "100", 2)
	svc, _ := newService(store)
	ctx := context.Background()

	_, err := svc.ApplyPayment(ctx, credit.ApplyPaymentInput{CreditID: c.ID, Amount: dec("0")})
	require.ErrorIs(t, err, credit.ErrInvalidAmount)
	_, err = svc.ApplyPayment(ctx, credit.ApplyPaymentInput{CreditID: c.ID, Amount: dec("10.125")})
	require.ErrorIs(t, err, credit.ErrInvalidAmount)
	_, err = svc.ApplyPayment(ctx, credit.ApplyPaymentInput{CreditID: 999, Amount: dec("10")})
	require.ErrorIs(t, err, credit.ErrCreditNotFound)
}

func TestApplyPaymentRollsBackOnStorageFailure(t *testing.T) {
	store := memstore.New()
	c := originate(t, store, "1200", 12)
	svc, _ := newService(store)
	store.FailOn("InsertAllocation", errors.New("connection reset"))

	_, err := svc.ApplyPayment(context.Background(), credit.ApplyPaymentInput{CreditID: c.ID, Amount: dec("300"), Method: "cash"})
	require.ErrorIs(t, err, shared.ErrInternal)
	require.False(t, shared.IsDomainError(err))
	require.Empty(t, store.Payments())

	detail, err := svc.GetCredit(context.Background(), c.ID)
	require.NoError(t, err)
	require.True(t, detail.Credit.RemainingAmount.Equal(dec("1200")))
}

func TestConcurrentPaymentsConserveMoney(t *testing.T) {
	store := memstore.New()
	c := originate(t, store, "1200", 12)
	svc, _ := newService(store)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := svc.ApplyPayment(ctx, credit.ApplyPaymentInput{CreditID: c.ID, Amount: dec("50"), Method: "cash"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	detail, err := svc.GetCredit(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, detail.Credit.RemainingAmount.Equal(dec("200")))

	applied := decimal.Zero
	for _, a := range store.Allocations() {
		applied = applied.Add(a.AmountApplied)
	}
	require.True(t, applied.Equal(dec("1000")))

	remaining := decimal.Zero
	for _, inst := range detail.Installments {
		remaining = remaining.Add(inst.AmountRemaining)
	}
	require.True(t, remaining.Equal(detail.Credit.RemainingAmount))
}

func TestGetCreditDerivesOverdue(t *testing.T) {
	store := memstore.New()
	c := originate(t, store, "300", 3)
	svc := credit.NewService(store.Credit(), nil, nil, nil, credit.WithClock(func() time.Time { return start.AddDate(0, 0, 45) }))

	detail, err := svc.GetCredit(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, credit.InstallmentOverdue, detail.Installments[0].Status)
	require.Equal(t, credit.InstallmentPending, detail.Installments[1].Status)
}

func TestMarkOverduePersistsStatus(t *testing.T) {
	store := memstore.New()
	c := originate(t, store, "300", 3)
	svc := credit.NewService(store.Credit(), nil, nil, nil, credit.WithClock(func() time.Time { return start.AddDate(0, 0, 65) }))

	n, err := svc.MarkOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	detail, err := store.Credit().GetCredit(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, credit.InstallmentOverdue, detail.Installments[0].Status)
	require.Equal(t, credit.InstallmentOverdue, detail.Installments[1].Status)
	require.Equal(t, credit.InstallmentPending, detail.Installments[2].Status)

	n, err = svc.MarkOverdue(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}
