package credit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/memstore"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockerRejectsHeldKey(t *testing.T) {
	_, client := newRedis(t)
	locker := credit.NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	release, err := locker.Obtain(ctx, shared.CreditLockKey(1))
	require.NoError(t, err)

	_, err = locker.Obtain(ctx, shared.CreditLockKey(1))
	require.ErrorIs(t, err, credit.ErrCreditBusy)

	require.NoError(t, release(ctx))
	release, err = locker.Obtain(ctx, shared.CreditLockKey(1))
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestApplyPaymentReportsBusyCredit(t *testing.T) {
	_, client := newRedis(t)
	locker := credit.NewRedisLocker(client, time.Minute)
	store := memstore.New()
	c := originate(t, store, "1200", 12)
	svc, _ := newService(store, credit.WithLocker(locker))
	ctx := context.Background()

	release, err := locker.Obtain(ctx, shared.CreditLockKey(c.ID))
	require.NoError(t, err)

	_, err = svc.ApplyPayment(ctx, credit.ApplyPaymentInput{CreditID: c.ID, Amount: dec("100"), Method: "cash"})
	require.ErrorIs(t, err, credit.ErrCreditBusy)
	require.Empty(t, store.Payments())

	require.NoError(t, release(ctx))
	_, err = svc.ApplyPayment(ctx, credit.ApplyPaymentInput{CreditID: c.ID, Amount: dec("100"), Method: "cash"})
	require.NoError(t, err)
}

func TestApplyPaymentFallsBackWhenRedisIsDown(t *testing.T) {
	mr, client := newRedis(t)
	svc, _ := newService(memstoreWithCredit(t), credit.WithLocker(credit.NewRedisLocker(client, time.Minute)))
	mr.Close()

	res, err := svc.ApplyPayment(context.Background(), credit.ApplyPaymentInput{CreditID: 1, Amount: dec("100"), Method: "cash"})
	require.NoError(t, err)
	require.True(t, res.Credit.RemainingAmount.Equal(dec("1100")))
}

func memstoreWithCredit(t *testing.T) *memstore.Store {
	store := memstore.New()
	originate(t, store, "1200", 12)
	return store
}
