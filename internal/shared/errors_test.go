package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var errWidget = NewDomainError("widget_broken", "widget broken")

func TestInternalClassifiesErrors(t *testing.T) {
	require.NoError(t, Internal("op", nil))

	wrapped := fmt.Errorf("deep: %w", errWidget)
	require.Same(t, wrapped, Internal("op", wrapped))
	require.Equal(t, "widget_broken", DomainCode(Internal("op", wrapped)))

	require.ErrorIs(t, Internal("op", ErrIdempotencyConflict), ErrIdempotencyConflict)
	require.False(t, errors.Is(Internal("op", ErrIdempotencyConflict), ErrInternal))

	require.ErrorIs(t, Internal("op", context.Canceled), context.Canceled)
	require.False(t, errors.Is(Internal("op", context.DeadlineExceeded), ErrInternal))

	disk := errors.New("disk full")
	err := Internal("sales: settle", disk)
	require.ErrorIs(t, err, ErrInternal)
	require.ErrorIs(t, err, disk)
	require.Equal(t, "sales: settle: disk full", err.Error())
	require.False(t, IsDomainError(err))

	// Already classified errors keep their original operation.
	require.Same(t, err, Internal("outer", err))
}

func TestCreditLockKey(t *testing.T) {
	require.Equal(t, "credit:42:lock", CreditLockKey(42))
}
