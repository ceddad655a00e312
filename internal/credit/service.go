package credit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetCredit(ctx context.Context, creditID int64) (Detail, error)
	ListAllocations(ctx context.Context, paymentID int64) ([]Allocation, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// Service applies abonos to existing credits.
type Service struct {
	repo    RepositoryPort
	locker  Locker
	audit   shared.AuditPort
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Option customises Service.
type Option func(*Service)

// WithLocker installs a cross-instance lock taken before each payment.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditPort, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:    repo,
		audit:   audit,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyPayment distributes a payment over the pending installments of a credit.
func (s *Service) ApplyPayment(ctx context.Context, input ApplyPaymentInput) (PaymentResult, error) {
	if err := ValidateAmount(input.Amount); err != nil {
		s.metrics.PaymentApplied("rejected", 0)
		return PaymentResult{}, err
	}
	release, err := s.lock(ctx, input.CreditID)
	if err != nil {
		s.metrics.PaymentApplied("busy", 0)
		return PaymentResult{}, err
	}
	defer release()

	var result PaymentResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := Apply(ctx, tx, input, s.now())
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		s.metrics.PaymentApplied("rejected", 0)
		return PaymentResult{}, shared.Internal("credit: apply payment", err)
	}

	amount, _ := input.Amount.Float64()
	s.metrics.PaymentApplied("applied", amount)
	s.logger.Info("credit payment applied",
		slog.Int64("credit_id", result.Credit.ID),
		slog.Int64("payment_id", result.Payment.ID),
		slog.String("amount", input.Amount.StringFixed(2)),
		slog.String("remaining", result.Credit.RemainingAmount.StringFixed(2)),
		slog.String("status", string(result.Credit.Status)),
	)
	s.recordAudit(ctx, input.ActorID, "credit:payment", strconv.FormatInt(result.Payment.ID, 10), map[string]any{
		"credit_id":   result.Credit.ID,
		"amount":      input.Amount.StringFixed(2),
		"allocations": len(result.Allocations),
		"remaining":   result.Credit.RemainingAmount.StringFixed(2),
	})
	return result, nil
}

// GetCredit returns a credit and its schedule with overdue status derived as of now.
func (s *Service) GetCredit(ctx context.Context, creditID int64) (Detail, error) {
	detail, err := s.repo.GetCredit(ctx, creditID)
	if err != nil {
		return Detail{}, shared.Internal("credit: get credit", err)
	}
	now := s.now()
	for i := range detail.Installments {
		detail.Installments[i].Status = detail.Installments[i].DerivedStatus(now)
	}
	return detail, nil
}

// ListAllocations returns the allocation rows of a payment.
func (s *Service) ListAllocations(ctx context.Context, paymentID int64) ([]Allocation, error) {
	allocations, err := s.repo.ListAllocations(ctx, paymentID)
	if err != nil {
		return nil, shared.Internal("credit: list allocations", err)
	}
	return allocations, nil
}

// MarkOverdue persists OVERDUE on pending installments past due.
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	n, err := s.repo.MarkOverdue(ctx, s.now())
	if err != nil {
		return 0, shared.Internal("credit: mark overdue", err)
	}
	if n > 0 {
		s.logger.Info("installments marked overdue", slog.Int64("count", n))
	}
	return n, nil
}

func (s *Service) lock(ctx context.Context, creditID int64) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	release, err := s.locker.Obtain(ctx, shared.CreditLockKey(creditID))
	if errors.Is(err, ErrCreditBusy) {
		return nil, err
	}
	if err != nil {
		// The row lock still serialises writers; Redis only sheds contention.
		s.logger.Warn("credit lock unavailable, relying on row lock",
			slog.Int64("credit_id", creditID), slog.Any("error", err))
		return noop, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logger.Warn("release credit lock", slog.Int64("credit_id", creditID), slog.Any("error", err))
		}
	}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit credit payment", slog.Any("error", err))
	}
}
