package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Ledger applies stock movements inside a caller-owned transaction. It is the
// only code allowed to change Product.StockOnHand.
type Ledger struct {
	now func() time.Time
}

// NewLedger builds a Ledger. A nil clock defaults to time.Now in UTC.
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{now: now}
}

// Debit decrements stock, failing with ErrInsufficientStock when qty exceeds stock on hand.
func (l *Ledger) Debit(ctx context.Context, tx TxRepository, input MovementInput) (Movement, error) {
	return l.post(ctx, tx, input, DirectionOut)
}

// Credit increments stock. There is no upper bound.
func (l *Ledger) Credit(ctx context.Context, tx TxRepository, input MovementInput) (Movement, error) {
	return l.post(ctx, tx, input, DirectionIn)
}

func (l *Ledger) post(ctx context.Context, tx TxRepository, input MovementInput, dir Direction) (Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if want, ok := input.Reason.Direction(); !ok || want != dir {
		return Movement{}, ErrInvalidReason
	}
	product, err := tx.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return Movement{}, err
	}
	before := product.StockOnHand
	after := before + input.Quantity
	if dir == DirectionOut {
		if input.Quantity > before {
			return Movement{}, ErrInsufficientStock
		}
		after = before - input.Quantity
	}
	if err := tx.UpdateProductStock(ctx, product.ID, after); err != nil {
		return Movement{}, err
	}
	m := Movement{
		ProductID:     product.ID,
		ActorID:       input.ActorID,
		Direction:     dir,
		Reason:        input.Reason,
		Quantity:      input.Quantity,
		StockBefore:   before,
		StockAfter:    after,
		ReferenceID:   input.ReferenceID,
		ReferenceType: input.ReferenceType,
		OccurredAt:    l.now(),
	}
	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	m.ID = id
	return m, nil
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// Service exposes the ledger to non-sale flows (purchases, manual adjustments).
type Service struct {
	repo    RepositoryPort
	ledger  *Ledger
	audit   shared.AuditPort
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, audit shared.AuditPort, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if ledger == nil {
		ledger = NewLedger(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, audit: audit, logger: logger, metrics: metrics}
}

// DebitStock posts an outbound movement in its own transaction.
func (s *Service) DebitStock(ctx context.Context, input MovementInput) (Movement, error) {
	return s.postStandalone(ctx, input, s.ledger.Debit)
}

// CreditStock posts an inbound movement in its own transaction.
func (s *Service) CreditStock(ctx context.Context, input MovementInput) (Movement, error) {
	return s.postStandalone(ctx, input, s.ledger.Credit)
}

type postFunc func(context.Context, TxRepository, MovementInput) (Movement, error)

func (s *Service) postStandalone(ctx context.Context, input MovementInput, post postFunc) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := post(ctx, tx, input)
		if err != nil {
			return err
		}
		movement = m
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.metrics.StockRejected(string(input.Reason))
		}
		return Movement{}, shared.Internal("inventory: post movement", err)
	}
	s.metrics.StockMoved(string(movement.Direction), string(movement.Reason), movement.Quantity)
	s.logger.Info("stock movement posted",
		slog.Int64("product_id", movement.ProductID),
		slog.String("direction", string(movement.Direction)),
		slog.String("reason", string(movement.Reason)),
		slog.Int64("qty", movement.Quantity),
		slog.Int64("stock_after", movement.StockAfter),
	)
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  movement.ActorID,
			Action:   fmt.Sprintf("inventory:%s", movement.Reason),
			Entity:   "inventory_movement",
			EntityID: fmt.Sprintf("%d", movement.ID),
			Meta: map[string]any{
				"product_id":   movement.ProductID,
				"qty":          movement.Quantity,
				"stock_before": movement.StockBefore,
				"stock_after":  movement.StockAfter,
			},
		}); err != nil {
			s.logger.Warn("audit stock movement", slog.Any("error", err))
		}
	}
	return movement, nil
}

// StockCard lists movements for a product, oldest first.
func (s *Service) StockCard(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID == 0 {
		return nil, ErrProductNotFound
	}
	movements, err := s.repo.ListMovements(ctx, filter)
	if err != nil {
		return nil, shared.Internal("inventory: stock card", err)
	}
	return movements, nil
}
