package sales

import (
	"context"
	"log/slog"
	"sort"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// VoidSale reverses a completed sale: stock comes back through RETURN
// movements and an untouched credit is voided. A credit that has received any
// payment blocks the void.
func (s *Service) VoidSale(ctx context.Context, saleID, actorID int64) error {
	var voided Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != StatusCompleted {
			return ErrSaleNotCompleted
		}

		lines := make([]Line, len(sale.Lines))
		copy(lines, sale.Lines)
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
		ref := sale.ID
		for _, l := range lines {
			if _, err := s.ledger.Credit(ctx, tx, inventory.MovementInput{
				ProductID:     l.ProductID,
				Quantity:      l.Quantity,
				Reason:        inventory.ReasonReturn,
				ActorID:       actorID,
				ReferenceID:   &ref,
				ReferenceType: "sale",
			}); err != nil {
				return err
			}
		}

		if sale.PaymentKind == PaymentCredit {
			c, err := tx.GetCreditBySaleForUpdate(ctx, sale.ID)
			if err != nil {
				return err
			}
			if !c.TotalAmount.Equal(c.RemainingAmount) {
				return ErrHasOutstandingPayments
			}
			c.Status = credit.StatusVoided
			c.UpdatedAt = s.now()
			if err := tx.UpdateCredit(ctx, c); err != nil {
				return err
			}
		}

		if err := tx.MarkSaleVoided(ctx, sale.ID, actorID, s.now()); err != nil {
			return err
		}
		voided = sale
		return nil
	})
	if err != nil {
		return shared.Internal("sales: void sale", err)
	}

	s.metrics.SaleVoided(string(voided.PaymentKind))
	s.logger.Info("sale voided",
		slog.Int64("sale_id", voided.ID),
		slog.String("number", voided.Number),
		slog.Int64("actor_id", actorID),
	)
	s.recordAudit(ctx, actorID, "sales:void", voided.ID, map[string]any{
		"number": voided.Number,
		"kind":   string(voided.PaymentKind),
		"lines":  len(voided.Lines),
	})
	return nil
}
