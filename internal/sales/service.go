package sales

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/money"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, saleID int64) (Sale, error)
}

// Service settles and voids sales.
type Service struct {
	repo    RepositoryPort
	ledger  *inventory.Ledger
	audit   shared.AuditPort
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs a sales service. A nil clock defaults to UTC now.
func NewService(repo RepositoryPort, audit shared.AuditPort, logger *slog.Logger, metrics *observability.Metrics, now func() time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:    repo,
		ledger:  inventory.NewLedger(now),
		audit:   audit,
		logger:  logger,
		metrics: metrics,
		now:     now,
	}
}

// ============================================================================
// SETTLEMENT
// ============================================================================

// SettleSale validates the cart, debits stock, persists the sale and, for
// CREDIT sales, originates the schedule and applies the down payments. All of
// it commits or none of it does.
func (s *Service) SettleSale(ctx context.Context, input SettleInput) (Settlement, error) {
	if err := validateSettleInput(input); err != nil {
		return Settlement{}, err
	}

	var out Settlement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := s.settle(ctx, tx, input)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return Settlement{}, shared.Internal("sales: settle sale", err)
	}

	sale := out.Sale
	total, _ := sale.Total.Float64()
	s.metrics.SaleSettled(string(sale.PaymentKind), total)
	s.logger.Info("sale settled",
		slog.Int64("sale_id", sale.ID),
		slog.String("number", sale.Number),
		slog.String("kind", string(sale.PaymentKind)),
		slog.String("total", sale.Total.StringFixed(2)),
		slog.Int("lines", len(sale.Lines)),
	)
	meta := map[string]any{
		"number": sale.Number,
		"kind":   string(sale.PaymentKind),
		"total":  sale.Total.StringFixed(2),
	}
	if out.Credit != nil {
		meta["credit_id"] = out.Credit.ID
		meta["installments"] = out.Credit.InstallmentCount
	}
	s.recordAudit(ctx, input.CashierID, "sales:settle", sale.ID, meta)
	return out, nil
}

func (s *Service) settle(ctx context.Context, tx TxRepository, input SettleInput) (Settlement, error) {
	if input.IdempotencyKey != "" {
		if err := tx.ClaimIdempotencyKey(ctx, input.IdempotencyKey); err != nil {
			return Settlement{}, err
		}
	}
	exists, err := tx.CustomerExists(ctx, input.CustomerID)
	if err != nil {
		return Settlement{}, err
	}
	if !exists {
		return Settlement{}, ErrCustomerNotFound
	}

	now := s.now()
	saleID, err := tx.NextSaleID(ctx)
	if err != nil {
		return Settlement{}, err
	}
	seq, err := tx.NextSaleNumber(ctx, now.Year())
	if err != nil {
		return Settlement{}, err
	}

	lines, err := s.debitLines(ctx, tx, saleID, input)
	if err != nil {
		return Settlement{}, err
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal)
	}
	if input.Discount.GreaterThan(subtotal.Add(input.ShippingCost)) {
		return Settlement{}, credit.ErrInvalidAmount
	}
	base := subtotal.Sub(input.Discount).Add(input.ShippingCost)
	tax := money.Tax(base)

	sale := Sale{
		ID:           saleID,
		Number:       FormatSaleNumber(now.Year(), seq),
		CustomerID:   input.CustomerID,
		CashierID:    input.CashierID,
		Subtotal:     subtotal,
		Discount:     input.Discount,
		ShippingCost: input.ShippingCost,
		Tax:          tax,
		Total:        base.Add(tax),
		PaymentKind:  input.PaymentKind,
		Status:       StatusCompleted,
		CreatedAt:    now,
	}
	if err := tx.InsertSale(ctx, sale); err != nil {
		return Settlement{}, err
	}
	for i := range lines {
		id, err := tx.InsertSaleLine(ctx, lines[i])
		if err != nil {
			return Settlement{}, err
		}
		lines[i].ID = id
	}
	sale.Lines = lines

	out := Settlement{Sale: sale}
	switch input.PaymentKind {
	case PaymentCredit:
		c, schedule, err := credit.Originate(ctx, tx, credit.OriginateInput{
			SaleID:           saleID,
			CustomerID:       input.CustomerID,
			Total:            sale.Total,
			InstallmentCount: input.InstallmentCount,
			StartDate:        now,
		})
		if err != nil {
			return Settlement{}, err
		}
		for _, p := range input.Payments {
			res, err := credit.Apply(ctx, tx, credit.ApplyPaymentInput{
				CreditID:  c.ID,
				Amount:    p.Amount,
				Method:    p.Method,
				Reference: p.Reference,
				ActorID:   input.CashierID,
			}, now)
			if err != nil {
				return Settlement{}, err
			}
			c, schedule = res.Credit, res.Installments
			out.Payments = append(out.Payments, res.Payment)
			out.Allocations = append(out.Allocations, res.Allocations...)
		}
		creditID := c.ID
		out.Sale.CreditID = &creditID
		out.Credit = &c
		out.Installments = schedule
	case PaymentCash:
		for _, p := range input.Payments {
			payment := credit.Payment{
				SaleID:    saleID,
				Amount:    p.Amount,
				Method:    p.Method,
				Reference: p.Reference,
				CashierID: input.CashierID,
				CreatedAt: now,
			}
			id, err := tx.InsertPayment(ctx, payment)
			if err != nil {
				return Settlement{}, err
			}
			payment.ID = id
			out.Payments = append(out.Payments, payment)
		}
	}
	out.Sale.Payments = out.Payments
	return out, nil
}

// debitLines snapshots every product and debits its stock. Products are
// locked in ascending id order; the returned lines keep input order.
func (s *Service) debitLines(ctx context.Context, tx TxRepository, saleID int64, input SettleInput) ([]Line, error) {
	order := make([]int, len(input.Lines))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return input.Lines[order[a]].ProductID < input.Lines[order[b]].ProductID
	})

	lines := make([]Line, len(input.Lines))
	for _, idx := range order {
		in := input.Lines[idx]
		product, err := tx.GetProductForUpdate(ctx, in.ProductID)
		if err != nil {
			return nil, err
		}
		gross := product.UnitPrice.Mul(decimal.NewFromInt(in.Quantity))
		if in.LineDiscount.GreaterThan(gross) {
			return nil, credit.ErrInvalidAmount
		}
		ref := saleID
		if _, err := s.ledger.Debit(ctx, tx, inventory.MovementInput{
			ProductID:     product.ID,
			Quantity:      in.Quantity,
			Reason:        inventory.ReasonSale,
			ActorID:       input.CashierID,
			ReferenceID:   &ref,
			ReferenceType: "sale",
		}); err != nil {
			return nil, err
		}
		lines[idx] = Line{
			SaleID:       saleID,
			ProductID:    product.ID,
			ProductName:  product.Name,
			SKU:          product.SKU,
			UnitPrice:    product.UnitPrice,
			Quantity:     in.Quantity,
			LineDiscount: in.LineDiscount,
			Subtotal:     money.Round(gross.Sub(in.LineDiscount)),
		}
	}
	return lines, nil
}

func validateSettleInput(input SettleInput) error {
	if len(input.Lines) == 0 {
		return ErrEmptySale
	}
	if !input.PaymentKind.Valid() {
		return ErrInvalidPaymentKind
	}
	for _, l := range input.Lines {
		if l.Quantity <= 0 {
			return inventory.ErrInvalidQuantity
		}
		if !nonNegativeAmount(l.LineDiscount) {
			return credit.ErrInvalidAmount
		}
	}
	if !nonNegativeAmount(input.Discount) || !nonNegativeAmount(input.ShippingCost) {
		return credit.ErrInvalidAmount
	}
	for _, p := range input.Payments {
		if err := credit.ValidateAmount(p.Amount); err != nil {
			return err
		}
	}
	if input.PaymentKind == PaymentCredit {
		if err := credit.ValidateInstallmentCount(input.InstallmentCount); err != nil {
			return err
		}
	}
	if input.IdempotencyKey != "" {
		if _, err := uuid.Parse(input.IdempotencyKey); err != nil {
			return ErrInvalidIdempotencyKey
		}
	}
	return nil
}

func nonNegativeAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && money.HasCents(d)
}

// FormatSaleNumber renders the yearly sale number, e.g. V-2025-000042.
func FormatSaleNumber(year int, seq int64) string {
	return fmt.Sprintf("V-%04d-%06d", year, seq)
}

// ============================================================================
// READS
// ============================================================================

// GetSale returns a sale with its lines and payments.
func (s *Service) GetSale(ctx context.Context, saleID int64) (Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return Sale{}, shared.Internal("sales: get sale", err)
	}
	return sale, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: strconv.FormatInt(saleID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit sale", slog.String("action", action), slog.Any("error", err))
	}
}
