package credit

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler exposes credit endpoints as JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers credit routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/credits/{id}", h.getCredit)
	r.Post("/credits/{id}/payments", h.applyPayment)
	r.Get("/payments/{id}/allocations", h.listAllocations)
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required,max=30"`
	Reference string          `json:"reference" validate:"max=100"`
}

func (h *Handler) applyPayment(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	creditID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.ApplyPayment(r.Context(), ApplyPaymentInput{
		CreditID:  creditID,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		ActorID:   actorID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, paymentResultResponse{
		Payment:      NewPaymentResponse(res.Payment),
		Allocations:  newAllocationResponses(res.Allocations),
		Credit:       NewCreditResponse(res.Credit),
		Installments: NewInstallmentResponses(res.Installments),
	})
}

func (h *Handler) getCredit(w http.ResponseWriter, r *http.Request) {
	creditID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.GetCredit(r.Context(), creditID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, creditDetailResponse{
		Credit:       NewCreditResponse(detail.Credit),
		Installments: NewInstallmentResponses(detail.Installments),
	})
}

func (h *Handler) listAllocations(w http.ResponseWriter, r *http.Request) {
	paymentID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	allocations, err := h.service.ListAllocations(r.Context(), paymentID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allocations": newAllocationResponses(allocations)})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrInternal) {
		h.logger.Error("credit request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// CreditResponse is the JSON view of a credit.
type CreditResponse struct {
	ID                int64           `json:"id"`
	SaleID            int64           `json:"sale_id"`
	CustomerID        int64           `json:"customer_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
	InstallmentCount  int             `json:"installment_count"`
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	StartDate         string          `json:"start_date"`
	Status            Status          `json:"status"`
}

// InstallmentResponse is the JSON view of an installment.
type InstallmentResponse struct {
	ID              int64             `json:"id"`
	Sequence        int               `json:"sequence"`
	Amount          decimal.Decimal   `json:"amount"`
	AmountPaid      decimal.Decimal   `json:"amount_paid"`
	AmountRemaining decimal.Decimal   `json:"amount_remaining"`
	DueDate         string            `json:"due_date"`
	Status          InstallmentStatus `json:"status"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
}

// PaymentResponse is the JSON view of a payment.
type PaymentResponse struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"sale_id"`
	CreditID  *int64          `json:"credit_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
	CashierID int64           `json:"cashier_id"`
	CreatedAt time.Time       `json:"created_at"`
}

type allocationResponse struct {
	ID            int64           `json:"id"`
	PaymentID     int64           `json:"payment_id"`
	InstallmentID int64           `json:"installment_id"`
	AmountApplied decimal.Decimal `json:"amount_applied"`
}

type paymentResultResponse struct {
	Payment      PaymentResponse       `json:"payment"`
	Allocations  []allocationResponse  `json:"allocations"`
	Credit       CreditResponse        `json:"credit"`
	Installments []InstallmentResponse `json:"installments"`
}

type creditDetailResponse struct {
	Credit       CreditResponse        `json:"credit"`
	Installments []InstallmentResponse `json:"installments"`
}

const dateLayout = "2006-01-02"

// NewCreditResponse renders a credit for JSON responses.
func NewCreditResponse(c Credit) CreditResponse {
	return CreditResponse{
		ID:                c.ID,
		SaleID:            c.SaleID,
		CustomerID:        c.CustomerID,
		TotalAmount:       c.TotalAmount,
		RemainingAmount:   c.RemainingAmount,
		InstallmentCount:  c.InstallmentCount,
		InstallmentAmount: c.InstallmentAmount,
		StartDate:         c.StartDate.Format(dateLayout),
		Status:            c.Status,
	}
}

// NewInstallmentResponses renders a schedule for JSON responses.
func NewInstallmentResponses(schedule []Installment) []InstallmentResponse {
	out := make([]InstallmentResponse, 0, len(schedule))
	for _, inst := range schedule {
		out = append(out, InstallmentResponse{
			ID:              inst.ID,
			Sequence:        inst.Sequence,
			Amount:          inst.Amount,
			AmountPaid:      inst.AmountPaid,
			AmountRemaining: inst.AmountRemaining,
			DueDate:         inst.DueDate.Format(dateLayout),
			Status:          inst.Status,
			PaidAt:          inst.PaidAt,
		})
	}
	return out
}

// NewPaymentResponse renders a payment for JSON responses.
func NewPaymentResponse(p Payment) PaymentResponse {
	return PaymentResponse{
		ID:        p.ID,
		SaleID:    p.SaleID,
		CreditID:  p.CreditID,
		Amount:    p.Amount,
		Method:    p.Method,
		Reference: p.Reference,
		CashierID: p.CashierID,
		CreatedAt: p.CreatedAt,
	}
}

func newAllocationResponses(allocations []Allocation) []allocationResponse {
	out := make([]allocationResponse, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, allocationResponse{
			ID:            a.ID,
			PaymentID:     a.PaymentID,
			InstallmentID: a.InstallmentID,
			AmountApplied: a.AmountApplied,
		})
	}
	return out
}
