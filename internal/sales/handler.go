package sales

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// IdempotencyHeader may carry the settlement key instead of the body field.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages sales HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sales", func(r chi.Router) {
		r.Post("/", h.settleSale)
		r.Get("/{id}", h.getSale)
		r.Post("/{id}/void", h.voidSale)
	})
}

// ============================================================================
// REQUEST / RESPONSE
// ============================================================================

type settleLineRequest struct {
	ProductID    int64           `json:"product_id" validate:"required,gt=0"`
	Quantity     int64           `json:"quantity" validate:"required,gt=0"`
	LineDiscount decimal.Decimal `json:"line_discount"`
}

type settlePaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required,max=30"`
	Reference string          `json:"reference" validate:"max=100"`
}

type settleRequest struct {
	CustomerID       int64                  `json:"customer_id" validate:"required,gt=0"`
	PaymentKind      PaymentKind            `json:"payment_kind" validate:"required,oneof=CASH CREDIT"`
	InstallmentCount int                    `json:"installment_count" validate:"required_if=PaymentKind CREDIT,gte=0,lte=24"`
	Discount         decimal.Decimal        `json:"discount"`
	ShippingCost     decimal.Decimal        `json:"shipping_cost"`
	Lines            []settleLineRequest    `json:"lines" validate:"required,min=1,dive"`
	Payments         []settlePaymentRequest `json:"payments" validate:"dive"`
	IdempotencyKey   string                 `json:"idempotency_key" validate:"omitempty,uuid"`
}

type settlementResponse struct {
	Sale         Sale                         `json:"sale"`
	Payments     []credit.PaymentResponse     `json:"payments"`
	Credit       *credit.CreditResponse       `json:"credit,omitempty"`
	Installments []credit.InstallmentResponse `json:"installments,omitempty"`
}

type saleResponse struct {
	Sale
	Payments []credit.PaymentResponse `json:"payments"`
}

// ============================================================================
// HANDLERS
// ============================================================================

func (h *Handler) settleSale(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req settleRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get(IdempotencyHeader)
	}

	input := SettleInput{
		CustomerID:       req.CustomerID,
		CashierID:        actorID,
		Discount:         req.Discount,
		ShippingCost:     req.ShippingCost,
		PaymentKind:      req.PaymentKind,
		InstallmentCount: req.InstallmentCount,
		IdempotencyKey:   key,
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{ProductID: l.ProductID, Quantity: l.Quantity, LineDiscount: l.LineDiscount})
	}
	for _, p := range req.Payments {
		input.Payments = append(input.Payments, PaymentInput{Amount: p.Amount, Method: p.Method, Reference: p.Reference})
	}

	res, err := h.service.SettleSale(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := settlementResponse{Sale: res.Sale, Payments: paymentResponses(res.Payments)}
	if res.Credit != nil {
		c := credit.NewCreditResponse(*res.Credit)
		out.Credit = &c
		out.Installments = credit.NewInstallmentResponses(res.Installments)
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	saleID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), saleID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse{Sale: sale, Payments: paymentResponses(sale.Payments)})
}

func (h *Handler) voidSale(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	saleID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.VoidSale(r.Context(), saleID, actorID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrInternal) {
		h.logger.Error("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func paymentResponses(payments []credit.Payment) []credit.PaymentResponse {
	out := make([]credit.PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, credit.NewPaymentResponse(p))
	}
	return out
}
