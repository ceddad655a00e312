package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Post("/debit", h.postDebit)
		r.Post("/credit", h.postCredit)
		r.Get("/products/{id}/movements", h.getStockCard)
	})
}

type movementRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Reason    Reason `json:"reason" validate:"required,oneof=PURCHASE SALE RETURN ADJUSTMENT_POS ADJUSTMENT_NEG LOSS"`
}

type movementResponse struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"product_id"`
	ActorID       int64     `json:"actor_id,omitempty"`
	Direction     Direction `json:"direction"`
	Reason        Reason    `json:"reason"`
	Quantity      int64     `json:"quantity"`
	StockBefore   int64     `json:"stock_before"`
	StockAfter    int64     `json:"stock_after"`
	ReferenceID   *int64    `json:"reference_id,omitempty"`
	ReferenceType string    `json:"reference_type,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (h *Handler) postDebit(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, h.service.DebitStock)
}

func (h *Handler) postCredit(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, h.service.CreditStock)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request, fn func(context.Context, MovementInput) (Movement, error)) {
	actorID, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req movementRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movement, err := fn(r.Context(), MovementInput{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		Reason:        req.Reason,
		ActorID:       actorID,
		ReferenceType: "manual",
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newMovementResponse(movement))
}

func (h *Handler) getStockCard(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.StockCard(r.Context(), MovementFilter{ProductID: productID, Limit: limit})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, newMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrInternal) {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func newMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:            m.ID,
		ProductID:     m.ProductID,
		ActorID:       m.ActorID,
		Direction:     m.Direction,
		Reason:        m.Reason,
		Quantity:      m.Quantity,
		StockBefore:   m.StockBefore,
		StockAfter:    m.StockAfter,
		ReferenceID:   m.ReferenceID,
		ReferenceType: m.ReferenceType,
		OccurredAt:    m.OccurredAt,
	}
}
