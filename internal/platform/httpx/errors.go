// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// conflictCodes are domain rules violated by the current state of a resource.
var conflictCodes = map[string]bool{
	"insufficient_stock":       true,
	"payment_exceeds_balance":  true,
	"credit_not_active":        true,
	"sale_not_completed":       true,
	"has_outstanding_payments": true,
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var de *shared.DomainError
	switch {
	case errors.As(err, &de):
		status := statusForCode(de.Code)
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
		JSON(w, status, ProblemDetail{
			Type:   "urn:odyssey:problem:" + de.Code,
			Title:  http.StatusText(status),
			Status: status,
			Detail: de.Message,
			Code:   de.Code,
		})
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func statusForCode(code string) int {
	switch {
	case strings.HasSuffix(code, "_not_found"):
		return http.StatusNotFound
	case code == "credit_busy":
		return http.StatusServiceUnavailable
	case conflictCodes[code]:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
