package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func TestRespondErrorMapsDomainCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.NewDomainError("sale_not_found", "missing"), http.StatusNotFound},
		{shared.NewDomainError("insufficient_stock", "short"), http.StatusConflict},
		{shared.NewDomainError("has_outstanding_payments", "paid"), http.StatusConflict},
		{shared.NewDomainError("invalid_amount", "bad"), http.StatusUnprocessableEntity},
		{shared.NewDomainError("credit_busy", "busy"), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", shared.NewDomainError("credit_not_found", "missing")), http.StatusNotFound},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{shared.Internal("op", errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.Internal("sales: settle sale", errors.New("password authentication failed")))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Empty(t, body.Detail)
	require.Equal(t, http.StatusInternalServerError, body.Status)
}

func TestRespondErrorCarriesDomainCode(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.NewDomainError("credit_busy", "retry later"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "credit_busy", body.Code)
	require.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "a", target.Name)
}
