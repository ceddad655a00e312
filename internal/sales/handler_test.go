package sales_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
)

func newRouter(t *testing.T) (http.Handler, func(int64) int64) {
	t.Helper()
	store, svc, _ := setup(t)
	r := chi.NewRouter()
	r.Route("/api", sales.NewHandler(nil, svc).MountRoutes)
	return r, func(id int64) int64 { return store.Product(id).StockOnHand }
}

func do(h http.Handler, method, path, body string, actor bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if actor {
		req.Header.Set(httpx.ActorHeader, "3")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const cashSale = `{"customer_id":7,"payment_kind":"CASH","lines":[{"product_id":1,"quantity":3},{"product_id":2,"quantity":1}],"payments":[{"amount":"413","method":"cash"}]}`

func TestHandlerSettleGetAndVoid(t *testing.T) {
	h, stock := newRouter(t)

	rr := do(h, http.MethodPost, "/api/sales", cashSale, true)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Sale struct {
			ID     int64  `json:"id"`
			Number string `json:"number"`
			Total  string `json:"total"`
		} `json:"sale"`
		Payments []map[string]any `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "V-2025-000001", created.Sale.Number)
	require.Equal(t, "413", created.Sale.Total)
	require.Len(t, created.Payments, 1)
	require.Equal(t, int64(7), stock(1))

	rr = do(h, http.MethodGet, "/api/sales/1", "", false)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"COMPLETED"`)

	rr = do(h, http.MethodPost, "/api/sales/1/void", "", true)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, int64(10), stock(1))

	rr = do(h, http.MethodPost, "/api/sales/1/void", "", true)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "sale_not_completed")
}

func TestHandlerSettleCreditReturnsSchedule(t *testing.T) {
	h, _ := newRouter(t)
	body := `{"customer_id":7,"payment_kind":"CREDIT","installment_count":12,"lines":[{"product_id":1,"quantity":3},{"product_id":2,"quantity":1}]}`

	rr := do(h, http.MethodPost, "/api/sales", body, true)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Credit struct {
			RemainingAmount string `json:"remaining_amount"`
		} `json:"credit"`
		Installments []map[string]any `json:"installments"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, "413", created.Credit.RemainingAmount)
	require.Len(t, created.Installments, 12)
}

func TestHandlerSettleErrors(t *testing.T) {
	h, stock := newRouter(t)

	rr := do(h, http.MethodPost, "/api/sales", cashSale, false)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(h, http.MethodPost, "/api/sales", `{"customer_id":7,"payment_kind":"CASH","lines":[]}`, true)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(h, http.MethodPost, "/api/sales", `{"customer_id":7,"payment_kind":"CREDIT","lines":[{"product_id":1,"quantity":1}]}`, true)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(h, http.MethodPost, "/api/sales", `{"customer_id":7,"payment_kind":"CASH","lines":[{"product_id":1,"quantity":11}]}`, true)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "insufficient_stock")
	require.Equal(t, int64(10), stock(1))

	rr = do(h, http.MethodPost, "/api/sales", `{"customer_id":99,"payment_kind":"CASH","lines":[{"product_id":1,"quantity":1}]}`, true)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(h, http.MethodGet, "/api/sales/abc", "", false)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerIdempotencyHeader(t *testing.T) {
	h, stock := newRouter(t)
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/sales", strings.NewReader(cashSale))
		req.Header.Set(httpx.ActorHeader, "3")
		req.Header.Set(sales.IdempotencyHeader, "6f1c2f0e-6a3c-4a8e-9d0f-2f7f5d9b8a11")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}
	require.Equal(t, http.StatusCreated, send().Code)
	require.Equal(t, http.StatusConflict, send().Code)
	require.Equal(t, int64(7), stock(1))
}
