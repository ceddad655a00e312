package inventory

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", NewHandler(nil, NewService(repo, nil, nil, nil, nil)).MountRoutes)
	return r
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(httpx.ActorHeader, "4")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerPostsMovements(t *testing.T) {
	repo := newMemoryRepo(widget(2))
	h := newTestRouter(repo)

	rr := post(h, "/api/inventory/credit", `{"product_id":1,"quantity":5,"reason":"PURCHASE"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"stock_after":7`)

	rr = post(h, "/api/inventory/debit", `{"product_id":1,"quantity":8,"reason":"LOSS"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = post(h, "/api/inventory/debit", `{"product_id":1,"quantity":1,"reason":"PURCHASE"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = post(h, "/api/inventory/debit", `{"product_id":1,"quantity":1,"reason":"THEFT"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/inventory/products/1/movements", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"reason":"PURCHASE"`)
	require.Equal(t, int64(7), repo.products[1].StockOnHand)
}

func TestHandlerRequiresActor(t *testing.T) {
	h := newTestRouter(newMemoryRepo(widget(2)))
	req := httptest.NewRequest(http.MethodPost, "/api/inventory/credit", strings.NewReader(`{"product_id":1,"quantity":1,"reason":"RETURN"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
