package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesTotal      *prometheus.CounterVec
	salesAmount     *prometheus.CounterVec
	paymentsTotal   *prometheus.CounterVec
	paymentsAmount  prometheus.Counter
	voidsTotal      *prometheus.CounterVec
	stockUnits      *prometheus.CounterVec
	stockRejections *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_sales_settled_total",
		Help: "Jumlah penjualan yang berhasil diselesaikan per jenis pembayaran.",
	}, []string{"kind"})
	salesAmount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_sales_settled_amount",
		Help: "Total nilai penjualan (termasuk pajak) per jenis pembayaran.",
	}, []string{"kind"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_credit_payments_total",
		Help: "Jumlah pembayaran cicilan berdasarkan hasil.",
	}, []string{"outcome"})
	paymentsAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_credit_payments_amount",
		Help: "Total nilai pembayaran cicilan yang dialokasikan.",
	})
	voids := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_sales_voided_total",
		Help: "Jumlah pembatalan penjualan per jenis pembayaran.",
	}, []string{"kind"})
	stockUnits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_stock_units_moved_total",
		Help: "Unit stok yang bergerak per arah dan alasan.",
	}, []string{"direction", "reason"})
	stockRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_stock_rejections_total",
		Help: "Pengurangan stok yang ditolak karena stok tidak cukup.",
	}, []string{"reason"})
	registry.MustRegister(requests, duration, sales, salesAmount, payments, paymentsAmount, voids, stockUnits, stockRejections)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesTotal:      sales,
		salesAmount:     salesAmount,
		paymentsTotal:   payments,
		paymentsAmount:  paymentsAmount,
		voidsTotal:      voids,
		stockUnits:      stockUnits,
		stockRejections: stockRejections,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// SaleSettled mencatat penjualan yang sudah di-commit.
func (m *Metrics) SaleSettled(kind string, total float64) {
	if m == nil {
		return
	}
	m.salesTotal.WithLabelValues(kind).Inc()
	m.salesAmount.WithLabelValues(kind).Add(total)
}

// SaleVoided mencatat pembatalan penjualan.
func (m *Metrics) SaleVoided(kind string) {
	if m == nil {
		return
	}
	m.voidsTotal.WithLabelValues(kind).Inc()
}

// PaymentApplied mencatat hasil distribusi pembayaran.
func (m *Metrics) PaymentApplied(outcome string, amount float64) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(outcome).Inc()
	if amount > 0 {
		m.paymentsAmount.Add(amount)
	}
}

// StockMoved mencatat unit stok yang bergerak.
func (m *Metrics) StockMoved(direction, reason string, qty int64) {
	if m == nil || qty <= 0 {
		return
	}
	m.stockUnits.WithLabelValues(direction, reason).Add(float64(qty))
}

// StockRejected mencatat pengurangan stok yang ditolak.
func (m *Metrics) StockRejected(reason string) {
	if m == nil {
		return
	}
	m.stockRejections.WithLabelValues(reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
