package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	preparedTotal    *prometheus.CounterVec
	txStatusTotal    *prometheus.CounterVec
	adminActionTotal *prometheus.CounterVec
	portfolioErrors  prometheus.Counter
}

func newMetricsRegistry() *metricsRegistry {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_trader_art_http_requests_total",
		Help: "HTTP requests by route pattern and status code",
	}, []string{"route", "code"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_trader_art_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	prepared := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_trader_art_mint_prepare_total",
		Help: "Mint transaction preparations by outcome",
	}, []string{"outcome"})

	txStatus := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_trader_art_transaction_status_total",
		Help: "Transaction status answers by status and source",
	}, []string{"status", "source"})

	admin := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_trader_art_admin_actions_total",
		Help: "Owner-only contract actions by result",
	}, []string{"action", "result"})

	portfolioErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pm_trader_art_portfolio_fetch_errors_total",
		Help: "Data API portfolio fetches that failed",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(requests, duration, prepared, txStatus, admin, portfolioErrors)

	return &metricsRegistry{
		registry:         r,
		requestsTotal:    requests,
		requestDuration:  duration,
		preparedTotal:    prepared,
		txStatusTotal:    txStatus,
		adminActionTotal: admin,
		portfolioErrors:  portfolioErrors,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) observeRequest(route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *metricsRegistry) incPrepare(outcome string) {
	m.preparedTotal.WithLabelValues(outcome).Inc()
}

func (m *metricsRegistry) incTxStatus(status, source string) {
	m.txStatusTotal.WithLabelValues(status, source).Inc()
}

func (m *metricsRegistry) incAdmin(action, result string) {
	m.adminActionTotal.WithLabelValues(action, result).Inc()
}

func (m *metricsRegistry) incPortfolioError() {
	m.portfolioErrors.Inc()
}
