package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	ledgerPostingsTotal *prometheus.CounterVec
	ledgerUnitsTotal    *prometheus.CounterVec
	ledgerRemovalsTotal prometheus.Counter
	ledgerFailuresTotal *prometheus.CounterVec
	itemQuantity        *prometheus.GaugeVec

	dbOperationDuration *prometheus.HistogramVec
}

// New registers every collector on reg under prefix.
func New(reg *prometheus.Registry, prefix string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		ledgerPostingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_ledger_postings_total",
			Help: "Transactions posted to the ledger by type and channel",
		}, []string{"type", "channel"}),
		ledgerUnitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_ledger_units_total",
			Help: "Units moved through the ledger by type",
		}, []string{"type"}),
		ledgerRemovalsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_ledger_removed_transactions_total",
			Help: "Transactions deleted and reversed",
		}),
		ledgerFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_ledger_failures_total",
			Help: "Rejected or failed ledger operations by reason",
		}, []string{"operation", "reason"}),
		itemQuantity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_item_quantity",
			Help: "Current on-hand quantity per item",
		}, []string{"item_id"}),
		dbOperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation_type"}),
	}
}

func (m *Metrics) RecordPosting(txType, channel string, quantity int) {
	if m == nil {
		return
	}
	m.ledgerPostingsTotal.WithLabelValues(txType, channel).Inc()
	m.ledgerUnitsTotal.WithLabelValues(txType).Add(float64(quantity))
}

func (m *Metrics) RecordRemovals(n int) {
	if m == nil {
		return
	}
	m.ledgerRemovalsTotal.Add(float64(n))
}

func (m *Metrics) RecordFailure(operation, reason string) {
	if m == nil {
		return
	}
	m.ledgerFailuresTotal.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) SetItemQuantity(itemID string, quantity int) {
	if m == nil {
		return
	}
	m.itemQuantity.WithLabelValues(itemID).Set(float64(quantity))
}

func (m *Metrics) DeleteItem(itemID string) {
	if m == nil {
		return
	}
	m.itemQuantity.DeleteLabelValues(itemID)
}

// TrackDBOperation returns a function that records the duration of a database operation.
//
//	defer m.TrackDBOperation("insert_transaction")(time.Now())
func (m *Metrics) TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if m == nil {
			return
		}
		m.dbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				// Render now so the recorded status is the one sent.
				c.Error(err)
			}
			if m == nil {
				return nil
			}

			labels := []string{c.Request().Method, c.Path(), strconv.Itoa(c.Response().Status)}
			m.httpRequestsTotal.WithLabelValues(labels...).Inc()
			m.httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
