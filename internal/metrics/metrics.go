package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
)

const namespace = "waterbill"

// Metrics holds the billing counters. Each instance owns its registry so
// tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	clientsRegistered  prometheus.Counter
	billsCreated       prometheus.Counter
	billedAmount       prometheus.Counter
	paymentsApplied    *prometheus.CounterVec
	collectedAmount    prometheus.Counter
	statusTransitions  *prometheus.CounterVec
	accountNumberRetry prometheus.Counter
	operationErrors    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	eventsPublished    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		clientsRegistered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_registered_total",
			Help:      "Clients registered.",
		}),
		billsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_created_total",
			Help:      "Bills opened.",
		}),
		billedAmount: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billed_amount_total",
			Help:      "Sum of bill amounts opened.",
		}),
		paymentsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_applied_total",
			Help:      "Payments applied, by resulting bill payment status.",
		}, []string{"payment_status"}),
		collectedAmount: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collected_amount_total",
			Help:      "Sum of payment amounts applied.",
		}),
		statusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_status_transitions_total",
			Help:      "Connection status records appended, by new status.",
		}, []string{"connection_status"}),
		accountNumberRetry: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_number_collisions_total",
			Help:      "Account number collisions retried during registration.",
		}),
		operationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed billing operations, by operation and error code.",
		}, []string{"operation", "code"}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Billing operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Billing events published, by event name.",
		}, []string{"event_name"}),
	}
}

func (m *Metrics) ClientRegistered() {
	m.clientsRegistered.Inc()
}

func (m *Metrics) BillCreated(amount decimal.Decimal) {
	m.billsCreated.Inc()
	m.billedAmount.Add(amount.InexactFloat64())
}

func (m *Metrics) PaymentApplied(status types.BillPaymentStatus, amount decimal.Decimal) {
	m.paymentsApplied.WithLabelValues(string(status)).Inc()
	m.collectedAmount.Add(amount.InexactFloat64())
}

func (m *Metrics) ConnectionStatusChanged(status types.ConnectionStatus) {
	m.statusTransitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) AccountNumberCollision() {
	m.accountNumberRetry.Inc()
}

func (m *Metrics) EventPublished(eventName string) {
	m.eventsPublished.WithLabelValues(eventName).Inc()
}

// Observe records the duration of an operation and counts it as failed when err is set.
// Use as: defer m.Observe("pay_bill", time.Now(), &err)
func (m *Metrics) Observe(operation string, start time.Time, err *error) {
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil && *err != nil {
		m.operationErrors.WithLabelValues(operation, ierr.Code(*err)).Inc()
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
