package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentsRecorded  prometheus.Counter
	paymentAmount     prometheus.Counter
	duplicatePayments prometheus.Counter
	webhookEvents     *prometheus.CounterVec
	reconcileRuns     *prometheus.CounterVec
	reconcileActions  *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// New registers the application metrics once on the default registerer.
func New() *Metrics {
	metricsOnce.Do(func() {
		m := &Metrics{
			paymentsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "tapkeeper_payments_recorded_total",
				Help: "Payments recorded in the ledger.",
			}),
			paymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "tapkeeper_payment_amount_cents_total",
				Help: "Total amount of recorded payments in cents.",
			}),
			duplicatePayments: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "tapkeeper_duplicate_payments_total",
				Help: "Payment recordings rejected as duplicates.",
			}),
			webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tapkeeper_webhook_events_total",
				Help: "Payment webhook notifications by outcome.",
			}, []string{"outcome"}),
			reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tapkeeper_reconcile_runs_total",
				Help: "Roster reconciliation runs by result.",
			}, []string{"result"}),
			reconcileActions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tapkeeper_reconcile_actions_total",
				Help: "Applied reconciliation actions by kind.",
			}, []string{"action"}),
		}
		prometheus.MustRegister(
			m.paymentsRecorded,
			m.paymentAmount,
			m.duplicatePayments,
			m.webhookEvents,
			m.reconcileRuns,
			m.reconcileActions,
		)
		metricsInstance = m
	})
	return metricsInstance
}

func (m *Metrics) RecordPayment(amount int64) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc()
	if amount > 0 {
		m.paymentAmount.Add(float64(amount))
	}
}

func (m *Metrics) RecordDuplicatePayment() {
	if m == nil {
		return
	}
	m.duplicatePayments.Inc()
}

func (m *Metrics) RecordWebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordReconcileRun(result string) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordReconcileAction(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconcileActions.WithLabelValues(action).Add(float64(n))
}
