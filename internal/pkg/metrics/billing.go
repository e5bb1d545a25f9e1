// Package metrics holds the Prometheus collectors of the billing engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tableops"

// Billing records webhook, dispatch, sweep and retry outcomes. A nil
// *Billing is valid and records nothing.
type Billing struct {
	webhookEvents       *prometheus.CounterVec
	dispatchTasks       *prometheus.CounterVec
	sweepItems          *prometheus.CounterVec
	retries             *prometheus.CounterVec
	rejectedTransitions *prometheus.CounterVec
}

var (
	defaultBilling     *Billing
	defaultBillingOnce sync.Once
)

// NewBilling returns the process-wide recorder registered on the default registry.
func NewBilling() *Billing {
	defaultBillingOnce.Do(func() {
		defaultBilling = newBilling(prometheus.DefaultRegisterer)
	})
	return defaultBilling
}

// NewBillingWithRegisterer allows tests to provide a dedicated registry.
func NewBillingWithRegisterer(reg prometheus.Registerer) *Billing {
	return newBilling(reg)
}

func newBilling(reg prometheus.Registerer) *Billing {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Billing{
		webhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Stripe webhook deliveries by event type and outcome",
		}, []string{"type", "outcome"}),
		dispatchTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "dispatch_tasks_total",
			Help:      "Lifecycle side-effect tasks by task name and result",
		}, []string{"task", "result"}),
		sweepItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "sweep_items_total",
			Help:      "Subscriptions handled by expiration sweeps by sweep and result",
		}, []string{"sweep", "result"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "retries_total",
			Help:      "Retried outbound calls by operation",
		}, []string{"operation"}),
		rejectedTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "rejected_transitions_total",
			Help:      "Subscription status changes refused by the lifecycle table",
		}, []string{"from", "to"}),
	}
}

func (m *Billing) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Billing) RecordDispatchTask(task string, ok bool) {
	if m == nil {
		return
	}
	m.dispatchTasks.WithLabelValues(task, result(ok)).Inc()
}

func (m *Billing) RecordSweepItem(sweep string, ok bool) {
	if m == nil {
		return
	}
	m.sweepItems.WithLabelValues(sweep, result(ok)).Inc()
}

func (m *Billing) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Billing) RecordRejectedTransition(from, to string) {
	if m == nil {
		return
	}
	m.rejectedTransitions.WithLabelValues(from, to).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
