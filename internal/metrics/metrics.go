package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dosebot"

// Metrics holds the Prometheus collectors for the reminder engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	triggersRegistered prometheus.Counter
	triggerFailures    prometheus.Counter
	triggersCancelled  prometheus.Counter
	alarmsFired        *prometheus.CounterVec
	adherenceEvents    *prometheus.CounterVec
	planSyncRuns       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from gatherer
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,
		triggersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_registered_total",
			Help:      "Daily reminder triggers registered with the trigger scheduler.",
		}),
		triggerFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_registration_failures_total",
			Help:      "Trigger registrations that failed or timed out.",
		}),
		triggersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_cancelled_total",
			Help:      "Reminder triggers cancelled.",
		}),
		alarmsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_fired_total",
			Help:      "Reminder alarms delivered to listeners.",
		}, []string{"silent"}),
		adherenceEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adherence_events_total",
			Help:      "Adherence events recorded, by kind and result.",
		}, []string{"kind", "result"}),
		planSyncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_sync_runs_total",
			Help:      "Plan synchronisation runs, by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registered metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) TriggerRegistered() {
	if m != nil {
		m.triggersRegistered.Inc()
	}
}

func (m *Metrics) TriggerFailed() {
	if m != nil {
		m.triggerFailures.Inc()
	}
}

func (m *Metrics) TriggerCancelled() {
	if m != nil {
		m.triggersCancelled.Inc()
	}
}

func (m *Metrics) AlarmFired(silent bool) {
	if m != nil {
		m.alarmsFired.WithLabelValues(boolLabel(silent)).Inc()
	}
}

func (m *Metrics) AdherenceRecorded(kind string, err error) {
	if m != nil {
		m.adherenceEvents.WithLabelValues(kind, resultLabel(err)).Inc()
	}
}

func (m *Metrics) PlanSyncRun(err error) {
	if m != nil {
		m.planSyncRuns.WithLabelValues(resultLabel(err)).Inc()
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
