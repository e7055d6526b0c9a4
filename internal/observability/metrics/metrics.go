package metrics

import "github.com/prometheus/client_golang/prometheus"

// TriageMetrics exposes counters/histograms for conversation turns.
type TriageMetrics struct {
	turnsTotal    *prometheus.CounterVec
	assessments   *prometheus.CounterVec
	turnLatency   *prometheus.HistogramVec
	busyConflicts prometheus.Counter
}

func NewTriageMetrics(reg prometheus.Registerer) *TriageMetrics {
	m := &TriageMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisos",
			Subsystem: "triage",
			Name:      "turns_total",
			Help:      "Total conversation turns processed",
		}, []string{"flow", "outcome"}),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisos",
			Subsystem: "triage",
			Name:      "risk_assessments_total",
			Help:      "Risk assessments by level",
		}, []string{"level"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crisos",
			Subsystem: "triage",
			Name:      "turn_latency_seconds",
			Help:      "Latency of conversation turn handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"flow"}),
		busyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crisos",
			Subsystem: "triage",
			Name:      "turn_conflicts_total",
			Help:      "Turns rejected because the conversation was busy",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.assessments, m.turnLatency, m.busyConflicts)
	return m
}

func (m *TriageMetrics) ObserveTurn(flow, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(flow, outcome).Inc()
	m.turnLatency.WithLabelValues(flow).Observe(seconds)
}

func (m *TriageMetrics) ObserveAssessment(level string) {
	if m == nil {
		return
	}
	m.assessments.WithLabelValues(level).Inc()
}

func (m *TriageMetrics) ObserveBusy() {
	if m == nil {
		return
	}
	m.busyConflicts.Inc()
}

// HandoffMetrics exposes counters/histograms for the operator queue.
type HandoffMetrics struct {
	escalations   *prometheus.CounterVec
	claims        *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
	listLatency   prometheus.Histogram
	alerts        *prometheus.CounterVec
}

func NewHandoffMetrics(reg prometheus.Registerer) *HandoffMetrics {
	m := &HandoffMetrics{
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisos",
			Subsystem: "handoff",
			Name:      "escalations_total",
			Help:      "Escalations by outcome",
		}, []string{"outcome"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisos",
			Subsystem: "handoff",
			Name:      "claims_total",
			Help:      "Claim attempts by result",
		}, []string{"result"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisos",
			Subsystem: "handoff",
			Name:      "status_changes_total",
			Help:      "Applied status transitions by target status",
		}, []string{"to"}),
		listLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crisos",
			Subsystem: "handoff",
			Name:      "queue_list_seconds",
			Help:      "Latency of queue listings",
			Buckets:   prometheus.DefBuckets,
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crisos",
			Subsystem: "handoff",
			Name:      "operator_alerts_total",
			Help:      "Operator alert e-mails by status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.escalations, m.claims, m.statusChanges, m.listLatency, m.alerts)
	return m
}

func (m *HandoffMetrics) ObserveEscalation(outcome string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(outcome).Inc()
}

func (m *HandoffMetrics) ObserveClaim(result string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
}

func (m *HandoffMetrics) ObserveStatusChange(to string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(to).Inc()
}

func (m *HandoffMetrics) ObserveList(seconds float64) {
	if m == nil {
		return
	}
	m.listLatency.Observe(seconds)
}

func (m *HandoffMetrics) ObserveAlert(status string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(status).Inc()
}
