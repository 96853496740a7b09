package focus

import "github.com/prometheus/client_golang/prometheus"

const namespace = "afengine"

// Metrics holds the focus-engine-specific Prometheus collectors, which track
// arbitration outcomes. internal/transport defines no collectors of its own;
// it only serves /metrics.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	activeGauge   *prometheus.GaugeVec
	pausedGauge   *prometheus.GaugeVec
}

// NewMetrics builds and registers the focus-engine collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requestFocus/releaseFocus outcomes by result.",
		}, []string{"result"}),
		activeGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Current active grants per display.",
		}, []string{"display_id"}),
		pausedGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused_requests",
			Help:      "Current paused grants per display.",
		}, []string{"display_id"}),
	}
	reg.MustRegister(m.requestsTotal, m.activeGauge, m.pausedGauge)
	return m
}

// ObserveResult increments the outcome counter for a terminal decision.
func (m *Metrics) ObserveResult(result Result) {
	if m == nil || result == "" {
		return
	}
	m.requestsTotal.WithLabelValues(string(result)).Inc()
}

// ObserveListSizes records the current active/paused list sizes for a
// display after a transition. Called by Engine after each broadcast.
func (m *Metrics) ObserveListSizes(displayID DisplayID, active, paused int) {
	if m == nil {
		return
	}
	label := displayIDLabel(displayID)
	m.activeGauge.WithLabelValues(label).Set(float64(active))
	m.pausedGauge.WithLabelValues(label).Set(float64(paused))
}

func displayIDLabel(d DisplayID) string {
	switch d {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	default:
		return "unknown"
	}
}
