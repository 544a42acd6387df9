package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"weallmesh/internal/core/ports"
)

// Metrics exports operational counters for the pool, dispatcher,
// refresh loop and signaling session.
type Metrics struct {
	dispatchTotal  *prometheus.CounterVec
	refreshTotal   *prometheus.CounterVec
	pollTotal      *prometheus.CounterVec
	signalTotal    *prometheus.CounterVec
	poolSize       prometheus.Gauge
}

var _ ports.MetricsSink = (*Metrics)(nil)

// NewMetrics builds and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weallmesh_dispatch_attempts_total",
			Help: "Dispatched call attempts by outcome.",
		}, []string{"outcome"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weallmesh_refresh_total",
			Help: "Pool refresh cycles by outcome.",
		}, []string{"outcome"}),
		pollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weallmesh_poll_cycles_total",
			Help: "Signaling poll cycles by outcome.",
		}, []string{"outcome"}),
		signalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weallmesh_signal_messages_total",
			Help: "Processed signaling messages by type.",
		}, []string{"type"}),
		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weallmesh_pool_size",
			Help: "Current number of peer records in the pool.",
		}),
	}

	reg.MustRegister(m.dispatchTotal, m.refreshTotal, m.pollTotal, m.signalTotal, m.poolSize)
	return m
}

func (m *Metrics) ObserveDispatch(outcome string) {
	m.dispatchTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRefresh(outcome string) {
	m.refreshTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePoll(outcome string) {
	m.pollTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSignal(msgType string) {
	m.signalTotal.WithLabelValues(msgType).Inc()
}

func (m *Metrics) SetPoolSize(n int) {
	m.poolSize.Set(float64(n))
}
