package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimCollector exposes simulation Prometheus metrics. It satisfies the
// controller's MetricsRecorder interface.
type SimCollector struct {
	gatherer prometheus.Gatherer

	TicksTotal     *prometheus.CounterVec
	PacketsTotal   *prometheus.CounterVec
	FallbacksTotal prometheus.Counter
	TickDuration   prometheus.Histogram

	PathLatency    prometheus.Gauge
	PathPacketLoss prometheus.Gauge
	PathHops       prometheus.Gauge
	Scores         *prometheus.GaugeVec

	Episodes         prometheus.Gauge
	Epsilon          prometheus.Gauge
	LearningProgress prometheus.Gauge
	Links            *prometheus.GaugeVec
}

// tickBuckets covers a tick on small graphs, from tens of microseconds up.
var tickBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

// NewSimCollector registers the simulation metrics on reg. A nil reg means
// the default Prometheus registry.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	r := newRegistrar(reg)
	gauge := func(name, help string) prometheus.Gauge {
		return register(r, name, prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help}))
	}

	c := &SimCollector{
		gatherer: r.gatherer,
		TicksTotal: register(r, "routesim_ticks_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routesim_ticks_total",
			Help: "Simulation ticks executed, by active strategy.",
		}, []string{"strategy"})),
		PacketsTotal: register(r, "routesim_packets_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routesim_packets_total",
			Help: "Packets sent, by strategy and outcome (delivered or dropped).",
		}, []string{"strategy", "outcome"})),
		FallbacksTotal: register(r, "routesim_adaptive_fallbacks_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routesim_adaptive_fallbacks_total",
			Help: "Adaptive walks that failed and were replaced by the shortest-path planner.",
		})),
		TickDuration: register(r, "routesim_tick_duration_seconds", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "routesim_tick_duration_seconds",
			Help:    "Wall time of one tick: condition update, path computation and scoring.",
			Buckets: tickBuckets,
		})),
		PathLatency:    gauge("routesim_path_latency_ms", "Weighted latency of the active path."),
		PathPacketLoss: gauge("routesim_path_packet_loss_percent", "Estimated packet loss along the active path."),
		PathHops:       gauge("routesim_path_hops", "Hop count of the active path."),
		Scores: register(r, "routesim_strategy_score", prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "routesim_strategy_score",
			Help: "Performance score per strategy on a 0-100 scale.",
		}, []string{"strategy"})),
		Episodes:         gauge("routesim_adaptive_episodes", "Completed learning episodes of the adaptive router."),
		Epsilon:          gauge("routesim_adaptive_epsilon", "Current exploration probability of the adaptive router."),
		LearningProgress: gauge("routesim_learning_progress_percent", "Saturating learning progress indicator."),
		Links: register(r, "routesim_links", prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "routesim_links",
			Help: "Links currently degraded, by state (failed or congested).",
		}, []string{"state"})),
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveTick counts one tick and its packet outcome.
func (c *SimCollector) ObserveTick(strategy string, delivered, fellBack bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	outcome := "dropped"
	if delivered {
		outcome = "delivered"
	}
	c.TicksTotal.WithLabelValues(strategy).Inc()
	c.PacketsTotal.WithLabelValues(strategy, outcome).Inc()
	if fellBack {
		c.FallbacksTotal.Inc()
	}
	c.TickDuration.Observe(elapsed.Seconds())
}

// SetPathMetrics updates the active path gauges.
func (c *SimCollector) SetPathMetrics(latency, packetLoss float64, hops int) {
	if c == nil {
		return
	}
	c.PathLatency.Set(latency)
	c.PathPacketLoss.Set(packetLoss)
	c.PathHops.Set(float64(hops))
}

// SetScores updates both strategy scores.
func (c *SimCollector) SetScores(traditional, adaptive float64) {
	if c == nil {
		return
	}
	c.Scores.WithLabelValues("traditional").Set(traditional)
	c.Scores.WithLabelValues("adaptive").Set(adaptive)
}

// SetLearning updates the adaptive router gauges.
func (c *SimCollector) SetLearning(episodes int, epsilon, progress float64) {
	if c == nil {
		return
	}
	c.Episodes.Set(float64(episodes))
	c.Epsilon.Set(epsilon)
	c.LearningProgress.Set(progress)
}

// SetLinkConditions updates the degraded link gauges.
func (c *SimCollector) SetLinkConditions(failed, congested int) {
	if c == nil {
		return
	}
	c.Links.WithLabelValues("failed").Set(float64(failed))
	c.Links.WithLabelValues("congested").Set(float64(congested))
}
