package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// controlBuckets spans sub-millisecond state reads up to a compare run.
var controlBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5}

// ControlCollector holds the control-plane RPC metrics.
type ControlCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec   // service, method, code
	RPCDurations *prometheus.HistogramVec // service, method
	InFlight     prometheus.Gauge
}

// NewControlCollector registers the control-plane metrics on reg. A nil reg
// means the default Prometheus registry.
func NewControlCollector(reg prometheus.Registerer) (*ControlCollector, error) {
	r := newRegistrar(reg)
	c := &ControlCollector{
		gatherer: r.gatherer,
		RPCRequests: register(r, "routesim_control_requests_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routesim_control_requests_total",
			Help: "Control RPCs handled, by service, method and gRPC status code.",
		}, []string{"service", "method", "code"})),
		RPCDurations: register(r, "routesim_control_request_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routesim_control_request_duration_seconds",
			Help:    "Control RPC handling time.",
			Buckets: controlBuckets,
		}, []string{"service", "method"})),
		InFlight: register(r, "routesim_control_requests_in_flight", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "routesim_control_requests_in_flight",
			Help: "Control RPCs currently being handled.",
		})),
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// UnaryServerInterceptor counts and times every unary RPC. A nil collector
// passes calls through untouched.
func (c *ControlCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if c == nil {
			return handler(ctx, req)
		}

		var full string
		if info != nil {
			full = info.FullMethod
		}
		service, method := SplitMethod(full)

		c.InFlight.Inc()
		defer c.InFlight.Dec()

		start := time.Now()
		resp, err := handler(ctx, req)
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *ControlCollector) Handler() http.Handler {
	if c == nil {
		return HandlerFor(nil)
	}
	return HandlerFor(c.gatherer)
}

// HandlerFor serves g, or the default gatherer when g is nil.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// SplitMethod turns "/pkg.Service/Method" into ("Service", "Method"). Missing
// parts come back as "unknown".
func SplitMethod(fullMethod string) (service, method string) {
	service, method = "unknown", "unknown"

	qualified, name, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return service, method
	}
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		qualified = qualified[i+1:]
	}
	if qualified != "" {
		service = qualified
	}
	if name != "" {
		method = name
	}
	return service, method
}
