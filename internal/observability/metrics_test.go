package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorLabelsByStatusCode(t *testing.T) {
	cases := []struct {
		name   string
		method string
		err    error
		code   string
	}{
		{"ok", "GetState", nil, "OK"},
		{"invalid selection", "SetSelection", status.Error(codes.InvalidArgument, "same node"), "InvalidArgument"},
		{"unknown link", "ToggleFailure", status.Error(codes.NotFound, "A-C"), "NotFound"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			collector, err := NewControlCollector(reg)
			require.NoError(t, err)

			info := &grpc.UnaryServerInfo{FullMethod: "/routesim.control.v1.SimulationControl/" + tc.method}
			_, err = collector.UnaryServerInterceptor()(context.Background(), struct{}{}, info,
				func(context.Context, any) (any, error) { return nil, tc.err })
			require.Equal(t, tc.err, err)

			got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulationControl", tc.method, tc.code))
			if got != 1 {
				t.Fatalf("requests{method=%s,code=%s} = %v, want 1", tc.method, tc.code, got)
			}
			n := histogramSampleCount(t, reg, "routesim_control_request_duration_seconds",
				map[string]string{"service": "SimulationControl", "method": tc.method})
			if n != 1 {
				t.Fatalf("duration samples = %d, want 1", n)
			}
		})
	}
}

func TestNilControlCollectorPassesThrough(t *testing.T) {
	var c *ControlCollector
	resp, err := c.UnaryServerInterceptor()(context.Background(), "in", &grpc.UnaryServerInfo{},
		func(_ context.Context, req any) (any, error) { return req, nil })
	require.NoError(t, err)
	require.Equal(t, "in", resp)
}

func TestControlCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewControlCollector(reg)
	require.NoError(t, err)
	second, err := NewControlCollector(reg)
	require.NoError(t, err)

	first.RPCRequests.WithLabelValues("svc", "m", "OK").Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(second.RPCRequests.WithLabelValues("svc", "m", "OK")))
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		in, service, method string
	}{
		{"/routesim.control.v1.SimulationControl/Tick", "SimulationControl", "Tick"},
		{"/Health/Check", "Health", "Check"},
		{"", "unknown", "unknown"},
	}
	for _, tc := range cases {
		svc, method := SplitMethod(tc.in)
		if svc != tc.service || method != tc.method {
			t.Fatalf("SplitMethod(%q) = (%q, %q), want (%q, %q)", tc.in, svc, method, tc.service, tc.method)
		}
	}
}

func TestSimCollectorRecordsTicks(t *testing.T) {
	reg := prometheus.NewRegistry()
	sim, err := NewSimCollector(reg)
	require.NoError(t, err)

	sim.ObserveTick("adaptive", true, false, 2*time.Millisecond)
	sim.ObserveTick("adaptive", false, true, time.Millisecond)
	sim.ObserveTick("traditional", true, false, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(sim.TicksTotal.WithLabelValues("adaptive")))
	require.Equal(t, 1.0, testutil.ToFloat64(sim.TicksTotal.WithLabelValues("traditional")))
	require.Equal(t, 1.0, testutil.ToFloat64(sim.PacketsTotal.WithLabelValues("adaptive", "delivered")))
	require.Equal(t, 1.0, testutil.ToFloat64(sim.PacketsTotal.WithLabelValues("adaptive", "dropped")))
	require.Equal(t, 1.0, testutil.ToFloat64(sim.FallbacksTotal))
	require.Equal(t, uint64(3), histogramSampleCount(t, reg, "routesim_tick_duration_seconds", nil))
}

func TestSimCollectorGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	sim, err := NewSimCollector(reg)
	require.NoError(t, err)

	sim.SetPathMetrics(31.5, 12, 3)
	sim.SetScores(70, 82.5)
	sim.SetLearning(40, 0.08, 80)
	sim.SetLinkConditions(2, 3)

	require.Equal(t, 31.5, testutil.ToFloat64(sim.PathLatency))
	require.Equal(t, 12.0, testutil.ToFloat64(sim.PathPacketLoss))
	require.Equal(t, 3.0, testutil.ToFloat64(sim.PathHops))
	require.Equal(t, 70.0, testutil.ToFloat64(sim.Scores.WithLabelValues("traditional")))
	require.Equal(t, 82.5, testutil.ToFloat64(sim.Scores.WithLabelValues("adaptive")))
	require.Equal(t, 40.0, testutil.ToFloat64(sim.Episodes))
	require.Equal(t, 0.08, testutil.ToFloat64(sim.Epsilon))
	require.Equal(t, 80.0, testutil.ToFloat64(sim.LearningProgress))
	require.Equal(t, 2.0, testutil.ToFloat64(sim.Links.WithLabelValues("failed")))
	require.Equal(t, 3.0, testutil.ToFloat64(sim.Links.WithLabelValues("congested")))
}

func TestNilSimCollectorIsNoop(t *testing.T) {
	var sim *SimCollector
	sim.ObserveTick("adaptive", true, true, time.Millisecond)
	sim.SetPathMetrics(1, 2, 3)
	sim.SetScores(1, 2)
	sim.SetLearning(1, 0.1, 2)
	sim.SetLinkConditions(1, 2)
	require.Nil(t, sim.Gatherer())
}

func TestMetricsHandlerExposesSimulationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewControlCollector(reg)
	if err != nil {
		t.Fatalf("NewControlCollector: %v", err)
	}
	sim, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)
	sim.ObserveTick("adaptive", true, false, time.Millisecond)
	sim.SetScores(65, 77)
	sim.SetLinkConditions(1, 4)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"routesim_control_requests_total",
		"routesim_control_request_duration_seconds",
		"routesim_ticks_total",
		"routesim_packets_total",
		"routesim_tick_duration_seconds",
		`routesim_strategy_score{strategy="adaptive"} 77`,
		`routesim_links{state="congested"} 4`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

// histogramSampleCount returns the sample count of the first series of name
// whose labels include every pair in labels.
func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	var families []*dto.MetricFamily
	families, err := gatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			have := map[string]string{}
			for _, lp := range m.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if have[k] != v {
					continue series
				}
			}
			return m.GetHistogram().GetSampleCount()
		}
	}
	return 0
}
