package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/signalsfoundry/routing-simulator/internal/config"
	"github.com/signalsfoundry/routing-simulator/internal/control"
	"github.com/signalsfoundry/routing-simulator/internal/logging"
	"github.com/signalsfoundry/routing-simulator/timectrl"
)

func startApp(t *testing.T, cfg config.Config) (*app, *control.Client) {
	t.Helper()

	a, err := newApp(cfg, prometheus.NewRegistry(), logging.Noop(), timectrl.WithMode(timectrl.Accelerated))
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	go func() { _ = a.grpcServer.Serve(lis) }()
	t.Cleanup(a.grpcServer.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := a.sched.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-loopDone
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return a, control.NewClient(conn)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestStartRPCDrivesBoundedRun(t *testing.T) {
	cfg := config.Default()
	cfg.Profile = "simple"
	a, client := startApp(t, cfg)

	if _, err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start RPC: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return !a.ctrl.Running() && !a.sched.Running() })

	st, err := client.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState RPC: %v", err)
	}
	if st.Packets != 20 {
		t.Fatalf("packets = %d, want 20", st.Packets)
	}
	if got := testutil.ToFloat64(a.sim.TicksTotal.WithLabelValues("traditional")); got != 20 {
		t.Fatalf("routesim_ticks_total = %v, want 20", got)
	}
}

func TestPauseRPCStopsTicking(t *testing.T) {
	cfg := config.Default()
	cfg.Profile = "ring"
	a, client := startApp(t, cfg)

	if _, err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start RPC: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return a.sched.Ticks() >= 3 })

	if _, err := client.Pause(context.Background()); err != nil {
		t.Fatalf("Pause RPC: %v", err)
	}
	waitFor(t, time.Second, func() bool { return !a.sched.Running() })
	// A tick already in flight when Pause landed may still finish.
	time.Sleep(20 * time.Millisecond)
	before := a.ctrl.Snapshot().Ticks
	time.Sleep(20 * time.Millisecond)
	if after := a.ctrl.Snapshot().Ticks; after != before {
		t.Fatalf("ticks advanced while paused: %d -> %d", before, after)
	}
}

func TestSetSpeedRPCReachesScheduler(t *testing.T) {
	a, client := startApp(t, config.Default())

	got, err := client.SetSpeed(context.Background(), 4)
	if err != nil {
		t.Fatalf("SetSpeed RPC: %v", err)
	}
	if got != 4 || a.sched.Speed() != 4 {
		t.Fatalf("speed = %v (scheduler %v), want 4", got, a.sched.Speed())
	}
}
