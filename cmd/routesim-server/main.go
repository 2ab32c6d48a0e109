// Command routesim-server runs the simulation continuously, paced by the
// tick scheduler, and exposes the control plane over gRPC with Prometheus
// metrics on /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/routing-simulator/internal/config"
	"github.com/signalsfoundry/routing-simulator/internal/control"
	"github.com/signalsfoundry/routing-simulator/internal/logging"
	"github.com/signalsfoundry/routing-simulator/internal/observability"
	"github.com/signalsfoundry/routing-simulator/internal/sim/controller"
	"github.com/signalsfoundry/routing-simulator/timectrl"
)

func main() {
	envFile := os.Getenv("ROUTESIM_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "routesim-server:", err)
		os.Exit(1)
	}
	autostart := flag.Bool("autostart", false, "start ticking immediately instead of waiting for a Start RPC")
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	log := logging.New(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, *autostart, log); err != nil {
		log.Error(context.Background(), "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// app bundles the long-running pieces so tests can drive them without a
// real listener.
type app struct {
	ctrl       *controller.Controller
	sched      *timectrl.Scheduler
	grpcServer *grpc.Server
	collector  *observability.ControlCollector
	sim        *observability.SimCollector
}

func newApp(cfg config.Config, reg *prometheus.Registry, log logging.Logger, opts ...timectrl.Option) (*app, error) {
	profile, err := cfg.ControllerProfile()
	if err != nil {
		return nil, err
	}

	collector, err := observability.NewControlCollector(reg)
	if err != nil {
		return nil, err
	}
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return nil, err
	}

	ctrl, err := controller.New(profile,
		controller.WithLogger(log),
		controller.WithSeed(cfg.Seed),
		controller.WithMetricsRecorder(simMetrics),
	)
	if err != nil {
		return nil, err
	}
	speed := ctrl.SetSpeed(cfg.Speed)
	if cfg.FailureRate >= 0 || cfg.CongestionLevel >= 0 {
		ctrl.ApplyConditions()
	}

	sched := timectrl.NewScheduler(profile.TickInterval, tickFunc(ctrl, log),
		append([]timectrl.Option{timectrl.WithSpeed(speed)}, opts...)...)

	svc := control.NewService(ctrl, control.WithDriver(sched), control.WithServiceLogger(log))
	server, _ := control.NewServer(svc, control.ServerConfig{
		Logger:    log,
		Collector: collector,
		Tracing:   cfg.Tracing.Enabled,
	})

	return &app{
		ctrl:       ctrl,
		sched:      sched,
		grpcServer: server,
		collector:  collector,
		sim:        simMetrics,
	}, nil
}

// tickFunc runs one controller tick and keeps the scheduler going only
// while the controller still wants ticks.
func tickFunc(ctrl *controller.Controller, log logging.Logger) timectrl.TickFunc {
	return func(ctx context.Context) bool {
		if _, err := ctrl.Tick(ctx); err != nil {
			log.Warn(ctx, "tick failed; pausing", logging.Err(err))
			ctrl.Pause()
			return false
		}
		return ctrl.Running()
	}
}

func serve(ctx context.Context, cfg config.Config, autostart bool, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	a, err := newApp(cfg, reg, log)
	if err != nil {
		return err
	}

	metricsSrv := serveMetrics(cfg.MetricsAddr, a.collector, log)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	log.Info(ctx, "starting control gRPC server",
		logging.String("addr", cfg.GRPCAddr),
		logging.String("profile", cfg.Profile),
	)
	go func() {
		if err := a.grpcServer.Serve(lis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()

	loopDone := a.sched.Start(ctx)
	if autostart {
		if err := a.ctrl.Start(); err != nil {
			log.Warn(ctx, "autostart skipped", logging.Err(err))
		} else {
			a.sched.Resume()
		}
	}

	<-ctx.Done()
	log.Info(context.Background(), "shutting down control server")
	a.sched.Pause()
	a.grpcServer.GracefulStop()
	<-loopDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func serveMetrics(addr string, collector *observability.ControlCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
