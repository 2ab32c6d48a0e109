package control

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/routing-simulator/internal/logging"
	"github.com/signalsfoundry/routing-simulator/internal/observability"
)

// ServerConfig selects the middleware installed by NewServer.
type ServerConfig struct {
	Logger    logging.Logger
	Collector *observability.ControlCollector
	// Tracing installs the otelgrpc stats handler in front of the
	// tracing interceptor.
	Tracing bool
}

// NewServer builds a gRPC server exposing svc plus the standard health
// service. The health status of ServiceName starts as SERVING.
func NewServer(svc *Service, cfg ServerConfig, extra ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(cfg.Logger),
		TracingUnaryServerInterceptor(),
	}
	if cfg.Collector != nil {
		interceptors = append(interceptors, cfg.Collector.UnaryServerInterceptor())
	}

	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(interceptors...)}
	if cfg.Tracing {
		opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}
	opts = append(opts, extra...)

	server := grpc.NewServer(opts...)
	RegisterSimulationControlServer(server, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}
