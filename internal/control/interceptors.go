package control

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/routing-simulator/internal/logging"
	"github.com/signalsfoundry/routing-simulator/internal/observability"
)

const (
	// RequestIDMetadataKey carries a caller-chosen request id.
	RequestIDMetadataKey = "x-request-id"

	tracerName = "github.com/signalsfoundry/routing-simulator/internal/control"
)

// RequestIDUnaryServerInterceptor tags every call with a request id, taken
// from the x-request-id header when the caller sent one, and stores a logger
// carrying that id and the method on the handler's context.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if id := incomingRequestID(ctx); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, log)

		resp, err := handler(ctx, req)
		if err != nil {
			log.Warn(ctx, "control request failed",
				logging.String("code", status.Code(err).String()), logging.Err(err))
			return resp, err
		}
		log.Debug(ctx, "control request handled")
		return resp, nil
	}
}

// TracingUnaryServerInterceptor names the active server span after the
// control method and annotates it with RPC attributes. Without the otelgrpc
// stats handler there is no active span, so one is started here.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := "Control/" + service + "/" + method

		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.SetName(name)
		} else {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		}
		span.SetAttributes(semconv.RPCSystemGRPC, semconv.RPCService(service), semconv.RPCMethod(method))
		if id := logging.RequestIDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}

		resp, err := handler(ctx, req)
		span.SetAttributes(semconv.RPCGRPCStatusCodeKey.Int(int(status.Code(err))))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, status.Convert(err).Message())
		}
		return resp, err
	}
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
