// Package control exposes the simulation controller over gRPC.
//
// The service is declared by hand and its messages are protobuf well-known
// types, so no generated code is needed: state snapshots travel as
// google.protobuf.Struct, scalar arguments as wrapper values.
package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "routesim.control.v1.SimulationControl"

// SimulationControlServer is the server API for the control service.
type SimulationControlServer interface {
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListNodes(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListLinks(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetSelection(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetStrategy(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	SetFailureRate(context.Context, *wrapperspb.DoubleValue) (*wrapperspb.DoubleValue, error)
	SetCongestionLevel(context.Context, *wrapperspb.DoubleValue) (*wrapperspb.DoubleValue, error)
	SetSpeed(context.Context, *wrapperspb.DoubleValue) (*wrapperspb.DoubleValue, error)
	Start(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Pause(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Reset(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Step(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ToggleCongestion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToggleFailure(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddRandomCongestion(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ApplyConditions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	BestAction(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Compare(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error)
}

// RegisterSimulationControlServer registers srv on s.
func RegisterSimulationControlServer(s grpc.ServiceRegistrar, srv SimulationControlServer) {
	s.RegisterService(&SimulationControlServiceDesc, srv)
}

// SimulationControlServiceDesc is the grpc.ServiceDesc for the control service.
var SimulationControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulationControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary[emptypb.Empty]("GetState", SimulationControlServer.GetState),
		unary[emptypb.Empty]("ListNodes", SimulationControlServer.ListNodes),
		unary[emptypb.Empty]("ListLinks", SimulationControlServer.ListLinks),
		unary[structpb.Struct]("SetSelection", SimulationControlServer.SetSelection),
		unary[wrapperspb.StringValue]("SetStrategy", SimulationControlServer.SetStrategy),
		unary[wrapperspb.DoubleValue]("SetFailureRate", SimulationControlServer.SetFailureRate),
		unary[wrapperspb.DoubleValue]("SetCongestionLevel", SimulationControlServer.SetCongestionLevel),
		unary[wrapperspb.DoubleValue]("SetSpeed", SimulationControlServer.SetSpeed),
		unary[emptypb.Empty]("Start", SimulationControlServer.Start),
		unary[emptypb.Empty]("Pause", SimulationControlServer.Pause),
		unary[emptypb.Empty]("Reset", SimulationControlServer.Reset),
		unary[emptypb.Empty]("Step", SimulationControlServer.Step),
		unary[structpb.Struct]("ToggleCongestion", SimulationControlServer.ToggleCongestion),
		unary[structpb.Struct]("ToggleFailure", SimulationControlServer.ToggleFailure),
		unary[emptypb.Empty]("AddRandomCongestion", SimulationControlServer.AddRandomCongestion),
		unary[emptypb.Empty]("ApplyConditions", SimulationControlServer.ApplyConditions),
		unary[emptypb.Empty]("BestAction", SimulationControlServer.BestAction),
		unary[wrapperspb.Int32Value]("Compare", SimulationControlServer.Compare),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "routesim/control/v1/control.proto",
}

// unary builds the MethodDesc for one RPC, mirroring what protoc-gen-go-grpc
// emits per method.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](name string, call func(SimulationControlServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(SimulationControlServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FullMethod returns the invoke path for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}
