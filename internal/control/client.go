package control

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/routing-simulator/core"
	"github.com/signalsfoundry/routing-simulator/internal/sim/controller"
)

// Client is a typed wrapper around the control service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithRequestID attaches id as the request id of outgoing calls on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
}

func (c *Client) invoke(ctx context.Context, method string, in, out proto.Message, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, FullMethod(method), in, out, opts...)
}

func (c *Client) state(ctx context.Context, method string, in proto.Message, opts ...grpc.CallOption) (controller.State, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, method, in, out, opts...); err != nil {
		return controller.State{}, err
	}
	var st controller.State
	if err := fromStruct(out, &st); err != nil {
		return controller.State{}, fmt.Errorf("%s: %w", method, err)
	}
	return st, nil
}

func (c *Client) link(ctx context.Context, method string, in proto.Message, opts ...grpc.CallOption) (core.Link, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, method, in, out, opts...); err != nil {
		return core.Link{}, err
	}
	var l core.Link
	if err := fromStruct(out, &l); err != nil {
		return core.Link{}, fmt.Errorf("%s: %w", method, err)
	}
	return l, nil
}

func (c *Client) double(ctx context.Context, method string, v float64, opts ...grpc.CallOption) (float64, error) {
	out := new(wrapperspb.DoubleValue)
	if err := c.invoke(ctx, method, wrapperspb.Double(v), out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// GetState fetches the current state.
func (c *Client) GetState(ctx context.Context, opts ...grpc.CallOption) (controller.State, error) {
	return c.state(ctx, "GetState", &emptypb.Empty{}, opts...)
}

// ListNodes fetches the topology's routers.
func (c *Client) ListNodes(ctx context.Context, opts ...grpc.CallOption) ([]core.Node, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "ListNodes", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	var body struct {
		Nodes []core.Node `json:"nodes"`
	}
	if err := fromStruct(out, &body); err != nil {
		return nil, fmt.Errorf("ListNodes: %w", err)
	}
	return body.Nodes, nil
}

// ListLinks fetches every link with its current condition.
func (c *Client) ListLinks(ctx context.Context, opts ...grpc.CallOption) ([]core.Link, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "ListLinks", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	var body struct {
		Links []core.Link `json:"links"`
	}
	if err := fromStruct(out, &body); err != nil {
		return nil, fmt.Errorf("ListLinks: %w", err)
	}
	return body.Links, nil
}

// SetSelection picks the source and destination routers.
func (c *Client) SetSelection(ctx context.Context, source, destination core.NodeID, opts ...grpc.CallOption) (controller.State, error) {
	in, err := stringPair("source", string(source), "destination", string(destination))
	if err != nil {
		return controller.State{}, err
	}
	return c.state(ctx, "SetSelection", in, opts...)
}

// SetStrategy switches between traditional and adaptive routing.
func (c *Client) SetStrategy(ctx context.Context, s controller.Strategy, opts ...grpc.CallOption) (controller.State, error) {
	return c.state(ctx, "SetStrategy", wrapperspb.String(string(s)), opts...)
}

// SetFailureRate returns the stored, clamped percentage.
func (c *Client) SetFailureRate(ctx context.Context, pct float64, opts ...grpc.CallOption) (float64, error) {
	return c.double(ctx, "SetFailureRate", pct, opts...)
}

// SetCongestionLevel returns the stored, clamped percentage.
func (c *Client) SetCongestionLevel(ctx context.Context, pct float64, opts ...grpc.CallOption) (float64, error) {
	return c.double(ctx, "SetCongestionLevel", pct, opts...)
}

// SetSpeed returns the stored, clamped multiplier.
func (c *Client) SetSpeed(ctx context.Context, v float64, opts ...grpc.CallOption) (float64, error) {
	return c.double(ctx, "SetSpeed", v, opts...)
}

func (c *Client) Start(ctx context.Context, opts ...grpc.CallOption) (controller.State, error) {
	return c.state(ctx, "Start", &emptypb.Empty{}, opts...)
}

func (c *Client) Pause(ctx context.Context, opts ...grpc.CallOption) (controller.State, error) {
	return c.state(ctx, "Pause", &emptypb.Empty{}, opts...)
}

func (c *Client) Reset(ctx context.Context, opts ...grpc.CallOption) (controller.State, error) {
	return c.state(ctx, "Reset", &emptypb.Empty{}, opts...)
}

// Step runs a single tick on the server.
func (c *Client) Step(ctx context.Context, opts ...grpc.CallOption) (controller.State, error) {
	return c.state(ctx, "Step", &emptypb.Empty{}, opts...)
}

func (c *Client) ToggleCongestion(ctx context.Context, a, b core.NodeID, opts ...grpc.CallOption) (core.Link, error) {
	in, err := stringPair("a", string(a), "b", string(b))
	if err != nil {
		return core.Link{}, err
	}
	return c.link(ctx, "ToggleCongestion", in, opts...)
}

func (c *Client) ToggleFailure(ctx context.Context, a, b core.NodeID, opts ...grpc.CallOption) (core.Link, error) {
	in, err := stringPair("a", string(a), "b", string(b))
	if err != nil {
		return core.Link{}, err
	}
	return c.link(ctx, "ToggleFailure", in, opts...)
}

func (c *Client) AddRandomCongestion(ctx context.Context, opts ...grpc.CallOption) (core.Link, error) {
	return c.link(ctx, "AddRandomCongestion", &emptypb.Empty{}, opts...)
}

func (c *Client) ApplyConditions(ctx context.Context, opts ...grpc.CallOption) (controller.State, error) {
	return c.state(ctx, "ApplyConditions", &emptypb.Empty{}, opts...)
}

// BestAction returns the learned best next hop from the current source.
func (c *Client) BestAction(ctx context.Context, opts ...grpc.CallOption) (BestActionResult, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "BestAction", &emptypb.Empty{}, out, opts...); err != nil {
		return BestActionResult{}, err
	}
	var res BestActionResult
	if err := fromStruct(out, &res); err != nil {
		return BestActionResult{}, fmt.Errorf("BestAction: %w", err)
	}
	return res, nil
}

// Compare trains for episodes walks and compares both strategies.
func (c *Client) Compare(ctx context.Context, episodes int32, opts ...grpc.CallOption) (controller.Comparison, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Compare", wrapperspb.Int32(episodes), out, opts...); err != nil {
		return controller.Comparison{}, err
	}
	var cmp controller.Comparison
	if err := fromStruct(out, &cmp); err != nil {
		return controller.Comparison{}, fmt.Errorf("Compare: %w", err)
	}
	return cmp, nil
}
