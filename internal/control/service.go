package control

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/routing-simulator/core"
	"github.com/signalsfoundry/routing-simulator/internal/logging"
	"github.com/signalsfoundry/routing-simulator/internal/sim/controller"
)

// Driver is the external timer that paces ticks. The scheduler in timectrl
// satisfies it.
type Driver interface {
	Resume()
	Pause()
	SetSpeed(float64) float64
}

// BestActionResult is the payload of the BestAction RPC.
type BestActionResult struct {
	Source core.NodeID `json:"source"`
	Next   core.NodeID `json:"next"`
	Value  float64     `json:"value"`
	Found  bool        `json:"found"`
}

// Service implements SimulationControlServer on top of a Controller.
type Service struct {
	ctrl   *controller.Controller
	driver Driver
	log    logging.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithDriver makes Start, Pause and SetSpeed also steer the tick driver.
func WithDriver(d Driver) ServiceOption {
	return func(s *Service) { s.driver = d }
}

// WithServiceLogger sets the fallback logger used when a request carries none.
func WithServiceLogger(l logging.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService binds a Service to ctrl.
func NewService(ctrl *controller.Controller, opts ...ServiceOption) *Service {
	s := &Service{ctrl: ctrl, log: logging.Noop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ SimulationControlServer = (*Service)(nil)

func (s *Service) ensureReady() error {
	if s == nil || s.ctrl == nil {
		return status.Error(codes.FailedPrecondition, "simulation controller is not configured")
	}
	return nil
}

func (s *Service) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

func stateReply(st controller.State) (*structpb.Struct, error) {
	out, err := toStruct(st)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// GetState returns the current simulation state.
func (s *Service) GetState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return stateReply(s.ctrl.Snapshot())
}

// ListNodes returns the topology's routers under "nodes".
func (s *Service) ListNodes(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	out, err := listStruct("nodes", s.ctrl.Nodes())
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// ListLinks returns every link and its condition under "links".
func (s *Service) ListLinks(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	out, err := listStruct("links", s.ctrl.Links())
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// SetSelection expects string fields "source" and "destination".
func (s *Service) SetSelection(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	src, err := stringField(in, "source")
	if err != nil {
		return nil, ToStatusError(err)
	}
	dst, err := stringField(in, "destination")
	if err != nil {
		return nil, ToStatusError(err)
	}
	st, err := s.ctrl.SetSelection(core.NodeID(src), core.NodeID(dst))
	if err != nil {
		return nil, ToStatusError(err)
	}
	return stateReply(st)
}

// SetStrategy switches the active strategy.
func (s *Service) SetStrategy(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	strategy, err := controller.ParseStrategy(in.GetValue())
	if err != nil {
		return nil, ToStatusError(err)
	}
	st, err := s.ctrl.SetStrategy(strategy)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return stateReply(st)
}

// SetFailureRate stores the clamped percentage and returns it.
func (s *Service) SetFailureRate(ctx context.Context, in *wrapperspb.DoubleValue) (*wrapperspb.DoubleValue, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return wrapperspb.Double(s.ctrl.SetFailureRate(in.GetValue())), nil
}

// SetCongestionLevel stores the clamped percentage and returns it.
func (s *Service) SetCongestionLevel(ctx context.Context, in *wrapperspb.DoubleValue) (*wrapperspb.DoubleValue, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return wrapperspb.Double(s.ctrl.SetCongestionLevel(in.GetValue())), nil
}

// SetSpeed stores the clamped multiplier and forwards it to the driver.
func (s *Service) SetSpeed(ctx context.Context, in *wrapperspb.DoubleValue) (*wrapperspb.DoubleValue, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	speed := s.ctrl.SetSpeed(in.GetValue())
	if s.driver != nil {
		s.driver.SetSpeed(speed)
	}
	return wrapperspb.Double(speed), nil
}

// Start marks the run active and resumes the driver.
func (s *Service) Start(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if err := s.ctrl.Start(); err != nil {
		return nil, ToStatusError(err)
	}
	if s.driver != nil {
		s.driver.Resume()
	}
	s.logger(ctx).Info(ctx, "control: start")
	return stateReply(s.ctrl.Snapshot())
}

// Pause stops the run and the driver.
func (s *Service) Pause(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	s.ctrl.Pause()
	if s.driver != nil {
		s.driver.Pause()
	}
	s.logger(ctx).Info(ctx, "control: pause")
	return stateReply(s.ctrl.Snapshot())
}

// Reset clears the run and stops the driver.
func (s *Service) Reset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if s.driver != nil {
		s.driver.Pause()
	}
	st := s.ctrl.Reset()
	s.logger(ctx).Info(ctx, "control: reset", logging.String("run_id", st.RunID))
	return stateReply(st)
}

// Step runs exactly one tick regardless of the running flag.
func (s *Service) Step(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	st, err := s.ctrl.Tick(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return stateReply(st)
}

func linkEndpoints(in *structpb.Struct) (core.NodeID, core.NodeID, error) {
	a, err := stringField(in, "a")
	if err != nil {
		return "", "", err
	}
	b, err := stringField(in, "b")
	if err != nil {
		return "", "", err
	}
	return core.NodeID(a), core.NodeID(b), nil
}

func linkReply(l core.Link) (*structpb.Struct, error) {
	out, err := toStruct(l)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// ToggleCongestion expects string fields "a" and "b".
func (s *Service) ToggleCongestion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	a, b, err := linkEndpoints(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	l, err := s.ctrl.ToggleCongestion(a, b)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return linkReply(l)
}

// ToggleFailure expects string fields "a" and "b".
func (s *Service) ToggleFailure(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	a, b, err := linkEndpoints(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	l, err := s.ctrl.ToggleFailure(a, b)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return linkReply(l)
}

// AddRandomCongestion congests one random clear link and returns it.
func (s *Service) AddRandomCongestion(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	l, ok := s.ctrl.AddRandomCongestion()
	if !ok {
		return nil, ToStatusError(ErrNoCandidateLink)
	}
	return linkReply(l)
}

// ApplyConditions re-rolls link conditions from the current parameters.
func (s *Service) ApplyConditions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return stateReply(s.ctrl.ApplyConditions())
}

// BestAction reports the highest-valued next hop from the current source.
func (s *Service) BestAction(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	next, value, found := s.ctrl.BestAction()
	out, err := toStruct(BestActionResult{
		Source: s.ctrl.Snapshot().Source,
		Next:   next,
		Value:  value,
		Found:  found,
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// Compare trains for the requested number of episodes (0 picks the default)
// and returns both strategies' paths and scores.
func (s *Service) Compare(ctx context.Context, in *wrapperspb.Int32Value) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if in.GetValue() < 0 {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("episodes must be non-negative, got %d", in.GetValue()))
	}
	cmp, err := s.ctrl.Compare(ctx, int(in.GetValue()))
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := toStruct(cmp)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}
