package control

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/routing-simulator/core"
	"github.com/signalsfoundry/routing-simulator/internal/sim/controller"
)

var (
	// ErrMissingField is returned when a request struct lacks a required key.
	ErrMissingField = errors.New("missing required field")
	// ErrNoCandidateLink is returned when no link can be congested.
	ErrNoCandidateLink = errors.New("no clear, healthy link left to congest")
)

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, core.ErrUnknownLink),
		errors.Is(err, controller.ErrUnknownProfile):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrMissingField),
		errors.Is(err, core.ErrUnknownNode),
		errors.Is(err, controller.ErrInvalidSelection),
		errors.Is(err, controller.ErrUnknownStrategy):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, ErrNoCandidateLink):
		return status.Error(codes.FailedPrecondition, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
