package routing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownReward is returned by RewardByName for unrecognised names.
var ErrUnknownReward = errors.New("unknown reward shape")

// RewardInputs summarises one evaluated path.
type RewardInputs struct {
	// WeightedCost is cost plus congestion penalty along the path.
	WeightedCost float64
	// Delivered reports whether the packet reached its destination.
	Delivered bool
	Hops      int
}

// RewardShape turns a path outcome into a scalar reward. Higher is better.
type RewardShape interface {
	Name() string
	Reward(in RewardInputs) float64
}

// LatencyReward rewards cheaper paths: the reward is the negated weighted cost.
type LatencyReward struct{}

func (LatencyReward) Name() string { return "latency" }

func (LatencyReward) Reward(in RewardInputs) float64 { return -in.WeightedCost }

// SuccessReward pays a fixed amount for delivered packets and charges a
// fixed amount for dropped ones.
type SuccessReward struct {
	Delivered float64
	Dropped   float64
}

// DefaultSuccessReward pays +10 per delivery and -5 per drop.
func DefaultSuccessReward() SuccessReward {
	return SuccessReward{Delivered: 10, Dropped: -5}
}

func (SuccessReward) Name() string { return "success" }

func (r SuccessReward) Reward(in RewardInputs) float64 {
	if in.Delivered {
		return r.Delivered
	}
	return r.Dropped
}

// RewardByName resolves "latency" or "success".
func RewardByName(name string) (RewardShape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "latency", "cost":
		return LatencyReward{}, nil
	case "success", "delivery":
		return DefaultSuccessReward(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReward, name)
	}
}
