package controller

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signalsfoundry/routing-simulator/core"
	"github.com/signalsfoundry/routing-simulator/internal/sim/metrics"
	"github.com/signalsfoundry/routing-simulator/routing"
)

var (
	// ErrInvalidSelection rejects a missing, unknown or degenerate
	// source/destination pair.
	ErrInvalidSelection = errors.New("invalid source/destination selection")
	// ErrUnknownStrategy is returned for strategy names other than
	// traditional or adaptive.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrUnknownProfile is returned by ProfileByName.
	ErrUnknownProfile = errors.New("unknown profile")
)

// Strategy selects which router produces the active path.
type Strategy string

const (
	Traditional Strategy = "traditional"
	Adaptive    Strategy = "adaptive"
)

// ParseStrategy accepts the canonical names plus the "dijkstra" and "ai"
// aliases.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "traditional", "dijkstra", "shortest":
		return Traditional, nil
	case "adaptive", "ai", "qlearning":
		return Adaptive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Profile is one complete configuration of the simulator core. The two
// built-in variants differ only in data, never in code path.
type Profile struct {
	Name       string
	Topology   core.Topology
	Planner    routing.PlannerConfig
	Router     routing.Config
	Metrics    metrics.Config
	Conditions core.ConditionConfig

	// PacketLimit stops a run after that many packets. Zero runs until paused.
	PacketLimit int

	Source      core.NodeID
	Destination core.NodeID
	Strategy    Strategy

	// TickInterval is the wall-clock period at speed 1.
	TickInterval time.Duration
}

// RichProfile is the eight-router latency-driven comparison.
func RichProfile() Profile {
	cond := core.DefaultConditionConfig()
	cond.Every = 2

	return Profile{
		Name:         "rich",
		Topology:     core.RichTopology(),
		Planner:      routing.PlannerConfig{PenaltyFactor: 10},
		Router:       routing.DefaultConfig(),
		Metrics:      metrics.DefaultConfig(),
		Conditions:   cond,
		Source:       "A",
		Destination:  "H",
		Strategy:     Adaptive,
		TickInterval: time.Second,
	}
}

// SimpleProfile is the six-node packet-counting demo: links are either clear
// or fully congested and only change through explicit controls.
func SimpleProfile() Profile {
	return Profile{
		Name:     "simple",
		Topology: core.SimpleTopology(),
		Planner:  routing.PlannerConfig{PenaltyFactor: 50},
		Router: routing.Config{
			LearningRate:      0.1,
			Discount:          0,
			Epsilon:           0.2,
			EpsilonDecay:      1,
			EpsilonFloor:      0.2,
			MaxHops:           5,
			InitialValueScale: 0.1,
			CongestionBias:    2,
			Reward:            routing.DefaultSuccessReward(),
		},
		Metrics: metrics.DefaultConfig(),
		Conditions: core.ConditionConfig{
			DriftStep:             0.1,
			FlipProbability:       0.05,
			ReseedFailProbability: 0.3,
		},
		PacketLimit:  20,
		Source:       "A",
		Destination:  "F",
		Strategy:     Traditional,
		TickInterval: 200 * time.Millisecond,
	}
}

// RingProfile is a four-node ring with the rich profile's tuning and no drift.
func RingProfile() Profile {
	p := RichProfile()
	p.Name = "ring"
	p.Topology = core.RingTopology()
	p.Conditions.Every = 0
	p.Conditions.FailureRate = 0
	p.Conditions.CongestionLevel = 0
	p.Source, p.Destination = "A", "C"
	return p
}

var profiles = map[string]func() Profile{
	"rich":   RichProfile,
	"simple": SimpleProfile,
	"ring":   RingProfile,
}

// ProfileByName returns a fresh copy of a built-in profile.
func ProfileByName(name string) (Profile, error) {
	fn, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownProfile, name, strings.Join(Profiles(), ", "))
	}
	return fn(), nil
}

// Profiles lists the built-in profile names.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
