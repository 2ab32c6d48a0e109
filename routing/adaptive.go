package routing

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/signalsfoundry/routing-simulator/core"
)

// Config tunes the adaptive router.
type Config struct {
	LearningRate float64
	Discount     float64

	// Epsilon is the initial exploration probability. After N completed
	// episodes the live value is max(EpsilonFloor, Epsilon*EpsilonDecay^N).
	Epsilon      float64
	EpsilonDecay float64
	EpsilonFloor float64

	// MaxHops bounds a single exploration walk.
	MaxHops int

	// InitialValueScale is the upper bound of the random value given to a
	// table entry the first time it is updated.
	InitialValueScale float64

	// CongestionBias is subtracted from the value of a congested next hop
	// during exploitation. Zero disables it.
	CongestionBias float64

	Reward RewardShape
}

// DefaultConfig returns the latency-driven router used by the rich profile.
func DefaultConfig() Config {
	return Config{
		LearningRate:      0.1,
		Discount:          0.9,
		Epsilon:           0.1,
		EpsilonDecay:      0.995,
		EpsilonFloor:      0.01,
		MaxHops:           10,
		InitialValueScale: 0.1,
		Reward:            LatencyReward{},
	}
}

func (c Config) withDefaults() Config {
	if c.MaxHops <= 0 {
		c.MaxHops = 10
	}
	if c.EpsilonDecay <= 0 {
		c.EpsilonDecay = 1
	}
	if c.EpsilonFloor > c.Epsilon {
		c.EpsilonFloor = c.Epsilon
	}
	if c.Reward == nil {
		c.Reward = LatencyReward{}
	}
	return c
}

// Decision is the outcome of one route attempt.
type Decision struct {
	Path Path
	// Explored counts hops chosen at random rather than by value.
	Explored int
	// FellBack is set when the walk failed and the planner supplied the path.
	FellBack bool
	// DeadEnd distinguishes a walk with no usable neighbor from one that
	// ran out of hops. Only meaningful when FellBack is set.
	DeadEnd bool
}

// AdaptiveRouter picks next hops epsilon-greedily from a learned value
// table and falls back to the congestion-aware planner when a walk fails.
//
// It is not safe for concurrent use.
type AdaptiveRouter struct {
	graph   *core.Graph
	planner *Planner
	rng     *rand.Rand
	cfg     Config

	table    *ValueTable
	episodes int
	epsilon  float64
}

// NewAdaptiveRouter builds a router over g. planner supplies fallback paths.
func NewAdaptiveRouter(g *core.Graph, planner *Planner, rng *rand.Rand, cfg Config) *AdaptiveRouter {
	cfg = cfg.withDefaults()
	return &AdaptiveRouter{
		graph:   g,
		planner: planner,
		rng:     rng,
		cfg:     cfg,
		table:   NewValueTable(),
		epsilon: cfg.Epsilon,
	}
}

// Config returns the effective configuration.
func (r *AdaptiveRouter) Config() Config { return r.cfg }

// ChoosePath returns a route from src to dst. It only fails for unknown nodes.
func (r *AdaptiveRouter) ChoosePath(src, dst core.NodeID) (Path, error) {
	d, err := r.Decide(src, dst)
	if err != nil {
		return nil, err
	}
	return d.Path, nil
}

// Decide runs one epsilon-greedy walk against a fresh snapshot.
func (r *AdaptiveRouter) Decide(src, dst core.NodeID) (Decision, error) {
	return r.DecideIn(r.graph.Snapshot(), src, dst)
}

// DecideIn runs one epsilon-greedy walk against snap.
func (r *AdaptiveRouter) DecideIn(snap *core.Snapshot, src, dst core.NodeID) (Decision, error) {
	return r.walk(snap, src, dst, r.epsilon)
}

// GreedyPath returns the pure-exploitation route without touching the RNG.
func (r *AdaptiveRouter) GreedyPath(snap *core.Snapshot, src, dst core.NodeID) (Decision, error) {
	return r.walk(snap, src, dst, 0)
}

func (r *AdaptiveRouter) walk(snap *core.Snapshot, src, dst core.NodeID, epsilon float64) (Decision, error) {
	if !snap.HasNode(src) {
		return Decision{}, fmt.Errorf("%w: source %q", core.ErrUnknownNode, src)
	}
	if !snap.HasNode(dst) {
		return Decision{}, fmt.Errorf("%w: destination %q", core.ErrUnknownNode, dst)
	}

	var d Decision
	path := Path{src}
	visited := map[core.NodeID]bool{src: true}
	current := src

	for hop := 0; hop < r.cfg.MaxHops && current != dst; hop++ {
		candidates := r.candidates(snap, current, visited)
		if len(candidates) == 0 {
			d.DeadEnd = true
			break
		}

		var next core.Link
		if epsilon > 0 && r.rng.Float64() < epsilon {
			next = candidates[r.rng.IntN(len(candidates))]
			d.Explored++
		} else {
			next = r.best(current, candidates)
		}

		current = next.Other(current)
		visited[current] = true
		path = append(path, current)
	}

	if current == dst {
		d.Path = path
		return d, nil
	}

	fallback, err := r.planner.FindPathIn(snap, src, dst, true)
	if err != nil {
		return Decision{}, err
	}
	d.Path = fallback
	d.FellBack = true
	return d, nil
}

// candidates returns the usable links out of node that lead somewhere new.
func (r *AdaptiveRouter) candidates(snap *core.Snapshot, node core.NodeID, visited map[core.NodeID]bool) []core.Link {
	var out []core.Link
	for _, l := range snap.Edges(node) {
		if l.Failed || visited[l.Other(node)] {
			continue
		}
		out = append(out, l)
	}
	return out
}

// best returns the first candidate with the highest adjusted value.
func (r *AdaptiveRouter) best(node core.NodeID, candidates []core.Link) core.Link {
	bestLink := candidates[0]
	bestValue := r.score(node, bestLink)
	for _, l := range candidates[1:] {
		if v := r.score(node, l); v > bestValue {
			bestLink, bestValue = l, v
		}
	}
	return bestLink
}

func (r *AdaptiveRouter) score(node core.NodeID, l core.Link) float64 {
	v := r.table.Value(node, l.Other(node))
	if l.Congested() {
		v -= r.cfg.CongestionBias
	}
	return v
}

// RecordOutcome applies one temporal-difference update along path and
// completes an episode. Paths without a hop are ignored. The reward that
// was applied is returned.
func (r *AdaptiveRouter) RecordOutcome(path Path, in RewardInputs) float64 {
	if len(path) < 2 {
		return 0
	}
	reward := r.cfg.Reward.Reward(in)

	for i := 0; i+1 < len(path); i++ {
		state, action := path[i], path[i+1]
		q, ok := r.table.Get(state, action)
		if !ok {
			q = r.rng.Float64() * r.cfg.InitialValueScale
		}
		next := 0.0
		if i+2 < len(path) {
			next = r.table.Value(action, path[i+2])
		}
		r.table.Set(state, action, q+r.cfg.LearningRate*(reward+r.cfg.Discount*next-q))
	}

	r.episodes++
	r.epsilon = EpsilonAfter(r.cfg.Epsilon, r.cfg.EpsilonDecay, r.cfg.EpsilonFloor, r.episodes)
	return reward
}

// EpsilonAfter returns max(floor, initial*decay^episodes).
func EpsilonAfter(initial, decay, floor float64, episodes int) float64 {
	return math.Max(floor, initial*math.Pow(decay, float64(episodes)))
}

// BestAction returns the highest-valued learned next hop out of state.
// It reports false when no entry for state exists.
func (r *AdaptiveRouter) BestAction(state core.NodeID) (core.NodeID, float64, bool) {
	var (
		action core.NodeID
		value  float64
		found  bool
	)
	for _, e := range r.table.Entries() {
		if e.State != state {
			continue
		}
		if !found || e.Value > value {
			action, value, found = e.Action, e.Value, true
		}
	}
	return action, value, found
}

// Epsilon returns the current exploration probability.
func (r *AdaptiveRouter) Epsilon() float64 { return r.epsilon }

// Episodes returns the number of completed updates.
func (r *AdaptiveRouter) Episodes() int { return r.episodes }

// Table exposes the learned values.
func (r *AdaptiveRouter) Table() *ValueTable { return r.table }

// Reset discards everything learned and restores the initial epsilon.
func (r *AdaptiveRouter) Reset() {
	r.table.Clear()
	r.episodes = 0
	r.epsilon = r.cfg.Epsilon
}
