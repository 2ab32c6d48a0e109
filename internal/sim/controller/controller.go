// Package controller owns the simulation state and runs one tick at a time:
// conditions evolve, both strategies plan against the same snapshot, the
// active path is scored and, in adaptive mode, learned from.
package controller

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/routing-simulator/core"
	"github.com/signalsfoundry/routing-simulator/internal/logging"
	"github.com/signalsfoundry/routing-simulator/internal/sim/metrics"
	"github.com/signalsfoundry/routing-simulator/routing"
)

const tracerName = "github.com/signalsfoundry/routing-simulator/internal/sim/controller"

const (
	MinSpeed = 0.1
	MaxSpeed = 10.0

	// DefaultCompareEpisodes is the training length Compare uses when
	// asked for zero episodes.
	DefaultCompareEpisodes = 50
)

// MetricsRecorder receives per-tick measurements. Implementations must be
// cheap; they are called with the controller lock held.
type MetricsRecorder interface {
	ObserveTick(strategy string, delivered, fellBack bool, elapsed time.Duration)
	SetPathMetrics(latency, packetLoss float64, hops int)
	SetScores(traditional, adaptive float64)
	SetLearning(episodes int, epsilon, progress float64)
	SetLinkConditions(failed, congested int)
}

// State is a point-in-time copy of everything the controller exposes.
type State struct {
	RunID       string      `json:"runId"`
	Profile     string      `json:"profile"`
	Source      core.NodeID `json:"source"`
	Destination core.NodeID `json:"destination"`
	Strategy    Strategy    `json:"strategy"`
	Running     bool        `json:"running"`

	Path            routing.Path        `json:"path"`
	Baseline        routing.Path        `json:"baseline"`
	Metrics         metrics.PathMetrics `json:"metrics"`
	BaselineMetrics metrics.PathMetrics `json:"baselineMetrics"`
	FellBack        bool                `json:"fellBack"`

	LearningProgress float64        `json:"learningProgress"`
	Scores           metrics.Scores `json:"scores"`
	Episodes         int            `json:"episodes"`
	Epsilon          float64        `json:"epsilon"`

	Packets   int `json:"packets"`
	Delivered int `json:"delivered"`
	Ticks     int `json:"ticks"`

	FailureRate     float64 `json:"failureRate"`
	CongestionLevel float64 `json:"congestionLevel"`
	Speed           float64 `json:"speed"`

	Explanation string `json:"explanation"`
}

// SuccessRate returns delivered/packets in [0, 1], or 0 before any packet.
func (s State) SuccessRate() float64 {
	if s.Packets == 0 {
		return 0
	}
	return float64(s.Delivered) / float64(s.Packets)
}

// Comparison is the result of Compare.
type Comparison struct {
	Episodes           int                 `json:"episodes"`
	Traditional        routing.Path        `json:"traditional"`
	TraditionalMetrics metrics.PathMetrics `json:"traditionalMetrics"`
	Adaptive           routing.Path        `json:"adaptive"`
	AdaptiveMetrics    metrics.PathMetrics `json:"adaptiveMetrics"`
	Scores             metrics.Scores      `json:"scores"`
}

// Option customises Controller construction.
type Option func(*Controller)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(c *Controller) {
		c.recorder = m
	}
}

// WithSeed fixes the seed every random stream is derived from.
func WithSeed(seed uint64) Option {
	return func(c *Controller) {
		c.seed = seed
	}
}

// WithTracer overrides the tracer used for tick spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// Controller is the single owner of the graph, both routers and the
// simulation counters. Every exported method takes the controller lock, so
// control requests land strictly between ticks.
type Controller struct {
	mu sync.Mutex

	profile    Profile
	graph      *core.Graph
	conditions *core.ConditionSimulator
	planner    *routing.Planner
	router     *routing.AdaptiveRouter
	engine     *metrics.Engine

	log      logging.Logger
	recorder MetricsRecorder
	tracer   trace.Tracer
	seed     uint64

	runID       string
	source      core.NodeID
	destination core.NodeID
	strategy    Strategy
	running     bool
	speed       float64

	path            routing.Path
	baseline        routing.Path
	pathMetrics     metrics.PathMetrics
	baselineMetrics metrics.PathMetrics
	progress        float64
	scores          metrics.Scores
	fellBack        bool
	explanation     string

	packets   int
	delivered int
	ticks     int
}

// New builds a controller for profile p.
func New(p Profile, opts ...Option) (*Controller, error) {
	g, err := p.Topology.Build()
	if err != nil {
		return nil, err
	}
	if p.Strategy == "" {
		p.Strategy = Adaptive
	}
	if _, err := ParseStrategy(string(p.Strategy)); err != nil {
		return nil, err
	}

	c := &Controller{
		profile:     p,
		graph:       g,
		log:         logging.Noop(),
		tracer:      otel.Tracer(tracerName),
		seed:        1,
		source:      p.Source,
		destination: p.Destination,
		strategy:    p.Strategy,
		speed:       1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.log = c.log.With(logging.String("component", "controller"), logging.String("profile", p.Name))

	c.engine = metrics.New(p.Metrics)
	c.planner = routing.NewPlanner(g, p.Planner)
	c.wire(p.Conditions)
	c.runID = uuid.NewString()
	c.refreshLocked()
	c.recordConditionsLocked()
	return c, nil
}

// wire (re)creates the seeded components. Each gets its own PCG stream so
// one component's draws never shift another's.
func (c *Controller) wire(cond core.ConditionConfig) {
	c.conditions = core.NewConditionSimulator(c.graph, rand.New(rand.NewPCG(c.seed, 1)), cond)
	c.router = routing.NewAdaptiveRouter(c.graph, c.planner, rand.New(rand.NewPCG(c.seed, 2)), c.profile.Router)
}

// Tick runs one simulation step: conditions, path computation, metrics,
// packet accounting and learning. It runs whether or not the controller is
// marked running, so callers can single-step.
func (c *Controller) Tick(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkSelectionLocked(); err != nil {
		return c.stateLocked(), err
	}

	ctx, span := c.tracer.Start(ctx, "routesim.tick", trace.WithAttributes(
		attribute.String("routesim.run_id", c.runID),
		attribute.String("routesim.strategy", string(c.strategy)),
		attribute.String("routesim.source", string(c.source)),
		attribute.String("routesim.destination", string(c.destination)),
	))
	defer span.End()
	start := time.Now()

	report := c.conditions.Tick()
	snap := c.graph.Snapshot()

	baseline, err := c.planner.FindPathIn(snap, c.source, c.destination, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return c.stateLocked(), err
	}
	decision := routing.Decision{Path: baseline}
	if c.strategy == Adaptive {
		decision, err = c.router.DecideIn(snap, c.source, c.destination)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return c.stateLocked(), err
		}
	}

	m := c.engine.Evaluate(snap, decision.Path)
	c.ticks++
	c.packets++
	if m.Delivered() {
		c.delivered++
	}
	if c.strategy == Adaptive {
		c.router.RecordOutcome(decision.Path, routing.RewardInputs{
			WeightedCost: m.Latency,
			Delivered:    m.Delivered(),
			Hops:         m.Hops,
		})
	}
	c.applyLocked(snap, baseline, decision, m)

	if c.running && c.profile.PacketLimit > 0 && c.packets >= c.profile.PacketLimit {
		c.running = false
		c.log.Info(ctx, "packet limit reached",
			logging.String("run_id", c.runID),
			logging.Int("packets", c.packets),
			logging.Int("delivered", c.delivered),
		)
	}

	elapsed := time.Since(start)
	c.recordTickLocked(m, decision.FellBack, elapsed)

	span.SetAttributes(
		attribute.StringSlice("routesim.path", decision.Path.Strings()),
		attribute.Bool("routesim.delivered", m.Delivered()),
		attribute.Bool("routesim.fell_back", decision.FellBack),
		attribute.Bool("routesim.reseeded", report.Reseeded),
		attribute.Int("routesim.flipped", report.Flipped),
		attribute.Float64("routesim.latency", m.Latency),
	)

	switch {
	case !decision.Path.Reachable():
		c.log.Warn(ctx, "no route",
			logging.String("source", string(c.source)),
			logging.String("destination", string(c.destination)),
		)
	case decision.FellBack:
		c.log.Warn(ctx, "adaptive walk fell back to shortest path",
			logging.String("path", decision.Path.String()),
			logging.Bool("dead_end", decision.DeadEnd),
		)
	}
	c.log.Debug(ctx, "tick",
		logging.Int("tick", c.ticks),
		logging.String("path", decision.Path.String()),
		logging.Float64("latency", m.Latency),
		logging.Float64("packet_loss", m.PacketLoss),
		logging.Bool("delivered", m.Delivered()),
		logging.Bool("reseeded", report.Reseeded),
		logging.Duration("elapsed", elapsed),
	)
	return c.stateLocked(), nil
}

// applyLocked stores a computed result and derives scores and the
// explanation from it.
func (c *Controller) applyLocked(snap *core.Snapshot, baseline routing.Path, d routing.Decision, m metrics.PathMetrics) {
	c.path = d.Path
	c.baseline = baseline
	c.pathMetrics = m
	c.baselineMetrics = c.engine.Evaluate(snap, baseline)
	c.fellBack = d.FellBack
	c.progress = c.engine.LearningProgress(c.router.Episodes())

	adaptiveMetrics := m
	if c.strategy != Adaptive {
		adaptiveMetrics = c.baselineMetrics
		if greedy, err := c.router.GreedyPath(snap, c.source, c.destination); err == nil {
			adaptiveMetrics = c.engine.Evaluate(snap, greedy.Path)
		}
	}
	c.scores = c.engine.Compare(c.baselineMetrics, adaptiveMetrics, c.progress)

	c.explanation = explain(decisionContext{
		strategy:          c.strategy,
		source:            c.source,
		destination:       c.destination,
		path:              c.path,
		baseline:          baseline,
		pathCongested:     m.Congested > 0,
		baselineCongested: c.baselineMetrics.Congested > 0,
		fellBack:          d.FellBack,
	})
}

// refreshLocked recomputes the displayed path after a control change. It
// never draws random numbers or updates the value table.
func (c *Controller) refreshLocked() {
	if err := c.checkSelectionLocked(); err != nil {
		c.path, c.baseline = nil, nil
		c.pathMetrics, c.baselineMetrics = metrics.PathMetrics{}, metrics.PathMetrics{}
		c.scores = metrics.Scores{}
		c.fellBack = false
		c.explanation = selectionHint(c.source, c.destination)
		return
	}

	snap := c.graph.Snapshot()
	baseline, err := c.planner.FindPathIn(snap, c.source, c.destination, false)
	if err != nil {
		return
	}
	d := routing.Decision{Path: baseline}
	if c.strategy == Adaptive {
		if d, err = c.router.GreedyPath(snap, c.source, c.destination); err != nil {
			return
		}
	}
	c.applyLocked(snap, baseline, d, c.engine.Evaluate(snap, d.Path))
}

func (c *Controller) checkSelectionLocked() error {
	switch {
	case c.source == "" || c.destination == "":
		return fmt.Errorf("%w: source and destination must both be set", ErrInvalidSelection)
	case c.source == c.destination:
		return fmt.Errorf("%w: source and destination must differ", ErrInvalidSelection)
	case !c.graph.HasNode(c.source):
		return fmt.Errorf("%w: %w %q", ErrInvalidSelection, core.ErrUnknownNode, c.source)
	case !c.graph.HasNode(c.destination):
		return fmt.Errorf("%w: %w %q", ErrInvalidSelection, core.ErrUnknownNode, c.destination)
	}
	return nil
}

// SetSelection sets source and destination. Empty IDs leave that end unset;
// unknown IDs are rejected and leave the selection unchanged.
func (c *Controller) SetSelection(source, destination core.NodeID) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setSelectionLocked(source, destination)
}

// SetSource changes only the source.
func (c *Controller) SetSource(id core.NodeID) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setSelectionLocked(id, c.destination)
}

// SetDestination changes only the destination.
func (c *Controller) SetDestination(id core.NodeID) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setSelectionLocked(c.source, id)
}

func (c *Controller) setSelectionLocked(source, destination core.NodeID) (State, error) {
	for _, id := range []core.NodeID{source, destination} {
		if id != "" && !c.graph.HasNode(id) {
			return c.stateLocked(), fmt.Errorf("%w: %w %q", ErrInvalidSelection, core.ErrUnknownNode, id)
		}
	}
	c.source, c.destination = source, destination
	c.refreshLocked()
	c.log.Info(context.Background(), "selection changed",
		logging.String("source", string(source)),
		logging.String("destination", string(destination)),
	)
	return c.stateLocked(), nil
}

// SetStrategy switches the active router.
func (c *Controller) SetStrategy(s Strategy) (State, error) {
	parsed, err := ParseStrategy(string(s))
	if err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy = parsed
	c.refreshLocked()
	c.log.Info(context.Background(), "strategy changed", logging.String("strategy", string(parsed)))
	return c.stateLocked(), nil
}

// SetFailureRate clamps pct into [0, 100] and schedules a reseed of link
// conditions for the next tick. The stored value is returned.
func (c *Controller) SetFailureRate(pct float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.conditions.SetFailureRate(pct)
	c.log.Info(context.Background(), "failure rate changed", logging.Float64("failure_rate", v))
	return v
}

// SetCongestionLevel clamps pct into [0, 100] and schedules a reseed.
func (c *Controller) SetCongestionLevel(pct float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.conditions.SetCongestionLevel(pct)
	c.log.Info(context.Background(), "congestion level changed", logging.Float64("congestion_level", v))
	return v
}

// SetSpeed sets the speed multiplier, clamped to [MinSpeed, MaxSpeed].
func (c *Controller) SetSpeed(v float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = ClampSpeed(v)
	return c.speed
}

// ClampSpeed clamps a speed multiplier into [MinSpeed, MaxSpeed]. NaN maps
// to 1.
func ClampSpeed(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 1
	case v < MinSpeed:
		return MinSpeed
	case v > MaxSpeed:
		return MaxSpeed
	default:
		return v
	}
}

// TickInterval is the profile's tick period divided by the speed multiplier.
func (c *Controller) TickInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(float64(c.profile.TickInterval) / c.speed)
}

// Start marks the simulation running. Bounded runs begin a fresh burst of
// packets.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkSelectionLocked(); err != nil {
		c.explanation = selectionHint(c.source, c.destination)
		return err
	}
	if c.profile.PacketLimit > 0 {
		c.packets, c.delivered = 0, 0
	}
	c.running = true
	c.log.Info(context.Background(), "simulation started", logging.String("run_id", c.runID))
	return nil
}

// Pause stops scheduling further ticks. A tick in progress completes.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.log.Info(context.Background(), "simulation paused", logging.Int("ticks", c.ticks))
	}
	c.running = false
}

// Running reports whether the simulation wants further ticks.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Reset stops the run, clears all link conditions, counters and learned
// values, and restarts every random stream from the seed. Selection,
// strategy, speed and condition parameters are kept.
func (c *Controller) Reset() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	cond := c.profile.Conditions
	cond.FailureRate = c.conditions.FailureRate()
	cond.CongestionLevel = c.conditions.CongestionLevel()

	c.running = false
	c.graph.ResetConditions()
	c.wire(cond)
	c.packets, c.delivered, c.ticks = 0, 0, 0
	c.progress = 0
	c.runID = uuid.NewString()
	c.refreshLocked()
	c.recordConditionsLocked()
	if c.recorder != nil {
		c.recorder.SetLearning(0, c.router.Epsilon(), 0)
	}

	c.log.Info(context.Background(), "simulation reset", logging.String("run_id", c.runID))
	return c.stateLocked()
}

// ToggleCongestion fully congests a clear link or clears a congested one.
func (c *Controller) ToggleCongestion(a, b core.NodeID) (core.Link, error) {
	return c.mutateLink("congestion toggled", func() (core.Link, error) {
		return c.graph.ToggleCongestion(a, b)
	})
}

// ToggleFailure fails a healthy link or restores a failed one.
func (c *Controller) ToggleFailure(a, b core.NodeID) (core.Link, error) {
	return c.mutateLink("failure toggled", func() (core.Link, error) {
		return c.graph.ToggleFailure(a, b)
	})
}

func (c *Controller) mutateLink(msg string, fn func() (core.Link, error)) (core.Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := fn()
	if err != nil {
		return core.Link{}, err
	}
	c.refreshLocked()
	c.recordConditionsLocked()
	c.log.Info(context.Background(), msg,
		logging.String("link", l.Key().String()),
		logging.Float64("congestion", l.Congestion),
		logging.Bool("failed", l.Failed),
	)
	return l, nil
}

// AddRandomCongestion fully congests one random clear, healthy link. It
// reports false when every link is already congested or failed.
func (c *Controller) AddRandomCongestion() (core.Link, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.conditions.CongestRandomLink()
	if !ok {
		return core.Link{}, false
	}
	c.refreshLocked()
	c.recordConditionsLocked()
	c.log.Info(context.Background(), "random congestion added", logging.String("link", l.Key().String()))
	return l, true
}

// ApplyConditions re-rolls every link from the current failure rate and
// congestion level immediately.
func (c *Controller) ApplyConditions() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conditions.Reseed()
	c.refreshLocked()
	c.recordConditionsLocked()
	return c.stateLocked()
}

// Compare trains the adaptive router for episodes walks on the current
// selection, then compares its greedy route with the congestion-blind
// shortest path. Link conditions do not evolve during training and no
// packets are counted.
func (c *Controller) Compare(ctx context.Context, episodes int) (Comparison, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkSelectionLocked(); err != nil {
		return Comparison{}, err
	}
	if episodes <= 0 {
		episodes = DefaultCompareEpisodes
	}

	_, span := c.tracer.Start(ctx, "routesim.compare", trace.WithAttributes(
		attribute.Int("routesim.episodes", episodes),
	))
	defer span.End()

	snap := c.graph.Snapshot()
	for i := 0; i < episodes; i++ {
		d, err := c.router.DecideIn(snap, c.source, c.destination)
		if err != nil {
			span.RecordError(err)
			return Comparison{}, err
		}
		m := c.engine.Evaluate(snap, d.Path)
		c.router.RecordOutcome(d.Path, routing.RewardInputs{
			WeightedCost: m.Latency,
			Delivered:    m.Delivered(),
			Hops:         m.Hops,
		})
	}

	baseline, err := c.planner.FindPathIn(snap, c.source, c.destination, false)
	if err != nil {
		return Comparison{}, err
	}
	greedy, err := c.router.GreedyPath(snap, c.source, c.destination)
	if err != nil {
		return Comparison{}, err
	}

	cmp := Comparison{
		Episodes:           episodes,
		Traditional:        baseline,
		TraditionalMetrics: c.engine.Evaluate(snap, baseline),
		Adaptive:           greedy.Path,
		AdaptiveMetrics:    c.engine.Evaluate(snap, greedy.Path),
	}
	cmp.Scores = c.engine.Compare(cmp.TraditionalMetrics, cmp.AdaptiveMetrics, c.engine.LearningProgress(c.router.Episodes()))

	c.refreshLocked()
	if c.recorder != nil {
		c.recorder.SetLearning(c.router.Episodes(), c.router.Epsilon(), c.progress)
	}
	c.log.Info(ctx, "strategies compared",
		logging.Int("episodes", episodes),
		logging.String("traditional", baseline.String()),
		logging.String("adaptive", greedy.Path.String()),
	)
	return cmp, nil
}

// BestAction returns the highest-valued learned next hop from the current
// source.
func (c *Controller) BestAction() (core.NodeID, float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.router.BestAction(c.source)
}

// ValueTable returns a copy of the learned values.
func (c *Controller) ValueTable() []routing.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.router.Table().Entries()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Nodes lists the topology's nodes.
func (c *Controller) Nodes() []core.Node { return c.graph.Nodes() }

// Links lists every link with its current condition.
func (c *Controller) Links() []core.Link { return c.graph.Links() }

// CurrentPath returns the path from the last tick or control change.
func (c *Controller) CurrentPath() routing.Path {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path.Clone()
}

// Profile returns the profile the controller was built from.
func (c *Controller) Profile() Profile { return c.profile }

func (c *Controller) stateLocked() State {
	return State{
		RunID:            c.runID,
		Profile:          c.profile.Name,
		Source:           c.source,
		Destination:      c.destination,
		Strategy:         c.strategy,
		Running:          c.running,
		Path:             c.path.Clone(),
		Baseline:         c.baseline.Clone(),
		Metrics:          c.pathMetrics,
		BaselineMetrics:  c.baselineMetrics,
		FellBack:         c.fellBack,
		LearningProgress: c.progress,
		Scores:           c.scores,
		Episodes:         c.router.Episodes(),
		Epsilon:          c.router.Epsilon(),
		Packets:          c.packets,
		Delivered:        c.delivered,
		Ticks:            c.ticks,
		FailureRate:      c.conditions.FailureRate(),
		CongestionLevel:  c.conditions.CongestionLevel(),
		Speed:            c.speed,
		Explanation:      c.explanation,
	}
}

func (c *Controller) recordTickLocked(m metrics.PathMetrics, fellBack bool, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	c.recorder.ObserveTick(string(c.strategy), m.Delivered(), fellBack, elapsed)
	c.recorder.SetPathMetrics(m.Latency, m.PacketLoss, m.Hops)
	c.recorder.SetScores(c.scores.Traditional, c.scores.Adaptive)
	c.recorder.SetLearning(c.router.Episodes(), c.router.Epsilon(), c.progress)
	c.recordConditionsLocked()
}

func (c *Controller) recordConditionsLocked() {
	if c.recorder == nil {
		return
	}
	failed, congested := c.graph.ConditionCounts()
	c.recorder.SetLinkConditions(failed, congested)
}
