package core

import (
	"math"
	"math/rand/v2"
)

// ConditionConfig tunes the stochastic link-condition process.
type ConditionConfig struct {
	// DriftStep is the full width of the per-tick congestion perturbation
	// at a congestion level of 50.
	DriftStep float64
	// FlipProbability is the per-link chance that a tick touches the
	// failure flag at all.
	FlipProbability float64
	// ReseedFailProbability is the chance a link re-rolled by Reseed ends
	// up failed.
	ReseedFailProbability float64
	// Every runs drift once per Every ticks. Zero disables drift so links
	// only change through explicit toggles and reseeds.
	Every int

	// Initial parameter values, in percent. Setting them here does not
	// schedule a reseed.
	FailureRate     float64
	CongestionLevel float64
}

// DefaultConditionConfig drifts every tick with a 0.1 step and a 5% flip chance.
func DefaultConditionConfig() ConditionConfig {
	return ConditionConfig{
		DriftStep:             0.1,
		FlipProbability:       0.05,
		ReseedFailProbability: 0.3,
		Every:                 1,
		FailureRate:           10,
		CongestionLevel:       20,
	}
}

// ConditionReport describes what a single Tick did.
type ConditionReport struct {
	Reseeded bool
	Drifted  bool
	Flipped  int
}

// ConditionSimulator evolves link congestion and failures over time. All
// randomness comes from the injected source, so runs are reproducible.
//
// It is not safe for concurrent use; the simulation controller owns it and
// serialises access.
type ConditionSimulator struct {
	graph *Graph
	rng   *rand.Rand
	cfg   ConditionConfig

	failureRate     float64
	congestionLevel float64
	reseedPending   bool
	ticks           int
}

// NewConditionSimulator binds a simulator to g using rng for every draw.
func NewConditionSimulator(g *Graph, rng *rand.Rand, cfg ConditionConfig) *ConditionSimulator {
	return &ConditionSimulator{
		graph:           g,
		rng:             rng,
		cfg:             cfg,
		failureRate:     ClampPercent(cfg.FailureRate),
		congestionLevel: ClampPercent(cfg.CongestionLevel),
	}
}

// SetFailureRate sets the failure rate percentage, clamped to [0, 100], and
// schedules a reseed for the next tick. The stored value is returned.
func (c *ConditionSimulator) SetFailureRate(pct float64) float64 {
	c.failureRate = ClampPercent(pct)
	c.reseedPending = true
	return c.failureRate
}

// SetCongestionLevel sets the congestion level percentage, clamped to
// [0, 100], and schedules a reseed for the next tick.
func (c *ConditionSimulator) SetCongestionLevel(pct float64) float64 {
	c.congestionLevel = ClampPercent(pct)
	c.reseedPending = true
	return c.congestionLevel
}

// FailureRate returns the configured failure rate percentage.
func (c *ConditionSimulator) FailureRate() float64 { return c.failureRate }

// CongestionLevel returns the configured congestion level percentage.
func (c *ConditionSimulator) CongestionLevel() float64 { return c.congestionLevel }

// ReseedPending reports whether the next tick will reseed.
func (c *ConditionSimulator) ReseedPending() bool { return c.reseedPending }

// Tick advances the condition process by one step. A pending reseed takes
// the place of drift on the tick it is applied.
func (c *ConditionSimulator) Tick() ConditionReport {
	c.ticks++
	if c.reseedPending {
		c.Reseed()
		return ConditionReport{Reseeded: true}
	}
	if c.cfg.Every <= 0 || c.ticks%c.cfg.Every != 0 {
		return ConditionReport{}
	}

	report := ConditionReport{Drifted: true}
	amplitude := c.cfg.DriftStep * (0.5 + c.congestionLevel/100)
	enterFailure := c.failureRate / 100

	c.graph.MutateLinks(func(l *Link) {
		l.Congestion += (c.rng.Float64() - 0.5) * amplitude

		if c.rng.Float64() < c.cfg.FlipProbability {
			// A failed link always recovers; a healthy one fails with
			// probability failureRate.
			next := !l.Failed && c.rng.Float64() < enterFailure
			if next != l.Failed {
				report.Flipped++
			}
			l.Failed = next
		}
	})
	return report
}

// Reseed re-rolls every link from the current parameters: congestion is
// drawn uniformly up to congestionLevel and each link is exposed to a
// failure roll with probability failureRate.
func (c *ConditionSimulator) Reseed() {
	c.reseedPending = false
	level := c.congestionLevel / 100
	rate := c.failureRate

	c.graph.MutateLinks(func(l *Link) {
		if c.rng.Float64()*100 < rate {
			l.Failed = c.rng.Float64() < c.cfg.ReseedFailProbability
		}
		l.Congestion = c.rng.Float64() * level
	})
}

// CongestRandomLink fully congests one random link that is neither failed
// nor already congested. It reports false when no such link exists.
func (c *ConditionSimulator) CongestRandomLink() (Link, bool) {
	var candidates []Link
	for _, l := range c.graph.Links() {
		if !l.Failed && !l.Congested() {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return Link{}, false
	}
	pick := candidates[c.rng.IntN(len(candidates))]
	l, err := c.graph.SetCongestion(pick.A, pick.B, 1)
	if err != nil {
		return Link{}, false
	}
	return l, true
}

// Reset clears the tick counter and any pending reseed. Parameters keep
// their current values and link state is left to the caller.
func (c *ConditionSimulator) Reset() {
	c.ticks = 0
	c.reseedPending = false
}

// Ticks returns the number of ticks since construction or the last Reset.
func (c *ConditionSimulator) Ticks() int { return c.ticks }

// ClampPercent clamps v into [0, 100].
func ClampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
