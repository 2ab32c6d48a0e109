// Package metrics derives path-quality numbers and strategy scores from a
// path and a graph snapshot. Everything here is a pure function of its
// inputs.
package metrics

import (
	"math"

	"github.com/signalsfoundry/routing-simulator/core"
	"github.com/signalsfoundry/routing-simulator/routing"
)

// Config holds the scaling constants of the metric formulas.
type Config struct {
	// LatencyPenalty is the extra latency in ms charged for a fully
	// congested link.
	LatencyPenalty float64
	// LossPerCongestion converts summed congestion into loss percent.
	LossPerCongestion float64
	// ProgressPerEpisode is the learning progress, in percent, credited
	// for each completed episode.
	ProgressPerEpisode float64
	// LatencyScoreDivisor scales latency before it is subtracted from 100.
	LatencyScoreDivisor float64
	// ProgressBoostDivisor scales learning progress into the adaptive
	// score bonus.
	ProgressBoostDivisor float64
}

// DefaultConfig returns the constants used by every built-in profile.
func DefaultConfig() Config {
	return Config{
		LatencyPenalty:       20,
		LossPerCongestion:    50,
		ProgressPerEpisode:   2,
		LatencyScoreDivisor:  10,
		ProgressBoostDivisor: 5,
	}
}

// PathMetrics describes one path under one link state.
type PathMetrics struct {
	Latency    float64 `json:"latency"`
	Hops       int     `json:"hops"`
	PacketLoss float64 `json:"packetLoss"`
	// Congested counts links on the path above core.CongestedThreshold.
	Congested int  `json:"congested"`
	Reachable bool `json:"reachable"`
}

// Delivered reports whether a packet sent along the path arrives: the path
// must be reachable and free of congested links.
func (m PathMetrics) Delivered() bool { return m.Reachable && m.Congested == 0 }

// Scores pairs the performance of both strategies. Higher is better.
type Scores struct {
	Traditional float64 `json:"traditional"`
	Adaptive    float64 `json:"adaptive"`
}

// Engine evaluates paths. The zero value is not usable; use New.
type Engine struct {
	cfg Config
}

// New returns an engine using cfg.
func New(cfg Config) *Engine { return &Engine{cfg: cfg} }

// Config returns the engine constants.
func (e *Engine) Config() Config { return e.cfg }

// Evaluate measures path against snap. Steps over links missing from the
// snapshot contribute nothing.
func (e *Engine) Evaluate(snap *core.Snapshot, path routing.Path) PathMetrics {
	m := PathMetrics{
		Hops:      path.Hops(),
		Reachable: path.Reachable(),
	}
	congestion := 0.0
	for i := 0; i+1 < len(path); i++ {
		l, ok := snap.Link(path[i], path[i+1])
		if !ok {
			continue
		}
		m.Latency += l.Cost + l.Congestion*e.cfg.LatencyPenalty
		congestion += l.Congestion
		if l.Congested() {
			m.Congested++
		}
	}
	m.PacketLoss = math.Min(100, congestion*e.cfg.LossPerCongestion)
	return m
}

// LearningProgress maps an episode count onto [0, 100].
func (e *Engine) LearningProgress(episodes int) float64 {
	if episodes <= 0 {
		return 0
	}
	return math.Min(100, float64(episodes)*e.cfg.ProgressPerEpisode)
}

// Score rates a single path on [0, 100]. Unreachable paths score 0.
func (e *Engine) Score(m PathMetrics) float64 {
	if !m.Reachable {
		return 0
	}
	return clamp(100 - (m.Latency/e.cfg.LatencyScoreDivisor + m.PacketLoss))
}

// Compare scores the shortest-path result and the adaptive result. The
// adaptive score is boosted by learning progress.
func (e *Engine) Compare(traditional, adaptive PathMetrics, progress float64) Scores {
	s := Scores{Traditional: e.Score(traditional)}
	if adaptive.Reachable {
		s.Adaptive = clamp(e.Score(adaptive) + progress/e.cfg.ProgressBoostDivisor)
	}
	return s
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
