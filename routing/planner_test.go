package routing

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/routing-simulator/core"
)

func buildGraph(t *testing.T, topo core.Topology) *core.Graph {
	t.Helper()
	g, err := topo.Build()
	require.NoError(t, err)
	return g
}

// bruteForceCost enumerates every simple path from src to dst over usable
// links and returns the cheapest weighted cost, or +Inf.
func bruteForceCost(snap *core.Snapshot, src, dst core.NodeID, penalty float64) float64 {
	best := math.Inf(1)
	visited := map[core.NodeID]bool{src: true}
	var dfs func(at core.NodeID, cost float64)
	dfs = func(at core.NodeID, cost float64) {
		if at == dst {
			best = math.Min(best, cost)
			return
		}
		for _, l := range snap.Edges(at) {
			next := l.Other(at)
			if l.Failed || visited[next] {
				continue
			}
			visited[next] = true
			dfs(next, cost+l.Cost+l.Congestion*penalty)
			visited[next] = false
		}
	}
	dfs(src, 0)
	return best
}

func TestFindPathMatchesBruteForce(t *testing.T) {
	for _, topo := range []core.Topology{core.RichTopology(), core.SimpleTopology(), core.RingTopology()} {
		g := buildGraph(t, topo)
		p := NewPlanner(g, DefaultPlannerConfig())
		snap := g.Snapshot()

		for _, src := range snap.Nodes() {
			for _, dst := range snap.Nodes() {
				if src == dst {
					continue
				}
				path, err := p.FindPath(src, dst, false)
				require.NoError(t, err)
				require.True(t, path.Reachable(), "%s: %s->%s unreachable", topo.Name, src, dst)
				require.Equal(t, src, path.Source())
				require.Equal(t, dst, path.Destination())

				got, err := WeightedCost(snap, path, 0)
				require.NoError(t, err)
				require.InDelta(t, bruteForceCost(snap, src, dst, 0), got, 1e-9, "%s: %s->%s", topo.Name, src, dst)
			}
		}
	}
}

func TestFindPathIgnoresCongestionWhenBlind(t *testing.T) {
	g := buildGraph(t, core.RingTopology())
	_, err := g.SetCongestion("A", "B", 1)
	require.NoError(t, err)
	_, err = g.SetCongestion("B", "C", 1)
	require.NoError(t, err)

	p := NewPlanner(g, PlannerConfig{PenaltyFactor: 50})

	blind, err := p.FindPath("A", "C", false)
	require.NoError(t, err)
	require.Equal(t, Path{"A", "B", "C"}, blind)

	aware, err := p.FindPath("A", "C", true)
	require.NoError(t, err)
	require.Equal(t, Path{"A", "D", "C"}, aware)
}

func TestFindPathRingExample(t *testing.T) {
	g := buildGraph(t, core.RingTopology())
	p := NewPlanner(g, DefaultPlannerConfig())

	path, err := p.FindPath("A", "C", false)
	require.NoError(t, err)
	cost, err := WeightedCost(g.Snapshot(), path, 0)
	require.NoError(t, err)
	require.Equal(t, 20.0, cost)
	require.Contains(t, []string{"A → B → C", "A → D → C"}, path.String())

	_, err = g.SetFailed("A", "B", true)
	require.NoError(t, err)

	path, err = p.FindPath("A", "C", false)
	require.NoError(t, err)
	require.Equal(t, Path{"A", "D", "C"}, path)
	cost, err = WeightedCost(g.Snapshot(), path, 0)
	require.NoError(t, err)
	require.Equal(t, 20.0, cost)
}

func TestFindPathTieBreakFollowsInsertionOrder(t *testing.T) {
	g := buildGraph(t, core.RingTopology())
	p := NewPlanner(g, DefaultPlannerConfig())

	// B and D both sit at distance 10; B was declared first so it settles
	// first and claims C.
	for i := 0; i < 5; i++ {
		path, err := p.FindPath("A", "C", false)
		require.NoError(t, err)
		require.Equal(t, Path{"A", "B", "C"}, path)
	}
}

func TestFindPathFailureExclusion(t *testing.T) {
	g, err := core.NewGraph(
		[]core.Node{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		[]core.Link{{A: "A", B: "B", Cost: 1}, {A: "B", B: "C", Cost: 1}},
	)
	require.NoError(t, err)
	p := NewPlanner(g, DefaultPlannerConfig())

	for _, l := range g.Links() {
		_, err := g.SetFailed(l.A, l.B, true)
		require.NoError(t, err)

		path, err := p.FindPath("A", "C", false)
		require.NoError(t, err)
		require.Equal(t, Path{"A"}, path)
		require.False(t, path.Reachable())

		_, err = g.SetFailed(l.A, l.B, false)
		require.NoError(t, err)
	}
}

func TestFindPathCongestionMonotonicity(t *testing.T) {
	g := buildGraph(t, core.RichTopology())
	p := NewPlanner(g, DefaultPlannerConfig())
	nodes := g.Snapshot().Nodes()

	for _, l := range g.Links() {
		for _, src := range nodes {
			for _, dst := range nodes {
				if src == dst {
					continue
				}
				_, err := g.SetCongestion(l.A, l.B, 0.2)
				require.NoError(t, err)
				before, err := p.FindPath(src, dst, true)
				require.NoError(t, err)
				beforeCost, err := p.Cost(g.Snapshot(), before, true)
				require.NoError(t, err)

				_, err = g.SetCongestion(l.A, l.B, 0.9)
				require.NoError(t, err)
				snap := g.Snapshot()
				after, err := p.FindPathIn(snap, src, dst, true)
				require.NoError(t, err)
				afterCost, err := p.Cost(snap, after, true)
				require.NoError(t, err)

				require.GreaterOrEqual(t, afterCost+1e-9, beforeCost, "%s %s->%s", l.Key(), src, dst)
				require.InDelta(t, bruteForceCost(snap, src, dst, p.PenaltyFactor()), afterCost, 1e-9)

				_, err = g.SetCongestion(l.A, l.B, 0)
				require.NoError(t, err)
			}
		}
	}
}

func TestFindPathRandomConditionsStayOptimal(t *testing.T) {
	g := buildGraph(t, core.RichTopology())
	p := NewPlanner(g, DefaultPlannerConfig())
	cond := core.NewConditionSimulator(g, rand.New(rand.NewPCG(7, 1)), core.DefaultConditionConfig())
	cond.SetFailureRate(60)
	cond.SetCongestionLevel(80)

	for round := 0; round < 20; round++ {
		cond.Reseed()
		snap := g.Snapshot()
		for _, src := range snap.Nodes() {
			for _, dst := range snap.Nodes() {
				path, err := p.FindPathIn(snap, src, dst, true)
				require.NoError(t, err)
				want := bruteForceCost(snap, src, dst, p.PenaltyFactor())
				if src == dst {
					require.Equal(t, Path{src}, path)
					continue
				}
				if math.IsInf(want, 1) {
					require.Equal(t, Path{src}, path)
					continue
				}
				got, err := p.Cost(snap, path, true)
				require.NoError(t, err)
				require.InDelta(t, want, got, 1e-9)
			}
		}
	}
}

func TestFindPathUnknownNode(t *testing.T) {
	g := buildGraph(t, core.RingTopology())
	p := NewPlanner(g, DefaultPlannerConfig())

	_, err := p.FindPath("A", "Z", false)
	require.ErrorIs(t, err, core.ErrUnknownNode)
	_, err = p.FindPath("Z", "A", false)
	require.ErrorIs(t, err, core.ErrUnknownNode)
}

func TestWeightedCostBrokenPath(t *testing.T) {
	g := buildGraph(t, core.RingTopology())
	_, err := WeightedCost(g.Snapshot(), Path{"A", "C"}, 0)
	require.ErrorIs(t, err, ErrBrokenPath)
}
