package routing

import (
	"container/heap"
	"fmt"

	"github.com/signalsfoundry/routing-simulator/core"
)

// PlannerConfig tunes the shortest-path planner.
type PlannerConfig struct {
	// PenaltyFactor scales link congestion into extra cost when planning
	// congestion-aware routes. It must be non-negative.
	PenaltyFactor float64
}

// DefaultPlannerConfig charges 10 cost units for a fully congested link.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{PenaltyFactor: 10}
}

// Planner computes minimum-cost paths with Dijkstra's algorithm over the
// links that are currently not failed.
//
// Ties between nodes at the same tentative distance are broken by topology
// insertion order, earliest first, so results are stable for a fixed graph.
type Planner struct {
	graph *core.Graph
	cfg   PlannerConfig
}

// NewPlanner binds a planner to g.
func NewPlanner(g *core.Graph, cfg PlannerConfig) *Planner {
	if cfg.PenaltyFactor < 0 {
		cfg.PenaltyFactor = 0
	}
	return &Planner{graph: g, cfg: cfg}
}

// PenaltyFactor returns the congestion penalty applied in aware mode.
func (p *Planner) PenaltyFactor() float64 { return p.cfg.PenaltyFactor }

// FindPath plans a route from src to dst against a fresh snapshot.
//
// An unreachable destination is not an error: the result is the single-node
// path [src]. Errors are reserved for node IDs outside the topology.
func (p *Planner) FindPath(src, dst core.NodeID, congestionAware bool) (Path, error) {
	return p.FindPathIn(p.graph.Snapshot(), src, dst, congestionAware)
}

// FindPathIn plans a route against an existing snapshot.
func (p *Planner) FindPathIn(snap *core.Snapshot, src, dst core.NodeID, congestionAware bool) (Path, error) {
	if !snap.HasNode(src) {
		return nil, fmt.Errorf("%w: source %q", core.ErrUnknownNode, src)
	}
	if !snap.HasNode(dst) {
		return nil, fmt.Errorf("%w: destination %q", core.ErrUnknownNode, dst)
	}
	if src == dst {
		return Path{src}, nil
	}

	penalty := 0.0
	if congestionAware {
		penalty = p.cfg.PenaltyFactor
	}

	r := &search{
		snap:    snap,
		penalty: penalty,
		dist:    map[core.NodeID]float64{src: 0},
		prev:    map[core.NodeID]core.NodeID{},
		settled: map[core.NodeID]bool{},
	}
	r.push(src, 0)
	if !r.run(dst) {
		return Path{src}, nil
	}
	return r.reconstruct(src, dst), nil
}

// Cost returns the planner's edge-weight sum for path under the given mode.
func (p *Planner) Cost(snap *core.Snapshot, path Path, congestionAware bool) (float64, error) {
	penalty := 0.0
	if congestionAware {
		penalty = p.cfg.PenaltyFactor
	}
	return WeightedCost(snap, path, penalty)
}

// search holds the mutable state of one Dijkstra run.
type search struct {
	snap    *core.Snapshot
	penalty float64
	dist    map[core.NodeID]float64
	prev    map[core.NodeID]core.NodeID
	settled map[core.NodeID]bool
	pq      nodePQ
}

func (r *search) push(id core.NodeID, d float64) {
	order, _ := r.snap.Index(id)
	heap.Push(&r.pq, &nodeItem{id: id, dist: d, order: order})
}

// run settles nodes until dst is settled (true) or the frontier empties (false).
func (r *search) run(dst core.NodeID) bool {
	for r.pq.Len() > 0 {
		item := heap.Pop(&r.pq).(*nodeItem)
		u := item.id
		if r.settled[u] {
			continue
		}
		r.settled[u] = true
		if u == dst {
			return true
		}
		r.relax(u)
	}
	return false
}

func (r *search) relax(u core.NodeID) {
	for _, l := range r.snap.Edges(u) {
		if l.Failed {
			continue
		}
		v := l.Other(u)
		if r.settled[v] {
			continue
		}
		nd := r.dist[u] + l.Cost + l.Congestion*r.penalty
		if cur, ok := r.dist[v]; ok && nd >= cur {
			continue
		}
		r.dist[v] = nd
		r.prev[v] = u
		r.push(v, nd)
	}
}

func (r *search) reconstruct(src, dst core.NodeID) Path {
	var rev Path
	for at := dst; ; at = r.prev[at] {
		rev = append(rev, at)
		if at == src {
			break
		}
	}
	out := make(Path, len(rev))
	for i, id := range rev {
		out[len(rev)-1-i] = id
	}
	return out
}

// nodeItem is a heap entry. Stale entries are skipped when popped.
type nodeItem struct {
	id    core.NodeID
	dist  float64
	order int
}

// nodePQ is a min-heap ordered by distance, then by topology order.
type nodePQ []*nodeItem

func (pq nodePQ) Len() int { return len(pq) }

func (pq nodePQ) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].order < pq[j].order
}

func (pq nodePQ) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *nodePQ) Push(x any) { *pq = append(*pq, x.(*nodeItem)) }

func (pq *nodePQ) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
