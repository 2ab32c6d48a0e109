package core

import (
	"errors"
	"fmt"
	"math"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	ErrUnknownNode   = errors.New("unknown node")
	ErrUnknownLink   = errors.New("unknown link")
	ErrDuplicateNode = errors.New("duplicate node")
	ErrDuplicateLink = errors.New("duplicate link")
	ErrSelfLink      = errors.New("link endpoints must differ")
	ErrNegativeCost  = errors.New("link cost must be non-negative")
	ErrEmptyTopology = errors.New("topology has no nodes")
)

// CongestedThreshold is the congestion level above which a link counts as
// congested for packet delivery and decision explanations.
const CongestedThreshold = 0.5

// NodeID identifies a router in the graph.
type NodeID string

// Node is a graph vertex. X and Y are layout hints for renderers only.
type Node struct {
	ID    NodeID  `json:"id"`
	Label string  `json:"label,omitempty"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
}

// LinkKey is the canonical key of an undirected link: A sorts before B.
type LinkKey struct {
	A NodeID
	B NodeID
}

// MakeLinkKey returns the canonical key for the unordered pair {a, b}.
func MakeLinkKey(a, b NodeID) LinkKey {
	if b < a {
		a, b = b, a
	}
	return LinkKey{A: a, B: b}
}

func (k LinkKey) String() string {
	return fmt.Sprintf("%s-%s", k.A, k.B)
}

// Link is an undirected weighted edge with dynamic condition state.
// Congestion is always kept within [0, 1].
type Link struct {
	A          NodeID  `json:"a"`
	B          NodeID  `json:"b"`
	Cost       float64 `json:"cost"`
	Congestion float64 `json:"congestion"`
	Failed     bool    `json:"failed"`
}

// Key returns the canonical key of the link.
func (l Link) Key() LinkKey { return MakeLinkKey(l.A, l.B) }

// Other returns the endpoint opposite to id.
func (l Link) Other(id NodeID) NodeID {
	if l.A == id {
		return l.B
	}
	return l.A
}

// Congested reports whether the link is above CongestedThreshold.
func (l Link) Congested() bool { return l.Congestion > CongestedThreshold }

// Usable reports whether traffic may be routed over the link.
func (l Link) Usable() bool { return !l.Failed }

// Graph holds a fixed topology with mutable per-link conditions.
//
// Nodes and links iterate in insertion order. Every algorithm that scans
// neighbors or draws random numbers per link relies on that order to stay
// deterministic for a fixed seed.
type Graph struct {
	mu sync.RWMutex

	nodes     *orderedmap.OrderedMap[NodeID, Node]
	links     *orderedmap.OrderedMap[LinkKey, *Link]
	adjacency map[NodeID][]LinkKey
}

// NewGraph validates and builds a graph. Conditions of the supplied links
// are clamped; endpoints must exist and each unordered pair may appear once.
func NewGraph(nodes []Node, links []Link) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyTopology
	}

	g := &Graph{
		nodes:     orderedmap.New[NodeID, Node](),
		links:     orderedmap.New[LinkKey, *Link](),
		adjacency: make(map[NodeID][]LinkKey, len(nodes)),
	}

	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: empty node ID", ErrUnknownNode)
		}
		if _, exists := g.nodes.Get(n.ID); exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
		}
		g.nodes.Set(n.ID, n)
		g.adjacency[n.ID] = nil
	}

	for _, l := range links {
		if l.A == l.B {
			return nil, fmt.Errorf("%w: %q", ErrSelfLink, l.A)
		}
		if _, ok := g.nodes.Get(l.A); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, l.A)
		}
		if _, ok := g.nodes.Get(l.B); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, l.B)
		}
		if l.Cost < 0 {
			return nil, fmt.Errorf("%w: %s cost=%v", ErrNegativeCost, l.Key(), l.Cost)
		}
		key := l.Key()
		if _, exists := g.links.Get(key); exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLink, key)
		}
		link := l
		link.Congestion = ClampUnit(link.Congestion)
		g.links.Set(key, &link)
		g.adjacency[l.A] = append(g.adjacency[l.A], key)
		g.adjacency[l.B] = append(g.adjacency[l.B], key)
	}

	return g, nil
}

// HasNode reports whether id is part of the topology.
func (g *Graph) HasNode(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes.Get(id)
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Node, 0, g.nodes.Len())
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Links returns copies of all links in insertion order.
func (g *Graph) Links() []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Link, 0, g.links.Len())
	for pair := g.links.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	return out
}

// Link returns a copy of the link joining a and b, in either order.
func (g *Graph) Link(a, b NodeID) (Link, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	l, ok := g.links.Get(MakeLinkKey(a, b))
	if !ok {
		return Link{}, false
	}
	return *l, true
}

// Neighbors returns every node adjacent to id, regardless of link state.
func (g *Graph) Neighbors(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := g.adjacency[id]
	out := make([]NodeID, 0, len(keys))
	for _, key := range keys {
		l, _ := g.links.Get(key)
		out = append(out, l.Other(id))
	}
	return out
}

// SetCongestion sets the congestion of link {a, b}, clamped to [0, 1].
func (g *Graph) SetCongestion(a, b NodeID, congestion float64) (Link, error) {
	return g.update(a, b, func(l *Link) {
		l.Congestion = congestion
	})
}

// SetFailed marks link {a, b} failed or recovered.
func (g *Graph) SetFailed(a, b NodeID, failed bool) (Link, error) {
	return g.update(a, b, func(l *Link) {
		l.Failed = failed
	})
}

// ToggleCongestion fully congests a clear link or clears a congested one.
func (g *Graph) ToggleCongestion(a, b NodeID) (Link, error) {
	return g.update(a, b, func(l *Link) {
		if l.Congested() {
			l.Congestion = 0
		} else {
			l.Congestion = 1
		}
	})
}

// ToggleFailure flips the failed flag of link {a, b}.
func (g *Graph) ToggleFailure(a, b NodeID) (Link, error) {
	return g.update(a, b, func(l *Link) {
		l.Failed = !l.Failed
	})
}

// MutateLinks applies fn to every link in insertion order under a single
// write lock, so readers never see a half-applied update.
func (g *Graph) MutateLinks(fn func(l *Link)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for pair := g.links.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Value)
		pair.Value.Congestion = ClampUnit(pair.Value.Congestion)
	}
}

// ResetConditions clears congestion and failure on every link.
func (g *Graph) ResetConditions() {
	g.MutateLinks(func(l *Link) {
		l.Congestion = 0
		l.Failed = false
	})
}

// ConditionCounts returns the number of failed and congested links.
func (g *Graph) ConditionCounts() (failed, congested int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for pair := g.links.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Failed {
			failed++
		}
		if pair.Value.Congested() {
			congested++
		}
	}
	return failed, congested
}

// Snapshot captures an immutable copy of the current topology and link
// conditions. Path computations run against a snapshot so a single
// computation never mixes two link states.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := &Snapshot{
		nodes: make([]NodeID, 0, g.nodes.Len()),
		index: make(map[NodeID]int, g.nodes.Len()),
		links: make(map[LinkKey]Link, g.links.Len()),
		edges: make(map[NodeID][]Link, g.nodes.Len()),
		order: make([]LinkKey, 0, g.links.Len()),
	}
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		s.index[pair.Key] = len(s.nodes)
		s.nodes = append(s.nodes, pair.Key)
	}
	for pair := g.links.Oldest(); pair != nil; pair = pair.Next() {
		s.links[pair.Key] = *pair.Value
		s.order = append(s.order, pair.Key)
	}
	for id, keys := range g.adjacency {
		edges := make([]Link, 0, len(keys))
		for _, key := range keys {
			edges = append(edges, s.links[key])
		}
		s.edges[id] = edges
	}
	return s
}

func (g *Graph) update(a, b NodeID, fn func(l *Link)) (Link, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.links.Get(MakeLinkKey(a, b))
	if !ok {
		return Link{}, fmt.Errorf("%w: %s", ErrUnknownLink, MakeLinkKey(a, b))
	}
	fn(l)
	l.Congestion = ClampUnit(l.Congestion)
	return *l, nil
}

// Snapshot is a read-only view of a Graph at one instant.
type Snapshot struct {
	nodes []NodeID
	index map[NodeID]int
	links map[LinkKey]Link
	edges map[NodeID][]Link
	order []LinkKey
}

// Nodes returns node IDs in insertion order.
func (s *Snapshot) Nodes() []NodeID {
	out := make([]NodeID, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// HasNode reports whether id exists.
func (s *Snapshot) HasNode(id NodeID) bool {
	_, ok := s.index[id]
	return ok
}

// Index returns the insertion position of id, used for tie-breaks.
func (s *Snapshot) Index(id NodeID) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Link returns the link joining a and b.
func (s *Snapshot) Link(a, b NodeID) (Link, bool) {
	l, ok := s.links[MakeLinkKey(a, b)]
	return l, ok
}

// Edges returns the links incident to id in insertion order.
func (s *Snapshot) Edges(id NodeID) []Link {
	return s.edges[id]
}

// Links returns all links in insertion order.
func (s *Snapshot) Links() []Link {
	out := make([]Link, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.links[key])
	}
	return out
}

// ClampUnit clamps v into [0, 1].
func ClampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
