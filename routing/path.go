// Package routing holds the two routing strategies compared by the
// simulator: a Dijkstra shortest-path planner and an epsilon-greedy adaptive
// router that learns next-hop values from observed path quality.
package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/signalsfoundry/routing-simulator/core"
)

// ErrBrokenPath is returned when consecutive path nodes are not linked.
var ErrBrokenPath = errors.New("path uses a missing link")

// Path is an ordered sequence of node IDs. A single-node path means the
// destination could not be reached.
type Path []core.NodeID

// Reachable reports whether the path connects two distinct nodes.
func (p Path) Reachable() bool { return len(p) > 1 }

// Hops returns the number of links traversed.
func (p Path) Hops() int {
	if len(p) < 2 {
		return 0
	}
	return len(p) - 1
}

// Source returns the first node, or "" for an empty path.
func (p Path) Source() core.NodeID {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Destination returns the last node, or "" for an empty path.
func (p Path) Destination() core.NodeID {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Equal reports whether both paths visit the same nodes in the same order.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Strings returns the node IDs as plain strings.
func (p Path) Strings() []string {
	out := make([]string, len(p))
	for i, id := range p {
		out[i] = string(id)
	}
	return out
}

func (p Path) String() string {
	return strings.Join(p.Strings(), " → ")
}

// WeightedCost sums link cost plus congestion*penalty along p.
func WeightedCost(snap *core.Snapshot, p Path, penalty float64) (float64, error) {
	total := 0.0
	for i := 0; i+1 < len(p); i++ {
		l, ok := snap.Link(p[i], p[i+1])
		if !ok {
			return 0, fmt.Errorf("%w: %s-%s", ErrBrokenPath, p[i], p[i+1])
		}
		total += l.Cost + l.Congestion*penalty
	}
	return total, nil
}
