package controller

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/routing-simulator/core"
	"github.com/signalsfoundry/routing-simulator/routing"
)

type decisionContext struct {
	strategy    Strategy
	source      core.NodeID
	destination core.NodeID

	path              routing.Path
	baseline          routing.Path
	pathCongested     bool
	baselineCongested bool
	fellBack          bool
}

func selectionHint(source, destination core.NodeID) string {
	if source != "" && source == destination {
		return "Select different source and destination nodes."
	}
	return "Select a source and destination to start the simulation."
}

// explain renders the human-readable reason for the active path.
func explain(d decisionContext) string {
	if !d.path.Reachable() {
		return fmt.Sprintf("No route from %s to %s: every path is blocked by failed links.", d.source, d.destination)
	}

	var b strings.Builder
	if d.strategy == Traditional {
		fmt.Fprintf(&b, "Traditional routing uses shortest path: %s. ", d.path)
		if d.pathCongested {
			b.WriteString("Warning: this path has congestion but traditional routing doesn't adapt!")
		} else {
			b.WriteString("This path is clear of congestion.")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "Adaptive routing chose: %s. ", d.path)
	switch {
	case !d.path.Equal(d.baseline):
		b.WriteString("It diverged from the shortest path ")
		fmt.Fprintf(&b, "(%s)", d.baseline)
		if d.baselineCongested {
			b.WriteString(" to avoid congested links.")
		} else {
			b.WriteString(" based on what it has learned so far.")
		}
	case d.pathCongested:
		b.WriteString("It is still learning better routes...")
	default:
		b.WriteString("It agrees with traditional routing for this scenario.")
	}
	if d.fellBack {
		b.WriteString(" Exploration hit a dead end, so the congestion-aware shortest path was used.")
	}
	return b.String()
}
