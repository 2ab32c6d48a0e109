// core/topology.go
package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Topology is the declarative description a Graph is built from. It can be
// loaded from JSON or YAML files or taken from one of the presets.
type Topology struct {
	Name  string     `json:"name" yaml:"name"`
	Nodes []NodeSpec `json:"nodes" yaml:"nodes"`
	Links []LinkSpec `json:"links" yaml:"links"`
}

// NodeSpec describes one router.
type NodeSpec struct {
	ID    string  `json:"id" yaml:"id"`
	Label string  `json:"label,omitempty" yaml:"label,omitempty"`
	X     float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y     float64 `json:"y,omitempty" yaml:"y,omitempty"`
}

// LinkSpec describes one undirected link. Cost is the base latency in ms.
type LinkSpec struct {
	From string  `json:"from" yaml:"from"`
	To   string  `json:"to" yaml:"to"`
	Cost float64 `json:"cost" yaml:"cost"`
}

// Build validates the topology and constructs a Graph with all links clear.
func (t Topology) Build() (*Graph, error) {
	nodes := make([]Node, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		label := n.Label
		if label == "" {
			label = "Router " + n.ID
		}
		nodes = append(nodes, Node{ID: NodeID(n.ID), Label: label, X: n.X, Y: n.Y})
	}
	links := make([]Link, 0, len(t.Links))
	for _, l := range t.Links {
		links = append(links, Link{A: NodeID(l.From), B: NodeID(l.To), Cost: l.Cost})
	}
	g, err := NewGraph(nodes, links)
	if err != nil {
		return nil, fmt.Errorf("build topology %q: %w", t.Name, err)
	}
	return g, nil
}

// LoadTopology decodes a topology from r. format is "json" or "yaml"/"yml".
func LoadTopology(r io.Reader, format string) (*Topology, error) {
	var t Topology
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json", "":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("LoadTopology: decode json: %w", err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("LoadTopology: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("LoadTopology: unsupported format %q", format)
	}
	if len(t.Nodes) == 0 {
		return nil, fmt.Errorf("LoadTopology: %w", ErrEmptyTopology)
	}
	return &t, nil
}

// LoadTopologyFile reads a topology file, picking the decoder from its extension.
func LoadTopologyFile(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology %q: %w", path, err)
	}
	defer f.Close()

	t, err := LoadTopology(f, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return t, nil
}

// RichTopology is the eight-router mesh used by the full comparison profile.
func RichTopology() Topology {
	return Topology{
		Name: "rich",
		Nodes: []NodeSpec{
			{ID: "A", X: 100, Y: 150},
			{ID: "B", X: 250, Y: 100},
			{ID: "C", X: 400, Y: 150},
			{ID: "D", X: 550, Y: 100},
			{ID: "E", X: 100, Y: 300},
			{ID: "F", X: 250, Y: 250},
			{ID: "G", X: 400, Y: 300},
			{ID: "H", X: 550, Y: 250},
		},
		Links: []LinkSpec{
			{From: "A", To: "B", Cost: 10},
			{From: "A", To: "E", Cost: 15},
			{From: "B", To: "C", Cost: 12},
			{From: "B", To: "F", Cost: 8},
			{From: "C", To: "D", Cost: 11},
			{From: "C", To: "G", Cost: 14},
			{From: "D", To: "H", Cost: 9},
			{From: "E", To: "F", Cost: 13},
			{From: "F", To: "G", Cost: 10},
			{From: "G", To: "H", Cost: 12},
			{From: "A", To: "F", Cost: 20},
			{From: "C", To: "H", Cost: 18},
		},
	}
}

// SimpleTopology is the six-node network used by the packet-counting profile.
func SimpleTopology() Topology {
	return Topology{
		Name: "simple",
		Nodes: []NodeSpec{
			{ID: "A", Label: "Node A", X: 100, Y: 100},
			{ID: "B", Label: "Node B", X: 300, Y: 100},
			{ID: "C", Label: "Node C", X: 100, Y: 200},
			{ID: "D", Label: "Node D", X: 300, Y: 200},
			{ID: "E", Label: "Node E", X: 200, Y: 150},
			{ID: "F", Label: "Node F", X: 400, Y: 150},
		},
		Links: []LinkSpec{
			{From: "A", To: "B", Cost: 10},
			{From: "A", To: "C", Cost: 15},
			{From: "A", To: "E", Cost: 12},
			{From: "B", To: "D", Cost: 10},
			{From: "B", To: "F", Cost: 20},
			{From: "C", To: "D", Cost: 12},
			{From: "C", To: "E", Cost: 8},
			{From: "D", To: "F", Cost: 15},
			{From: "E", To: "F", Cost: 18},
		},
	}
}

// RingTopology is the four-node ring A-B-C-D-A with uniform cost 10.
func RingTopology() Topology {
	return Topology{
		Name: "ring",
		Nodes: []NodeSpec{
			{ID: "A", X: 100, Y: 100},
			{ID: "B", X: 300, Y: 100},
			{ID: "C", X: 300, Y: 300},
			{ID: "D", X: 100, Y: 300},
		},
		Links: []LinkSpec{
			{From: "A", To: "B", Cost: 10},
			{From: "B", To: "C", Cost: 10},
			{From: "C", To: "D", Cost: 10},
			{From: "D", To: "A", Cost: 10},
		},
	}
}
