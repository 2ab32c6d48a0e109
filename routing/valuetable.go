package routing

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/signalsfoundry/routing-simulator/core"
)

// StateAction is a (node, next hop) pair keying the value table.
type StateAction struct {
	State  core.NodeID
	Action core.NodeID
}

// Entry is one learned value.
type Entry struct {
	StateAction
	Value float64
}

// ValueTable stores learned next-hop values. Entries iterate in the order
// they were first created.
type ValueTable struct {
	values *orderedmap.OrderedMap[StateAction, float64]
}

// NewValueTable returns an empty table.
func NewValueTable() *ValueTable {
	return &ValueTable{values: orderedmap.New[StateAction, float64]()}
}

// Get returns the stored value and whether the entry exists.
func (t *ValueTable) Get(state, action core.NodeID) (float64, bool) {
	return t.values.Get(StateAction{State: state, Action: action})
}

// Value returns the stored value, or 0 for an absent entry.
func (t *ValueTable) Value(state, action core.NodeID) float64 {
	v, _ := t.Get(state, action)
	return v
}

// Set stores v for (state, action).
func (t *ValueTable) Set(state, action core.NodeID, v float64) {
	t.values.Set(StateAction{State: state, Action: action}, v)
}

// Len returns the number of entries.
func (t *ValueTable) Len() int { return t.values.Len() }

// Clear drops every entry.
func (t *ValueTable) Clear() {
	t.values = orderedmap.New[StateAction, float64]()
}

// Entries returns a copy of the table in creation order.
func (t *ValueTable) Entries() []Entry {
	out := make([]Entry, 0, t.values.Len())
	for pair := t.values.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Entry{StateAction: pair.Key, Value: pair.Value})
	}
	return out
}
