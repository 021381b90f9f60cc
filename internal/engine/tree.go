// internal/engine/tree.go
package engine

import (
	"errors"
	"fmt"

	"github.com/colebrumley/logtrigger/internal/config"
)

// ErrUnknownNode is returned for IDs not present in the tree.
var ErrUnknownNode = errors.New("unknown tree node")

// NodeKind distinguishes groups from triggers.
type NodeKind int

const (
	GroupNode NodeKind = iota
	TriggerNode
)

// CheckState is a node's tri-state enabled flag.
type CheckState int

const (
	Unchecked CheckState = iota
	Partial
	Checked
)

func (s CheckState) String() string {
	switch s {
	case Checked:
		return "checked"
	case Partial:
		return "partial"
	default:
		return "unchecked"
	}
}

// Node is one entry in the trigger tree. Parent and Children hold IDs.
type Node struct {
	ID       string
	Name     string
	Kind     NodeKind
	Parent   string
	Children []string
	State    CheckState
}

// Tree is the group/trigger hierarchy stored as an arena keyed by ID.
type Tree struct {
	nodes map[string]*Node
	roots []string
}

// NewTree builds a tree from the trigger file. Triggers and empty groups
// take their state from Enabled; other groups are derived from their
// children.
func NewTree(tf *config.TriggerFile) *Tree {
	t := &Tree{nodes: make(map[string]*Node)}
	var addGroup func(g *config.Group, parent string)
	addGroup = func(g *config.Group, parent string) {
		n := &Node{ID: g.ID, Name: g.Name, Kind: GroupNode, Parent: parent, State: stateOf(g.Enabled)}
		t.add(n)
		for i := range g.Groups {
			addGroup(&g.Groups[i], n.ID)
		}
		for i := range g.Triggers {
			tr := &g.Triggers[i]
			t.add(&Node{ID: tr.ID, Name: tr.Name, Kind: TriggerNode, Parent: n.ID, State: stateOf(tr.Enabled)})
		}
	}
	for i := range tf.Groups {
		addGroup(&tf.Groups[i], "")
	}
	Recompute(t)
	return t
}

func stateOf(enabled bool) CheckState {
	if enabled {
		return Checked
	}
	return Unchecked
}

// add inserts n. A node whose ID is already present is ignored.
func (t *Tree) add(n *Node) {
	if _, ok := t.nodes[n.ID]; ok {
		return
	}
	t.nodes[n.ID] = n
	if n.Parent == "" {
		t.roots = append(t.roots, n.ID)
		return
	}
	if p, ok := t.nodes[n.Parent]; ok {
		p.Children = append(p.Children, n.ID)
	}
}

// Node returns the node with the given ID.
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Checked reports whether the node's own state is Checked.
func (t *Tree) Checked(id string) bool {
	n, ok := t.nodes[id]
	return ok && n.State == Checked
}

// Walk visits every node depth first in file order.
func (t *Tree) Walk(fn func(n *Node, depth int)) {
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		n := t.nodes[id]
		fn(n, depth)
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, id := range t.roots {
		walk(id, 0)
	}
}

// Path returns the names of the node's ancestors, outermost first.
func (t *Tree) Path(id string) []string {
	var out []string
	n, ok := t.nodes[id]
	for ok && n.Parent != "" {
		n, ok = t.nodes[n.Parent]
		if ok {
			out = append([]string{n.Name}, out...)
		}
	}
	return out
}

// SetChecked sets a node and all its descendants, then recomputes the
// ancestors.
func (t *Tree) SetChecked(id string, checked bool) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	t.cascade(n, stateOf(checked))
	Recompute(t)
	return nil
}

// ApplyGroups checks exactly the listed nodes (and their descendants) and
// unchecks everything else. Unknown IDs are returned.
func (t *Tree) ApplyGroups(ids []string) []string {
	for _, n := range t.nodes {
		n.State = Unchecked
	}
	var unknown []string
	for _, id := range ids {
		n, ok := t.nodes[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		t.cascade(n, Checked)
	}
	Recompute(t)
	return unknown
}

func (t *Tree) cascade(n *Node, s CheckState) {
	n.State = s
	for _, c := range n.Children {
		t.cascade(t.nodes[c], s)
	}
}

// Recompute derives every non-empty group's state from its children:
// Unchecked when no child is checked or partial, Checked when all are
// checked, Partial otherwise. Triggers and empty groups keep their state.
func Recompute(t *Tree) {
	var visit func(id string) CheckState
	visit = func(id string) CheckState {
		n := t.nodes[id]
		if len(n.Children) == 0 {
			return n.State
		}
		checked, partial := 0, 0
		for _, c := range n.Children {
			switch visit(c) {
			case Checked:
				checked++
			case Partial:
				partial++
			}
		}
		switch {
		case checked == 0 && partial == 0:
			n.State = Unchecked
		case checked == len(n.Children):
			n.State = Checked
		default:
			n.State = Partial
		}
		return n.State
	}
	for _, id := range t.roots {
		visit(id)
	}
}
