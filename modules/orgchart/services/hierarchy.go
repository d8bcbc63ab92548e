package services

import (
	"strings"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
)

type Node struct {
	Name        string           `json:"name"`
	Level       string           `json:"level,omitempty"`
	Superior    string           `json:"superior,omitempty"`
	KPIs        []string         `json:"kpis"`
	Assignments []kpi.Assignment `json:"assignments,omitempty"`
	Children    []*Node          `json:"children"`
}

// Tree is a single rooted hierarchy. Root is nil for an empty position set.
type Tree struct {
	Root *Node `json:"root"`
}

// BuildTree links positions under their superiors. The root is preferredRoot when it
// is in the set without a superior, else the first superior-less or
// self-referencing position. Other roots and positions whose superior is not in the
// set hang directly under it. With a ledger, node KPIs follow its assignments.
// Loops fail with *CyclicHierarchyError.
func BuildTree(set *position.Set, ledger *Ledger, preferredRoot string) (*Tree, error) {
	if cycles := FindCycles(set); len(cycles) > 0 {
		return nil, &CyclicHierarchyError{Cycles: cycles}
	}

	all := set.All()
	if len(all) == 0 {
		return &Tree{}, nil
	}

	nodes := make(map[string]*Node, len(all))
	for _, p := range all {
		n := &Node{
			Name:     p.Name,
			Level:    p.Level,
			Superior: p.Superior,
			KPIs:     append([]string(nil), p.KPIs...),
			Children: []*Node{},
		}
		if ledger != nil {
			n.Assignments = ledger.Assignments(p.Name)
			n.KPIs = assignedKPIs(n.Assignments)
		}
		nodes[p.Name] = n
	}

	detached := func(p position.Position) bool {
		return !p.HasSuperior() || !set.Has(p.Superior)
	}
	rootName := ""
	if p, ok := set.Get(strings.TrimSpace(preferredRoot)); ok && !p.HasSuperior() {
		rootName = p.Name
	}
	if rootName == "" {
		for _, p := range all {
			if !p.HasSuperior() {
				rootName = p.Name
				break
			}
		}
	}
	if rootName == "" {
		for _, p := range all {
			if detached(p) {
				rootName = p.Name
				break
			}
		}
	}
	root := nodes[rootName]

	for _, p := range all {
		if p.Name == rootName {
			continue
		}
		parent := root
		if !detached(p) {
			parent = nodes[p.Superior]
		}
		parent.Children = append(parent.Children, nodes[p.Name])
	}
	return &Tree{Root: root}, nil
}

func assignedKPIs(assignments []kpi.Assignment) []string {
	if len(assignments) == 0 {
		return []string{position.NoKPI}
	}
	out := make([]string, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, a.KPI)
	}
	return out
}

// Walk visits nodes depth-first in pre-order. Returning false from fn stops the walk.
func (t *Tree) Walk(fn func(n *Node) bool) {
	if t == nil || t.Root == nil {
		return
	}
	stack := []*Node{t.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			return
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Subtree returns the tree rooted at name, or the whole tree if name is unknown.
func (t *Tree) Subtree(name string) *Tree {
	name = strings.TrimSpace(name)
	var found *Node
	t.Walk(func(n *Node) bool {
		if n.Name == name {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return t
	}
	return &Tree{Root: found}
}

// Len counts the nodes in the tree.
func (t *Tree) Len() int {
	n := 0
	t.Walk(func(*Node) bool {
		n++
		return true
	})
	return n
}

type GraphNodeKind string

const (
	GraphNodeInput   GraphNodeKind = "input"
	GraphNodeDefault GraphNodeKind = "default"
	GraphNodeOutput  GraphNodeKind = "output"
)

type GraphNode struct {
	ID      string        `json:"id"`
	Content string        `json:"content"`
	Kind    GraphNodeKind `json:"kind"`
}

type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the chart projection: each position gets a KPI box below it, and
// subordinates hang from their superior's KPI box.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

func kpiNodeID(name string) string {
	return name + "__KPIs"
}

func (t *Tree) Graph() Graph {
	g := Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	t.Walk(func(n *Node) bool {
		kind := GraphNodeDefault
		if n == t.Root {
			kind = GraphNodeInput
		}
		g.Nodes = append(g.Nodes, GraphNode{ID: n.Name, Content: n.Name, Kind: kind})

		lines := make([]string, 0, len(n.KPIs))
		for _, k := range n.KPIs {
			lines = append(lines, "- "+k)
		}
		kpiKind := GraphNodeOutput
		if len(n.Children) > 0 {
			kpiKind = GraphNodeDefault
		}
		g.Nodes = append(g.Nodes, GraphNode{ID: kpiNodeID(n.Name), Content: strings.Join(lines, "\n"), Kind: kpiKind})
		g.Edges = append(g.Edges, GraphEdge{
			ID:     n.Name + "=>" + kpiNodeID(n.Name),
			Source: n.Name,
			Target: kpiNodeID(n.Name),
		})
		for _, c := range n.Children {
			g.Edges = append(g.Edges, GraphEdge{
				ID:     kpiNodeID(n.Name) + "=>" + c.Name,
				Source: kpiNodeID(n.Name),
				Target: c.Name,
			})
		}
		return true
	})
	return g
}
