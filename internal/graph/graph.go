// Package graph holds the risk annotated scan graph: one subnet node, host
// nodes below it, service and finding nodes below their host.
package graph

import (
	"encoding/json"
	"iter"
)

// Node is a graph vertex. Severity and Risk are meaningful for hosts and
// findings; SeverityLabel, CVSS, PluginID and Port for findings only.
type Node struct {
	Key      Key
	Label    string
	Severity int
	Risk     float64

	Hostname      string
	OS            string
	Service       string
	Name          string
	SeverityLabel any
	CVSS          float64
	PluginID      any
	Port          *int
}

func (n Node) Kind() Kind {
	return n.Key.Kind
}

// Size is the marker size renderers use: findings and hosts grow with risk.
func (n Node) Size() float64 {
	switch n.Kind() {
	case KindFinding:
		return 6 + 0.6*n.Risk
	case KindHost:
		return 10 + 0.2*n.Risk
	case KindSubnet:
		return 16
	default:
		return 8
	}
}

// SeveritySize is the fallback marker size for a severity ordinal.
func SeveritySize(sev int) int {
	switch sev {
	case 0:
		return 5
	case 1:
		return 7
	case 2:
		return 9
	case 3:
		return 11
	case 4:
		return 13
	default:
		return 7
	}
}

type jsonNode struct {
	ID            Key      `json:"id"`
	Kind          Kind     `json:"kind"`
	Label         string   `json:"label"`
	Severity      *int     `json:"severity,omitempty"`
	Risk          *float64 `json:"risk_score,omitempty"`
	SeverityLabel any      `json:"severity_label,omitempty"`
	CVSS          *float64 `json:"cvss,omitempty"`
	PluginID      any      `json:"plugin_id,omitempty"`
	Port          *int     `json:"port,omitempty"`
	Symbol        string   `json:"symbol"`
	Size          float64  `json:"size"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	j := jsonNode{
		ID:     n.Key,
		Kind:   n.Kind(),
		Label:  n.Label,
		Symbol: n.Kind().Symbol(),
		Size:   n.Size(),
	}
	switch n.Kind() {
	case KindHost:
		j.Severity, j.Risk = &n.Severity, &n.Risk
	case KindFinding:
		j.Severity, j.Risk = &n.Severity, &n.Risk
		j.SeverityLabel = n.SeverityLabel
		j.CVSS = &n.CVSS
		j.PluginID = n.PluginID
		j.Port = n.Port
	}
	return json.Marshal(j)
}

// Edge links a parent node to its child.
type Edge struct {
	From Key `json:"from"`
	To   Key `json:"to"`
}

// Graph is an ordered, deduplicated set of nodes and edges. Nodes and edges
// are iterated in the order they were first added.
type Graph struct {
	topN  int
	nodes []*Node
	index map[Key]*Node
	edges []Edge
	seen  map[Edge]struct{}
}

func newGraph(topN int) *Graph {
	return &Graph{
		topN:  topN,
		index: make(map[Key]*Node),
		seen:  make(map[Edge]struct{}),
	}
}

// TopN is the host aggregation window the graph was built with.
func (g *Graph) TopN() int {
	return g.topN
}

// Node returns a copy of the node with key k.
func (g *Graph) Node(k Key) (Node, bool) {
	n, ok := g.index[k]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes iterates over copies of all nodes.
func (g *Graph) Nodes() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, n := range g.nodes {
			if !yield(*n) {
				return
			}
		}
	}
}

// NodesOf iterates over nodes of a given kind.
func (g *Graph) NodesOf(kind Kind) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, n := range g.nodes {
			if n.Kind() != kind {
				continue
			}
			if !yield(*n) {
				return
			}
		}
	}
}

func (g *Graph) Edges() iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for _, e := range g.edges {
			if !yield(e) {
				return
			}
		}
	}
}

// Children iterates over the direct children of k.
func (g *Graph) Children(k Key) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, e := range g.edges {
			if e.From != k {
				continue
			}
			if !yield(*g.index[e.To]) {
				return
			}
		}
	}
}

func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	nodes := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, *n)
	}
	return json.Marshal(struct {
		TopN  int    `json:"host_top_n_findings"`
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}{
		TopN:  g.topN,
		Nodes: nodes,
		Edges: append([]Edge{}, g.edges...),
	})
}

// upsert returns the node with n.Key, adding n when there is none
func (g *Graph) upsert(n Node) (*Node, bool) {
	if old, ok := g.index[n.Key]; ok {
		return old, false
	}
	p := &n
	g.nodes = append(g.nodes, p)
	g.index[n.Key] = p
	return p, true
}

func (g *Graph) link(from, to Key) {
	e := Edge{From: from, To: to}
	if _, ok := g.seen[e]; ok {
		return
	}
	g.seen[e] = struct{}{}
	g.edges = append(g.edges, e)
}
