package graph

import (
	"math"

	"github.com/paulmach/orb"

	"rescuenav/internal/geo"
	"rescuenav/internal/model"
)

// Graph is an in-memory arena over a loaded subgraph: nodes and edges keyed
// by id with an adjacency index from node id to outgoing edge ids. It is
// rebuilt per planning call and never mutated afterwards, so concurrent
// readers need no locking.
type Graph struct {
	Nodes map[string]*model.Node
	Edges map[string]*model.Edge
	Out   map[string][]string
}

// Build indexes the given nodes and edges. Edges whose endpoints are
// missing or inaccessible are dropped: an edge is only traversable when
// both its endpoint nodes are accessible.
func Build(nodes []model.Node, edges []model.Edge) *Graph {
	g := &Graph{
		Nodes: make(map[string]*model.Node, len(nodes)),
		Edges: make(map[string]*model.Edge, len(edges)),
		Out:   make(map[string][]string),
	}
	for i := range nodes {
		n := nodes[i]
		if !n.Accessible {
			continue
		}
		g.Nodes[n.ID] = &n
	}
	for i := range edges {
		e := edges[i]
		if !e.Accessible {
			continue
		}
		if _, ok := g.Nodes[e.FromNode]; !ok {
			continue
		}
		if _, ok := g.Nodes[e.ToNode]; !ok {
			continue
		}
		g.Edges[e.ID] = &e
		g.Out[e.FromNode] = append(g.Out[e.FromNode], e.ID)
		if !e.OneWay {
			g.Out[e.ToNode] = append(g.Out[e.ToNode], e.ID)
		}
	}
	return g
}

// Opposite returns the node on the other side of edge e from nodeID.
func (g *Graph) Opposite(e *model.Edge, nodeID string) string {
	if e.FromNode == nodeID {
		return e.ToNode
	}
	return e.FromNode
}

// NearestNode returns the accessible node closest to pt within maxDistM.
func (g *Graph) NearestNode(pt orb.Point, maxDistM float64) (string, bool) {
	bestID := ""
	bestDist := math.MaxFloat64
	for id, n := range g.Nodes {
		d := geo.DistanceM(pt, n.Point())
		if d < bestDist || (d == bestDist && id < bestID) {
			bestID = id
			bestDist = d
		}
	}
	if bestID == "" || bestDist > maxDistM {
		return "", false
	}
	return bestID, true
}

// Connectivity computes the connected-component count and the fraction of
// nodes in the largest component, treating every edge as undirected. Only
// nodes touched by at least one edge are counted.
func (g *Graph) Connectivity() model.Connectivity {
	parent := map[string]string{}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for _, e := range g.Edges {
		if _, ok := parent[e.FromNode]; !ok {
			parent[e.FromNode] = e.FromNode
		}
		if _, ok := parent[e.ToNode]; !ok {
			parent[e.ToNode] = e.ToNode
		}
		union(e.FromNode, e.ToNode)
	}
	if len(parent) == 0 {
		return model.Connectivity{}
	}
	sizes := map[string]int{}
	for n := range parent {
		sizes[find(n)]++
	}
	largest := 0
	for _, s := range sizes {
		if s > largest {
			largest = s
		}
	}
	return model.Connectivity{
		ComponentCount:           len(sizes),
		LargestComponentFraction: float64(largest) / float64(len(parent)),
	}
}
