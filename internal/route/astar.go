package route

import (
	"container/heap"

	"rescuenav/internal/cost"
	"rescuenav/internal/geo"
	"rescuenav/internal/graph"
	"rescuenav/internal/metrics"
)

// step is one traversed edge on a found path, with the direction resolved.
type step struct {
	edgeID string
	from   string
	to     string
	cost   cost.EdgeCost
}

type searchItem struct {
	nodeID string
	f      float64
	index  int
}

// openHeap orders by f score; equal scores break on smaller node id so a
// search over an identical graph snapshot always expands in the same order.
type openHeap []*searchItem

func (h openHeap) Len() int { return len(h) }
func (h openHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].nodeID < h[j].nodeID
}
func (h openHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *openHeap) Push(x any) {
	it := x.(*searchItem)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *openHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// shortestPath runs A* from startID to goalID over g, scoring edges with
// cctx. The heuristic is great-circle distance to the goal divided by the
// vehicle's top speed; EdgeCost never reports a faster effective speed, so
// the heuristic stays admissible. Returns the traversed steps in order.
func shortestPath(g *graph.Graph, cctx *cost.Context, startID, goalID string, heuristicSpeedKph float64) ([]step, float64, bool) {
	if heuristicSpeedKph <= 0 {
		heuristicSpeedKph = 40
	}
	speedMS := heuristicSpeedKph / 3.6
	goal := g.Nodes[goalID].Point()
	h := func(nodeID string) float64 {
		return geo.DistanceM(g.Nodes[nodeID].Point(), goal) / speedMS
	}

	gScore := map[string]float64{startID: 0}
	cameEdge := map[string]step{}
	closed := map[string]bool{}

	open := &openHeap{}
	heap.Init(open)
	heap.Push(open, &searchItem{nodeID: startID, f: h(startID)})

	expanded := 0
	for open.Len() > 0 {
		cur := heap.Pop(open).(*searchItem)
		if closed[cur.nodeID] {
			continue
		}
		closed[cur.nodeID] = true
		expanded++
		if cur.nodeID == goalID {
			metrics.SearchExpansions.Observe(float64(expanded))
			return reconstruct(cameEdge, startID, goalID), gScore[goalID], true
		}
		for _, edgeID := range g.Out[cur.nodeID] {
			e := g.Edges[edgeID]
			next := g.Opposite(e, cur.nodeID)
			if e.OneWay && e.FromNode != cur.nodeID {
				continue
			}
			if closed[next] {
				continue
			}
			ec, ok := cctx.EdgeCost(e)
			if !ok {
				continue
			}
			tentative := gScore[cur.nodeID] + ec.Cost
			if prev, seen := gScore[next]; seen && tentative >= prev {
				continue
			}
			gScore[next] = tentative
			cameEdge[next] = step{edgeID: edgeID, from: cur.nodeID, to: next, cost: ec}
			heap.Push(open, &searchItem{nodeID: next, f: tentative + h(next)})
		}
	}
	metrics.SearchExpansions.Observe(float64(expanded))
	return nil, 0, false
}

func reconstruct(cameEdge map[string]step, startID, goalID string) []step {
	var rev []step
	cur := goalID
	for cur != startID {
		s, ok := cameEdge[cur]
		if !ok {
			return nil
		}
		rev = append(rev, s)
		cur = s.from
	}
	out := make([]step, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}
