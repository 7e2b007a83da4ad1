package route

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"rescuenav/internal/cost"
	"rescuenav/internal/graph"
	"rescuenav/internal/model"
)

// gridGraph builds a rows x cols lattice with BaseCost drawn from rng so
// the cheapest path is rarely the geometrically shortest one.
func gridGraph(rows, cols int, rng *rand.Rand) *graph.Graph {
	var nodes []model.Node
	var edges []model.Edge
	id := func(r, c int) string { return fmt.Sprintf("n%d-%d", r, c) }
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			nodes = append(nodes, testNode(id(r, c), float64(c)*0.01, float64(r)*0.01))
		}
	}
	nm := nodeMap(nodes)
	addEdge := func(a, b string) {
		e := testEdge(a+"_"+b, a, b, nm)
		e.BaseCost = 1 + 4*rng.Float64()
		edges = append(edges, e)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c+1 < cols {
				addEdge(id(r, c), id(r, c+1))
			}
			if r+1 < rows {
				addEdge(id(r, c), id(r+1, c))
			}
		}
	}
	return graph.Build(nodes, edges)
}

// bruteForceCost enumerates every simple path and returns the cheapest
// total cost. Only viable on tiny graphs.
func bruteForceCost(g *graph.Graph, cctx *cost.Context, cur, goal string, visited map[string]bool) (float64, bool) {
	if cur == goal {
		return 0, true
	}
	visited[cur] = true
	defer delete(visited, cur)

	best := math.Inf(1)
	found := false
	for _, edgeID := range g.Out[cur] {
		e := g.Edges[edgeID]
		next := g.Opposite(e, cur)
		if e.OneWay && e.FromNode != cur {
			continue
		}
		if visited[next] {
			continue
		}
		ec, ok := cctx.EdgeCost(e)
		if !ok {
			continue
		}
		rest, ok := bruteForceCost(g, cctx, next, goal, visited)
		if ok && ec.Cost+rest < best {
			best = ec.Cost + rest
			found = true
		}
	}
	return best, found
}

func TestShortestPathMatchesExhaustiveSearch(t *testing.T) {
	params := cost.Params{}
	vehicle := cost.DefaultVehicle(params)

	for seed := int64(0); seed < 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		g := gridGraph(4, 4, rng)
		cctx := cost.NewContext(vehicle, nil, model.PolicyStrict, params)

		want, ok := bruteForceCost(g, cctx, "n0-0", "n3-3", map[string]bool{})
		if !ok {
			t.Fatalf("seed %d: grid must be connected", seed)
		}
		steps, got, ok := shortestPath(g, cctx, "n0-0", "n3-3", vehicle.MaxSpeedKph)
		if !ok {
			t.Fatalf("seed %d: search found no path", seed)
		}
		if math.Abs(got-want) > 1e-6 {
			t.Fatalf("seed %d: search cost %.6f, exhaustive minimum %.6f", seed, got, want)
		}
		var sum float64
		for _, s := range steps {
			sum += s.cost.Cost
		}
		if math.Abs(sum-got) > 1e-6 {
			t.Fatalf("seed %d: step costs sum to %.6f, reported %.6f", seed, sum, got)
		}
	}
}

func TestShortestPathDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	g := gridGraph(4, 4, rng)
	cctx := cost.NewContext(cost.DefaultVehicle(cost.Params{}), nil, model.PolicyStrict, cost.Params{})

	first, firstCost, ok := shortestPath(g, cctx, "n0-0", "n3-3", 0)
	if !ok {
		t.Fatal("search found no path")
	}
	for i := 0; i < 3; i++ {
		steps, c, ok := shortestPath(g, cctx, "n0-0", "n3-3", 0)
		if !ok || c != firstCost || len(steps) != len(first) {
			t.Fatalf("run %d diverged: cost %.6f vs %.6f, %d vs %d steps", i, c, firstCost, len(steps), len(first))
		}
		for j := range steps {
			if steps[j].edgeID != first[j].edgeID {
				t.Fatalf("run %d step %d edge %s, want %s", i, j, steps[j].edgeID, first[j].edgeID)
			}
		}
	}
}
