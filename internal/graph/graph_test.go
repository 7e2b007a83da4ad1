package graph

import (
	"testing"

	"github.com/paulmach/orb"

	"rescuenav/internal/model"
)

func TestBuildDropsInaccessible(t *testing.T) {
	nodes := []model.Node{
		{ID: "a", Lon: 0, Lat: 0, Accessible: true},
		{ID: "b", Lon: 0.01, Lat: 0, Accessible: true},
		{ID: "c", Lon: 0.02, Lat: 0, Accessible: false},
	}
	edges := []model.Edge{
		{ID: "ab", FromNode: "a", ToNode: "b", Accessible: true},
		{ID: "bc", FromNode: "b", ToNode: "c", Accessible: true},  // endpoint inaccessible
		{ID: "ba", FromNode: "b", ToNode: "a", Accessible: false}, // edge disabled
		{ID: "ax", FromNode: "a", ToNode: "missing", Accessible: true},
	}
	g := Build(nodes, edges)
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(g.Edges))
	}
	if _, ok := g.Edges["ab"]; !ok {
		t.Fatal("ab should survive")
	}
}

func TestAdjacencyRespectsOneWay(t *testing.T) {
	nodes := []model.Node{
		{ID: "a", Accessible: true},
		{ID: "b", Accessible: true},
	}
	g := Build(nodes, []model.Edge{
		{ID: "ab", FromNode: "a", ToNode: "b", OneWay: true, Accessible: true},
	})
	if len(g.Out["a"]) != 1 {
		t.Fatal("a should have the outgoing edge")
	}
	if len(g.Out["b"]) != 0 {
		t.Fatal("one-way edge must not appear in reverse adjacency")
	}
}

func TestNearestNode(t *testing.T) {
	nodes := []model.Node{
		{ID: "a", Lon: 0, Lat: 0, Accessible: true},
		{ID: "b", Lon: 0.01, Lat: 0, Accessible: true},
	}
	g := Build(nodes, nil)
	id, ok := g.NearestNode(orb.Point{0.0001, 0}, 500)
	if !ok || id != "a" {
		t.Fatalf("nearest = %q ok=%v, want a", id, ok)
	}
	if _, ok := g.NearestNode(orb.Point{1, 1}, 500); ok {
		t.Fatal("nothing within 500m should match")
	}
}

func TestConnectivity(t *testing.T) {
	nodes := []model.Node{
		{ID: "a", Accessible: true},
		{ID: "b", Accessible: true},
		{ID: "c", Accessible: true},
		{ID: "d", Accessible: true},
	}
	g := Build(nodes, []model.Edge{
		{ID: "ab", FromNode: "a", ToNode: "b", Accessible: true},
		{ID: "cd", FromNode: "c", ToNode: "d", Accessible: true},
	})
	conn := g.Connectivity()
	if conn.ComponentCount != 2 {
		t.Fatalf("components = %d, want 2", conn.ComponentCount)
	}
	if conn.LargestComponentFraction != 0.5 {
		t.Fatalf("fraction = %.2f, want 0.5", conn.LargestComponentFraction)
	}
}
