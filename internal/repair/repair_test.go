package repair

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"rescuenav/internal/config"
	"rescuenav/internal/geo"
	"rescuenav/internal/model"
	"rescuenav/internal/store"
)

func seedCrossing(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	ctx := context.Background()
	nodes := []model.Node{
		{ID: "a1", Lon: 0, Lat: 0, Accessible: true},
		{ID: "a2", Lon: 0.02, Lat: 0.02, Accessible: true},
		{ID: "b1", Lon: 0, Lat: 0.02, Accessible: true},
		{ID: "b2", Lon: 0.02, Lat: 0, Accessible: true},
	}
	edges := []model.Edge{
		{
			ID: "ea", FromNode: "a1", ToNode: "a2",
			Geometry:   orb.LineString{{0, 0}, {0.02, 0.02}},
			LengthM:    geo.LineLengthM(orb.LineString{{0, 0}, {0.02, 0.02}}),
			Accessible: true,
		},
		{
			ID: "eb", FromNode: "b1", ToNode: "b2",
			Geometry:   orb.LineString{{0, 0.02}, {0.02, 0}},
			LengthM:    geo.LineLengthM(orb.LineString{{0, 0.02}, {0.02, 0}}),
			Accessible: true,
		},
	}
	if err := m.UpsertNodes(ctx, nodes); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertEdges(ctx, edges); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRepairXCrossing(t *testing.T) {
	m := seedCrossing(t)
	job := New(m, config.Default().Repair)

	stats, err := job.Run(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Crossings != 1 {
		t.Fatalf("crossings = %d, want 1", stats.Crossings)
	}
	if stats.NodesCreated != 1 {
		t.Fatalf("nodes created = %d, want 1", stats.NodesCreated)
	}
	if stats.EdgesCreated != 4 {
		t.Fatalf("edges created = %d, want 4", stats.EdgesCreated)
	}
	if stats.EdgesDisabled != 2 {
		t.Fatalf("edges disabled = %d, want 2", stats.EdgesDisabled)
	}
	if stats.Before.ComponentCount != 2 {
		t.Fatalf("before: %d components, want 2", stats.Before.ComponentCount)
	}
	if stats.After.ComponentCount != 1 {
		t.Fatalf("after: %d components, want 1", stats.After.ComponentCount)
	}

	g, err := m.LoadFullGraph(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// the graph now carries 5 nodes and the 4 split halves
	if len(g.Nodes) != 5 {
		t.Fatalf("nodes = %d, want 5", len(g.Nodes))
	}
	if len(g.Edges) != 4 {
		t.Fatalf("accessible edges = %d, want 4", len(g.Edges))
	}
	for _, e := range g.Edges {
		if e.Properties[model.PropSplitFrom] == nil {
			t.Fatalf("split edge %s missing provenance", e.ID)
		}
	}
	// the new node sits at the crossing
	foundCross := false
	for _, n := range g.Nodes {
		if n.Type == model.NodeIntersection &&
			math.Abs(n.Lon-0.01) < 1e-6 && math.Abs(n.Lat-0.01) < 1e-6 {
			foundCross = true
		}
	}
	if !foundCross {
		t.Fatal("expected an intersection node at (0.01, 0.01)")
	}
}

func TestRepairConservesLength(t *testing.T) {
	m := seedCrossing(t)
	before, _ := m.LoadFullGraph(context.Background())
	total := 0.0
	for _, e := range before.Edges {
		total += e.LengthM
	}

	if _, err := New(m, config.Default().Repair).Run(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	after, _ := m.LoadFullGraph(context.Background())
	sum := 0.0
	for _, e := range after.Edges {
		sum += e.LengthM
	}
	if math.Abs(sum-total)/total > 0.005 {
		t.Fatalf("length not conserved: %.2f -> %.2f", total, sum)
	}
}

func TestRepairIdempotent(t *testing.T) {
	m := seedCrossing(t)
	if _, err := New(m, config.Default().Repair).Run(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	stats, err := New(m, config.Default().Repair).Run(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Batches != 0 || stats.Crossings != 0 {
		t.Fatalf("second run must be a no-op, got %+v", stats)
	}
}

func TestRepairDryRunLeavesGraphUntouched(t *testing.T) {
	m := seedCrossing(t)
	stats, err := New(m, config.Default().Repair).Run(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.DryRun {
		t.Fatal("stats must be flagged dry-run")
	}
	if stats.Crossings != 1 || stats.EdgesCreated != 4 {
		t.Fatalf("dry run should report the planned work, got %+v", stats)
	}
	g, _ := m.LoadFullGraph(context.Background())
	if len(g.Edges) != 2 || len(g.Nodes) != 4 {
		t.Fatalf("dry run mutated the graph: %d nodes %d edges", len(g.Nodes), len(g.Edges))
	}
}

func TestRepairChainedCrossings(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	// one vertical edge crossing two horizontals
	nodes := []model.Node{
		{ID: "h1a", Lon: 0, Lat: 0.005, Accessible: true},
		{ID: "h1b", Lon: 0.02, Lat: 0.005, Accessible: true},
		{ID: "h2a", Lon: 0, Lat: 0.015, Accessible: true},
		{ID: "h2b", Lon: 0.02, Lat: 0.015, Accessible: true},
		{ID: "va", Lon: 0.01, Lat: 0, Accessible: true},
		{ID: "vb", Lon: 0.01, Lat: 0.02, Accessible: true},
	}
	mkEdge := func(id, from, to string, geom orb.LineString) model.Edge {
		return model.Edge{ID: id, FromNode: from, ToNode: to, Geometry: geom, LengthM: geo.LineLengthM(geom), Accessible: true}
	}
	edges := []model.Edge{
		mkEdge("h1", "h1a", "h1b", orb.LineString{{0, 0.005}, {0.02, 0.005}}),
		mkEdge("h2", "h2a", "h2b", orb.LineString{{0, 0.015}, {0.02, 0.015}}),
		mkEdge("v", "va", "vb", orb.LineString{{0.01, 0}, {0.01, 0.02}}),
	}
	if err := m.UpsertNodes(ctx, nodes); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertEdges(ctx, edges); err != nil {
		t.Fatal(err)
	}

	if _, err := New(m, config.Default().Repair).Run(ctx, false); err != nil {
		t.Fatal(err)
	}
	// the second crossing lands on a split half, so it takes another batch;
	// after convergence a fresh run finds nothing
	final, err := New(m, config.Default().Repair).Run(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if final.Crossings != 0 {
		t.Fatalf("crossings remain after repair: %d", final.Crossings)
	}
	g, _ := m.LoadFullGraph(ctx)
	if g.Connectivity().ComponentCount != 1 {
		t.Fatal("repaired graph should be fully connected")
	}
}

func TestRepairLockConflict(t *testing.T) {
	m := seedCrossing(t)
	release, err := m.AcquireRepairLock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	_, err = New(m, config.Default().Repair).Run(context.Background(), false)
	if !errors.Is(err, store.ErrRepairRunning) {
		t.Fatalf("expected ErrRepairRunning, got %v", err)
	}
}
