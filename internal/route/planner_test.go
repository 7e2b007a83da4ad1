package route

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

func testNode(id string, lon, lat float64) model.Node {
	return model.Node{ID: id, Lon: lon, Lat: lat, Accessible: true}
}

func testEdge(id, from, to string, nodes map[string]model.Node) model.Edge {
	a, b := nodes[from], nodes[to]
	geom := orb.LineString{{a.Lon, a.Lat}, {b.Lon, b.Lat}}
	return model.Edge{
		ID:         id,
		FromNode:   from,
		ToNode:     to,
		Geometry:   geom,
		LengthM:    geo.LineLengthM(geom),
		Accessible: true,
	}
}

func seedGraph(t *testing.T, m *store.Memory, nodes []model.Node, edges []model.Edge) {
	t.Helper()
	if err := m.UpsertNodes(context.Background(), nodes); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertEdges(context.Background(), edges); err != nil {
		t.Fatal(err)
	}
}

func nodeMap(nodes []model.Node) map[string]model.Node {
	out := map[string]model.Node{}
	for _, n := range nodes {
		out[n.ID] = n
	}
	return out
}

func TestPlanRouteFallbackOnEmptyGraph(t *testing.T) {
	m := store.NewMemory()
	p := New(m, config.Default().Planner)

	req := model.RouteRequest{
		Start: model.GeoPoint{Lat: 31.6815, Lng: 103.8537},
		End:   model.GeoPoint{Lat: 31.6580, Lng: 103.8720},
	}
	res, err := p.PlanRoute(context.Background(), req)
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	found := false
	for _, w := range res.Warnings {
		if w == model.WarnNoRoadNetwork {
			found = true
		}
	}
	if !found {
		t.Fatalf("fallback result must carry %q, got %v", model.WarnNoRoadNetwork, res.Warnings)
	}
	dist := geo.HaversineM(31.6815, 103.8537, 31.6580, 103.8720)
	wantDur := dist / (40.0 / 3.6)
	if math.Abs(res.DistanceM-dist) > 1 {
		t.Fatalf("distance = %.0f, want %.0f", res.DistanceM, dist)
	}
	if math.Abs(res.DurationSec-wantDur) > 1 {
		t.Fatalf("duration = %.0f, want %.0f", res.DurationSec, wantDur)
	}
	if len(res.Points) != 2 {
		t.Fatalf("straight-line fallback should have 2 points, got %d", len(res.Points))
	}
}

func TestPlanRouteSimpleChain(t *testing.T) {
	m := store.NewMemory()
	nodes := []model.Node{
		testNode("a", 0, 0),
		testNode("b", 0.01, 0),
		testNode("c", 0.02, 0),
	}
	nm := nodeMap(nodes)
	edges := []model.Edge{
		testEdge("ab", "a", "b", nm),
		testEdge("bc", "b", "c", nm),
	}
	seedGraph(t, m, nodes, edges)
	p := New(m, config.Default().Planner)

	res, err := p.PlanRoute(context.Background(), model.RouteRequest{
		Start: model.GeoPoint{Lat: 0, Lng: 0},
		End:   model.GeoPoint{Lat: 0, Lng: 0.02},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	wantDist := edges[0].LengthM + edges[1].LengthM
	if math.Abs(res.DistanceM-wantDist) > 1 {
		t.Fatalf("distance = %.0f, want %.0f", res.DistanceM, wantDist)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("clean route must have no warnings, got %v", res.Warnings)
	}
	if res.DurationSec <= 0 {
		t.Fatal("duration must be positive")
	}
}

func TestPlanRoutePrefersCheaperDetour(t *testing.T) {
	m := store.NewMemory()
	nodes := []model.Node{
		testNode("a", 0, 0),
		testNode("b", 0.01, 0.001),
		testNode("c", 0.02, 0),
	}
	nm := nodeMap(nodes)
	direct := testEdge("ac", "a", "c", nm)
	direct.BaseCost = 10 // badly damaged surface
	edges := []model.Edge{
		direct,
		testEdge("ab", "a", "b", nm),
		testEdge("bc", "b", "c", nm),
	}
	seedGraph(t, m, nodes, edges)
	p := New(m, config.Default().Planner)

	res, err := p.PlanRoute(context.Background(), model.RouteRequest{
		Start: model.GeoPoint{Lat: 0, Lng: 0},
		End:   model.GeoPoint{Lat: 0, Lng: 0.02},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected the two-edge detour, got %d segments", len(res.Segments))
	}
	for _, s := range res.Segments {
		if s.EdgeID == "ac" {
			t.Fatal("route must avoid the high-cost direct edge")
		}
	}
}

func TestPlanRouteAvoidsBlockedZone(t *testing.T) {
	m := store.NewMemory()
	nodes := []model.Node{
		testNode("a", 0, 0),
		testNode("b", 0.01, 0),
		testNode("c", 0.02, 0),
		testNode("d", 0.005, 0.01),
		testNode("e", 0.015, 0.01),
	}
	nm := nodeMap(nodes)
	edges := []model.Edge{
		testEdge("ab", "a", "b", nm),
		testEdge("bc", "b", "c", nm),
		testEdge("ad", "a", "d", nm),
		testEdge("de", "d", "e", nm),
		testEdge("ec", "e", "c", nm),
	}
	seedGraph(t, m, nodes, edges)
	zones := []model.HazardZone{{
		ID:            "z1",
		ScenarioID:    "s1",
		Polygon:       orb.Polygon{{{0.005, -0.001}, {0.015, -0.001}, {0.015, 0.001}, {0.005, 0.001}, {0.005, -0.001}}},
		PassageStatus: model.PassageBlocked,
		RiskLevel:     5,
	}}
	if err := m.UpsertHazardZones(context.Background(), zones); err != nil {
		t.Fatal(err)
	}
	p := New(m, config.Default().Planner)

	res, err := p.PlanRoute(context.Background(), model.RouteRequest{
		Start:      model.GeoPoint{Lat: 0, Lng: 0},
		End:        model.GeoPoint{Lat: 0, Lng: 0.02},
		ScenarioID: "s1",
		Policy:     model.PolicyStrict,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range res.Segments {
		if s.EdgeID == "ab" || s.EdgeID == "bc" {
			t.Fatalf("route must detour around the blocked zone, traversed %s", s.EdgeID)
		}
	}
	if res.RiskScore != 0 {
		t.Fatalf("detour should be risk-free, got %.1f", res.RiskScore)
	}
}

func TestPlanRouteRelaxesPolicyWhenOnlyPathNeedsRecon(t *testing.T) {
	m := store.NewMemory()
	nodes := []model.Node{
		testNode("a", 0, 0),
		testNode("b", 0.01, 0),
		testNode("c", 0.02, 0),
	}
	nm := nodeMap(nodes)
	seedGraph(t, m, nodes, []model.Edge{
		testEdge("ab", "a", "b", nm),
		testEdge("bc", "b", "c", nm),
	})
	zones := []model.HazardZone{{
		ID:            "z1",
		ScenarioID:    "s1",
		Polygon:       orb.Polygon{{{0.005, -0.001}, {0.015, -0.001}, {0.015, 0.001}, {0.005, 0.001}, {0.005, -0.001}}},
		PassageStatus: model.PassageNeedsRecon,
		RiskLevel:     3,
		Passable:      true,
	}}
	if err := m.UpsertHazardZones(context.Background(), zones); err != nil {
		t.Fatal(err)
	}
	p := New(m, config.Default().Planner)

	res, err := p.PlanRoute(context.Background(), model.RouteRequest{
		Start:      model.GeoPoint{Lat: 0, Lng: 0},
		End:        model.GeoPoint{Lat: 0, Lng: 0.02},
		ScenarioID: "s1",
		Policy:     model.PolicyStrict,
	})
	if err != nil {
		t.Fatalf("relaxation should have produced a route: %v", err)
	}
	if res.Policy != model.PolicyRelaxed {
		t.Fatalf("result policy = %s, want relaxed", res.Policy)
	}
	hasRelaxed, hasHazard := false, false
	for _, w := range res.Warnings {
		if w == model.WarnRelaxedPolicy {
			hasRelaxed = true
		}
		if w == model.WarnHazardOnRoute {
			hasHazard = true
		}
	}
	if !hasRelaxed || !hasHazard {
		t.Fatalf("expected relaxation and hazard warnings, got %v", res.Warnings)
	}
	if res.Attempts <= config.Default().Planner.MaxAttempts/2 {
		t.Fatalf("relaxation happens in later attempts, got attempt %d", res.Attempts)
	}
}

func TestPlanRouteInfeasibleOnDisconnectedGraph(t *testing.T) {
	m := store.NewMemory()
	nodes := []model.Node{
		testNode("a", 0, 0),
		testNode("b", 0.001, 0),
		testNode("c", 0.05, 0),
		testNode("d", 0.051, 0),
	}
	nm := nodeMap(nodes)
	seedGraph(t, m, nodes, []model.Edge{
		testEdge("ab", "a", "b", nm),
		testEdge("cd", "c", "d", nm),
	})
	p := New(m, config.Default().Planner)

	_, err := p.PlanRoute(context.Background(), model.RouteRequest{
		Start: model.GeoPoint{Lat: 0, Lng: 0},
		End:   model.GeoPoint{Lat: 0, Lng: 0.05},
	})
	var infeasible *model.InfeasiblePathError
	if !errors.As(err, &infeasible) {
		t.Fatalf("expected InfeasiblePathError, got %v", err)
	}
	if infeasible.Attempts != config.Default().Planner.MaxAttempts {
		t.Fatalf("attempts = %d, want %d", infeasible.Attempts, config.Default().Planner.MaxAttempts)
	}
}

func TestPlanRouteVehicleCapabilityGate(t *testing.T) {
	m := store.NewMemory()
	nodes := []model.Node{
		testNode("a", 0, 0),
		testNode("b", 0.01, 0),
	}
	nm := nodeMap(nodes)
	mud := testEdge("ab", "a", "b", nm)
	mud.TerrainType = "mud"
	seedGraph(t, m, nodes, []model.Edge{mud})
	if err := m.UpsertVehicleCapabilities(context.Background(), []model.VehicleCapability{
		{ID: "ugv-1", Code: "ugv", MaxSpeedKph: 30, AllTerrain: true},
		{ID: "sedan-1", Code: "sedan", MaxSpeedKph: 90},
	}); err != nil {
		t.Fatal(err)
	}
	p := New(m, config.Default().Planner)
	req := model.RouteRequest{
		Start: model.GeoPoint{Lat: 0, Lng: 0},
		End:   model.GeoPoint{Lat: 0, Lng: 0.01},
	}

	req.VehicleID = "ugv-1"
	if _, err := p.PlanRoute(context.Background(), req); err != nil {
		t.Fatalf("all-terrain vehicle should cross mud: %v", err)
	}

	req.VehicleID = "sedan-1"
	_, err := p.PlanRoute(context.Background(), req)
	var infeasible *model.InfeasiblePathError
	if !errors.As(err, &infeasible) {
		t.Fatalf("road vehicle on mud-only graph should be infeasible, got %v", err)
	}
}

func TestPlanRouteUnknownVehicle(t *testing.T) {
	m := store.NewMemory()
	p := New(m, config.Default().Planner)
	_, err := p.PlanRoute(context.Background(), model.RouteRequest{
		Start:     model.GeoPoint{Lat: 0, Lng: 0},
		End:       model.GeoPoint{Lat: 0, Lng: 0.01},
		VehicleID: "nope",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
