package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"rescuenav/internal/graph"
	"rescuenav/internal/model"
)

// Memory is an in-memory graph store used when no DATABASE_URL is set, and
// by the test suites.
type Memory struct {
	mu       sync.Mutex
	repairMu sync.Mutex

	nodes    map[string]model.Node
	edges    map[string]model.Edge
	zones    map[string]model.HazardZone
	vehicles map[string]model.VehicleCapability
	audits   []model.PlanAudit
}

func NewMemory() *Memory {
	return &Memory{
		nodes:    map[string]model.Node{},
		edges:    map[string]model.Edge{},
		zones:    map[string]model.HazardZone{},
		vehicles: map[string]model.VehicleCapability{},
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) LoadSubgraph(ctx context.Context, points []orb.Point, radiusM float64) (*graph.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	box := boundingBox(points, radiusM)
	var edges []model.Edge
	wanted := map[string]bool{}
	for _, e := range m.edges {
		if edgeInBound(m, e, box) {
			edges = append(edges, e)
			wanted[e.FromNode] = true
			wanted[e.ToNode] = true
		}
	}
	// endpoint nodes of boundary-crossing edges are kept even when they
	// fall outside the box
	var nodes []model.Node
	for id, n := range m.nodes {
		if wanted[id] || box.Contains(n.Point()) {
			nodes = append(nodes, n)
		}
	}
	g := graph.Build(nodes, edges)
	if len(g.Edges) == 0 {
		return nil, &model.GraphEmptyError{RadiusM: radiusM}
	}
	return g, nil
}

func (m *Memory) LoadFullGraph(ctx context.Context) (*graph.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes := make([]model.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	edges := make([]model.Edge, 0, len(m.edges))
	for _, e := range m.edges {
		edges = append(edges, e)
	}
	return graph.Build(nodes, edges), nil
}

func (m *Memory) LoadHazardZones(ctx context.Context, scenarioID string) ([]model.HazardZone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.HazardZone{}
	for _, z := range m.zones {
		if scenarioID == "" || z.ScenarioID == scenarioID {
			out = append(out, z)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetVehicleCapability(ctx context.Context, id string) (model.VehicleCapability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return model.VehicleCapability{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) ListVehicleCapabilities(ctx context.Context) ([]model.VehicleCapability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.VehicleCapability, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ApplyRepairBatch validates the whole batch before touching any state, so
// a failed batch leaves the graph untouched.
func (m *Memory) ApplyRepairBatch(ctx context.Context, b RepairBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range b.DisabledEdges {
		e, ok := m.edges[id]
		if !ok {
			return fmt.Errorf("repair batch: disable %s: %w", id, ErrNotFound)
		}
		if !e.Accessible {
			return fmt.Errorf("repair batch: edge %s already disabled", id)
		}
	}
	for _, e := range b.NewEdges {
		if _, ok := m.edges[e.ID]; ok {
			return fmt.Errorf("repair batch: edge %s already exists", e.ID)
		}
	}
	for _, n := range b.NewNodes {
		m.nodes[n.ID] = n
	}
	for _, e := range b.NewEdges {
		m.edges[e.ID] = e
	}
	for id, repl := range b.DisabledEdges {
		e := m.edges[id]
		e.Accessible = false
		if e.Properties == nil {
			e.Properties = map[string]any{}
		}
		e.Properties[model.PropReplacedBySplit] = repl
		m.edges[id] = e
	}
	return nil
}

func (m *Memory) AcquireRepairLock(ctx context.Context) (func(), error) {
	if !m.repairMu.TryLock() {
		return nil, ErrRepairRunning
	}
	return m.repairMu.Unlock, nil
}

func (m *Memory) SavePlanAudit(ctx context.Context, a model.PlanAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, a)
	return nil
}

func (m *Memory) ListPlanAudits(ctx context.Context, scenarioID string, limit int) ([]model.PlanAudit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := []model.PlanAudit{}
	for i := len(m.audits) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.audits[i]
		if scenarioID == "" || a.ScenarioID == scenarioID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) UpsertNodes(ctx context.Context, nodes []model.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		m.nodes[n.ID] = n
	}
	return nil
}

func (m *Memory) UpsertEdges(ctx context.Context, edges []model.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range edges {
		m.edges[e.ID] = e
	}
	return nil
}

func (m *Memory) UpsertHazardZones(ctx context.Context, zones []model.HazardZone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, z := range zones {
		m.zones[z.ID] = z
	}
	return nil
}

func (m *Memory) UpsertVehicleCapabilities(ctx context.Context, vehicles []model.VehicleCapability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vehicles {
		m.vehicles[v.ID] = v
	}
	return nil
}

func edgeInBound(m *Memory, e model.Edge, b orb.Bound) bool {
	for _, p := range e.Geometry {
		if b.Contains(p) {
			return true
		}
	}
	if len(e.Geometry) == 0 {
		if n, ok := m.nodes[e.FromNode]; ok && b.Contains(n.Point()) {
			return true
		}
		if n, ok := m.nodes[e.ToNode]; ok && b.Contains(n.Point()) {
			return true
		}
	}
	return false
}
