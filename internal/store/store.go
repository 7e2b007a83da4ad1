package store

import (
	"context"
	"errors"
	"math"

	"github.com/paulmach/orb"

	"rescuenav/internal/graph"
	"rescuenav/internal/model"
)

// GraphStore is the persistence interface the planners and the repair job
// run against. Planners only read; ApplyRepairBatch is the single mutating
// operation and must be atomic per batch.
type GraphStore interface {
	Ping(ctx context.Context) error

	// Subgraph loading (read-only)
	LoadSubgraph(ctx context.Context, points []orb.Point, radiusM float64) (*graph.Graph, error)
	LoadFullGraph(ctx context.Context) (*graph.Graph, error)

	// External collaborators' records (read-only)
	LoadHazardZones(ctx context.Context, scenarioID string) ([]model.HazardZone, error)
	GetVehicleCapability(ctx context.Context, id string) (model.VehicleCapability, error)
	ListVehicleCapabilities(ctx context.Context) ([]model.VehicleCapability, error)

	// Topology repair
	ApplyRepairBatch(ctx context.Context, b RepairBatch) error
	AcquireRepairLock(ctx context.Context) (release func(), err error)

	// Plan audit trail
	SavePlanAudit(ctx context.Context, a model.PlanAudit) error
	ListPlanAudits(ctx context.Context, scenarioID string, limit int) ([]model.PlanAudit, error)

	// Ingestion hooks; bulk loading itself lives outside this module
	UpsertNodes(ctx context.Context, nodes []model.Node) error
	UpsertEdges(ctx context.Context, edges []model.Edge) error
	UpsertHazardZones(ctx context.Context, zones []model.HazardZone) error
	UpsertVehicleCapabilities(ctx context.Context, vehicles []model.VehicleCapability) error
}

// RepairBatch is one atomic unit of topology repair: new intersection
// nodes, the split halves, and the original edges to disable with their
// replacement provenance. Either all of it commits or none of it does.
type RepairBatch struct {
	NewNodes      []model.Node
	NewEdges      []model.Edge
	DisabledEdges map[string][]string // original edge id -> replacement edge ids
}

var (
	ErrNotFound      = errors.New("not found")
	ErrRepairRunning = errors.New("topology repair already running")
)

// boundingBox expands the given points by radiusM meters into a lon/lat
// box. Longitude expansion is scaled by cos(lat) so the box stays roughly
// square in meters.
func boundingBox(points []orb.Point, radiusM float64) orb.Bound {
	b := orb.Bound{Min: orb.Point{180, 90}, Max: orb.Point{-180, -90}}
	for _, p := range points {
		if p[0] < b.Min[0] {
			b.Min[0] = p[0]
		}
		if p[1] < b.Min[1] {
			b.Min[1] = p[1]
		}
		if p[0] > b.Max[0] {
			b.Max[0] = p[0]
		}
		if p[1] > b.Max[1] {
			b.Max[1] = p[1]
		}
	}
	dLat := radiusM / 111320.0
	cosLat := math.Cos((b.Min[1] + b.Max[1]) / 2 * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLon := radiusM / (111320.0 * cosLat)
	b.Min[0] -= dLon
	b.Min[1] -= dLat
	b.Max[0] += dLon
	b.Max[1] += dLat
	return b
}
