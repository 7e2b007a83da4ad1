// Package repair finds road edges that cross geometrically without a
// shared node and heals the topology: it materializes intersection
// nodes, splits the crossing edges at them and retires the originals
// with provenance, batch by batch, under a store-level single-runner
// lock.
package repair

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"golang.org/x/time/rate"

	"rescuenav/internal/config"
	"rescuenav/internal/geo"
	"rescuenav/internal/graph"
	"rescuenav/internal/metrics"
	"rescuenav/internal/model"
	"rescuenav/internal/store"
)

// ProgressFunc receives per-batch progress. stage is "batch" or "done".
type ProgressFunc func(stage string, stats model.RepairStats)

type Job struct {
	Store    store.GraphStore
	Cfg      config.Repair
	Progress ProgressFunc
}

func New(st store.GraphStore, cfg config.Repair) *Job {
	return &Job{Store: st, Cfg: cfg}
}

type crossing struct {
	edgeA, edgeB string
	point        orb.Point
}

// Run executes the repair until no crossings remain, the batch cap is
// reached, or the context is cancelled. Each batch commits atomically;
// a second Run over a repaired graph is a no-op because split halves
// meet at a shared node and shared-endpoint pairs are never candidates.
func (j *Job) Run(ctx context.Context, dryRun bool) (model.RepairStats, error) {
	release, err := j.Store.AcquireRepairLock(ctx)
	if err != nil {
		return model.RepairStats{}, err
	}
	defer release()

	g, err := j.Store.LoadFullGraph(ctx)
	if err != nil {
		return model.RepairStats{}, fmt.Errorf("load graph: %w", err)
	}
	stats := model.RepairStats{DryRun: dryRun, Before: g.Connectivity()}

	limiter := rate.NewLimiter(rate.Limit(j.Cfg.BatchesPerSecond), 1)
	maxBatches := j.Cfg.MaxBatches
	if maxBatches <= 0 {
		maxBatches = 1
	}
	for batch := 0; batch < maxBatches; batch++ {
		if err := limiter.Wait(ctx); err != nil {
			return stats, err
		}
		crossings := detectCrossings(g, j.Cfg.BatchSize)
		if len(crossings) == 0 {
			break
		}
		rb, nodesCreated := j.buildBatch(g, crossings)
		stats.Batches++
		stats.Crossings += len(crossings)
		stats.NodesCreated += nodesCreated
		stats.EdgesCreated += len(rb.NewEdges)
		stats.EdgesDisabled += len(rb.DisabledEdges)
		if dryRun {
			// one detection pass is enough; nothing changes underneath
			break
		}
		if err := j.Store.ApplyRepairBatch(ctx, rb); err != nil {
			return stats, fmt.Errorf("apply batch %d: %w", batch, err)
		}
		metrics.RepairBatches.Inc()
		metrics.RepairSplits.Add(float64(len(rb.DisabledEdges)))
		log.Printf("repair: batch=%d crossings=%d nodes=%d edges=%d",
			batch, len(crossings), nodesCreated, len(rb.NewEdges))
		if j.Progress != nil {
			j.Progress("batch", stats)
		}
		g, err = j.Store.LoadFullGraph(ctx)
		if err != nil {
			return stats, fmt.Errorf("reload graph: %w", err)
		}
	}
	if !dryRun {
		stats.After = g.Connectivity()
	} else {
		stats.After = stats.Before
	}
	if j.Progress != nil {
		j.Progress("done", stats)
	}
	return stats, nil
}

// detectCrossings scans accessible edge pairs for single-point geometric
// crossings, skipping pairs that already share an endpoint node. At most
// limit crossings are returned, each edge appearing at most once so a
// batch never splits the same edge twice.
func detectCrossings(g *graph.Graph, limit int) []crossing {
	ids := make([]string, 0, len(g.Edges))
	for id := range g.Edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	type boxed struct {
		id    string
		bound orb.Bound
	}
	boxes := make([]boxed, 0, len(ids))
	for _, id := range ids {
		e := g.Edges[id]
		if len(e.Geometry) < 2 {
			continue
		}
		boxes = append(boxes, boxed{id: id, bound: e.Geometry.Bound()})
	}

	var out []crossing
	used := map[string]bool{}
	for i := 0; i < len(boxes); i++ {
		for k := i + 1; k < len(boxes); k++ {
			if limit > 0 && len(out) >= limit {
				return out
			}
			a, b := g.Edges[boxes[i].id], g.Edges[boxes[k].id]
			if used[a.ID] || used[b.ID] {
				continue
			}
			if !boxes[i].bound.Intersects(boxes[k].bound) {
				continue
			}
			if sharesEndpoint(a, b) {
				continue
			}
			pt, ok := geo.LineIntersection(a.Geometry, b.Geometry)
			if !ok {
				continue
			}
			out = append(out, crossing{edgeA: a.ID, edgeB: b.ID, point: pt})
			used[a.ID] = true
			used[b.ID] = true
		}
	}
	return out
}

func sharesEndpoint(a, b *model.Edge) bool {
	return a.FromNode == b.FromNode || a.FromNode == b.ToNode ||
		a.ToNode == b.FromNode || a.ToNode == b.ToNode
}

// buildBatch turns detected crossings into one atomic RepairBatch:
// crossing points within the snap tolerance collapse into one new node,
// points near an existing node associate with it instead, and every
// affected edge is cut at the node with its halves inheriting the
// original's attributes.
func (j *Job) buildBatch(g *graph.Graph, crossings []crossing) (store.RepairBatch, int) {
	rb := store.RepairBatch{DisabledEdges: map[string][]string{}}
	created := 0

	nodeFor := func(pt orb.Point) (string, orb.Point) {
		if id, npt, ok := nearestExisting(g, pt, j.Cfg.AssocToleranceM); ok {
			return id, npt
		}
		for i := range rb.NewNodes {
			n := &rb.NewNodes[i]
			if geo.HaversineM(pt[1], pt[0], n.Lat, n.Lon) <= j.Cfg.SnapToleranceM {
				return n.ID, orb.Point{n.Lon, n.Lat}
			}
		}
		n := model.Node{
			ID:         uuid.NewString(),
			Lon:        pt[0],
			Lat:        pt[1],
			Type:       model.NodeIntersection,
			EdgeCount:  4,
			Accessible: true,
		}
		rb.NewNodes = append(rb.NewNodes, n)
		created++
		return n.ID, pt
	}

	for _, c := range crossings {
		nodeID, npt := nodeFor(c.point)
		for _, eid := range []string{c.edgeA, c.edgeB} {
			e := g.Edges[eid]
			if e.FromNode == nodeID || e.ToNode == nodeID {
				continue
			}
			first, second := splitEdge(e, npt, nodeID)
			rb.NewEdges = append(rb.NewEdges, first, second)
			rb.DisabledEdges[eid] = []string{first.ID, second.ID}
		}
	}
	return rb, created
}

func nearestExisting(g *graph.Graph, pt orb.Point, tolM float64) (string, orb.Point, bool) {
	bestID := ""
	bestDist := tolM
	var bestPt orb.Point
	for id, n := range g.Nodes {
		d := geo.HaversineM(pt[1], pt[0], n.Lat, n.Lon)
		if d < bestDist || (d == bestDist && bestID != "" && id < bestID) {
			bestID = id
			bestDist = d
			bestPt = orb.Point{n.Lon, n.Lat}
		}
	}
	return bestID, bestPt, bestID != ""
}

// splitEdge cuts e at the linear reference of pt, clamped away from the
// endpoints, and returns the two halves joined at nodeID. Gain and loss
// are apportioned by length.
func splitEdge(e *model.Edge, pt orb.Point, nodeID string) (model.Edge, model.Edge) {
	frac := geo.LocateAlong(e.Geometry, pt)
	frac = math.Max(0.01, math.Min(0.99, frac))
	g1, g2 := geo.SplitLine(e.Geometry, frac)
	// put the shared node's exact coordinates at the cut
	g1[len(g1)-1] = pt
	g2[0] = pt

	first := derivedEdge(e, g1, e.FromNode, nodeID, frac)
	second := derivedEdge(e, g2, nodeID, e.ToNode, 1-frac)
	return first, second
}

func derivedEdge(orig *model.Edge, geom orb.LineString, from, to string, share float64) model.Edge {
	e := model.Edge{
		ID:                 uuid.NewString(),
		FromNode:           from,
		ToNode:             to,
		Geometry:           geom,
		RoadClass:          orig.RoadClass,
		OneWay:             orig.OneWay,
		MaxSpeedKph:        orig.MaxSpeedKph,
		LengthM:            geo.LineLengthM(geom),
		ElevGainM:          orig.ElevGainM * share,
		ElevLossM:          orig.ElevLossM * share,
		AvgGradientPct:     orig.AvgGradientPct,
		MaxGradientPct:     orig.MaxGradientPct,
		TerrainType:        orig.TerrainType,
		TerrainCostFactor:  orig.TerrainCostFactor,
		GradientCostFactor: orig.GradientCostFactor,
		BaseCost:           orig.BaseCost,
		Accessible:         true,
	}
	if len(orig.SpeedFactors) > 0 {
		e.SpeedFactors = make(map[string]float64, len(orig.SpeedFactors))
		for k, v := range orig.SpeedFactors {
			e.SpeedFactors[k] = v
		}
	}
	e.Properties = map[string]any{model.PropSplitFrom: orig.ID}
	for k, v := range orig.Properties {
		if k == model.PropSplitFrom || k == model.PropReplacedBySplit {
			continue
		}
		e.Properties[k] = v
	}
	return e
}
