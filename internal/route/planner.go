package route

import (
	"context"
	"errors"
	"log"

	"github.com/paulmach/orb"

	"rescuenav/internal/config"
	"rescuenav/internal/cost"
	"rescuenav/internal/geo"
	"rescuenav/internal/graph"
	"rescuenav/internal/model"
	"rescuenav/internal/store"
)

// Planner computes single-vehicle routes. Each call loads its own
// radius-bounded subgraph and hazard snapshot; nothing is shared between
// calls, so Planner is safe for concurrent use.
type Planner struct {
	Store store.GraphStore
	Cfg   config.Planner
}

func New(s store.GraphStore, cfg config.Planner) *Planner {
	return &Planner{Store: s, Cfg: cfg}
}

func (p *Planner) costParams() cost.Params {
	return cost.Params{
		RiskThreshold:   p.Cfg.RiskThreshold,
		RiskPenalty:     p.Cfg.RiskPenalty,
		DefaultSpeedKph: p.Cfg.DefaultSpeedKph,
	}
}

// PlanRoute finds a shortest-cost path between the request's endpoints.
//
// On failure it retries with the search radius scaled by (1 + 0.5*attempt)
// and, in the later attempts, a relaxed risk policy. When no graph data
// exists anywhere in the area, a straight-line estimate is returned with
// an explicit warning instead of an error; when data exists but no path
// does, the error is *model.InfeasiblePathError.
func (p *Planner) PlanRoute(ctx context.Context, req model.RouteRequest) (*model.RouteResult, error) {
	vehicle := cost.DefaultVehicle(p.costParams())
	if req.VehicleID != "" {
		v, err := p.Store.GetVehicleCapability(ctx, req.VehicleID)
		if err != nil {
			return nil, err
		}
		vehicle = v
	}
	policy := req.Policy
	if policy == "" {
		policy = model.PolicyStrict
	}
	baseRadius := req.RadiusM
	if baseRadius <= 0 {
		baseRadius = p.Cfg.InitialRadiusM
	}

	start := req.Start.Point()
	end := req.End.Point()
	points := []orb.Point{start, end}

	// hazard status is read once, fresh, at the start of the call
	var zones []model.HazardZone
	if req.ScenarioID != "" {
		zs, err := p.Store.LoadHazardZones(ctx, req.ScenarioID)
		if err != nil {
			return nil, err
		}
		zones = zs
	}

	sawGraph := false
	lastRadius := baseRadius
	lastPolicy := policy
	for attempt := 0; attempt < p.Cfg.MaxAttempts; attempt++ {
		radius := baseRadius * (1 + 0.5*float64(attempt))
		if radius > p.Cfg.MaxRadiusM {
			radius = p.Cfg.MaxRadiusM
		}
		lastRadius = radius

		pol := policy
		if pol == model.PolicyStrict && attempt >= p.Cfg.MaxAttempts/2 {
			pol = model.PolicyRelaxed
		}
		lastPolicy = pol

		g, err := p.Store.LoadSubgraph(ctx, points, radius)
		if err != nil {
			var empty *model.GraphEmptyError
			if errors.As(err, &empty) {
				continue
			}
			return nil, err
		}
		sawGraph = true

		startNode, ok := g.NearestNode(start, p.Cfg.SnapDistanceM)
		if !ok {
			continue
		}
		endNode, ok := g.NearestNode(end, p.Cfg.SnapDistanceM)
		if !ok || startNode == endNode && geo.DistanceM(start, end) > p.Cfg.SnapDistanceM {
			continue
		}

		cctx := cost.NewContext(vehicle, zones, pol, p.costParams())
		steps, _, found := shortestPath(g, cctx, startNode, endNode, vehicle.MaxSpeedKph)
		if !found {
			log.Printf("route: no path on attempt %d (radius %.0fm, policy %s)", attempt+1, radius, pol)
			continue
		}
		res := buildResult(g, steps, attempt+1, pol)
		if policy == model.PolicyStrict && pol == model.PolicyRelaxed {
			res.Warnings = append(res.Warnings, model.WarnRelaxedPolicy)
		}
		return res, nil
	}

	if !sawGraph {
		return p.fallbackResult(req, policy), nil
	}
	return nil, &model.InfeasiblePathError{Attempts: p.Cfg.MaxAttempts, LastRadiusM: lastRadius, LastPolicy: lastPolicy}
}

// fallbackResult is the flagged straight-line estimate used when the store
// holds no road network near the request at all.
func (p *Planner) fallbackResult(req model.RouteRequest, policy model.RiskPolicy) *model.RouteResult {
	dist := geo.DistanceM(req.Start.Point(), req.End.Point())
	speed := p.Cfg.DefaultSpeedKph
	if speed <= 0 {
		speed = 40
	}
	log.Printf("route: falling back to straight-line estimate (%.0fm)", dist)
	return &model.RouteResult{
		Points:      []model.GeoPoint{req.Start, req.End},
		DistanceM:   dist,
		DurationSec: dist / (speed / 3.6),
		Policy:      policy,
		Attempts:    p.Cfg.MaxAttempts,
		Warnings:    []string{model.WarnNoRoadNetwork},
	}
}

func buildResult(g *graph.Graph, steps []step, attempts int, policy model.RiskPolicy) *model.RouteResult {
	res := &model.RouteResult{Policy: policy, Attempts: attempts}
	for _, s := range steps {
		e := g.Edges[s.edgeID]
		length := e.LengthM
		if length <= 0 {
			length = geo.LineLengthM(e.Geometry)
		}
		seg := model.RouteSegment{
			EdgeID:      s.edgeID,
			FromNode:    s.from,
			ToNode:      s.to,
			RoadClass:   e.RoadClass,
			LengthM:     length,
			DurationSec: s.cost.ETASec,
			Cost:        s.cost.Cost,
			RiskScore:   s.cost.Risk,
		}
		res.Segments = append(res.Segments, seg)
		res.DistanceM += length
		res.DurationSec += s.cost.ETASec
		if s.cost.Risk > res.RiskScore {
			res.RiskScore = s.cost.Risk
		}
		res.Points = append(res.Points, edgePoints(g, e, s.from)...)
	}
	// close the polyline at the final node
	if len(steps) > 0 {
		last := g.Nodes[steps[len(steps)-1].to]
		res.Points = append(res.Points, model.GeoPoint{Lat: last.Lat, Lng: last.Lon})
	}
	if res.RiskScore > 0 {
		res.Warnings = append(res.Warnings, model.WarnHazardOnRoute)
	}
	return res
}

// edgePoints returns the edge polyline oriented to start at fromNode,
// excluding the final vertex (the next segment contributes it).
func edgePoints(g *graph.Graph, e *model.Edge, fromNode string) []model.GeoPoint {
	line := e.Geometry
	if len(line) < 2 {
		n := g.Nodes[fromNode]
		return []model.GeoPoint{{Lat: n.Lat, Lng: n.Lon}}
	}
	pts := make([]model.GeoPoint, 0, len(line)-1)
	if e.FromNode == fromNode {
		for _, p := range line[:len(line)-1] {
			pts = append(pts, model.GeoPoint{Lat: p[1], Lng: p[0]})
		}
	} else {
		for i := len(line) - 1; i > 0; i-- {
			pts = append(pts, model.GeoPoint{Lat: line[i][1], Lng: line[i][0]})
		}
	}
	return pts
}
