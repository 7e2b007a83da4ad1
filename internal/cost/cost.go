package cost

import (
	"rescuenav/internal/geo"
	"rescuenav/internal/model"
)

// Params tunes the cost model. Zero values fall back to defaults, so the
// model behaves correctly with no configuration at all.
type Params struct {
	RiskThreshold   int     // risk level at or above which cost escalates
	RiskPenalty     float64 // multiplier applied past the threshold
	DefaultSpeedKph float64 // speed assumed when the vehicle record has none
}

func (p Params) withDefaults() Params {
	if p.RiskThreshold <= 0 {
		p.RiskThreshold = 4
	}
	if p.RiskPenalty <= 1 {
		p.RiskPenalty = 5.0
	}
	if p.DefaultSpeedKph <= 0 {
		p.DefaultSpeedKph = 40
	}
	return p
}

// DefaultVehicle is the capability assumed when no vehicle id is given.
func DefaultVehicle(p Params) model.VehicleCapability {
	p = p.withDefaults()
	return model.VehicleCapability{ID: "default", Code: "default", MaxSpeedKph: p.DefaultSpeedKph}
}

// EdgeCost is the traversal cost of one edge for one vehicle in one hazard
// context.
type EdgeCost struct {
	Cost   float64 // search cost, seconds scaled by penalty factors
	ETASec float64 // expected travel time in seconds
	Risk   float64 // highest risk level among intersecting zones
}

type hazardEffect struct {
	blocked     bool
	speedFactor float64
	riskMult    float64
	risk        float64
}

// Context holds the per-call hazard resolution and a per-edge cache. It is
// built once per planning call and used from a single goroutine.
type Context struct {
	Vehicle   model.VehicleCapability
	Policy    model.RiskPolicy
	params    Params
	excluded  []model.HazardZone
	penalized []model.HazardZone
	cache     map[string]hazardEffect
}

// NewContext resolves the risk policy against the scenario's hazard zones.
//
// Strict excludes confirmed_blocked, needs_reconnaissance, and unknown
// zones marked impassable. Relaxed only excludes confirmed_blocked and
// impassable unknown zones; needs_reconnaissance stays traversable with a
// cost penalty. The resolution is evaluated once per call and never cached
// across calls.
func NewContext(vehicle model.VehicleCapability, zones []model.HazardZone, policy model.RiskPolicy, p Params) *Context {
	if policy == "" {
		policy = model.PolicyStrict
	}
	c := &Context{
		Vehicle: vehicle,
		Policy:  policy,
		params:  p.withDefaults(),
		cache:   map[string]hazardEffect{},
	}
	for _, z := range zones {
		switch {
		case z.PassageStatus == model.PassageBlocked:
			c.excluded = append(c.excluded, z)
		case z.PassageStatus == model.PassageUnknown && !z.Passable:
			c.excluded = append(c.excluded, z)
		case z.PassageStatus == model.PassageNeedsRecon:
			if policy == model.PolicyStrict {
				c.excluded = append(c.excluded, z)
			} else {
				c.penalized = append(c.penalized, z)
			}
		default:
			c.penalized = append(c.penalized, z)
		}
	}
	return c
}

// EdgeCost computes the cost and travel time of e for the context's
// vehicle, or ok=false when the edge is infeasible (hard constraint or
// blocking hazard). Infeasible edges are excluded from search, not
// penalized.
func (c *Context) EdgeCost(e *model.Edge) (EdgeCost, bool) {
	if !c.feasible(e) {
		return EdgeCost{}, false
	}
	h := c.hazardFor(e)
	if h.blocked {
		return EdgeCost{}, false
	}

	v := c.Vehicle
	speed := v.MaxSpeedKph
	if speed <= 0 {
		speed = c.params.DefaultSpeedKph
	}
	if f, ok := v.RoadSpeedFactors[e.RoadClass]; ok && f > 0 {
		speed *= f
	}
	if f, ok := e.SpeedFactors[v.Code]; ok && f > 0 {
		speed *= f
	}
	if e.MaxSpeedKph > 0 && speed > e.MaxSpeedKph {
		speed = e.MaxSpeedKph
	}
	// never faster than the vehicle itself, keeps the great-circle
	// heuristic admissible
	if v.MaxSpeedKph > 0 && speed > v.MaxSpeedKph {
		speed = v.MaxSpeedKph
	}
	speed *= h.speedFactor
	if speed < 1 {
		speed = 1
	}

	length := e.LengthM
	if length <= 0 {
		length = geo.LineLengthM(e.Geometry)
	}
	if length <= 0 {
		length = 1
	}
	eta := length / (speed / 3.6)

	terrain := factorOrNeutral(e.TerrainCostFactor)
	if f, ok := v.TerrainOverrides[e.TerrainType]; ok && f > 0 {
		terrain = f
	}
	gradient := factorOrNeutral(e.GradientCostFactor)
	base := factorOrNeutral(e.BaseCost)

	cost := eta * terrain * gradient * base * h.riskMult
	return EdgeCost{Cost: cost, ETASec: eta, Risk: h.risk}, true
}

// feasible applies the hard vehicle constraints: terrain class, gradient,
// wading depth, and physical limits. Missing data never fails hard.
func (c *Context) feasible(e *model.Edge) bool {
	v := c.Vehicle
	if !v.AllTerrain && e.TerrainType != "" && e.TerrainType != "road" {
		allowed := false
		for _, t := range v.AllowedTerrain {
			if t == e.TerrainType {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	if v.MaxGradientPct > 0 && e.MaxGradientPct > v.MaxGradientPct {
		return false
	}
	if depth := propFloat(e, model.PropWaterDepthM); depth > 0 && depth > v.MaxWadingDepthM {
		return false
	}
	if lim := propFloat(e, model.PropMaxWidthM); lim > 0 && v.WidthM > lim {
		return false
	}
	if lim := propFloat(e, model.PropMaxHeightM); lim > 0 && v.HeightM > lim {
		return false
	}
	if lim := propFloat(e, model.PropMaxWeightT); lim > 0 && v.WeightT > lim {
		return false
	}
	return true
}

func (c *Context) hazardFor(e *model.Edge) hazardEffect {
	if h, ok := c.cache[e.ID]; ok {
		return h
	}
	h := hazardEffect{speedFactor: 1, riskMult: 1}
	line := e.Geometry
	if len(line) < 2 {
		c.cache[e.ID] = h
		return h
	}
	for _, z := range c.excluded {
		if !geo.LineIntersectsPolygon(line, z.Polygon) {
			continue
		}
		// confirmed_blocked stops every vehicle; other exclusions may
		// carve out specific vehicle types
		if z.PassageStatus != model.PassageBlocked && vehicleTypeAllowed(c.Vehicle.Code, z.PassableVehicleTypes) {
			h.riskMult *= c.params.RiskPenalty
			if float64(z.RiskLevel) > h.risk {
				h.risk = float64(z.RiskLevel)
			}
			continue
		}
		h.blocked = true
		c.cache[e.ID] = h
		return h
	}
	for _, z := range c.penalized {
		if !geo.LineIntersectsPolygon(line, z.Polygon) {
			continue
		}
		if z.SpeedReductionPct > 0 {
			f := 1 - z.SpeedReductionPct/100
			if f < 0.05 {
				f = 0.05
			}
			h.speedFactor *= f
		}
		if z.RiskLevel >= c.params.RiskThreshold || z.PassageStatus == model.PassageNeedsRecon {
			h.riskMult *= c.params.RiskPenalty
		}
		if float64(z.RiskLevel) > h.risk {
			h.risk = float64(z.RiskLevel)
		}
	}
	c.cache[e.ID] = h
	return h
}

// HasHazards reports whether any zone survived resolution; used to flag
// results that crossed penalized areas.
func (c *Context) HasHazards() bool { return len(c.excluded)+len(c.penalized) > 0 }

func vehicleTypeAllowed(code string, types []string) bool {
	for _, t := range types {
		if t == code {
			return true
		}
	}
	return false
}

func factorOrNeutral(f float64) float64 {
	if f <= 0 {
		return 1
	}
	return f
}

func propFloat(e *model.Edge, key string) float64 {
	if e.Properties == nil {
		return 0
	}
	switch v := e.Properties[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
