package model

import (
	"github.com/paulmach/orb"
)

// Core domain types for the routing engine. Nodes, edges, hazard zones and
// vehicle capabilities are owned by external subsystems (graph ingestion,
// hazard verification, fleet management); the planner reads them as-is.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point returns the orb representation (lon, lat order).
func (p GeoPoint) Point() orb.Point { return orb.Point{p.Lng, p.Lat} }

type NodeType string

const (
	NodeIntersection NodeType = "intersection"
	NodeEndpoint     NodeType = "endpoint"
	NodeWaypoint     NodeType = "waypoint"
)

type Node struct {
	ID         string   `json:"id"`
	Lon        float64  `json:"lon"`
	Lat        float64  `json:"lat"`
	ElevationM float64  `json:"elevationM,omitempty"`
	Type       NodeType `json:"type,omitempty"`
	EdgeCount  int      `json:"edgeCount,omitempty"`
	Accessible bool     `json:"accessible"`
}

func (n Node) Point() orb.Point { return orb.Point{n.Lon, n.Lat} }

type Edge struct {
	ID                 string             `json:"id"`
	FromNode           string             `json:"fromNode"`
	ToNode             string             `json:"toNode"`
	Geometry           orb.LineString     `json:"geometry"`
	RoadClass          string             `json:"roadClass,omitempty"`
	OneWay             bool               `json:"oneway,omitempty"`
	MaxSpeedKph        float64            `json:"maxSpeedKph,omitempty"`
	LengthM            float64            `json:"lengthM"`
	ElevGainM          float64            `json:"elevGainM,omitempty"`
	ElevLossM          float64            `json:"elevLossM,omitempty"`
	AvgGradientPct     float64            `json:"avgGradientPct,omitempty"`
	MaxGradientPct     float64            `json:"maxGradientPct,omitempty"`
	TerrainType        string             `json:"terrainType,omitempty"`
	TerrainCostFactor  float64            `json:"terrainCostFactor,omitempty"`
	GradientCostFactor float64            `json:"gradientCostFactor,omitempty"`
	SpeedFactors       map[string]float64 `json:"speedFactors,omitempty"` // vehicle class code -> factor
	BaseCost           float64            `json:"baseCost,omitempty"`
	Accessible         bool               `json:"accessible"`
	Properties         map[string]any     `json:"properties,omitempty"` // provenance and physical limits
}

// Well-known Properties keys.
const (
	PropSplitFrom       = "split_from"        // id of the edge this edge was split out of
	PropReplacedBySplit = "replaced_by_split" // []string of replacement edge ids
	PropWaterDepthM     = "water_depth_m"     // flooding depth reported by the hazard subsystem
	PropMaxWidthM       = "max_width_m"
	PropMaxHeightM      = "max_height_m"
	PropMaxWeightT      = "max_weight_t"
)

// VehicleCapability constrains which edges a vehicle class may traverse and
// how fast it moves over them.
type VehicleCapability struct {
	ID               string             `json:"id"`
	Code             string             `json:"code"`
	MaxSpeedKph      float64            `json:"maxSpeedKph"`
	AllTerrain       bool               `json:"allTerrain,omitempty"`
	AllowedTerrain   []string           `json:"allowedTerrain,omitempty"`
	TerrainOverrides map[string]float64 `json:"terrainOverrides,omitempty"` // terrain type -> cost factor
	RoadSpeedFactors map[string]float64 `json:"roadSpeedFactors,omitempty"` // road class -> speed factor
	MaxGradientPct   float64            `json:"maxGradientPct,omitempty"`
	MaxWadingDepthM  float64            `json:"maxWadingDepthM,omitempty"`
	WidthM           float64            `json:"widthM,omitempty"`
	HeightM          float64            `json:"heightM,omitempty"`
	WeightT          float64            `json:"weightT,omitempty"`
}

type PassageStatus string

const (
	PassageClear       PassageStatus = "clear"
	PassageWithCaution PassageStatus = "passable_with_caution"
	PassageNeedsRecon  PassageStatus = "needs_reconnaissance"
	PassageBlocked     PassageStatus = "confirmed_blocked"
	PassageUnknown     PassageStatus = "unknown"
)

// HazardZone is a scenario-scoped polygon with verification-driven passage
// state. Status transitions happen in the hazard subsystem; planners read
// the current state fresh at the start of each call.
type HazardZone struct {
	ID                   string         `json:"id"`
	ScenarioID           string         `json:"scenarioId"`
	Polygon              orb.Polygon    `json:"polygon"`
	RiskLevel            int            `json:"riskLevel"`
	Passable             bool           `json:"passable"`
	PassableVehicleTypes []string       `json:"passableVehicleTypes,omitempty"`
	SpeedReductionPct    float64        `json:"speedReductionPct,omitempty"`
	PassageStatus        PassageStatus  `json:"passageStatus"`
	ReconRequired        bool           `json:"reconRequired,omitempty"`
	Verification         map[string]any `json:"verification,omitempty"`
}

type RiskPolicy string

const (
	PolicyStrict  RiskPolicy = "strict"
	PolicyRelaxed RiskPolicy = "relaxed"
)

// RouteRequest is the input to single-route planning.
type RouteRequest struct {
	Start      GeoPoint   `json:"start"`
	End        GeoPoint   `json:"end"`
	VehicleID  string     `json:"vehicleId,omitempty"`
	ScenarioID string     `json:"scenarioId,omitempty"`
	Policy     RiskPolicy `json:"policy,omitempty"`
	RadiusM    float64    `json:"radiusM,omitempty"`
}

type RouteSegment struct {
	EdgeID      string  `json:"edgeId"`
	FromNode    string  `json:"fromNode"`
	ToNode      string  `json:"toNode"`
	RoadClass   string  `json:"roadClass,omitempty"`
	LengthM     float64 `json:"lengthM"`
	DurationSec float64 `json:"durationSec"`
	Cost        float64 `json:"cost"`
	RiskScore   float64 `json:"riskScore,omitempty"`
}

// Warning strings carried on RouteResult. A degraded result is always
// flagged, never silently substituted.
const (
	WarnNoRoadNetwork = "no road network data"
	WarnRelaxedPolicy = "risk policy relaxed to find a path"
	WarnHazardOnRoute = "route traverses hazard-affected segments"
)

type RouteResult struct {
	Points      []GeoPoint     `json:"points"`
	Segments    []RouteSegment `json:"segments,omitempty"`
	DistanceM   float64        `json:"distanceM"`
	DurationSec float64        `json:"durationSec"`
	RiskScore   float64        `json:"riskScore"`
	Policy      RiskPolicy     `json:"policy"`
	Attempts    int            `json:"attempts"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// TimeWindow bounds a task in seconds relative to plan start.
type TimeWindow struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

type Task struct {
	ID         string      `json:"id"`
	Location   GeoPoint    `json:"location"`
	Demand     float64     `json:"demand,omitempty"`
	Priority   int         `json:"priority,omitempty"` // higher serves first
	TW         *TimeWindow `json:"timeWindow,omitempty"`
	ServiceSec int         `json:"serviceTimeSec,omitempty"`
}

type Depot struct {
	ID       string   `json:"id"`
	Location GeoPoint `json:"location"`
}

type FleetVehicle struct {
	ID             string  `json:"id"`
	Capacity       float64 `json:"capacity,omitempty"`
	SpeedKph       float64 `json:"speedKph,omitempty"`
	DepotID        string  `json:"depotId,omitempty"`
	MaxDistanceM   float64 `json:"maxDistanceM,omitempty"`
	MaxDurationSec float64 `json:"maxDurationSec,omitempty"`
}

type VRPRequest struct {
	Vehicles     []FleetVehicle     `json:"vehicles"`
	Tasks        []Task             `json:"tasks"`
	Depots       []Depot            `json:"depots"`
	TimeBudgetMs int                `json:"timeBudgetMs,omitempty"`
	Seed         int64              `json:"seed,omitempty"`
	Objectives   map[string]float64 `json:"objectives,omitempty"`
}

type VehicleStop struct {
	TaskID       string  `json:"taskId"`
	Seq          int     `json:"seq"`
	ArrivalSec   float64 `json:"arrivalSec"`
	DepartureSec float64 `json:"departureSec"`
}

type VehicleRoute struct {
	VehicleID   string        `json:"vehicleId"`
	Stops       []VehicleStop `json:"stops"`
	DistanceM   float64       `json:"distanceM"`
	DurationSec float64       `json:"durationSec"`
}

type VRPResult struct {
	Routes           []VehicleRoute `json:"routes"`
	Unserved         []string       `json:"unserved,omitempty"`
	Served           int            `json:"served"`
	Total            int            `json:"total"`
	CoverageRate     float64        `json:"coverageRate"`
	TotalDistanceM   float64        `json:"totalDistanceM"`
	TotalDurationSec float64        `json:"totalDurationSec"`
	Iterations       int            `json:"iterations,omitempty"`
}

// RepairStats summarizes a topology-repair run.
type RepairStats struct {
	Batches       int          `json:"batches"`
	Crossings     int          `json:"crossings"`
	NodesCreated  int          `json:"nodesCreated"`
	EdgesCreated  int          `json:"edgesCreated"`
	EdgesDisabled int          `json:"edgesDisabled"`
	DryRun        bool         `json:"dryRun,omitempty"`
	Before        Connectivity `json:"before"`
	After         Connectivity `json:"after"`
}

type Connectivity struct {
	ComponentCount           int     `json:"componentCount"`
	LargestComponentFraction float64 `json:"largestComponentFraction"`
}

// PlanAudit records the outcome of a planning call for later inspection.
type PlanAudit struct {
	ID          string   `json:"id"`
	CreatedAt   string   `json:"createdAt"`
	ScenarioID  string   `json:"scenarioId,omitempty"`
	VehicleID   string   `json:"vehicleId,omitempty"`
	Policy      string   `json:"policy,omitempty"`
	Outcome     string   `json:"outcome"` // ok, fallback, infeasible
	DistanceM   float64  `json:"distanceM,omitempty"`
	DurationSec float64  `json:"durationSec,omitempty"`
	Attempts    int      `json:"attempts,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}
