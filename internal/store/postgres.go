package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/paulmach/orb"

	"rescuenav/internal/graph"
	"rescuenav/internal/model"
)

// Postgres persists the road graph, hazard zones and vehicle capabilities.
// Geometry is stored as JSON coordinate arrays; bounding-box columns on
// edges make radius-bounded subgraph loads an index range scan.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies *.sql files in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(data)); err != nil {
			return fmt.Errorf("migrate %s: %w", n, err)
		}
	}
	return nil
}

func (p *Postgres) LoadSubgraph(ctx context.Context, points []orb.Point, radiusM float64) (*graph.Graph, error) {
	box := boundingBox(points, radiusM)
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, from_node, to_node, geom, road_class, oneway, max_speed_kph, length_m,
		       elev_gain_m, elev_loss_m, avg_gradient_pct, max_gradient_pct, terrain_type,
		       terrain_cost_factor, gradient_cost_factor, speed_factors, base_cost, accessible, props
		FROM graph_edges
		WHERE accessible AND max_lon >= $1 AND min_lon <= $2 AND max_lat >= $3 AND min_lat <= $4`,
		box.Min[0], box.Max[0], box.Min[1], box.Max[1])
	if err != nil {
		return nil, err
	}
	edges, err := scanEdges(rows)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, &model.GraphEmptyError{RadiusM: radiusM}
	}
	ids := map[string]bool{}
	for _, e := range edges {
		ids[e.FromNode] = true
		ids[e.ToNode] = true
	}
	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	nrows, err := p.db.QueryContext(ctx, `
		SELECT id, lon, lat, elevation_m, node_type, edge_count, accessible
		FROM graph_nodes
		WHERE accessible AND (id = ANY($1) OR (lon BETWEEN $2 AND $3 AND lat BETWEEN $4 AND $5))`,
		idList, box.Min[0], box.Max[0], box.Min[1], box.Max[1])
	if err != nil {
		return nil, err
	}
	nodes, err := scanNodes(nrows)
	if err != nil {
		return nil, err
	}
	g := graph.Build(nodes, edges)
	if len(g.Edges) == 0 {
		return nil, &model.GraphEmptyError{RadiusM: radiusM}
	}
	return g, nil
}

func (p *Postgres) LoadFullGraph(ctx context.Context) (*graph.Graph, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, from_node, to_node, geom, road_class, oneway, max_speed_kph, length_m,
		       elev_gain_m, elev_loss_m, avg_gradient_pct, max_gradient_pct, terrain_type,
		       terrain_cost_factor, gradient_cost_factor, speed_factors, base_cost, accessible, props
		FROM graph_edges WHERE accessible`)
	if err != nil {
		return nil, err
	}
	edges, err := scanEdges(rows)
	if err != nil {
		return nil, err
	}
	nrows, err := p.db.QueryContext(ctx, `
		SELECT id, lon, lat, elevation_m, node_type, edge_count, accessible
		FROM graph_nodes WHERE accessible`)
	if err != nil {
		return nil, err
	}
	nodes, err := scanNodes(nrows)
	if err != nil {
		return nil, err
	}
	return graph.Build(nodes, edges), nil
}

func (p *Postgres) LoadHazardZones(ctx context.Context, scenarioID string) ([]model.HazardZone, error) {
	q := `SELECT id, scenario_id, polygon, risk_level, passable, passable_vehicle_types,
	             speed_reduction_pct, passage_status, recon_required, verification
	      FROM hazard_zones`
	var rows *sql.Rows
	var err error
	if scenarioID != "" {
		rows, err = p.db.QueryContext(ctx, q+` WHERE scenario_id=$1 ORDER BY id`, scenarioID)
	} else {
		rows, err = p.db.QueryContext(ctx, q+` ORDER BY id`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.HazardZone{}
	for rows.Next() {
		var z model.HazardZone
		var poly, types, verification []byte
		if err := rows.Scan(&z.ID, &z.ScenarioID, &poly, &z.RiskLevel, &z.Passable, &types,
			&z.SpeedReductionPct, &z.PassageStatus, &z.ReconRequired, &verification); err != nil {
			return nil, err
		}
		if len(poly) > 0 {
			_ = json.Unmarshal(poly, &z.Polygon)
		}
		if len(types) > 0 {
			_ = json.Unmarshal(types, &z.PassableVehicleTypes)
		}
		if len(verification) > 0 {
			_ = json.Unmarshal(verification, &z.Verification)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (p *Postgres) GetVehicleCapability(ctx context.Context, id string) (model.VehicleCapability, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, code, max_speed_kph, all_terrain, allowed_terrain, terrain_overrides,
		       road_speed_factors, max_gradient_pct, max_wading_depth_m, width_m, height_m, weight_t
		FROM vehicle_capabilities WHERE id=$1`, id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	return v, err
}

func (p *Postgres) ListVehicleCapabilities(ctx context.Context) ([]model.VehicleCapability, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, code, max_speed_kph, all_terrain, allowed_terrain, terrain_overrides,
		       road_speed_factors, max_gradient_pct, max_wading_depth_m, width_m, height_m, weight_t
		FROM vehicle_capabilities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.VehicleCapability{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ApplyRepairBatch commits one repair batch in a single transaction, so a
// split never lands without its disable or vice versa.
func (p *Postgres) ApplyRepairBatch(ctx context.Context, b RepairBatch) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range b.NewNodes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graph_nodes (id, lon, lat, elevation_m, node_type, edge_count, accessible)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO NOTHING`,
			n.ID, n.Lon, n.Lat, n.ElevationM, string(n.Type), n.EdgeCount, n.Accessible); err != nil {
			return err
		}
	}
	for _, e := range b.NewEdges {
		if err := insertEdge(ctx, tx, e); err != nil {
			return err
		}
	}
	for id, repl := range b.DisabledEdges {
		prov, _ := json.Marshal(map[string]any{model.PropReplacedBySplit: repl})
		res, err := tx.ExecContext(ctx, `
			UPDATE graph_edges
			SET accessible=false, props = COALESCE(props,'{}'::jsonb) || $2::jsonb
			WHERE id=$1 AND accessible`, id, string(prov))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("repair batch: disable %s: %w", id, ErrNotFound)
		}
	}
	return tx.Commit()
}

// repairLockKey is the advisory-lock key guarding single-runner repair
// across API replicas sharing one database.
const repairLockKey = 0x7265736e61 // "resna"

func (p *Postgres) AcquireRepairLock(ctx context.Context) (func(), error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var got bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, repairLockKey).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if !got {
		_ = conn.Close()
		return nil, ErrRepairRunning
	}
	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, repairLockKey)
		_ = conn.Close()
	}
	return release, nil
}

func (p *Postgres) SavePlanAudit(ctx context.Context, a model.PlanAudit) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	warnings, _ := json.Marshal(a.Warnings)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO plan_audits (id, created_at, scenario_id, vehicle_id, policy, outcome, distance_m, duration_sec, attempts, warnings)
		VALUES ($1, now(), $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, nullIfEmpty(a.ScenarioID), nullIfEmpty(a.VehicleID), nullIfEmpty(a.Policy),
		a.Outcome, a.DistanceM, a.DurationSec, a.Attempts, string(warnings))
	return err
}

func (p *Postgres) ListPlanAudits(ctx context.Context, scenarioID string, limit int) ([]model.PlanAudit, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, created_at::text, COALESCE(scenario_id,''), COALESCE(vehicle_id,''),
	             COALESCE(policy,''), outcome, distance_m, duration_sec, attempts, warnings
	      FROM plan_audits`
	var rows *sql.Rows
	var err error
	if scenarioID != "" {
		rows, err = p.db.QueryContext(ctx, q+` WHERE scenario_id=$1 ORDER BY created_at DESC LIMIT $2`, scenarioID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, q+` ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PlanAudit{}
	for rows.Next() {
		var a model.PlanAudit
		var warnings []byte
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.ScenarioID, &a.VehicleID, &a.Policy,
			&a.Outcome, &a.DistanceM, &a.DurationSec, &a.Attempts, &warnings); err != nil {
			return nil, err
		}
		if len(warnings) > 0 {
			_ = json.Unmarshal(warnings, &a.Warnings)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertNodes(ctx context.Context, nodes []model.Node) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, n := range nodes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graph_nodes (id, lon, lat, elevation_m, node_type, edge_count, accessible)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET lon=EXCLUDED.lon, lat=EXCLUDED.lat,
				elevation_m=EXCLUDED.elevation_m, node_type=EXCLUDED.node_type,
				edge_count=EXCLUDED.edge_count, accessible=EXCLUDED.accessible`,
			n.ID, n.Lon, n.Lat, n.ElevationM, string(n.Type), n.EdgeCount, n.Accessible); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) UpsertEdges(ctx context.Context, edges []model.Edge) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx, `DELETE FROM graph_edges WHERE id=$1`, e.ID); err != nil {
			return err
		}
		if err := insertEdge(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) UpsertHazardZones(ctx context.Context, zones []model.HazardZone) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, z := range zones {
		poly, _ := json.Marshal(z.Polygon)
		types, _ := json.Marshal(z.PassableVehicleTypes)
		verification, _ := json.Marshal(z.Verification)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO hazard_zones (id, scenario_id, polygon, risk_level, passable, passable_vehicle_types,
				speed_reduction_pct, passage_status, recon_required, verification)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (id) DO UPDATE SET scenario_id=EXCLUDED.scenario_id, polygon=EXCLUDED.polygon,
				risk_level=EXCLUDED.risk_level, passable=EXCLUDED.passable,
				passable_vehicle_types=EXCLUDED.passable_vehicle_types,
				speed_reduction_pct=EXCLUDED.speed_reduction_pct, passage_status=EXCLUDED.passage_status,
				recon_required=EXCLUDED.recon_required, verification=EXCLUDED.verification`,
			z.ID, z.ScenarioID, string(poly), z.RiskLevel, z.Passable, string(types),
			z.SpeedReductionPct, string(z.PassageStatus), z.ReconRequired, string(verification)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) UpsertVehicleCapabilities(ctx context.Context, vehicles []model.VehicleCapability) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, v := range vehicles {
		allowed, _ := json.Marshal(v.AllowedTerrain)
		overrides, _ := json.Marshal(v.TerrainOverrides)
		roadFactors, _ := json.Marshal(v.RoadSpeedFactors)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vehicle_capabilities (id, code, max_speed_kph, all_terrain, allowed_terrain,
				terrain_overrides, road_speed_factors, max_gradient_pct, max_wading_depth_m, width_m, height_m, weight_t)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (id) DO UPDATE SET code=EXCLUDED.code, max_speed_kph=EXCLUDED.max_speed_kph,
				all_terrain=EXCLUDED.all_terrain, allowed_terrain=EXCLUDED.allowed_terrain,
				terrain_overrides=EXCLUDED.terrain_overrides, road_speed_factors=EXCLUDED.road_speed_factors,
				max_gradient_pct=EXCLUDED.max_gradient_pct, max_wading_depth_m=EXCLUDED.max_wading_depth_m,
				width_m=EXCLUDED.width_m, height_m=EXCLUDED.height_m, weight_t=EXCLUDED.weight_t`,
			v.ID, v.Code, v.MaxSpeedKph, v.AllTerrain, string(allowed), string(overrides),
			string(roadFactors), v.MaxGradientPct, v.MaxWadingDepthM, v.WidthM, v.HeightM, v.WeightT); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Helpers

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEdge(ctx context.Context, tx execer, e model.Edge) error {
	geom, _ := json.Marshal(e.Geometry)
	speedFactors, _ := json.Marshal(e.SpeedFactors)
	props, _ := json.Marshal(e.Properties)
	minLon, minLat, maxLon, maxLat := edgeBounds(e)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO graph_edges (id, from_node, to_node, geom, road_class, oneway, max_speed_kph, length_m,
			elev_gain_m, elev_loss_m, avg_gradient_pct, max_gradient_pct, terrain_type,
			terrain_cost_factor, gradient_cost_factor, speed_factors, base_cost, accessible, props,
			min_lon, min_lat, max_lon, max_lat)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		e.ID, e.FromNode, e.ToNode, string(geom), e.RoadClass, e.OneWay, e.MaxSpeedKph, e.LengthM,
		e.ElevGainM, e.ElevLossM, e.AvgGradientPct, e.MaxGradientPct, e.TerrainType,
		e.TerrainCostFactor, e.GradientCostFactor, string(speedFactors), e.BaseCost, e.Accessible, string(props),
		minLon, minLat, maxLon, maxLat)
	return err
}

func edgeBounds(e model.Edge) (minLon, minLat, maxLon, maxLat float64) {
	if len(e.Geometry) == 0 {
		return 0, 0, 0, 0
	}
	minLon, minLat = e.Geometry[0][0], e.Geometry[0][1]
	maxLon, maxLat = minLon, minLat
	for _, p := range e.Geometry {
		if p[0] < minLon {
			minLon = p[0]
		}
		if p[1] < minLat {
			minLat = p[1]
		}
		if p[0] > maxLon {
			maxLon = p[0]
		}
		if p[1] > maxLat {
			maxLat = p[1]
		}
	}
	return
}

type rowScanner interface{ Scan(dest ...any) error }

func scanVehicle(row rowScanner) (model.VehicleCapability, error) {
	var v model.VehicleCapability
	var allowed, overrides, roadFactors []byte
	err := row.Scan(&v.ID, &v.Code, &v.MaxSpeedKph, &v.AllTerrain, &allowed, &overrides,
		&roadFactors, &v.MaxGradientPct, &v.MaxWadingDepthM, &v.WidthM, &v.HeightM, &v.WeightT)
	if err != nil {
		return v, err
	}
	if len(allowed) > 0 {
		_ = json.Unmarshal(allowed, &v.AllowedTerrain)
	}
	if len(overrides) > 0 {
		_ = json.Unmarshal(overrides, &v.TerrainOverrides)
	}
	if len(roadFactors) > 0 {
		_ = json.Unmarshal(roadFactors, &v.RoadSpeedFactors)
	}
	return v, nil
}

func scanNodes(rows *sql.Rows) ([]model.Node, error) {
	defer rows.Close()
	out := []model.Node{}
	for rows.Next() {
		var n model.Node
		var typ string
		if err := rows.Scan(&n.ID, &n.Lon, &n.Lat, &n.ElevationM, &typ, &n.EdgeCount, &n.Accessible); err != nil {
			return nil, err
		}
		n.Type = model.NodeType(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanEdges(rows *sql.Rows) ([]model.Edge, error) {
	defer rows.Close()
	out := []model.Edge{}
	for rows.Next() {
		var e model.Edge
		var geom, speedFactors, props []byte
		if err := rows.Scan(&e.ID, &e.FromNode, &e.ToNode, &geom, &e.RoadClass, &e.OneWay,
			&e.MaxSpeedKph, &e.LengthM, &e.ElevGainM, &e.ElevLossM, &e.AvgGradientPct,
			&e.MaxGradientPct, &e.TerrainType, &e.TerrainCostFactor, &e.GradientCostFactor,
			&speedFactors, &e.BaseCost, &e.Accessible, &props); err != nil {
			return nil, err
		}
		if len(geom) > 0 {
			_ = json.Unmarshal(geom, &e.Geometry)
		}
		if len(speedFactors) > 0 {
			_ = json.Unmarshal(speedFactors, &e.SpeedFactors)
		}
		if len(props) > 0 {
			_ = json.Unmarshal(props, &e.Properties)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
