package opt

import (
	"context"
	"time"

	"rescuenav/internal/config"
	"rescuenav/internal/metrics"
	"rescuenav/internal/model"
)

// Optimize plans multi-vehicle task assignments for a rescue fleet. Dist
// may be nil, in which case great-circle distance is used.
func Optimize(ctx context.Context, req model.VRPRequest, cfg config.VRP, dist DistanceFunc) model.VRPResult {
	depots := make(map[string]model.Depot, len(req.Depots))
	for _, d := range req.Depots {
		depots[d.ID] = d
	}
	p := Problem{
		Tasks:       req.Tasks,
		Vehicles:    req.Vehicles,
		Depots:      depots,
		SpeedKph:    cfg.SpeedKph,
		Objectives:  req.Objectives,
		Dist:        dist,
		InitialTemp: cfg.InitialTemp,
		Cooling:     cfg.Cooling,
	}
	budget := time.Duration(cfg.TimeBudgetMs) * time.Millisecond
	if req.TimeBudgetMs > 0 {
		budget = time.Duration(req.TimeBudgetMs) * time.Millisecond
	}
	sol, m := Solve(ctx, p, req.Seed, budget)

	res := model.VRPResult{Total: len(req.Tasks), Iterations: m.Iterations}
	for vi, pl := range sol.Plans {
		st, _ := schedulePlan(p, pl, p.Vehicles[vi])
		vr := model.VehicleRoute{VehicleID: pl.VehicleID, DistanceM: st.distM}
		for seq, s := range st.stops {
			vr.Stops = append(vr.Stops, model.VehicleStop{
				TaskID:       p.Tasks[s.taskIdx].ID,
				Seq:          seq,
				ArrivalSec:   s.arrivalSec,
				DepartureSec: s.departureSec,
			})
			if s.departureSec > vr.DurationSec {
				vr.DurationSec = s.departureSec
			}
		}
		res.Routes = append(res.Routes, vr)
		res.TotalDistanceM += vr.DistanceM
		res.TotalDurationSec += vr.DurationSec
	}
	present := assignedSet(sol)
	for i, t := range req.Tasks {
		if present[i] {
			res.Served++
		} else {
			res.Unserved = append(res.Unserved, t.ID)
		}
	}
	if res.Total > 0 {
		res.CoverageRate = float64(res.Served) / float64(res.Total)
	}
	metrics.VRPIterations.Add(float64(m.Iterations))
	metrics.VRPCoverage.Set(res.CoverageRate)
	return res
}
