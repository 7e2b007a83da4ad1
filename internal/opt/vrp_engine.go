package opt

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"rescuenav/internal/geo"
	"rescuenav/internal/model"
)

// DistanceFunc returns the travel distance in meters between two points.
// The default is great-circle distance; callers may plug in a road-network
// matrix instead.
type DistanceFunc func(a, b model.GeoPoint) float64

// Problem is a multi-vehicle routing instance. Vehicles start from their
// depot (falling back to the first depot, then to the first task location).
type Problem struct {
	Tasks      []model.Task
	Vehicles   []model.FleetVehicle
	Depots     map[string]model.Depot
	SpeedKph   float64            // fallback when a vehicle has no speed
	Objectives map[string]float64 // weights: driveTime, distance, lateness, unserved
	Dist       DistanceFunc

	IterationsLimit int
	InitialTemp     float64
	Cooling         float64
}

func (p *Problem) dist(a, b model.GeoPoint) float64 {
	if p.Dist != nil {
		return p.Dist(a, b)
	}
	return geo.HaversineM(a.Lat, a.Lng, b.Lat, b.Lng)
}

func (p *Problem) vehicleStart(v model.FleetVehicle) (model.GeoPoint, bool) {
	if d, ok := p.Depots[v.DepotID]; ok {
		return d.Location, true
	}
	for _, d := range p.Depots {
		return d.Location, true
	}
	return model.GeoPoint{}, false
}

func (p *Problem) vehicleSpeed(v model.FleetVehicle) float64 {
	if v.SpeedKph > 0 {
		return v.SpeedKph
	}
	if p.SpeedKph > 0 {
		return p.SpeedKph
	}
	return 50
}

type RoutePlan struct {
	VehicleID string
	Order     []int // indices into Tasks
}

type Solution struct {
	Plans []RoutePlan
	Cost  float64
}

type Metrics struct {
	Iterations    int
	Improvements  int
	AcceptedWorse int
	BestCost      float64
	FinalCost     float64
}

// Solve runs an ALNS heuristic with random/shaw removal, greedy/regret
// insertion and simulated-annealing acceptance until the time budget or
// the context expires, returning the best solution found. Whenever at
// least one feasible vehicle-task pairing exists the greedy seed already
// serves it, so a valid (possibly partial) solution always comes back.
func Solve(ctx context.Context, p Problem, seed int64, timeBudget time.Duration) (Solution, Metrics) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	curr := greedySeed(p)
	best := curr
	remW := []float64{1, 1} // random, shaw
	insW := []float64{1, 1} // greedy, regret2
	temp := 1.0
	if p.InitialTemp > 0 {
		temp = p.InitialTemp
	}
	cool := 0.995
	if p.Cooling > 0 && p.Cooling < 1 {
		cool = p.Cooling
	}
	m := Metrics{BestCost: best.Cost}
	deadline := time.Now().Add(timeBudget)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		m.Iterations++
		if p.IterationsLimit > 0 && m.Iterations >= p.IterationsLimit {
			break
		}
		k := 1 + rng.Intn(3)
		op := selectOp(remW, rng)
		ip := selectOp(insW, rng)
		var removed []int
		switch op {
		case 0:
			removed = randomRemoval(curr, k, rng)
		case 1:
			removed = shawRemoval(p, curr, k, rng)
		}
		cand := removeTasks(curr, removed)
		// unassigned already covers the removed tasks; building the pool
		// from both would insert each removed task twice
		pool := unassigned(p, cand)
		switch ip {
		case 0:
			cand = greedyInsert(p, cand, pool)
		case 1:
			cand = regretInsert(p, cand, pool)
		}
		cand = twoOptImprove(p, cand)
		cand = crossExchangeImprove(p, cand)
		cand.Cost = solutionCost(p, cand)

		delta := cand.Cost - best.Cost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			if cand.Cost < best.Cost {
				best = cand
				remW[op] += 0.1
				insW[ip] += 0.1
				m.Improvements++
				m.BestCost = best.Cost
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
				m.AcceptedWorse++
			}
		} else {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
		}
		temp *= cool
	}
	m.FinalCost = best.Cost
	return best, m
}

// greedySeed assigns tasks to vehicles by cheapest feasible append,
// highest priority first. Tasks with no feasible vehicle stay unassigned.
func greedySeed(p Problem) Solution {
	n := len(p.Tasks)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p.Tasks[order[a]].Priority > p.Tasks[order[b]].Priority
	})
	plans := make([]RoutePlan, len(p.Vehicles))
	for vi := range plans {
		plans[vi] = RoutePlan{VehicleID: p.Vehicles[vi].ID, Order: []int{}}
	}
	for _, ti := range order {
		bestVi, bestDelta := -1, math.MaxFloat64
		for vi := range p.Vehicles {
			if !feasibleAppend(p, plans[vi], p.Vehicles[vi], ti) {
				continue
			}
			d := deltaAppend(p, plans[vi], p.Vehicles[vi], ti)
			if d < bestDelta {
				bestDelta = d
				bestVi = vi
			}
		}
		if bestVi >= 0 {
			plans[bestVi].Order = append(plans[bestVi].Order, ti)
		}
	}
	sol := Solution{Plans: plans}
	sol.Cost = solutionCost(p, sol)
	return sol
}

func assignedSet(sol Solution) map[int]bool {
	present := map[int]bool{}
	for _, pl := range sol.Plans {
		for _, idx := range pl.Order {
			present[idx] = true
		}
	}
	return present
}

func unassigned(p Problem, sol Solution) []int {
	present := assignedSet(sol)
	out := []int{}
	for i := range p.Tasks {
		if !present[i] {
			out = append(out, i)
		}
	}
	return out
}

func randomRemoval(sol Solution, k int, rng *rand.Rand) []int {
	all := []int{}
	for idx := range assignedSet(sol) {
		all = append(all, idx)
	}
	// map iteration order is random; sort for seeded determinism
	sort.Ints(all)
	removed := []int{}
	for i := 0; i < k && len(all) > 0; i++ {
		j := rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

// shawRemoval removes k tasks related by geography and time windows.
func shawRemoval(p Problem, sol Solution, k int, rng *rand.Rand) []int {
	assigned := []int{}
	for _, pl := range sol.Plans {
		assigned = append(assigned, pl.Order...)
	}
	if len(assigned) == 0 {
		return nil
	}
	seedIdx := assigned[rng.Intn(len(assigned))]
	type pair struct {
		idx   int
		score float64
	}
	st := p.Tasks[seedIdx]
	rel := []pair{}
	for _, idx := range assigned {
		if idx == seedIdx {
			continue
		}
		t := p.Tasks[idx]
		score := p.dist(st.Location, t.Location)
		if st.TW != nil && t.TW != nil {
			score -= 1000.0 * twOverlap(*st.TW, *t.TW)
		}
		rel = append(rel, pair{idx: idx, score: score})
	}
	sort.Slice(rel, func(i, j int) bool { return rel[i].score < rel[j].score })
	removed := []int{seedIdx}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].idx)
	}
	return removed
}

func removeTasks(sol Solution, removed []int) Solution {
	if len(removed) == 0 {
		return cloneSolution(sol)
	}
	rm := map[int]bool{}
	for _, i := range removed {
		rm[i] = true
	}
	out := Solution{Plans: make([]RoutePlan, len(sol.Plans))}
	for i := range sol.Plans {
		out.Plans[i].VehicleID = sol.Plans[i].VehicleID
		for _, idx := range sol.Plans[i].Order {
			if !rm[idx] {
				out.Plans[i].Order = append(out.Plans[i].Order, idx)
			}
		}
	}
	return out
}

func cloneSolution(sol Solution) Solution {
	out := Solution{Plans: make([]RoutePlan, len(sol.Plans)), Cost: sol.Cost}
	for i := range sol.Plans {
		out.Plans[i].VehicleID = sol.Plans[i].VehicleID
		out.Plans[i].Order = append([]int(nil), sol.Plans[i].Order...)
	}
	return out
}

// greedyInsert inserts tasks at their cheapest feasible position; tasks
// with no feasible slot stay unserved rather than breaking the solution.
func greedyInsert(p Problem, sol Solution, pool []int) Solution {
	tasks := append([]int(nil), pool...)
	for len(tasks) > 0 {
		bestPlan, bestPos, bestTask := -1, -1, 0
		bestDelta := math.MaxFloat64
		for ti, idx := range tasks {
			for vi, pl := range sol.Plans {
				for pos := 0; pos <= len(pl.Order); pos++ {
					if !feasibleInsertAt(p, pl, p.Vehicles[vi], idx, pos) {
						continue
					}
					d := deltaInsert(p, pl, p.Vehicles[vi], idx, pos)
					if d < bestDelta {
						bestDelta = d
						bestPlan = vi
						bestPos = pos
						bestTask = ti
					}
				}
			}
		}
		if bestPlan == -1 {
			break
		}
		sol.Plans[bestPlan].Order = insertAt(sol.Plans[bestPlan].Order, bestPos, tasks[bestTask])
		tasks = append(tasks[:bestTask], tasks[bestTask+1:]...)
	}
	sol.Cost = solutionCost(p, sol)
	return sol
}

// regretInsert places the task whose best and second-best insertions
// differ the most first (regret-2).
func regretInsert(p Problem, sol Solution, pool []int) Solution {
	tasks := append([]int(nil), pool...)
	for len(tasks) > 0 {
		bestTask, bestPlan, bestPos := -1, -1, -1
		bestRegret := -1.0
		bestCost := math.MaxFloat64
		for ti, idx := range tasks {
			best1, best2 := math.MaxFloat64, math.MaxFloat64
			bp, bpos := -1, -1
			for vi, pl := range sol.Plans {
				for pos := 0; pos <= len(pl.Order); pos++ {
					if !feasibleInsertAt(p, pl, p.Vehicles[vi], idx, pos) {
						continue
					}
					c := deltaInsert(p, pl, p.Vehicles[vi], idx, pos)
					if c < best1 {
						best2 = best1
						best1 = c
						bp = vi
						bpos = pos
					} else if c < best2 {
						best2 = c
					}
				}
			}
			if bp == -1 {
				continue
			}
			regret := 0.0
			if best2 < math.MaxFloat64 {
				regret = best2 - best1
			}
			if regret > bestRegret || (regret == bestRegret && best1 < bestCost) {
				bestRegret = regret
				bestCost = best1
				bestTask = ti
				bestPlan = bp
				bestPos = bpos
			}
		}
		if bestTask == -1 {
			break
		}
		sol.Plans[bestPlan].Order = insertAt(sol.Plans[bestPlan].Order, bestPos, tasks[bestTask])
		tasks = append(tasks[:bestTask], tasks[bestTask+1:]...)
	}
	sol.Cost = solutionCost(p, sol)
	return orOptImprove(p, sol)
}

func insertAt(order []int, pos, idx int) []int {
	if pos >= len(order) {
		return append(order, idx)
	}
	order = append(order[:pos+1], order[pos:]...)
	order[pos] = idx
	return order
}

func feasibleAppend(p Problem, pl RoutePlan, v model.FleetVehicle, idx int) bool {
	return feasibleInsertAt(p, pl, v, idx, len(pl.Order))
}

func feasibleInsertAt(p Problem, pl RoutePlan, v model.FleetVehicle, idx, pos int) bool {
	if pos < 0 || pos > len(pl.Order) {
		return false
	}
	tmp := RoutePlan{VehicleID: pl.VehicleID, Order: make([]int, 0, len(pl.Order)+1)}
	tmp.Order = append(tmp.Order, pl.Order[:pos]...)
	tmp.Order = append(tmp.Order, idx)
	tmp.Order = append(tmp.Order, pl.Order[pos:]...)
	_, feasible := schedulePlan(p, tmp, v)
	return feasible
}

func deltaAppend(p Problem, pl RoutePlan, v model.FleetVehicle, idx int) float64 {
	var from model.GeoPoint
	if len(pl.Order) > 0 {
		from = p.Tasks[pl.Order[len(pl.Order)-1]].Location
	} else if start, ok := p.vehicleStart(v); ok {
		from = start
	} else {
		return 0
	}
	return p.dist(from, p.Tasks[idx].Location)
}

func deltaInsert(p Problem, pl RoutePlan, v model.FleetVehicle, idx, pos int) float64 {
	var prev model.GeoPoint
	havePrev := false
	if pos == 0 {
		if start, ok := p.vehicleStart(v); ok {
			prev = start
			havePrev = true
		} else if len(pl.Order) > 0 {
			prev = p.Tasks[pl.Order[0]].Location
			havePrev = true
		}
	} else {
		prev = p.Tasks[pl.Order[pos-1]].Location
		havePrev = true
	}
	t := p.Tasks[idx]
	if !havePrev {
		return float64(t.ServiceSec)
	}
	next := prev
	if pos < len(pl.Order) {
		next = p.Tasks[pl.Order[pos]].Location
	}
	add := p.dist(prev, t.Location) + p.dist(t.Location, next)
	rem := p.dist(prev, next)
	return add - rem + float64(t.ServiceSec)
}

type planStats struct {
	driveSec float64
	distM    float64
	lateSec  float64
	stops    []stopTime
}

type stopTime struct {
	taskIdx      int
	arrivalSec   float64
	departureSec float64
}

// schedulePlan propagates arrival times along a plan from the vehicle's
// depot, waiting on time-window opens and failing on missed closes,
// exceeded distance/duration limits, or demand beyond capacity. Capacity
// lives here so membership-changing moves (cross-exchange swaps unequal
// demands between routes) cannot bypass it.
func schedulePlan(p Problem, pl RoutePlan, v model.FleetVehicle) (planStats, bool) {
	if v.Capacity > 0 {
		demand := 0.0
		for _, idx := range pl.Order {
			demand += p.Tasks[idx].Demand
		}
		if demand > v.Capacity {
			return planStats{}, false
		}
	}
	speed := p.vehicleSpeed(v) / 3.6
	var cur model.GeoPoint
	haveCur := false
	if start, ok := p.vehicleStart(v); ok {
		cur = start
		haveCur = true
	} else if len(pl.Order) > 0 {
		cur = p.Tasks[pl.Order[0]].Location
		haveCur = true
	}
	st := planStats{}
	t := 0.0
	for _, idx := range pl.Order {
		task := p.Tasks[idx]
		d := 0.0
		if haveCur {
			d = p.dist(cur, task.Location)
		}
		drive := d / speed
		t += drive
		st.driveSec += drive
		st.distM += d
		arr := t
		if task.TW != nil {
			if arr < task.TW.StartSec {
				arr = task.TW.StartSec
				t = arr
			}
			if task.TW.EndSec > 0 && arr > task.TW.EndSec {
				st.lateSec += arr - task.TW.EndSec
				return st, false
			}
		}
		dep := arr + float64(task.ServiceSec)
		t = dep
		st.stops = append(st.stops, stopTime{taskIdx: idx, arrivalSec: arr, departureSec: dep})
		cur = task.Location
		haveCur = true
	}
	if v.MaxDistanceM > 0 && st.distM > v.MaxDistanceM {
		return st, false
	}
	if v.MaxDurationSec > 0 && t > v.MaxDurationSec {
		return st, false
	}
	return st, true
}

func solutionCost(p Problem, s Solution) float64 {
	wDrive := p.Objectives["driveTime"]
	if wDrive == 0 {
		wDrive = 1
	}
	wDist := p.Objectives["distance"]
	wLate := p.Objectives["lateness"]
	wUnserved := p.Objectives["unserved"]
	if wUnserved == 0 {
		wUnserved = 1
	}
	total := 0.0
	for vi, pl := range s.Plans {
		st, _ := schedulePlan(p, pl, p.Vehicles[vi])
		total += wDrive*st.driveSec + wDist*st.distM + wLate*st.lateSec
	}
	present := assignedSet(s)
	for i, task := range p.Tasks {
		if !present[i] {
			// heavy penalty, scaled by priority so high-priority rescue
			// tasks are preferentially served
			total += wUnserved * 3600 * float64(1+max(task.Priority, 0))
		}
	}
	return total
}

// twoOptImprove applies 2-opt within each plan when feasible.
func twoOptImprove(p Problem, sol Solution) Solution {
	for vi := range sol.Plans {
		pl := sol.Plans[vi]
		n := len(pl.Order)
		improved := true
		for improved {
			improved = false
			for i := 0; i < n-1; i++ {
				for k := i + 1; k < n; k++ {
					cand := RoutePlan{VehicleID: pl.VehicleID, Order: append([]int(nil), pl.Order...)}
					for a, b := i, k; a < b; a, b = a+1, b-1 {
						cand.Order[a], cand.Order[b] = cand.Order[b], cand.Order[a]
					}
					cs, ok := schedulePlan(p, cand, p.Vehicles[vi])
					if !ok {
						continue
					}
					ps, _ := schedulePlan(p, pl, p.Vehicles[vi])
					if cs.distM+1e-6 < ps.distM {
						pl = cand
						improved = true
					}
				}
			}
		}
		sol.Plans[vi] = pl
	}
	sol.Cost = solutionCost(p, sol)
	return sol
}

// orOptImprove relocates single tasks within a plan when that shortens it.
func orOptImprove(p Problem, sol Solution) Solution {
	for vi := range sol.Plans {
		pl := sol.Plans[vi]
		improved := true
		for improved {
			improved = false
			base, _ := schedulePlan(p, pl, p.Vehicles[vi])
			for i := 0; i < len(pl.Order); i++ {
				for j := 0; j <= len(pl.Order); j++ {
					if j == i || j == i+1 {
						continue
					}
					cand := RoutePlan{VehicleID: pl.VehicleID, Order: append([]int(nil), pl.Order...)}
					task := cand.Order[i]
					cand.Order = append(cand.Order[:i], cand.Order[i+1:]...)
					jj := j
					if jj > len(cand.Order) {
						jj = len(cand.Order)
					}
					cand.Order = insertAt(cand.Order, jj, task)
					cs, ok := schedulePlan(p, cand, p.Vehicles[vi])
					if !ok {
						continue
					}
					if cs.distM+1e-6 < base.distM {
						pl = cand
						improved = true
						base = cs
					}
				}
			}
		}
		sol.Plans[vi] = pl
	}
	sol.Cost = solutionCost(p, sol)
	return sol
}

// crossExchangeImprove swaps tasks between two plans when both stay
// feasible and total distance drops.
func crossExchangeImprove(p Problem, sol Solution) Solution {
	m := len(sol.Plans)
	if m < 2 {
		return sol
	}
	improved := true
	for improved {
		improved = false
		for a := 0; a < m; a++ {
			for b := a + 1; b < m; b++ {
				pa, pb := sol.Plans[a], sol.Plans[b]
				for i := 0; i < len(pa.Order); i++ {
					for j := 0; j < len(pb.Order); j++ {
						ca := RoutePlan{VehicleID: pa.VehicleID, Order: append([]int(nil), pa.Order...)}
						cb := RoutePlan{VehicleID: pb.VehicleID, Order: append([]int(nil), pb.Order...)}
						ca.Order[i], cb.Order[j] = cb.Order[j], ca.Order[i]
						sa, ok := schedulePlan(p, ca, p.Vehicles[a])
						if !ok {
							continue
						}
						sb, ok := schedulePlan(p, cb, p.Vehicles[b])
						if !ok {
							continue
						}
						oa, _ := schedulePlan(p, pa, p.Vehicles[a])
						ob, _ := schedulePlan(p, pb, p.Vehicles[b])
						if sa.distM+sb.distM+1e-6 < oa.distM+ob.distM {
							sol.Plans[a] = ca
							sol.Plans[b] = cb
							improved = true
							pa, pb = ca, cb
						}
					}
				}
			}
		}
	}
	sol.Cost = solutionCost(p, sol)
	return sol
}

func twOverlap(a, b model.TimeWindow) float64 {
	start := math.Max(a.StartSec, b.StartSec)
	end := math.Min(a.EndSec, b.EndSec)
	if end < start {
		return 0
	}
	return end - start
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
