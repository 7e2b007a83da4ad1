package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"rescuenav/internal/metrics"
	"rescuenav/internal/model"
	"rescuenav/internal/opt"
	"rescuenav/internal/repair"
)

// PlanRouteHandler handles POST /v1/routes/plan
func (s *Server) PlanRouteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateRouteRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}

	start := time.Now()
	res, err := s.Planner.PlanRoute(r.Context(), req)
	if err != nil {
		var infeasible *model.InfeasiblePathError
		if errors.As(err, &infeasible) {
			s.audit(r, req, "infeasible", nil, infeasible.Attempts)
			s.observePlan("infeasible", start)
		} else {
			s.observePlan("error", start)
		}
		planProblem(w, r, err)
		return
	}
	outcome := "ok"
	for _, wmsg := range res.Warnings {
		if wmsg == model.WarnNoRoadNetwork {
			outcome = "fallback"
		}
	}
	s.audit(r, req, outcome, res, res.Attempts)
	s.observePlan(outcome, start)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) observePlan(outcome string, start time.Time) {
	metrics.PlanRequests.WithLabelValues(outcome).Inc()
	metrics.PlanDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (s *Server) audit(r *http.Request, req model.RouteRequest, outcome string, res *model.RouteResult, attempts int) {
	a := model.PlanAudit{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		ScenarioID: req.ScenarioID,
		VehicleID:  req.VehicleID,
		Policy:     string(req.Policy),
		Outcome:    outcome,
		Attempts:   attempts,
	}
	if res != nil {
		a.Policy = string(res.Policy)
		a.DistanceM = res.DistanceM
		a.DurationSec = res.DurationSec
		a.Warnings = res.Warnings
	}
	if err := s.Store.SavePlanAudit(r.Context(), a); err == nil {
		s.Broker.Publish("plans", Event{Type: "plan." + outcome, Data: map[string]any{
			"scenarioId": a.ScenarioID, "vehicleId": a.VehicleID, "distanceM": a.DistanceM,
		}})
	}
}

// PlanMultiHandler handles POST /v1/routes/plan-multi
func (s *Server) PlanMultiHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.VRPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateVRPRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid fleet request", err.Error(), r.URL.Path)
		return
	}
	res := opt.Optimize(r.Context(), req, s.Cfg.VRP, nil)
	key := r.URL.Query().Get("scenario")
	if key == "" {
		key = "default"
	}
	opt.RecordMetrics(key, opt.Metrics{Iterations: res.Iterations, FinalCost: res.TotalDistanceM})
	writeJSON(w, http.StatusOK, res)
}

// RepairHandler handles POST /v1/admin/repair. ?dryRun=true reports what
// a run would change without touching the graph.
func (s *Server) RepairHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	dryRun := r.URL.Query().Get("dryRun") == "true"
	job := repair.New(s.Store, s.Cfg.Repair)
	job.Progress = func(stage string, stats model.RepairStats) {
		s.Broker.Publish("repair", Event{Type: "repair." + stage, Data: map[string]any{
			"batches":       stats.Batches,
			"crossings":     stats.Crossings,
			"nodesCreated":  stats.NodesCreated,
			"edgesCreated":  stats.EdgesCreated,
			"edgesDisabled": stats.EdgesDisabled,
		}})
	}
	stats, err := job.Run(r.Context(), dryRun)
	if err != nil {
		repairProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ConnectivityHandler handles GET /v1/admin/connectivity
func (s *Server) ConnectivityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g, err := s.Store.LoadFullGraph(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load graph failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, g.Connectivity())
}

// VehiclesHandler handles GET /v1/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := s.Store.ListVehicleCapabilities(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List vehicles failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HazardsHandler handles GET /v1/hazards?scenarioId=
func (s *Server) HazardsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	zones, err := s.Store.LoadHazardZones(r.Context(), r.URL.Query().Get("scenarioId"))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List hazards failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": zones})
}

// PlanStatsHandler handles GET /v1/admin/plan-stats
func (s *Server) PlanStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListPlanAudits(r.Context(), r.URL.Query().Get("scenarioId"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List plan audits failed", err.Error(), r.URL.Path)
		return
	}
	byOutcome := map[string]int{}
	for _, a := range items {
		byOutcome[a.Outcome]++
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "byOutcome": byOutcome})
}

// VRPMetricsHandler handles GET /v1/admin/vrp-metrics
func (s *Server) VRPMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, opt.AllMetrics())
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
