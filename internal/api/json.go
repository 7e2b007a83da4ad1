package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"rescuenav/internal/model"
	"rescuenav/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// planProblem maps a planner error onto the wire: no feasible path is a
// client-resolvable 422, an unknown vehicle is 404, anything else is 500.
func planProblem(w http.ResponseWriter, r *http.Request, err error) {
	var infeasible *model.InfeasiblePathError
	switch {
	case errors.As(err, &infeasible):
		writeProblem(w, http.StatusUnprocessableEntity, "No feasible route", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Unknown vehicle", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, "Plan route failed", err.Error(), r.URL.Path)
	}
}

// repairProblem maps repair-job errors: a second concurrent run is 409.
func repairProblem(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrRepairRunning) {
		writeProblem(w, http.StatusConflict, "Repair already running", err.Error(), r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Repair failed", err.Error(), r.URL.Path)
}
