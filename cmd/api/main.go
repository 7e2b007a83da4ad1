package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rescuenav/internal/api"
	"rescuenav/internal/metrics"
)

func main() {
	srvDeps, err := api.NewServer()
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Planning
	mux.HandleFunc("/v1/routes/plan", srvDeps.PlanRouteHandler)
	mux.HandleFunc("/v1/routes/plan-multi", srvDeps.PlanMultiHandler)

	// Reference data
	mux.HandleFunc("/v1/vehicles", srvDeps.VehiclesHandler)
	mux.HandleFunc("/v1/hazards", srvDeps.HazardsHandler)

	// Admin
	mux.HandleFunc("/v1/admin/repair", srvDeps.RepairHandler)
	mux.HandleFunc("/v1/admin/connectivity", srvDeps.ConnectivityHandler)
	mux.HandleFunc("/v1/admin/plan-stats", srvDeps.PlanStatsHandler)
	mux.HandleFunc("/v1/admin/vrp-metrics", srvDeps.VRPMetricsHandler)
	mux.HandleFunc("/v1/admin/debug", srvDeps.DebugJSON)

	// Event stream
	mux.HandleFunc("/v1/events/stream", srvDeps.EventsWSHandler)

	// Health and metrics
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}
