package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"fit-analyse/dashboard/internal/models/entities"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckHandler handles GET /healthCheck
func HealthCheckHandler(deps *Dependencies, upSince time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		services := make(map[string]entities.ServiceStatus)

		// Check local store
		storeStatus := "ok"
		storeDetails := deps.Config.StoreBackend + " connected"
		if err := deps.SQLX.PingContext(ctx); err != nil {
			storeStatus = "down"
			storeDetails = err.Error()
		}
		services["local_store"] = entities.ServiceStatus{
			Status:  storeStatus,
			Details: storeDetails,
		}

		// Check Redis when it backs the cache
		if p, ok := deps.Cache.(pinger); ok {
			cacheStatus := "ok"
			cacheDetails := "Redis connected"
			if err := p.Ping(ctx); err != nil {
				cacheStatus = "down"
				cacheDetails = err.Error()
			}
			services["cache"] = entities.ServiceStatus{
				Status:  cacheStatus,
				Details: cacheDetails,
			}
		}

		overallStatus := "ok"
		for _, svc := range services {
			if svc.Status != "ok" {
				overallStatus = "down"
				break
			}
		}

		resp := entities.HealthCheckResponse{
			Services:       services,
			Status:         overallStatus,
			SyncInProgress: deps.Services.Sync.InProgress(),
			UpSince:        upSince,
			Uptime:         time.Since(upSince).Round(time.Second).String(),
		}
		w.Header().Set("Content-Type", "application/json")
		if overallStatus != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
