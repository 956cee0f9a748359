package http

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/accounts-service/internal/db"
)

// HealthChecker is satisfied by *db.Postgres.
type HealthChecker interface {
	Health(ctx context.Context) (db.Stats, error)
}

type HealthResponse struct {
	Status string   `json:"status"`
	Error  string   `json:"error,omitempty"`
	Pool   db.Stats `json:"pool"`
}

func handleHealth(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		stats, err := checker.Health(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Health check failed")
			respondWithJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "down", Error: err.Error(), Pool: stats})
			return
		}

		respondWithJSON(w, http.StatusOK, HealthResponse{Status: "up", Pool: stats})
	}
}
