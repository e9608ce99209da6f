package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// Pinger is satisfied by *cache.Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    *sql.DB
	redis Pinger
}

// NewHealthHandler reports on db and, when non-nil, redis.
func NewHealthHandler(db *sql.DB, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	healthy := true
	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "unavailable"
		healthy = false
	}
	if h.redis != nil {
		checks["redis"] = "ok"
		// Redis only backs idempotency; losing it degrades, it does not fail.
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = "unavailable"
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}
