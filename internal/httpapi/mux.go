package httpapi

import (
	"database/sql"
	"net/http"

	"sentinel-brain/internal/metrics"
)

// NewMux returns the base mux with the health and metrics endpoints. Feature
// modules add their own routes.
func NewMux(db *sql.DB) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}
