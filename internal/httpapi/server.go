package httpapi

import (
	"net/http"
	"time"

	"sentinel-brain/internal/config"
)

func NewServer(cfg config.Config, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           wrap(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// Leave room for a backend call plus its single retry.
		WriteTimeout: 2*cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
