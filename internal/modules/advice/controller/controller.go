package controller

import (
	"context"
	"net/http"

	"sentinel-brain/internal/modules/advice/types"
)

type AdviceService interface {
	Analyze(ctx context.Context, t types.Telemetry, source string) (types.Advice, error)
	Recent(ctx context.Context, plantName string, limit int) ([]types.AdviceRecord, error)
}

type AdviceController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type adviceControllerImpl struct {
	service AdviceService
}

func NewAdviceController(service AdviceService) AdviceController {
	return &adviceControllerImpl{service: service}
}

func (c *adviceControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /analyze", c.handleAnalyze)
	mux.HandleFunc("GET /api/v1/advice", c.handleRecent)
}
