package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"sentinel-brain/internal/modules/advice/policy"
	"sentinel-brain/internal/modules/advice/service"
	"sentinel-brain/internal/modules/advice/types"
	"sentinel-brain/internal/utils"
)

func (c *adviceControllerImpl) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	raw, status, err := decodeTelemetry(w, r)
	if err != nil {
		utils.WriteError(w, status, err.Error())
		return
	}
	t := types.NormalizeTelemetry(raw)

	advice, err := c.service.Analyze(r.Context(), t, service.SourceHTTP)
	if err != nil {
		writeDecisionError(w, r, t, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, advice)
}

func (c *adviceControllerImpl) handleRecent(w http.ResponseWriter, r *http.Request) {
	plantName, limit, err := parseRecentQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := c.service.Recent(r.Context(), plantName, limit)
	if err != nil {
		slog.Error("list advice failed", "plant_name", plantName, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load advice log")
		return
	}
	utils.WriteJSON(w, http.StatusOK, recs)
}

// writeDecisionError maps policy failures onto gateway statuses. Nothing is
// written when the client has already gone away.
func writeDecisionError(w http.ResponseWriter, r *http.Request, t types.Telemetry, err error) {
	switch {
	case errors.Is(err, policy.ErrInvalidBackendResponse):
		slog.Error("analyze: invalid backend response", "plant_name", t.PlantName, "error", err)
		utils.WriteError(w, http.StatusBadGateway, "invalid backend response")
	case errors.Is(err, policy.ErrBackendTimeout):
		slog.Error("analyze: backend timeout", "plant_name", t.PlantName, "error", err)
		utils.WriteError(w, http.StatusGatewayTimeout, "backend timed out")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		slog.Info("analyze: client disconnected", "plant_name", t.PlantName)
	case errors.Is(err, policy.ErrBackendUnavailable):
		slog.Error("analyze: backend unavailable", "plant_name", t.PlantName, "error", err)
		utils.WriteError(w, http.StatusBadGateway, "backend unavailable")
	default:
		slog.Error("analyze failed", "plant_name", t.PlantName, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to compute advice")
	}
}
