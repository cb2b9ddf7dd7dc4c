package policy

import (
	"context"
	"errors"

	"sentinel-brain/internal/modules/advice/types"
)

// Policy names reported in decisions, logs and metrics.
const (
	NameThreshold         = "threshold"
	NameLLM               = "llm"
	NameThresholdFallback = "threshold-fallback"
)

var (
	ErrBackendUnavailable     = errors.New("backend unavailable")
	ErrBackendTimeout         = errors.New("backend timeout")
	ErrInvalidBackendResponse = errors.New("invalid backend response")
)

// Policy maps one plant's telemetry to a watering decision.
type Policy interface {
	Decide(ctx context.Context, t types.Telemetry) (types.Decision, error)
}
