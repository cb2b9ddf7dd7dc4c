package policy

import (
	"context"
	"errors"
	"log/slog"

	"sentinel-brain/internal/modules/advice/types"
)

// Fallback answers with the threshold rule when the primary policy fails on
// a backend error. Caller cancellation is still returned as an error.
type Fallback struct {
	primary   Policy
	threshold *Threshold
	logger    *slog.Logger
}

func NewFallback(primary Policy, threshold *Threshold, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, threshold: threshold, logger: logger}
}

func (p *Fallback) Decide(ctx context.Context, t types.Telemetry) (types.Decision, error) {
	d, err := p.primary.Decide(ctx, t)
	if err == nil {
		return d, nil
	}
	if errors.Is(err, context.Canceled) {
		return types.Decision{}, err
	}

	p.logger.Warn("primary policy failed, using threshold fallback",
		"plant_name", t.PlantName,
		"error", err,
	)
	d = p.threshold.decide(t)
	d.Policy = NameThresholdFallback
	return d, nil
}
