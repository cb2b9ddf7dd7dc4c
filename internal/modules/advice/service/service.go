package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sentinel-brain/internal/metrics"
	"sentinel-brain/internal/modules/advice/policy"
	"sentinel-brain/internal/modules/advice/repository"
	"sentinel-brain/internal/modules/advice/types"
	"sentinel-brain/internal/notify"
)

// SourceHTTP marks decisions requested through POST /analyze. MQTT decisions
// use "mqtt:<sensor_id>".
const SourceHTTP = "http"

type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

type Options struct {
	// ClampMoisture bounds moisture to [0,100] before the policy runs.
	ClampMoisture bool
	Logger        *slog.Logger
	Now           func() time.Time
}

type Service struct {
	policy   policy.Policy
	repo     repository.AdviceRepository
	notifier Notifier
	clamp    bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires a decision policy with optional advice log and notifier;
// either may be nil.
func NewService(p policy.Policy, repo repository.AdviceRepository, notifier Notifier, opts Options) *Service {
	s := &Service{
		policy:   p,
		repo:     repo,
		notifier: notifier,
		clamp:    opts.ClampMoisture,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Analyze decides on one telemetry record and returns the response body.
// The advice log write is best effort and never fails the call.
func (s *Service) Analyze(ctx context.Context, t types.Telemetry, source string) (types.Advice, error) {
	if s.clamp {
		t.MoisturePercentage = types.ClampPercentage(t.MoisturePercentage)
	}

	start := s.now()
	d, err := s.policy.Decide(ctx, t)
	if err != nil {
		metrics.IncDecisionError(errorReason(err))
		return types.Advice{}, fmt.Errorf("decide for %s: %w", t.PlantName, err)
	}
	now := s.now()
	metrics.ObserveDecision(d.Policy, sourceLabel(source), d.AlertNeeded, now.Sub(start))

	s.logger.Info("advice computed",
		"plant_name", t.PlantName,
		"moisture_percentage", t.MoisturePercentage,
		"alert_needed", d.AlertNeeded,
		"policy", d.Policy,
		"source", source,
	)

	s.record(ctx, t, d, source, now)
	return types.NewAdvice(t, d, now), nil
}

// HandleReading runs a sensor reading through Analyze and pushes a
// notification when the plant needs water.
func (s *Service) HandleReading(ctx context.Context, reading types.SensorReading) error {
	t := reading.Telemetry(s.now())
	advice, err := s.Analyze(ctx, t, "mqtt:"+reading.SensorID)
	if err != nil {
		return err
	}
	if !advice.AlertNeeded || s.notifier == nil {
		return nil
	}

	msg := notify.Message{
		Title:    fmt.Sprintf("%s needs attention", advice.PlantName),
		Body:     advice.Advice,
		Priority: "high",
		Tags:     []string{"potted_plant", "warning"},
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		return fmt.Errorf("notify for sensor %s: %w", reading.SensorID, err)
	}
	return nil
}

// Recent lists logged decisions, newest first.
func (s *Service) Recent(ctx context.Context, plantName string, limit int) ([]types.AdviceRecord, error) {
	if s.repo == nil {
		return []types.AdviceRecord{}, nil
	}
	return s.repo.ListRecent(ctx, plantName, limit)
}

func (s *Service) record(ctx context.Context, t types.Telemetry, d types.Decision, source string, at time.Time) {
	if s.repo == nil {
		return
	}
	rec := types.AdviceRecord{
		PlantName:          t.PlantName,
		MoisturePercentage: t.MoisturePercentage,
		AlertNeeded:        d.AlertNeeded,
		Advice:             d.Advice,
		Policy:             d.Policy,
		Source:             source,
		CreatedAt:          at,
	}
	if t.HasAge {
		age := t.PlantAgeDays
		rec.PlantAgeDays = &age
	}
	// A cancelled request still gets its decision logged.
	if _, err := s.repo.Insert(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("failed to record advice", "plant_name", t.PlantName, "source", source, "error", err)
	}
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, policy.ErrBackendTimeout):
		return "backend_timeout"
	case errors.Is(err, policy.ErrInvalidBackendResponse):
		return "invalid_backend_response"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, policy.ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "other"
	}
}

func sourceLabel(source string) string {
	if source == SourceHTTP {
		return SourceHTTP
	}
	return "mqtt"
}
