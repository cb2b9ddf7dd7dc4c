package advice

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"sentinel-brain/internal/config"
	"sentinel-brain/internal/modules/advice/controller"
	"sentinel-brain/internal/modules/advice/policy"
	"sentinel-brain/internal/modules/advice/repository"
	"sentinel-brain/internal/modules/advice/service"
	"sentinel-brain/internal/notify"
	"sentinel-brain/internal/ollama"
)

// RegisterFeature builds the advice service from cfg, mounts its HTTP routes
// and, when subscriber is non-nil, routes sensor readings into it.
func RegisterFeature(mux *http.ServeMux, db *sql.DB, cfg config.Config, subscriber MQTTSubscriber, logger *slog.Logger) (*service.Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p, err := NewPolicy(cfg, logger)
	if err != nil {
		return nil, err
	}

	var repo repository.AdviceRepository
	if db != nil {
		repo = repository.NewRepository(db)
	}

	var notifier service.Notifier
	if cfg.NotificationTarget != "" {
		notifier = notify.NewNtfy(cfg.NtfyBaseURL, cfg.NotificationTarget, logger)
	}

	svc := service.NewService(p, repo, notifier, service.Options{
		ClampMoisture: cfg.ClampMoisture,
		Logger:        logger,
	})
	controller.NewAdviceController(svc).RegisterRoutes(mux)

	if subscriber != nil {
		registerMQTTHandler(subscriber, svc, logger)
	}

	logger.Info("advice feature registered",
		"policy", cfg.AdvicePolicy,
		"fallback", cfg.LLMFallback,
		"advice_log", repo != nil,
		"notifications", notifier != nil,
	)
	return svc, nil
}

// NewPolicy selects the decision policy named by cfg.AdvicePolicy.
func NewPolicy(cfg config.Config, logger *slog.Logger) (policy.Policy, error) {
	threshold := policy.NewThreshold(cfg.MoistureThreshold)

	switch cfg.AdvicePolicy {
	case "", config.PolicyThreshold:
		return threshold, nil
	case config.PolicyLLM:
		client, err := ollama.NewClient(ollama.Config{
			BaseURL:         cfg.LLMBaseURL,
			Model:           cfg.LLMModel,
			Timeout:         cfg.LLMTimeout,
			MaxRetries:      cfg.LLMMaxRetries,
			BreakerFailures: cfg.LLMBreakerFailures,
			BreakerOpen:     cfg.LLMBreakerOpen,
		}, logger)
		if err != nil {
			return nil, err
		}
		llm := policy.NewLLM(client)
		if cfg.LLMFallback == config.FallbackThreshold {
			return policy.NewFallback(llm, threshold, logger), nil
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown advice policy %q", cfg.AdvicePolicy)
	}
}
