package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"sentinel-brain/internal/config"
	"sentinel-brain/internal/db"
	"sentinel-brain/internal/httpapi"
	"sentinel-brain/internal/metrics"
	"sentinel-brain/internal/migrate"
	"sentinel-brain/internal/modules/advice"
	"sentinel-brain/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"advicePolicy", cfg.AdvicePolicy,
		"moistureThreshold", cfg.MoistureThreshold,
		"clampMoisture", cfg.ClampMoisture,
		"llmBaseURL", cfg.LLMBaseURL,
		"llmModel", cfg.LLMModel,
		"llmTimeout", cfg.LLMTimeout,
		"llmMaxRetries", cfg.LLMMaxRetries,
		"llmFallback", cfg.LLMFallback,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"notificationTarget", cfg.NotificationTarget != "",
	)
	metrics.Init()

	dbConn, err := db.Open(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	applied, err := migrate.Run(ctx, dbConn, slog.Default())
	if err != nil {
		return err
	}
	slog.Info("database ready", "migrations_applied", applied)

	mux := httpapi.NewMux(dbConn)

	// The reading handler has to be set before Connect: the broker may deliver
	// queued messages right after CONNACK.
	var subscriber *mqtt.Subscriber
	var featureSubscriber advice.MQTTSubscriber
	if cfg.MQTTEnabled {
		subscriber = mqtt.NewSubscriber(cfg, slog.Default())
		featureSubscriber = subscriber
	}
	if _, err := advice.RegisterFeature(mux, dbConn, cfg, featureSubscriber, slog.Default()); err != nil {
		return err
	}

	if subscriber != nil {
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			// Keep serving HTTP without readings.
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subscriber != nil {
		slog.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
