package advice

import (
	"context"
	"log/slog"

	"sentinel-brain/internal/modules/advice/service"
	"sentinel-brain/internal/modules/advice/types"
	"sentinel-brain/internal/mqtt"
)

// MQTTSubscriber interface for attaching the reading handler.
type MQTTSubscriber interface {
	SetReadingHandler(handler mqtt.ReadingHandler)
}

func registerMQTTHandler(subscriber MQTTSubscriber, svc *service.Service, logger *slog.Logger) {
	subscriber.SetReadingHandler(func(ctx context.Context, reading types.SensorReading) error {
		logger.Debug("processing sensor reading",
			"sensor_id", reading.SensorID,
			"plant_name", reading.PlantName,
		)
		if err := svc.HandleReading(ctx, reading); err != nil {
			logger.Error("failed to handle reading",
				"sensor_id", reading.SensorID,
				"error", err,
			)
			return err
		}
		return nil
	})
}
