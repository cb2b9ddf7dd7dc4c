package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SensorReading is the MQTT payload published by a soil sensor.
type SensorReading struct {
	SensorID           string    `json:"sensor_id"`
	PlantName          string    `json:"plant_name,omitempty"`
	DatePlanted        string    `json:"date_planted,omitempty"`
	MoisturePercentage *float64  `json:"moisture_percentage,omitempty"`
	RawValue           *int      `json:"raw_value,omitempty"`
	DryReference       *int      `json:"dry_reference,omitempty"`
	WetReference       *int      `json:"wet_reference,omitempty"`
	Timestamp          time.Time `json:"timestamp,omitempty"`
}

var errNoMoisture = errors.New("moisture_percentage or raw_value with dry_reference and wet_reference is required")

// Validate checks that the reading carries enough to compute a moisture percentage.
func (r SensorReading) Validate() error {
	if strings.TrimSpace(r.SensorID) == "" {
		return fmt.Errorf("sensor_id is required")
	}
	if r.MoisturePercentage == nil {
		if r.RawValue == nil || r.DryReference == nil || r.WetReference == nil {
			return errNoMoisture
		}
		if *r.DryReference == *r.WetReference {
			return fmt.Errorf("dry_reference and wet_reference must differ (both %d)", *r.DryReference)
		}
	}
	if r.DatePlanted != "" {
		if _, err := parseDatePlanted(r.DatePlanted); err != nil {
			return err
		}
	}
	return nil
}

// Telemetry converts a validated reading into the decision input. Age is
// counted in whole days from date_planted to now.
func (r SensorReading) Telemetry(now time.Time) Telemetry {
	t := Telemetry{PlantName: DefaultPlantName}
	if strings.TrimSpace(r.PlantName) != "" {
		t.PlantName = r.PlantName
	}

	if r.MoisturePercentage != nil {
		t.MoisturePercentage = *r.MoisturePercentage
	} else if r.RawValue != nil && r.DryReference != nil && r.WetReference != nil {
		t.MoisturePercentage = float64(MoistureFromRaw(*r.RawValue, *r.DryReference, *r.WetReference))
	}

	if planted, err := parseDatePlanted(r.DatePlanted); err == nil {
		days := int(now.Sub(planted).Hours() / 24)
		if days < 0 {
			days = 0
		}
		t.PlantAgeDays = days
		t.HasAge = true
	}
	return t
}

// MoistureFromRaw maps a raw capacitive reading onto 0..100 using the sensor's
// dry (0%) and wet (100%) calibration points. Sensors that read higher when
// wetter are supported by swapping the direction.
func MoistureFromRaw(rawValue, dryRef, wetRef int) int {
	if dryRef > wetRef {
		if rawValue >= dryRef {
			return 0
		}
		if rawValue <= wetRef {
			return 100
		}
		return (dryRef - rawValue) * 100 / (dryRef - wetRef)
	}
	if rawValue <= dryRef {
		return 0
	}
	if rawValue >= wetRef {
		return 100
	}
	return (rawValue - dryRef) * 100 / (wetRef - dryRef)
}

func parseDatePlanted(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("date_planted is empty")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date_planted %q (expected RFC3339 or YYYY-MM-DD)", s)
	}
	return t, nil
}
