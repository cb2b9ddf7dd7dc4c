package types

import (
	"math"
	"strings"
	"time"
)

const DefaultPlantName = "Unknown Plant"

// Telemetry is the fully populated request record handed to a decision policy.
type Telemetry struct {
	PlantName          string
	PlantAgeDays       int
	HasAge             bool
	MoisturePercentage float64
}

type Decision struct {
	AlertNeeded bool
	Advice      string
	Policy      string
}

// Advice is the /analyze response body.
type Advice struct {
	Timestamp   string `json:"timestamp"`
	PlantName   string `json:"plant_name"`
	AlertNeeded bool   `json:"alert_needed"`
	Advice      string `json:"advice"`
}

type AdviceRecord struct {
	ID                 int64     `json:"id"`
	PlantName          string    `json:"plantName"`
	PlantAgeDays       *int      `json:"plantAgeDays"`
	MoisturePercentage float64   `json:"moisturePercentage"`
	AlertNeeded        bool      `json:"alertNeeded"`
	Advice             string    `json:"advice"`
	Policy             string    `json:"policy"`
	Source             string    `json:"source"`
	CreatedAt          time.Time `json:"createdAt"`
}

// NewAdvice stamps a decision with the response time.
func NewAdvice(t Telemetry, d Decision, now time.Time) Advice {
	return Advice{
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		PlantName:   t.PlantName,
		AlertNeeded: d.AlertNeeded,
		Advice:      d.Advice,
	}
}

// MaxPlantAgeDays is the largest plant_age_days accepted from a request.
const MaxPlantAgeDays = math.MaxInt32

// NormalizeTelemetry builds a Telemetry from a decoded JSON object. Missing,
// null or wrongly typed fields fall back to their defaults. The legacy
// "moisture" key is read only when "moisture_percentage" is absent or null.
func NormalizeTelemetry(raw map[string]any) Telemetry {
	t := Telemetry{PlantName: DefaultPlantName}

	if s, ok := raw["plant_name"].(string); ok && strings.TrimSpace(s) != "" {
		t.PlantName = s
	}

	// Negative or oversized ages are treated as absent.
	if age, ok := asNumber(raw["plant_age_days"]); ok && age >= 0 && age <= MaxPlantAgeDays {
		t.PlantAgeDays = int(math.Trunc(age))
		t.HasAge = true
	}

	if m, ok := asNumber(raw["moisture_percentage"]); ok {
		t.MoisturePercentage = m
	} else if raw["moisture_percentage"] == nil {
		if m, ok := asNumber(raw["moisture"]); ok {
			t.MoisturePercentage = m
		}
	}

	return t
}

func asNumber(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ClampPercentage bounds m to [0,100].
func ClampPercentage(m float64) float64 {
	return math.Max(0, math.Min(100, m))
}
