package policy

import (
	"context"
	"fmt"
	"strconv"

	"sentinel-brain/internal/modules/advice/types"
)

const DefaultThreshold = 30

const optimalAdvice = "Conditions are optimal. Keep monitoring."

// Threshold alerts whenever moisture drops below a fixed percentage.
type Threshold struct {
	threshold float64
}

func NewThreshold(threshold float64) *Threshold {
	return &Threshold{threshold: threshold}
}

func (p *Threshold) Decide(_ context.Context, t types.Telemetry) (types.Decision, error) {
	return p.decide(t), nil
}

func (p *Threshold) decide(t types.Telemetry) types.Decision {
	if t.MoisturePercentage >= p.threshold {
		return types.Decision{Advice: optimalAdvice, Policy: NameThreshold}
	}
	return types.Decision{
		AlertNeeded: true,
		Advice: fmt.Sprintf(
			"CRITICAL: Your %s is critically dry (%s%%). Water immediately to prevent root stress.",
			t.PlantName, formatMoisture(t.MoisturePercentage),
		),
		Policy: NameThreshold,
	}
}

// formatMoisture prints the shortest exact form: 10, 12.5.
func formatMoisture(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}
