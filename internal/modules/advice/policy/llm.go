package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sentinel-brain/internal/modules/advice/types"
)

// Generator sends a prompt to a text-generation backend and returns the raw
// model output. Implementations should return errors wrapping
// ErrBackendUnavailable or ErrBackendTimeout.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLM delegates the decision to a language model.
type LLM struct {
	generator Generator
}

func NewLLM(generator Generator) *LLM {
	return &LLM{generator: generator}
}

func (p *LLM) Decide(ctx context.Context, t types.Telemetry) (types.Decision, error) {
	out, err := p.generator.Generate(ctx, BuildPrompt(t))
	if err != nil {
		return types.Decision{}, classify(err)
	}

	d, err := ParseResponse(out)
	if err != nil {
		return types.Decision{}, err
	}
	d.Policy = NameLLM
	return d, nil
}

// BuildPrompt renders the botanist prompt. Age is only mentioned when the
// caller supplied it.
func BuildPrompt(t types.Telemetry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert botanist growing %s from seed.\n", t.PlantName)
	if t.HasAge {
		fmt.Fprintf(&b, "The plant is %d days old.\n", t.PlantAgeDays)
	}
	fmt.Fprintf(&b, "The current soil moisture is %s%%.\n\n", formatMoisture(t.MoisturePercentage))
	b.WriteString("Determine if this is dangerous for this specific plant type")
	if t.HasAge {
		b.WriteString(" at this stage of growth")
	}
	b.WriteString(".\n\n")
	b.WriteString("Return ONLY a JSON object with this format (do not include markdown formatting):\n")
	b.WriteString("{\n")
	b.WriteString("    \"alert_needed\": \"yes\" or \"no\",\n")
	b.WriteString("    \"advice\": \"Short, actionable advice here.\"\n")
	b.WriteString("}\n")
	return b.String()
}

// ParseResponse extracts a decision from raw model output. Both keys are
// required and advice must be a non-empty string. alert_needed is true only
// for the exact JSON string "yes".
func ParseResponse(raw string) (types.Decision, error) {
	body := bytes.TrimSpace([]byte(stripCodeFence(raw)))
	if len(body) == 0 {
		return types.Decision{}, fmt.Errorf("%w: empty output", ErrInvalidBackendResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return types.Decision{}, fmt.Errorf("%w: %v", ErrInvalidBackendResponse, err)
	}
	if fields == nil {
		return types.Decision{}, fmt.Errorf("%w: output is not a JSON object", ErrInvalidBackendResponse)
	}

	rawAlert, ok := fields["alert_needed"]
	if !ok {
		return types.Decision{}, fmt.Errorf("%w: missing key alert_needed", ErrInvalidBackendResponse)
	}
	rawAdvice, ok := fields["advice"]
	if !ok {
		return types.Decision{}, fmt.Errorf("%w: missing key advice", ErrInvalidBackendResponse)
	}

	var advice string
	if err := json.Unmarshal(rawAdvice, &advice); err != nil {
		return types.Decision{}, fmt.Errorf("%w: advice is not a string", ErrInvalidBackendResponse)
	}
	if strings.TrimSpace(advice) == "" {
		return types.Decision{}, fmt.Errorf("%w: advice is empty", ErrInvalidBackendResponse)
	}

	var alert string
	alertNeeded := json.Unmarshal(rawAlert, &alert) == nil && alert == "yes"

	return types.Decision{AlertNeeded: alertNeeded, Advice: advice}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

// classify makes sure every generator failure maps onto one of the backend
// sentinels so callers can pick a status code.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrBackendTimeout),
		errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, ErrInvalidBackendResponse):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrBackendTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
}
