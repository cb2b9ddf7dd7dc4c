package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sentinel-brain/internal/modules/advice/policy"
	"sentinel-brain/internal/modules/advice/service"
	"sentinel-brain/internal/modules/advice/types"
)

type stubGenerator struct {
	out string
	err error
}

func (g stubGenerator) Generate(context.Context, string) (string, error) {
	return g.out, g.err
}

type mockService struct {
	recent    []types.AdviceRecord
	recentErr error
	gotPlant  string
	gotLimit  int
}

func (m *mockService) Analyze(context.Context, types.Telemetry, string) (types.Advice, error) {
	return types.Advice{}, errors.New("not used")
}

func (m *mockService) Recent(_ context.Context, plantName string, limit int) ([]types.AdviceRecord, error) {
	m.gotPlant, m.gotLimit = plantName, limit
	return m.recent, m.recentErr
}

func newMux(p policy.Policy) *http.ServeMux {
	svc := service.NewService(p, nil, nil, service.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mux := http.NewServeMux()
	NewAdviceController(svc).RegisterRoutes(mux)
	return mux
}

func postAnalyze(t *testing.T, mux http.Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rec.Body.String())
	}
	return rec, out
}

func TestAnalyze_ThresholdEndToEnd(t *testing.T) {
	mux := newMux(policy.NewThreshold(policy.DefaultThreshold))

	rec, out := postAnalyze(t, mux, `{"plant_name":"Basil","moisture":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 (%s)", rec.Code, rec.Body.String())
	}
	if out["alert_needed"] != true {
		t.Errorf("alert_needed = %v; want true", out["alert_needed"])
	}
	advice, _ := out["advice"].(string)
	if !strings.Contains(advice, "Basil") || !strings.Contains(advice, "10") {
		t.Errorf("advice = %q; want plant name and moisture", advice)
	}
	if out["plant_name"] != "Basil" {
		t.Errorf("plant_name = %v", out["plant_name"])
	}
	ts, _ := out["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Errorf("timestamp %q is not ISO-8601: %v", ts, err)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestAnalyze_Defaults(t *testing.T) {
	mux := newMux(policy.NewThreshold(policy.DefaultThreshold))

	for _, body := range []string{``, `{}`, `null`, `{"plant_name":null,"moisture_percentage":"wet"}`} {
		t.Run(fmt.Sprintf("body %q", body), func(t *testing.T) {
			rec, out := postAnalyze(t, mux, body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d; want 200", rec.Code)
			}
			if out["plant_name"] != types.DefaultPlantName {
				t.Errorf("plant_name = %v; want %q", out["plant_name"], types.DefaultPlantName)
			}
			if out["alert_needed"] != true {
				t.Errorf("missing moisture should alert; got %v", out["alert_needed"])
			}
		})
	}
}

func TestAnalyze_OptimalAboveThreshold(t *testing.T) {
	mux := newMux(policy.NewThreshold(policy.DefaultThreshold))

	_, out := postAnalyze(t, mux, `{"plant_name":"Fern","plant_age_days":40,"moisture_percentage":30}`)
	if out["alert_needed"] != false {
		t.Errorf("alert_needed = %v; want false", out["alert_needed"])
	}
	if out["advice"] == "" {
		t.Error("advice must not be empty")
	}
}

func TestAnalyze_BadRequest(t *testing.T) {
	mux := newMux(policy.NewThreshold(policy.DefaultThreshold))

	for _, body := range []string{`{"plant_name":`, `[1,2]`, `"basil"`, `{"a":1} trailing`} {
		rec, out := postAnalyze(t, mux, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d; want 400", body, rec.Code)
		}
		if out["error"] != "Bad Request" || out["message"] == "" {
			t.Errorf("body %q: error body = %v", body, out)
		}
	}
}

func TestAnalyze_BodyTooLarge(t *testing.T) {
	mux := newMux(policy.NewThreshold(policy.DefaultThreshold))
	body := `{"plant_name":"` + strings.Repeat("a", maxBodyBytes) + `"}`

	rec, _ := postAnalyze(t, mux, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d; want 413", rec.Code)
	}
}

func TestAnalyze_LLM(t *testing.T) {
	tests := []struct {
		name       string
		gen        stubGenerator
		wantStatus int
		wantAlert  any
		wantAdvice string
		wantMsg    string
	}{
		{
			name:       "yes",
			gen:        stubGenerator{out: `{"alert_needed": "yes", "advice": "Water now"}`},
			wantStatus: http.StatusOK,
			wantAlert:  true,
			wantAdvice: "Water now",
		},
		{
			name:       "no",
			gen:        stubGenerator{out: `{"alert_needed": "no", "advice": "All good"}`},
			wantStatus: http.StatusOK,
			wantAlert:  false,
			wantAdvice: "All good",
		},
		{
			name:       "maybe",
			gen:        stubGenerator{out: `{"alert_needed": "maybe", "advice": "Hard to say"}`},
			wantStatus: http.StatusOK,
			wantAlert:  false,
			wantAdvice: "Hard to say",
		},
		{
			name:       "unparsable",
			gen:        stubGenerator{out: `I think your plant is fine!`},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "invalid backend response",
		},
		{
			name:       "missing key",
			gen:        stubGenerator{out: `{"alert_needed": "yes"}`},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "invalid backend response",
		},
		{
			name:       "unavailable",
			gen:        stubGenerator{err: fmt.Errorf("%w: connection refused", policy.ErrBackendUnavailable)},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "backend unavailable",
		},
		{
			name:       "timeout",
			gen:        stubGenerator{err: fmt.Errorf("%w: deadline", policy.ErrBackendTimeout)},
			wantStatus: http.StatusGatewayTimeout,
			wantMsg:    "backend timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(policy.NewLLM(tt.gen))
			rec, out := postAnalyze(t, mux, `{"plant_name":"Basil","moisture_percentage":12}`)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d; want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if out["message"] != tt.wantMsg {
					t.Errorf("message = %v; want %q", out["message"], tt.wantMsg)
				}
				if _, fabricated := out["alert_needed"]; fabricated {
					t.Errorf("error response carries a decision: %v", out)
				}
				return
			}
			if out["alert_needed"] != tt.wantAlert || out["advice"] != tt.wantAdvice {
				t.Errorf("got alert=%v advice=%v; want %v %q", out["alert_needed"], out["advice"], tt.wantAlert, tt.wantAdvice)
			}
		})
	}
}

func TestAnalyze_FallbackPolicy(t *testing.T) {
	p := policy.NewFallback(
		policy.NewLLM(stubGenerator{err: policy.ErrBackendUnavailable}),
		policy.NewThreshold(policy.DefaultThreshold),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	rec, out := postAnalyze(t, newMux(p), `{"plant_name":"Basil","moisture_percentage":12}`)
	if rec.Code != http.StatusOK || out["alert_needed"] != true {
		t.Errorf("status=%d body=%v; want threshold decision", rec.Code, out)
	}
}

func TestRoutes_MethodAndPath(t *testing.T) {
	mux := newMux(policy.NewThreshold(policy.DefaultThreshold))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyze", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /analyze status = %d; want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyse", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("POST /analyse status = %d; want 404", rec.Code)
	}
}

func Test_handleRecent(t *testing.T) {
	age := 12
	svc := &mockService{recent: []types.AdviceRecord{
		{ID: 2, PlantName: "Basil", PlantAgeDays: &age, MoisturePercentage: 10, AlertNeeded: true, Advice: "Water", Policy: "threshold", Source: "http"},
	}}
	mux := http.NewServeMux()
	NewAdviceController(svc).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/advice?plant_name=Basil&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	if svc.gotPlant != "Basil" || svc.gotLimit != 5 {
		t.Errorf("service got plant=%q limit=%d", svc.gotPlant, svc.gotLimit)
	}
	var out []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0]["plantName"] != "Basil" || out[0]["alertNeeded"] != true {
		t.Errorf("body = %v", out)
	}

	t.Run("service error", func(t *testing.T) {
		svc.recentErr = errors.New("db locked")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/advice", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want 500", rec.Code)
		}
	})
}

func Test_parseRecentQuery(t *testing.T) {
	tests := []struct {
		query     string
		wantPlant string
		wantLimit int
		wantErr   string
	}{
		{"", "", 100, ""},
		{"plant_name=%20Basil%20&limit=1000", "Basil", 1000, ""},
		{"limit=abc", "", 0, "invalid 'limit' (expected integer)"},
		{"limit=0", "", 0, "'limit' must be > 0"},
		{"limit=1001", "", 0, "'limit' must be <= 1000"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/advice?"+tt.query, nil)
			plant, limit, err := parseRecentQuery(r)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("err = %v; want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil || plant != tt.wantPlant || limit != tt.wantLimit {
				t.Errorf("got %q %d %v; want %q %d", plant, limit, err, tt.wantPlant, tt.wantLimit)
			}
		})
	}
}
