package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

var (
	ErrBodyTooLarge = errors.New("request body too large")
	ErrNotObject    = errors.New("request body must be a JSON object")
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON", "error", err)
	}
}

// WriteError writes {"error": <status text>, "message": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": msg,
	})
}

// ReadJSONObject reads at most maxBytes of the request body and decodes it as
// a JSON object. An empty body or a literal null yields an empty map. The
// returned status is the HTTP status to answer with when err is non-nil.
func ReadJSONObject(w http.ResponseWriter, r *http.Request, maxBytes int64) (map[string]any, int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, ErrBodyTooLarge
		}
		return nil, http.StatusBadRequest, errors.New("failed to read request body")
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return map[string]any{}, 0, nil
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, http.StatusBadRequest, errors.New("invalid JSON body")
	}
	switch obj := v.(type) {
	case nil:
		return map[string]any{}, 0, nil
	case map[string]any:
		return obj, 0, nil
	default:
		return nil, http.StatusBadRequest, ErrNotObject
	}
}
