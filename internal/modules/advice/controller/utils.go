package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"sentinel-brain/internal/utils"
)

const maxBodyBytes = 64 << 10

// decodeTelemetry reads the /analyze body as a JSON object. An empty body or
// a JSON null is treated as {}.
func decodeTelemetry(w http.ResponseWriter, r *http.Request) (map[string]any, int, error) {
	return utils.ReadJSONObject(w, r, maxBodyBytes)
}

func parseRecentQuery(r *http.Request) (plantName string, limit int, err error) {
	q := r.URL.Query()
	plantName = strings.TrimSpace(q.Get("plant_name"))

	limit = 100
	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return "", 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return "", 0, errors.New("'limit' must be > 0")
		}
		if n > 1000 {
			return "", 0, errors.New("'limit' must be <= 1000")
		}
		limit = n
	}
	return plantName, limit, nil
}
