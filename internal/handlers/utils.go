package handlers

import (
	"encoding/json"
	"net/http"

	"thumbnail-gallery/internal/logging"
)

// writeJSON encodes v as JSON. Encoding errors can only be logged once the
// status line is out.
func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

func writeJSONStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"status": status})
}
