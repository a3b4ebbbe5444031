package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

func readJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeOpError maps the typed error taxonomy onto HTTP statuses.
// Internal errors are masked with a generic message.
func writeOpError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	message := "internal server error"
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind != kindInternal {
		message = apiErr.Message
	}
	if errors.As(err, &apiErr) && apiErr.Field != "" {
		writeJSON(w, status, map[string]string{"error": message, "field": apiErr.Field})
		return
	}
	writeError(w, status, message)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
