package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

// WriteError writes an ErrorEnvelope; a non-empty requestID lands in meta.request_id.
func WriteError(w http.ResponseWriter, status int, requestID, code, message string) error {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}
