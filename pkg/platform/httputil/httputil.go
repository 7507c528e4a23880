// Package httputil centralizes JSON response writing so every handler emits
// the same envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	derrors "casegate/pkg/domain-errors"
)

// WriteJSON encodes v with the given status. Encoding failures are swallowed;
// by the time they occur the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error       string               `json:"error"`
	Description string               `json:"error_description,omitempty"`
	Fields      []derrors.FieldError `json:"field_errors,omitempty"`
}

// WriteError translates a domain error into the standard JSON error envelope.
// Internal errors omit the description so backend details never leak to
// callers.
func WriteError(w http.ResponseWriter, err error) {
	code := derrors.CodeOf(err)
	body := errorBody{Error: string(code)}

	var de *derrors.Error
	if errors.As(err, &de) {
		if code != derrors.CodeInternal {
			body.Description = de.Message
		}
		body.Fields = de.Fields
	}
	WriteJSON(w, derrors.ToHTTPStatus(code), body)
}

// DecodeJSON decodes a request body into dst, logging and reporting malformed
// payloads as bad requests.
func DecodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "invalid request body", "error", err)
		}
		WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}
