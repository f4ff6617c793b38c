package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Response is the JSON envelope of every endpoint.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

var (
	ErrUnauthenticated = errors.New("httpapi: missing user identity")
	ErrBadRequest      = errors.New("httpapi: bad request")
)

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any, meta map[string]any) {
	writeJSON(w, status, Response{Data: data, Meta: meta})
}

// errorStatus maps engine errors to a status and an error detail.
func errorStatus(err error) (int, *ErrorDetail) {
	var ve *notifications.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, &ErrorDetail{
			Code:    "validation_error",
			Message: err.Error(),
			Details: map[string][]string{ve.Field: {ve.Reason}},
		}
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, &ErrorDetail{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, &ErrorDetail{Code: "unauthenticated", Message: http.StatusText(http.StatusUnauthorized)}
	case errors.Is(err, notifications.ErrNotFound):
		return http.StatusNotFound, &ErrorDetail{Code: "not_found", Message: http.StatusText(http.StatusNotFound)}
	case errors.Is(err, notifications.ErrNotCancellable):
		return http.StatusConflict, &ErrorDetail{Code: "not_cancellable", Message: err.Error()}
	case errors.Is(err, notifications.ErrEngineNotStarted):
		return http.StatusServiceUnavailable, &ErrorDetail{Code: "unavailable", Message: http.StatusText(http.StatusServiceUnavailable)}
	}
	return http.StatusInternalServerError, &ErrorDetail{Code: "internal_error", Message: http.StatusText(http.StatusInternalServerError)}
}
