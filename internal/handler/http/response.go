package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/clearcart/promotion-engine/pkg/errors"
	"github.com/clearcart/promotion-engine/pkg/logger"
	"github.com/clearcart/promotion-engine/pkg/validator"
)

// envelope is the standard response shape: exactly one of data or error is
// set.
type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, l *slog.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	body := &errorBody{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var appErr *apperrors.AppError
	var valErr *validator.ValidationError
	switch {
	case errors.As(err, &valErr):
		status = http.StatusBadRequest
		body.Code = "VALIDATION_ERROR"
		body.Message = "request validation failed"
		body.Fields = valErr.Fields()
	case errors.As(err, &appErr):
		body.Code = appErr.Code
		body.Message = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context(), l).ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: body})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.InvalidInput("invalid JSON body: " + err.Error())
	}
	return nil
}
