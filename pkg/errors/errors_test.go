package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_WrapsSentinel(t *testing.T) {
	err := NotFound("campaign", "camp-001")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "NOT_FOUND")
	assert.Contains(t, err.Error(), "camp-001")
}

func TestHTTPStatus_AppErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("campaign", "x"), http.StatusNotFound},
		{"already exists", AlreadyExists("campaign", "code", "SAVE10"), http.StatusConflict},
		{"invalid input", InvalidInput("bad"), http.StatusBadRequest},
		{"not eligible", NotEligible("campaign has ended"), http.StatusUnprocessableEntity},
		{"usage limit", UsageLimitExceeded("limit reached"), http.StatusConflict},
		{"below minimum", BelowMinimumOrder("too small"), http.StatusUnprocessableEntity},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestHTTPStatus_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrNotFound, http.StatusNotFound},
		{"conflict", ErrConflict, http.StatusConflict},
		{"usage limit", ErrUsageLimitReached, http.StatusConflict},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"not eligible", ErrNotEligible, http.StatusUnprocessableEntity},
		{"below minimum", ErrBelowMinimumOrder, http.StatusUnprocessableEntity},
		{"unknown", errors.New("mystery"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestHTTPStatus_WrappedSentinel(t *testing.T) {
	err := fmt.Errorf("commit usage record: %w", ErrConflict)
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("db down")
	err := Internal(inner)
	assert.ErrorIs(t, err, inner)
}
