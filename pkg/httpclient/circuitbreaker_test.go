package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerClient(name string) *CircuitBreakerClient {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
	return NewCircuitBreakerClient(New(fastConfig(0)), cfg, logger)
}

func TestCircuitBreaker_PassesThroughSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cb := testBreakerClient("cb-success")
	resp, err := cb.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_ServerErrorCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := testBreakerClient("cb-failure")
	_, err := cb.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error 500")
}

func TestCircuitBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := testBreakerClient("cb-trip")
	for i := 0; i < 3; i++ {
		_, err := cb.Get(context.Background(), srv.URL)
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_StaysClosedBelowMinRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := testBreakerClient("cb-min")
	for i := 0; i < 2; i++ {
		_, _ = cb.Get(context.Background(), srv.URL)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
