package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteSendsPayloadAndReadsFirstChoice(t *testing.T) {
	var got ChatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"# Polished"}},{"index":1,"message":{"role":"assistant","content":"other"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL})
	out, err := c.Complete(context.Background(), "k-123", "system text", "rough notes")
	require.NoError(t, err)

	assert.Equal(t, "# Polished", out)
	assert.Equal(t, "Bearer k-123", auth)
	assert.Equal(t, DefaultModel, got.Model)
	assert.InDelta(t, DefaultTemperature, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, Message{Role: "system", Content: "system text"}, got.Messages[0])
	assert.Equal(t, Message{Role: "user", Content: "rough notes"}, got.Messages[1])
}

func TestCompleteNoChoicesIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	out, err := NewClient(Options{Endpoint: srv.URL}).Complete(context.Background(), "k", "s", "u")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCompleteExposesStatusCode(t *testing.T) {
	cases := []struct {
		status int
		body   string
		auth   bool
	}{
		{http.StatusUnauthorized, `{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`, true},
		{http.StatusForbidden, ``, true},
		{http.StatusTooManyRequests, `rate limited`, true},
		{http.StatusInternalServerError, `{"error":{"message":"boom"}}`, false},
		{http.StatusBadRequest, `{}`, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))

		_, err := NewClient(Options{Endpoint: srv.URL}).Complete(context.Background(), "k", "s", "u")
		srv.Close()

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "status %d: %v", tc.status, err)
		assert.Equal(t, tc.status, apiErr.StatusCode)
		assert.Equal(t, tc.auth, apiErr.AuthOrRateLimit(), "status %d", tc.status)
	}
}

func TestCompleteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Options{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Complete(context.Background(), "k", "s", "u")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
