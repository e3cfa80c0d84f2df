package spotify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	spotifyapi "github.com/zmb3/spotify/v2"
)

// captureTransport records outgoing requests and answers with a canned
// response, so request shaping can be asserted without a network.
type captureTransport struct {
	requests []*http.Request
	status   int
	body     string
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.requests = append(t.requests, req)
	return &http.Response{
		StatusCode: t.status,
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func TestSavedTracksAppliesMarket(t *testing.T) {
	transport := &captureTransport{status: http.StatusOK, body: `{"items":[]}`}
	client := NewWithHTTPClient(&http.Client{Transport: transport}, "BR")

	_, err := client.SavedTracks(context.Background(), 50)
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	q := transport.requests[0].URL.Query()
	assert.Equal(t, "BR", q.Get("market"))
	assert.Equal(t, "50", q.Get("limit"))
}

func TestSavedTracksOmitsMarketWhenUnset(t *testing.T) {
	transport := &captureTransport{status: http.StatusOK, body: `{"items":[]}`}
	client := NewWithHTTPClient(&http.Client{Transport: transport}, "")

	_, err := client.SavedTracks(context.Background(), 50)
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	assert.Empty(t, transport.requests[0].URL.Query().Get("market"))
}

func TestShuffleAndRepeatAreDeviceScoped(t *testing.T) {
	transport := &captureTransport{status: http.StatusNoContent}
	client := NewWithHTTPClient(&http.Client{Transport: transport}, "")

	require.NoError(t, client.SetShuffle(context.Background(), "device-1", true))
	require.NoError(t, client.SetRepeat(context.Background(), "device-1", "track"))

	require.Len(t, transport.requests, 2)
	assert.Equal(t, "device-1", transport.requests[0].URL.Query().Get("device_id"))
	assert.Equal(t, "true", transport.requests[0].URL.Query().Get("state"))
	assert.Equal(t, "device-1", transport.requests[1].URL.Query().Get("device_id"))
	assert.Equal(t, "track", transport.requests[1].URL.Query().Get("state"))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "rate limit text",
			err:      errors.New("rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      errors.New("Error 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "forbidden is not retryable",
			err:      errors.New("403 Forbidden"),
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("something went wrong"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantPremium     bool
		wantUnauth      bool
		wantNoActiveDev bool
	}{
		{
			name:        "403 is premium required",
			err:         spotifyapi.Error{Message: "Player command failed: Premium required", Status: http.StatusForbidden},
			wantPremium: true,
		},
		{
			name:       "401 is unauthorized",
			err:        spotifyapi.Error{Message: "The access token expired", Status: http.StatusUnauthorized},
			wantUnauth: true,
		},
		{
			name:            "404 is no active device",
			err:             spotifyapi.Error{Message: "Device not found", Status: http.StatusNotFound},
			wantNoActiveDev: true,
		},
		{
			name: "plain error matches nothing",
			err:  errors.New("connection reset"),
		},
		{
			name: "nil error matches nothing",
			err:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantPremium, IsPremiumRequired(tt.err))
			assert.Equal(t, tt.wantUnauth, IsUnauthorized(tt.err))
			assert.Equal(t, tt.wantNoActiveDev, IsNoActiveDevice(tt.err))
		})
	}
}
