package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pefelippe/spotify-player/internal/app/player"
)

type fakeController struct {
	snapshot player.Snapshot

	playURIs     []string
	playContexts []string
	pauses       int
	resumes      int
	seeks        []int
	volumes      []float64
	shuffles     []bool
	repeats      []player.RepeatMode
	transfers    []string
	refreshes    int
	dismissals   int

	updates chan player.Snapshot
}

func newFakeController() *fakeController {
	return &fakeController{updates: make(chan player.Snapshot, 4)}
}

func (f *fakeController) Snapshot() player.Snapshot { return f.snapshot }

func (f *fakeController) Subscribe() (string, <-chan player.Snapshot) {
	return "sub-1", f.updates
}

func (f *fakeController) Unsubscribe(_ string) {}

func (f *fakeController) PlayTrack(_ context.Context, uri, contextURI string) {
	f.playURIs = append(f.playURIs, uri)
	f.playContexts = append(f.playContexts, contextURI)
}

func (f *fakeController) PauseTrack(_ context.Context)    { f.pauses++ }
func (f *fakeController) ResumeTrack(_ context.Context)   { f.resumes++ }
func (f *fakeController) NextTrack(_ context.Context)     {}
func (f *fakeController) PreviousTrack(_ context.Context) {}

func (f *fakeController) SeekToPosition(_ context.Context, positionMs int) {
	f.seeks = append(f.seeks, positionMs)
}

func (f *fakeController) SetVolume(_ context.Context, volume float64) {
	f.volumes = append(f.volumes, volume)
}

func (f *fakeController) SetShuffle(_ context.Context, state bool) {
	f.shuffles = append(f.shuffles, state)
}

func (f *fakeController) SetRepeat(_ context.Context, mode player.RepeatMode) {
	f.repeats = append(f.repeats, mode)
}

func (f *fakeController) RefreshDevices(_ context.Context) { f.refreshes++ }

func (f *fakeController) TransferPlayback(_ context.Context, deviceID string, _ bool) {
	f.transfers = append(f.transfers, deviceID)
}

func (f *fakeController) DismissPremiumWarning() { f.dismissals++ }

type fakeAuth struct {
	logouts int
}

func (f *fakeAuth) Logout()           { f.logouts++ }
func (f *fakeAuth) IsLoggedOut() bool { return f.logouts > 0 }

func newTestServer(t *testing.T) (*httptest.Server, *fakeController, *fakeAuth) {
	t.Helper()
	fc := newFakeController()
	fa := &fakeAuth{}
	mux := http.NewServeMux()
	NewHandler(fc, fa).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, fc, fa
}

func TestGetState(t *testing.T) {
	srv, fc, _ := newTestServer(t)
	fc.snapshot = player.Snapshot{IsPlaying: true, PositionMs: 1234, RepeatMode: "track"}

	resp, err := http.Get(srv.URL + "/api/player/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap player.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, 1234, snap.PositionMs)
	assert.Equal(t, "track", snap.RepeatMode)
}

func TestPlayValidation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantURI    string
	}{
		{
			name:       "uri only",
			body:       `{"uri":"spotify:track:abc"}`,
			wantStatus: http.StatusOK,
			wantURI:    "spotify:track:abc",
		},
		{
			name:       "context only",
			body:       `{"context_uri":"spotify:playlist:pl1"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "empty body is rejected",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json is rejected",
			body:       `{"uri":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, fc, _ := newTestServer(t)

			resp, err := http.Post(srv.URL+"/api/player/play", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == http.StatusOK {
				require.Len(t, fc.playURIs, 1)
				assert.Equal(t, tt.wantURI, fc.playURIs[0])
			} else {
				assert.Empty(t, fc.playURIs)
			}
		})
	}
}

func TestSeekRejectsNegativePosition(t *testing.T) {
	srv, fc, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/player/seek", "application/json", strings.NewReader(`{"position_ms":-1}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, fc.seeks)
}

func TestVolumeRangeValidation(t *testing.T) {
	srv, fc, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/player/volume", "application/json", strings.NewReader(`{"volume":1.5}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/player/volume", "application/json", strings.NewReader(`{"volume":0.7}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []float64{0.7}, fc.volumes)
}

func TestRepeatModeValidation(t *testing.T) {
	srv, fc, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/player/repeat", "application/json", strings.NewReader(`{"mode":"forever"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/player/repeat", "application/json", strings.NewReader(`{"mode":"track"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []player.RepeatMode{player.RepeatTrack}, fc.repeats)
}

func TestTransferRequiresDeviceID(t *testing.T) {
	srv, fc, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/player/transfer", "application/json", strings.NewReader(`{"play":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/player/transfer", "application/json", strings.NewReader(`{"device_id":"d2","play":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"d2"}, fc.transfers)
}

func TestDevicesRefreshesBeforeAnswering(t *testing.T) {
	srv, fc, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/player/devices")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, fc.refreshes)
}

func TestLogout(t *testing.T) {
	srv, _, fa := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/session/logout", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, fa.logouts)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["logged_out"])
}

func TestStreamDeliversSnapshots(t *testing.T) {
	srv, fc, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/player/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	fc.updates <- player.Snapshot{IsPlaying: true, PositionMs: 777}

	reader := bufio.NewReader(resp.Body)
	var payloads []string
	for len(payloads) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimSpace(strings.TrimPrefix(line, "data: ")))
		}
	}

	// First payload is the initial snapshot, second the pushed update
	var snap player.Snapshot
	require.NoError(t, json.Unmarshal([]byte(payloads[1]), &snap))
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, 777, snap.PositionMs)
}
