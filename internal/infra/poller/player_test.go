package poller

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pefelippe/spotify-player/internal/domain/device"
	"github.com/pefelippe/spotify-player/internal/domain/track"
	"github.com/pefelippe/spotify-player/internal/infra/spotify"
	"github.com/pefelippe/spotify-player/internal/sdk"
)

type fakeAPI struct {
	nowPlaying    *spotify.NowPlaying
	nowPlayingErr error
	devices       []device.Device
	devicesErr    error

	pauseDeviceIDs []string
	volumes        []int
	seeks          []int
}

func (f *fakeAPI) CurrentlyPlaying(_ context.Context) (*spotify.NowPlaying, error) {
	return f.nowPlaying, f.nowPlayingErr
}

func (f *fakeAPI) Devices(_ context.Context) ([]device.Device, error) {
	return f.devices, f.devicesErr
}

func (f *fakeAPI) Pause(_ context.Context, deviceID string) error {
	f.pauseDeviceIDs = append(f.pauseDeviceIDs, deviceID)
	return nil
}

func (f *fakeAPI) Resume(_ context.Context) error { return nil }

func (f *fakeAPI) Seek(_ context.Context, positionMs int) error {
	f.seeks = append(f.seeks, positionMs)
	return nil
}

func (f *fakeAPI) SetVolume(_ context.Context, percent int) error {
	f.volumes = append(f.volumes, percent)
	return nil
}

func (f *fakeAPI) Next(_ context.Context) error     { return nil }
func (f *fakeAPI) Previous(_ context.Context) error { return nil }

func newTestPlayer(api *fakeAPI) *Player {
	return New(api, Config{IntervalMs: 1000, DeviceRefreshSecs: 10}, sdk.Options{Name: "test"})
}

func drain(p *Player) []sdk.Event {
	var evs []sdk.Event
	for {
		select {
		case ev := <-p.events:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		want     Config
		wantErr  bool
	}{
		{
			name:     "defaults apply to empty settings",
			settings: map[string]any{},
			want:     Config{IntervalMs: 1000, DeviceRefreshSecs: 10},
		},
		{
			name:     "explicit values win",
			settings: map[string]any{"interval_ms": 500, "device_refresh_secs": 3},
			want:     Config{IntervalMs: 500, DeviceRefreshSecs: 3},
		},
		{
			name:     "interval below the floor is rejected",
			settings: map[string]any{"interval_ms": 100},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig(tt.settings)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnectRequiresToken(t *testing.T) {
	p := New(&fakeAPI{}, Config{IntervalMs: 1000, DeviceRefreshSecs: 10}, sdk.Options{
		TokenFunc: func(_ context.Context) (string, error) { return "", nil },
	})

	err := p.Connect(context.Background())
	require.Error(t, err)

	evs := drain(p)
	require.Len(t, evs, 1)
	assert.Equal(t, sdk.EventAuthenticationError, evs[0].Type)
}

func TestPollDevicesEmitsReadyTransitions(t *testing.T) {
	api := &fakeAPI{}
	p := newTestPlayer(api)
	ctx := context.Background()

	// No active device: nothing to report yet
	p.pollDevices(ctx)
	assert.Empty(t, drain(p))

	// Device appears
	api.devices = []device.Device{{ID: "d1", IsActive: true}}
	p.pollDevices(ctx)
	evs := drain(p)
	require.Len(t, evs, 1)
	assert.Equal(t, sdk.EventReady, evs[0].Type)
	assert.Equal(t, "d1", evs[0].DeviceID)

	// Unchanged: no duplicate event
	p.pollDevices(ctx)
	assert.Empty(t, drain(p))

	// Device disappears
	api.devices = nil
	p.pollDevices(ctx)
	evs = drain(p)
	require.Len(t, evs, 1)
	assert.Equal(t, sdk.EventNotReady, evs[0].Type)
}

func TestPollStateEmitsOnChangeOnly(t *testing.T) {
	api := &fakeAPI{nowPlaying: &spotify.NowPlaying{
		Track:      &track.Track{ID: "abc", URI: "spotify:track:abc", Duration: 3 * time.Minute},
		Playing:    true,
		ProgressMs: 1000,
	}}
	p := newTestPlayer(api)
	ctx := context.Background()

	// First observation is always a change
	p.pollState(ctx)
	evs := drain(p)
	require.Len(t, evs, 1)
	require.Equal(t, sdk.EventStateChanged, evs[0].Type)
	require.NotNil(t, evs[0].State)
	assert.False(t, evs[0].State.Paused)
	assert.Equal(t, "abc", evs[0].State.Track.ID)
	assert.Equal(t, 180000, evs[0].State.DurationMs)

	// Normal progression: no event
	api.nowPlaying.ProgressMs = 1100
	p.pollState(ctx)
	assert.Empty(t, drain(p))

	// Position jump beyond the tolerance (a remote seek)
	api.nowPlaying.ProgressMs = 90000
	p.pollState(ctx)
	evs = drain(p)
	require.Len(t, evs, 1)
	assert.Equal(t, 90000, evs[0].State.PositionMs)

	// Pause flips the state
	api.nowPlaying.Playing = false
	p.pollState(ctx)
	evs = drain(p)
	require.Len(t, evs, 1)
	assert.True(t, evs[0].State.Paused)

	// Track change
	api.nowPlaying = &spotify.NowPlaying{
		Track:   &track.Track{ID: "def", URI: "spotify:track:def", Duration: 2 * time.Minute},
		Playing: false,
	}
	p.pollState(ctx)
	evs = drain(p)
	require.Len(t, evs, 1)
	assert.Equal(t, "def", evs[0].State.Track.ID)
}

func TestPollStateSurvivesAPIErrors(t *testing.T) {
	api := &fakeAPI{nowPlayingErr: errors.New("upstream down"), devicesErr: errors.New("upstream down")}
	p := newTestPlayer(api)
	ctx := context.Background()

	p.pollState(ctx)
	p.pollDevices(ctx)

	assert.Empty(t, drain(p))
}

func TestCommandsMapToAPI(t *testing.T) {
	api := &fakeAPI{}
	p := newTestPlayer(api)
	p.deviceID = "d1"
	ctx := context.Background()

	require.NoError(t, p.Pause(ctx))
	require.NoError(t, p.SetVolume(ctx, 0.5))
	require.NoError(t, p.Seek(ctx, 42000))

	assert.Equal(t, []string{"d1"}, api.pauseDeviceIDs)
	assert.Equal(t, []int{50}, api.volumes)
	assert.Equal(t, []int{42000}, api.seeks)
}

func TestConnectContextCancelStopsLoop(t *testing.T) {
	api := &fakeAPI{}
	p := newTestPlayer(api)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Connect(ctx))

	// The owner cancelling its ctx must stop the loop even when
	// Disconnect is never called
	cancel()

	select {
	case <-waitClosed(p.Events()):
	case <-time.After(time.Second):
		t.Fatal("polling loop kept running after the owner cancelled its context")
	}
}

func TestDisconnectClosesEventChannel(t *testing.T) {
	api := &fakeAPI{}
	p := newTestPlayer(api)

	require.NoError(t, p.Connect(context.Background()))
	p.Disconnect()
	p.Disconnect() // idempotent

	select {
	case _, ok := <-waitClosed(p.Events()):
		_ = ok
	case <-time.After(time.Second):
		t.Fatal("event channel was not closed after disconnect")
	}
}

// waitClosed forwards until the source closes, then closes its output.
func waitClosed(src <-chan sdk.Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range src {
		}
		close(done)
	}()
	return done
}
