// Package poller implements the SDK player contract on top of the Web
// API by polling the playback state. It stands in for the browser
// playback SDK in headless deployments: instead of registering a local
// audio device it observes and controls whichever remote device is
// active.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/pefelippe/spotify-player/internal/domain/device"
	"github.com/pefelippe/spotify-player/internal/infra/spotify"
	"github.com/pefelippe/spotify-player/internal/sdk"
)

const eventBufferSize = 16

// positionDriftToleranceMs is how far the observed position may deviate
// from the extrapolated one before a state-changed event is emitted.
const positionDriftToleranceMs = 2000

// Config holds poller driver settings.
type Config struct {
	IntervalMs        int `yaml:"interval_ms" mapstructure:"interval_ms" default:"1000" validate:"gte=250"`
	DeviceRefreshSecs int `yaml:"device_refresh_secs" mapstructure:"device_refresh_secs" default:"10" validate:"gte=1"`
}

// ParseConfig decodes driver settings into a Config.
func ParseConfig(settings map[string]any) (Config, error) {
	var cfg Config
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("poller driver config: %+v", cfg)
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, errors.Wrap(err, "validation failed")
	}
	return cfg, nil
}

// API is the Web API surface the poller needs.
type API interface {
	CurrentlyPlaying(ctx context.Context) (*spotify.NowPlaying, error)
	Devices(ctx context.Context) ([]device.Device, error)
	Pause(ctx context.Context, deviceID string) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	SetVolume(ctx context.Context, percent int) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
}

// Player is a polling implementation of the SDK player contract.
type Player struct {
	api  API
	cfg  Config
	opts sdk.Options

	events chan sdk.Event

	mu         sync.Mutex
	cancel     context.CancelFunc
	connected  bool
	deviceID   string
	lastTrack  string
	lastPaused bool
	lastPos    int
	lastPolled time.Time
}

// New creates a poller-backed player.
func New(api API, cfg Config, opts sdk.Options) *Player {
	return &Player{
		api:    api,
		cfg:    cfg,
		opts:   opts,
		events: make(chan sdk.Event, eventBufferSize),
	}
}

// Connect verifies a token is available and starts the polling loop.
func (p *Player) Connect(ctx context.Context) error {
	if p.opts.TokenFunc != nil {
		token, err := p.opts.TokenFunc(ctx)
		if err != nil || token == "" {
			p.sendEvent(sdk.Event{Type: sdk.EventAuthenticationError, Message: "no access token available"})
			return errors.New("no access token available")
		}
	}

	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return nil
	}
	// The loop inherits the caller's ctx: if the owner cancels it, the
	// loop stops even when Disconnect was never reached.
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.connected = true
	p.mu.Unlock()

	go p.loop(loopCtx)
	zlog.Info().Msgf("poller: connected, interval=%dms", p.cfg.IntervalMs)
	return nil
}

// Disconnect stops the polling loop. Idempotent; the event channel is
// closed once the loop exits.
func (p *Player) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Events returns the event stream.
func (p *Player) Events() <-chan sdk.Event {
	return p.events
}

// Pause pauses playback on the observed device.
func (p *Player) Pause(ctx context.Context) error {
	p.mu.Lock()
	deviceID := p.deviceID
	p.mu.Unlock()
	return p.api.Pause(ctx, deviceID)
}

// Resume resumes playback on the active device.
func (p *Player) Resume(ctx context.Context) error {
	return p.api.Resume(ctx)
}

// Seek seeks within the current track.
func (p *Player) Seek(ctx context.Context, positionMs int) error {
	return p.api.Seek(ctx, positionMs)
}

// SetVolume sets the output volume (0.0 - 1.0).
func (p *Player) SetVolume(ctx context.Context, volume float64) error {
	return p.api.SetVolume(ctx, int(volume*100))
}

// NextTrack skips to the next track.
func (p *Player) NextTrack(ctx context.Context) error {
	return p.api.Next(ctx)
}

// PreviousTrack skips to the previous track.
func (p *Player) PreviousTrack(ctx context.Context) error {
	return p.api.Previous(ctx)
}

func (p *Player) loop(ctx context.Context) {
	defer close(p.events)

	interval := time.Duration(p.cfg.IntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deviceEvery := time.Duration(p.cfg.DeviceRefreshSecs) * time.Second
	lastDeviceCheck := time.Time{}

	// Prime immediately rather than waiting a full interval
	p.pollDevices(ctx)
	p.pollState(ctx)
	lastDeviceCheck = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(lastDeviceCheck) >= deviceEvery {
				p.pollDevices(ctx)
				lastDeviceCheck = time.Now()
			}
			p.pollState(ctx)
		}
	}
}

// pollDevices tracks the remote active device and translates its
// appearance and disappearance into ready/not-ready events.
func (p *Player) pollDevices(ctx context.Context) {
	devices, err := p.api.Devices(ctx)
	if err != nil {
		zlog.Warn().Msgf("poller: device poll failed: %v", err)
		return
	}
	active := device.ActiveID(devices)

	p.mu.Lock()
	prev := p.deviceID
	p.deviceID = active
	p.mu.Unlock()

	if active == prev {
		return
	}
	if active == "" {
		p.sendEvent(sdk.Event{Type: sdk.EventNotReady})
		return
	}
	p.sendEvent(sdk.Event{Type: sdk.EventReady, DeviceID: active})
}

// pollState fetches the playback snapshot and emits a state-changed
// event when the track, the pause state, or the position (beyond normal
// progression) has changed.
func (p *Player) pollState(ctx context.Context) {
	np, err := p.api.CurrentlyPlaying(ctx)
	if err != nil {
		zlog.Warn().Msgf("poller: state poll failed: %v", err)
		return
	}

	var (
		trackID    string
		durationMs int
		state      = &sdk.ChangedState{Paused: !np.Playing, PositionMs: np.ProgressMs}
	)
	if np.Track != nil {
		trackID = np.Track.ID
		durationMs = np.Track.DurationMs()
		state.DurationMs = durationMs
		state.Track = &sdk.ChangedTrack{
			ID:          np.Track.ID,
			URI:         np.Track.URI,
			Name:        np.Track.Name,
			DurationMs:  durationMs,
			Artists:     np.Track.Artists,
			Album:       np.Track.Album,
			AlbumArtURL: np.Track.AlbumArtURL,
		}
	}

	now := time.Now()

	p.mu.Lock()
	changed := trackID != p.lastTrack || state.Paused != p.lastPaused
	if !changed && np.Playing && !p.lastPolled.IsZero() {
		expected := p.lastPos + int(now.Sub(p.lastPolled)/time.Millisecond)
		drift := np.ProgressMs - expected
		if drift < -positionDriftToleranceMs || drift > positionDriftToleranceMs {
			changed = true
		}
	}
	p.lastTrack = trackID
	p.lastPaused = state.Paused
	p.lastPos = np.ProgressMs
	p.lastPolled = now
	p.mu.Unlock()

	if changed {
		p.sendEvent(sdk.Event{Type: sdk.EventStateChanged, State: state})
	}
}

// sendEvent delivers an event without blocking the polling loop.
func (p *Player) sendEvent(ev sdk.Event) {
	select {
	case p.events <- ev:
	default:
		zlog.Warn().Msgf("poller: event buffer full, dropping %s", ev.Type)
	}
}
