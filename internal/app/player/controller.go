package player

import (
	"context"
	"strings"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/pefelippe/spotify-player/internal/domain/device"
	"github.com/pefelippe/spotify-player/internal/domain/track"
	"github.com/pefelippe/spotify-player/internal/infra/spotify"
	"github.com/pefelippe/spotify-player/internal/sdk"
)

const (
	// ArtistContextPrefix marks artist radio contexts, which do not
	// support track offsets on the start-playback endpoint.
	ArtistContextPrefix = "spotify:artist:"

	// SavedTracksContextURI is the sentinel for the user's saved-tracks
	// collection, which has no addressable context URI in the Web API.
	SavedTracksContextURI = "spotify:collection:tracks"

	// repeatTailToleranceMs is how close to the end of a track a paused
	// state report still counts as "the track finished".
	repeatTailToleranceMs = 500

	tickInterval        = time.Second
	savedTracksPageSize = 50
	recentPlayCapacity  = 10
)

// PlaybackAPI is the Web API playback surface the controller depends on.
type PlaybackAPI interface {
	Play(ctx context.Context, deviceID string, req spotify.PlayRequest) error
	Pause(ctx context.Context, deviceID string) error
	CurrentlyPlaying(ctx context.Context) (*spotify.NowPlaying, error)
	Devices(ctx context.Context) ([]device.Device, error)
	TransferPlayback(ctx context.Context, deviceID string, play bool) error
	SetShuffle(ctx context.Context, deviceID string, state bool) error
	SetRepeat(ctx context.Context, deviceID string, state string) error
	SavedTracks(ctx context.Context, limit int) ([]track.Track, error)
}

// Config holds controller configuration.
type Config struct {
	Name          string  // Player display name reported to the vendor
	InitialVolume float64 // Initial output volume (0.0 - 1.0)
}

// Controller is the playback session controller. It owns the Session and
// PlaybackState, consumes the SDK player's event stream, and executes
// commands against the SDK object or the Web API.
//
// Command failures are logged and swallowed: a failed command has no
// effect. The one exception is the entitlement failure (HTTP 403 on
// playback control), which raises the sticky premium-required flag.
type Controller struct {
	mu sync.RWMutex

	cfg     Config
	api     PlaybackAPI
	factory sdk.Factory

	// Session
	token           string
	deviceID        string
	ready           bool
	premiumRequired bool

	player     sdk.Player
	loopCancel context.CancelFunc

	// Playback state
	current    *track.Track
	playing    bool
	positionMs int
	durationMs int

	repeatMode RepeatMode
	shuffle    bool
	interacted bool

	// Device cache (best effort; the remote is the source of truth)
	devices        []device.Device
	activeDeviceID string

	guard   *RecentPlayGuard
	seeking int // in-flight seeks; the position ticker is suspended while > 0

	subscribers map[string]chan Snapshot
}

// NewController creates a new session controller. No SDK player exists
// until a token is handed over via HandleToken.
func NewController(cfg Config, api PlaybackAPI, factory sdk.Factory) *Controller {
	return &Controller{
		cfg:         cfg,
		api:         api,
		factory:     factory,
		guard:       NewRecentPlayGuard(recentPlayCapacity),
		subscribers: make(map[string]chan Snapshot),
	}
}

// HandleToken reacts to a token change from the authentication
// collaborator. A non-empty token initializes the session (disconnecting
// any previous player first); an empty token tears it down.
func (c *Controller) HandleToken(token string) {
	if token == "" {
		c.Teardown()
		return
	}

	c.mu.Lock()
	// Only one live player at a time: drop the previous instance before
	// constructing a replacement.
	c.teardownPlayerLocked()
	c.token = token

	player := c.factory(sdk.Options{
		Name:   c.cfg.Name,
		Volume: c.cfg.InitialVolume,
		TokenFunc: func(ctx context.Context) (string, error) {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return c.token, nil
		},
	})
	c.player = player

	ctx, cancel := context.WithCancel(context.Background())
	c.loopCancel = cancel
	c.mu.Unlock()

	if err := player.Connect(ctx); err != nil {
		zlog.Error().Msgf("player: connect failed: %v", err)
	}
	go c.eventLoop(ctx, player)

	c.notify()
}

// Teardown disconnects the player and resets all session state. Idempotent.
func (c *Controller) Teardown() {
	c.mu.Lock()
	c.teardownPlayerLocked()
	c.token = ""
	c.deviceID = ""
	c.ready = false
	c.premiumRequired = false
	c.current = nil
	c.playing = false
	c.positionMs = 0
	c.durationMs = 0
	c.repeatMode = RepeatOff
	c.shuffle = false
	c.interacted = false
	c.devices = nil
	c.activeDeviceID = ""
	c.guard.Reset()
	c.mu.Unlock()

	c.notify()
}

// teardownPlayerLocked stops the event loop and disconnects the player.
// Must be called with the lock held.
func (c *Controller) teardownPlayerLocked() {
	if c.loopCancel != nil {
		c.loopCancel()
		c.loopCancel = nil
	}
	if c.player != nil {
		c.player.Disconnect()
		c.player = nil
	}
}

// Close tears the session down and drops all subscribers.
func (c *Controller) Close() {
	c.Teardown()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}

// Snapshot returns the current state snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	devices := make([]device.Device, len(c.devices))
	copy(devices, c.devices)

	var current *track.Track
	if c.current != nil {
		t := *c.current
		current = &t
	}

	return Snapshot{
		CurrentTrack:      current,
		IsPlaying:         c.playing,
		PositionMs:        c.positionMs,
		DurationMs:        c.durationMs,
		IsReady:           c.ready,
		DeviceID:          c.deviceID,
		AvailableDevices:  devices,
		ActiveDeviceID:    c.activeDeviceID,
		RepeatMode:        c.repeatMode.String(),
		Shuffle:           c.shuffle,
		IsPremiumRequired: c.premiumRequired,
		HasInteracted:     c.interacted,
	}
}

// eventLoop consumes SDK events and drives the 1-second position ticker.
// All state mutation funnels through here or through commands; both take
// the controller lock.
func (c *Controller) eventLoop(ctx context.Context, player sdk.Player) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	events := player.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(ctx, ev)
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick optimistically advances the playback position between authoritative
// updates, clamped to the track duration. Suspended while a seek is in
// flight so the ticker does not fight the user's drag gesture.
func (c *Controller) tick() {
	c.mu.Lock()
	if !c.playing || c.seeking > 0 || c.current == nil {
		c.mu.Unlock()
		return
	}
	c.positionMs = clampPosition(c.positionMs+int(tickInterval/time.Millisecond), c.durationMs)
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) handleEvent(ctx context.Context, ev sdk.Event) {
	switch ev.Type {
	case sdk.EventReady:
		c.mu.Lock()
		c.deviceID = ev.DeviceID
		c.ready = true
		c.mu.Unlock()
		zlog.Info().Msgf("player: ready, device_id=%s", ev.DeviceID)

	case sdk.EventNotReady:
		c.mu.Lock()
		c.ready = false
		c.mu.Unlock()
		zlog.Warn().Msg("player: connection lost")

	case sdk.EventStateChanged:
		if ev.State == nil {
			return
		}
		c.applyRemoteState(ctx, ev.State)

	case sdk.EventAccountError:
		c.mu.Lock()
		c.premiumRequired = true
		c.mu.Unlock()
		zlog.Warn().Msgf("player: account error: %s", ev.Message)

	case sdk.EventInitializationError, sdk.EventAuthenticationError, sdk.EventPlaybackError:
		zlog.Error().Msgf("player: %s: %s", ev.Type, ev.Message)
		return
	}

	c.notify()
}

// applyRemoteState copies an authoritative state report into the local
// PlaybackState and runs the track-end auto-repeat rule.
func (c *Controller) applyRemoteState(ctx context.Context, st *sdk.ChangedState) {
	c.mu.Lock()

	prev := c.current
	if st.Track != nil {
		c.current = trackFromSDK(st.Track)
	} else {
		c.current = nil
	}
	c.playing = !st.Paused
	c.durationMs = st.DurationMs
	c.positionMs = clampPosition(st.PositionMs, st.DurationMs)

	trackChanged := !track.SameIdentity(prev, c.current)
	if trackChanged {
		// New track: the manual-interaction flag belongs to the old one
		c.interacted = false
	}

	// Track-end auto-repeat: repeat-one is implemented locally because the
	// reported pause at the tail is the only end-of-track signal we get.
	// The same-track guard prevents repeat-looping into whatever track
	// naturally plays next.
	autoRepeat := c.repeatMode == RepeatTrack &&
		st.Paused &&
		st.Track != nil &&
		st.DurationMs > 0 &&
		st.PositionMs >= st.DurationMs-repeatTailToleranceMs &&
		!trackChanged
	player := c.player
	c.mu.Unlock()

	if autoRepeat && player != nil {
		zlog.Debug().Msgf("player: repeat-one, restarting track %s", st.Track.ID)
		if err := player.Seek(ctx, 0); err != nil {
			zlog.Error().Msgf("player: repeat-one seek failed: %v", err)
			return
		}
		if err := player.Resume(ctx); err != nil {
			zlog.Error().Msgf("player: repeat-one resume failed: %v", err)
		}
	}
}

// PlayTrack starts playback of a track, optionally within a context.
// An empty uri with a non-empty contextURI plays the context from its
// natural start. Duplicate rapid-fire requests for the same track id are
// suppressed by the recent-play guard.
func (c *Controller) PlayTrack(ctx context.Context, uri, contextURI string) {
	if strings.TrimSpace(uri) == "" && contextURI == "" {
		return
	}

	trackID := trackIDFromURI(uri)

	c.mu.RLock()
	if trackID != "" && c.guard.Contains(trackID) {
		c.mu.RUnlock()
		zlog.Debug().Msgf("player: suppressing duplicate play for track %s", trackID)
		return
	}
	deviceID := c.deviceID
	token := c.token
	c.mu.RUnlock()

	if deviceID == "" || token == "" {
		zlog.Debug().Msg("player: play ignored, no device or token")
		return
	}

	req, ok := c.buildPlayRequest(ctx, uri, contextURI)
	if !ok {
		return
	}

	if err := c.api.Play(ctx, deviceID, req); err != nil {
		c.handleCommandError("play", err)
		return
	}

	// Fetch the snapshot now instead of waiting for the SDK event, which
	// may lag behind the REST call.
	if np, err := c.api.CurrentlyPlaying(ctx); err == nil {
		c.mu.Lock()
		if np.Track != nil {
			c.current = np.Track
			c.durationMs = np.Track.DurationMs()
		}
		c.playing = np.Playing
		c.positionMs = clampPosition(np.ProgressMs, c.durationMs)
		c.mu.Unlock()
	} else {
		zlog.Warn().Msgf("player: currently-playing fetch failed: %v", err)
	}

	if trackID != "" {
		c.mu.Lock()
		c.guard.Add(trackID)
		c.mu.Unlock()
	}

	c.notify()
}

// buildPlayRequest constructs the start-playback body per context kind.
// Returns ok=false when a prerequisite fetch failed and the command must
// be aborted without a playback attempt.
func (c *Controller) buildPlayRequest(ctx context.Context, uri, contextURI string) (spotify.PlayRequest, bool) {
	switch {
	case strings.HasPrefix(contextURI, ArtistContextPrefix):
		// Artist radio does not support track offsets
		return spotify.PlayRequest{ContextURI: contextURI}, true

	case contextURI == SavedTracksContextURI:
		// The saved-tracks collection has no context URI: play the most
		// recent page as a uris list, offset to the requested track when
		// it is in the page.
		tracks, err := c.api.SavedTracks(ctx, savedTracksPageSize)
		if err != nil {
			zlog.Error().Msgf("player: saved-tracks fetch failed: %v", err)
			return spotify.PlayRequest{}, false
		}
		uris := make([]string, 0, len(tracks))
		position := -1
		for i, t := range tracks {
			uris = append(uris, t.URI)
			if t.URI == uri {
				position = i
			}
		}
		if position >= 0 {
			return spotify.PlayRequest{URIs: uris, OffsetPosition: &position}, true
		}
		// Track is beyond the first page or absent: play from the start
		return spotify.PlayRequest{URIs: uris}, true

	case contextURI != "" && strings.TrimSpace(uri) == "":
		return spotify.PlayRequest{ContextURI: contextURI}, true

	case contextURI != "":
		return spotify.PlayRequest{ContextURI: contextURI, OffsetURI: uri}, true

	default:
		return spotify.PlayRequest{URIs: []string{uri}}, true
	}
}

// PauseTrack pauses playback. The Web API pause is preferred because it
// works across devices; the SDK's local pause is a best-effort fallback.
func (c *Controller) PauseTrack(ctx context.Context) {
	c.mu.RLock()
	deviceID := c.deviceID
	player := c.player
	c.mu.RUnlock()

	if err := c.api.Pause(ctx, deviceID); err != nil {
		c.handleCommandError("pause", err)
		if player != nil {
			if sdkErr := player.Pause(ctx); sdkErr != nil {
				zlog.Warn().Msgf("player: sdk pause fallback failed: %v", sdkErr)
			}
		}
		return
	}

	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()

	c.notify()
}

// ResumeTrack resumes playback on the SDK player.
func (c *Controller) ResumeTrack(ctx context.Context) {
	player := c.markInteracted()
	if player == nil {
		return
	}
	if err := player.Resume(ctx); err != nil {
		zlog.Error().Msgf("player: resume failed: %v", err)
	}
}

// NextTrack skips to the next track on the SDK player.
func (c *Controller) NextTrack(ctx context.Context) {
	player := c.markInteracted()
	if player == nil {
		return
	}
	if err := player.NextTrack(ctx); err != nil {
		zlog.Error().Msgf("player: next failed: %v", err)
	}
}

// PreviousTrack skips to the previous track on the SDK player.
func (c *Controller) PreviousTrack(ctx context.Context) {
	player := c.markInteracted()
	if player == nil {
		return
	}
	if err := player.PreviousTrack(ctx); err != nil {
		zlog.Error().Msgf("player: previous failed: %v", err)
	}
}

// SeekToPosition seeks within the current track. The position ticker is
// suspended for the duration of the request.
func (c *Controller) SeekToPosition(ctx context.Context, positionMs int) {
	player := c.markInteracted()
	if player == nil {
		return
	}

	c.mu.Lock()
	c.seeking++
	target := clampPosition(positionMs, c.durationMs)
	c.mu.Unlock()

	err := player.Seek(ctx, target)

	c.mu.Lock()
	c.seeking--
	if err == nil {
		c.positionMs = target
	}
	c.mu.Unlock()

	if err != nil {
		zlog.Error().Msgf("player: seek failed: %v", err)
		return
	}
	c.notify()
}

// SetVolume sets the output volume (0.0 - 1.0) on the SDK player.
func (c *Controller) SetVolume(ctx context.Context, volume float64) {
	player := c.markInteracted()
	if player == nil {
		return
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	if err := player.SetVolume(ctx, volume); err != nil {
		zlog.Error().Msgf("player: set volume failed: %v", err)
	}
}

// SetShuffle sets the shuffle state via the Web API, scoped to the
// session's device so the command cannot land elsewhere.
func (c *Controller) SetShuffle(ctx context.Context, state bool) {
	c.mu.RLock()
	deviceID := c.deviceID
	c.mu.RUnlock()

	if err := c.api.SetShuffle(ctx, deviceID, state); err != nil {
		c.handleCommandError("shuffle", err)
		return
	}

	c.mu.Lock()
	c.shuffle = state
	c.mu.Unlock()

	c.notify()
}

// SetRepeat sets the repeat mode via the Web API. The local copy is what
// the track-end auto-repeat rule reads; it is not re-derived from remote
// state events, so it can drift if the mode is changed from another device.
func (c *Controller) SetRepeat(ctx context.Context, mode RepeatMode) {
	c.mu.RLock()
	deviceID := c.deviceID
	c.mu.RUnlock()

	if err := c.api.SetRepeat(ctx, deviceID, mode.String()); err != nil {
		c.handleCommandError("repeat", err)
		return
	}

	c.mu.Lock()
	c.repeatMode = mode
	c.mu.Unlock()

	c.notify()
}

// RefreshDevices replaces the device cache wholesale from the Web API.
func (c *Controller) RefreshDevices(ctx context.Context) {
	devices, err := c.api.Devices(ctx)
	if err != nil {
		zlog.Error().Msgf("player: device list failed: %v", err)
		return
	}

	c.mu.Lock()
	c.devices = devices
	c.activeDeviceID = device.ActiveID(devices)
	c.mu.Unlock()

	c.notify()
}

// TransferPlayback makes the given device the active playback target,
// optionally starting playback there, then reconciles the device cache.
func (c *Controller) TransferPlayback(ctx context.Context, deviceID string, play bool) {
	if err := c.api.TransferPlayback(ctx, deviceID, play); err != nil {
		c.handleCommandError("transfer", err)
		return
	}

	c.mu.Lock()
	c.activeDeviceID = deviceID
	c.mu.Unlock()

	c.RefreshDevices(ctx)
}

// DismissPremiumWarning clears the sticky premium-required flag. This is
// the only way the flag is cleared short of teardown.
func (c *Controller) DismissPremiumWarning() {
	c.mu.Lock()
	c.premiumRequired = false
	c.mu.Unlock()

	c.notify()
}

// markInteracted flips the manual-interaction flag and returns the live
// player, or nil when no session is active.
func (c *Controller) markInteracted() sdk.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player == nil {
		return nil
	}
	c.interacted = true
	return c.player
}

// handleCommandError maps an entitlement failure to the sticky
// premium-required flag and swallows everything else.
func (c *Controller) handleCommandError(op string, err error) {
	switch {
	case spotify.IsPremiumRequired(err):
		zlog.Warn().Msgf("player: %s rejected, premium required", op)
		c.mu.Lock()
		c.premiumRequired = true
		c.mu.Unlock()
		c.notify()
	case spotify.IsUnauthorized(err):
		// The shared transport has already fired the logout signal;
		// nothing to flag here
		zlog.Warn().Msgf("player: %s rejected, session expired", op)
	case spotify.IsNoActiveDevice(err):
		zlog.Warn().Msgf("player: %s ignored, no active device", op)
	default:
		zlog.Error().Msgf("player: %s failed: %v", op, err)
	}
}

// trackFromSDK converts an SDK track snapshot to the domain Track.
func trackFromSDK(t *sdk.ChangedTrack) *track.Track {
	return &track.Track{
		ID:          t.ID,
		URI:         t.URI,
		Name:        t.Name,
		Artists:     t.Artists,
		Album:       t.Album,
		AlbumArtURL: t.AlbumArtURL,
		Duration:    time.Duration(t.DurationMs) * time.Millisecond,
	}
}

// trackIDFromURI extracts the track ID from a Spotify track URI or URL.
func trackIDFromURI(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		if len(parts) >= 2 {
			id := strings.Split(parts[len(parts)-1], "?")[0]
			return strings.TrimRight(id, "/")
		}
	}
	return input
}

// clampPosition clamps a position to [0, duration].
func clampPosition(positionMs, durationMs int) int {
	if positionMs < 0 {
		return 0
	}
	if durationMs > 0 && positionMs > durationMs {
		return durationMs
	}
	return positionMs
}
