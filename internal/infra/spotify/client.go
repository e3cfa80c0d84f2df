// Package spotify provides a client for the Spotify Web API playback surface.
package spotify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/pefelippe/spotify-player/internal/domain/device"
	"github.com/pefelippe/spotify-player/internal/domain/track"
)

// Client is a Spotify Web API client scoped to playback control.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// PlayRequest describes the body of a start/resume playback call.
// Exactly one of the documented body shapes is produced:
// context only, context plus offset, or a bare uris list.
type PlayRequest struct {
	ContextURI     string
	URIs           []string
	OffsetPosition *int
	OffsetURI      string
}

// NowPlaying is the currently-playing snapshot.
type NowPlaying struct {
	Track      *track.Track
	Playing    bool
	ProgressMs int
}

// New creates a new playback client from Spotify credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopeUserLibraryRead,
			spotifyauth.ScopeStreaming,
		),
	)

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	// HTTP client with auto-refresh capability
	httpClient := auth.Client(ctx, token)
	return NewWithHTTPClient(httpClient, cfg.Market), nil
}

// NewWithHTTPClient creates a playback client from a pre-built HTTP client.
// The caller is responsible for attaching Bearer authorization to requests.
func NewWithHTTPClient(httpClient *http.Client, market string) *Client {
	return &Client{
		client:     spotify.New(httpClient),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Play issues a start/resume playback call scoped to a device.
func (c *Client) Play(ctx context.Context, deviceID string, req PlayRequest) error {
	opt := &spotify.PlayOptions{}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opt.DeviceID = &id
	}
	if req.ContextURI != "" {
		uri := spotify.URI(req.ContextURI)
		opt.PlaybackContext = &uri
	}
	for _, u := range req.URIs {
		opt.URIs = append(opt.URIs, spotify.URI(u))
	}
	if req.OffsetPosition != nil {
		opt.PlaybackOffset = &spotify.PlaybackOffset{Position: req.OffsetPosition}
	} else if req.OffsetURI != "" {
		opt.PlaybackOffset = &spotify.PlaybackOffset{URI: spotify.URI(req.OffsetURI)}
	}

	err := c.retry(func() error {
		return c.client.PlayOpt(ctx, opt)
	})
	if err != nil {
		return errors.Wrap(err, "failed to start playback")
	}
	return nil
}

// Pause pauses playback, scoped to a device when known.
func (c *Client) Pause(ctx context.Context, deviceID string) error {
	opt := &spotify.PlayOptions{}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opt.DeviceID = &id
	}

	err := c.retry(func() error {
		return c.client.PauseOpt(ctx, opt)
	})
	if err != nil {
		return errors.Wrap(err, "failed to pause playback")
	}
	return nil
}

// Resume resumes playback on the active device.
func (c *Client) Resume(ctx context.Context) error {
	err := c.retry(func() error {
		return c.client.Play(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "failed to resume playback")
	}
	return nil
}

// Next skips to the next track on the active device.
func (c *Client) Next(ctx context.Context) error {
	err := c.retry(func() error {
		return c.client.Next(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "failed to skip to next track")
	}
	return nil
}

// Previous skips to the previous track on the active device.
func (c *Client) Previous(ctx context.Context) error {
	err := c.retry(func() error {
		return c.client.Previous(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "failed to skip to previous track")
	}
	return nil
}

// Seek seeks to a position (in milliseconds) in the current track.
func (c *Client) Seek(ctx context.Context, positionMs int) error {
	err := c.retry(func() error {
		return c.client.Seek(ctx, positionMs)
	})
	if err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	return nil
}

// SetVolume sets the playback volume (0-100).
func (c *Client) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	err := c.retry(func() error {
		return c.client.Volume(ctx, percent)
	})
	if err != nil {
		return errors.Wrap(err, "failed to set volume")
	}
	return nil
}

// SetShuffle sets the shuffle state, scoped to a device when known.
func (c *Client) SetShuffle(ctx context.Context, deviceID string, state bool) error {
	opt := &spotify.PlayOptions{}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opt.DeviceID = &id
	}
	err := c.retry(func() error {
		return c.client.ShuffleOpt(ctx, state, opt)
	})
	if err != nil {
		return errors.Wrap(err, "failed to set shuffle state")
	}
	return nil
}

// SetRepeat sets the repeat state ("off", "context", or "track"),
// scoped to a device when known.
func (c *Client) SetRepeat(ctx context.Context, deviceID string, state string) error {
	switch state {
	case "off", "context", "track":
	default:
		return errors.Newf("invalid repeat state: %s", state)
	}
	opt := &spotify.PlayOptions{}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opt.DeviceID = &id
	}
	err := c.retry(func() error {
		return c.client.RepeatOpt(ctx, state, opt)
	})
	if err != nil {
		return errors.Wrap(err, "failed to set repeat state")
	}
	return nil
}

// CurrentlyPlaying retrieves the currently-playing snapshot.
// Returns a zero-value snapshot when nothing is playing.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*NowPlaying, error) {
	var result *spotify.CurrentlyPlaying
	err := c.retry(func() error {
		cp, err := c.client.PlayerCurrentlyPlaying(ctx)
		if err != nil {
			return err
		}
		result = cp
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get currently playing")
	}

	np := &NowPlaying{}
	if result != nil {
		np.Playing = result.Playing
		np.ProgressMs = int(result.Progress)
		if result.Item != nil {
			np.Track = convertTrack(result.Item)
		}
	}
	return np, nil
}

// Devices retrieves the user's available playback devices.
func (c *Client) Devices(ctx context.Context) ([]device.Device, error) {
	var result []spotify.PlayerDevice
	err := c.retry(func() error {
		devices, err := c.client.PlayerDevices(ctx)
		if err != nil {
			return err
		}
		result = devices
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}

	devices := make([]device.Device, 0, len(result))
	for _, d := range result {
		devices = append(devices, device.Device{
			ID:       string(d.ID),
			Name:     d.Name,
			Type:     d.Type,
			IsActive: d.Active,
		})
	}
	return devices, nil
}

// TransferPlayback transfers playback to the given device.
func (c *Client) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	if deviceID == "" {
		return errors.New("device id is required")
	}
	err := c.retry(func() error {
		return c.client.TransferPlayback(ctx, spotify.ID(deviceID), play)
	})
	if err != nil {
		return errors.Wrap(err, "failed to transfer playback")
	}
	return nil
}

// SavedTracks retrieves the most recent page of the user's saved tracks.
// The API caps the page size at 50.
func (c *Client) SavedTracks(ctx context.Context, limit int) ([]track.Track, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 50 {
		limit = 50
	}

	// Market enables track relinking so the page reflects what is
	// actually playable for the user
	opts := []spotify.RequestOption{spotify.Limit(limit)}
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}

	var page *spotify.SavedTrackPage
	err := c.retry(func() error {
		p, err := c.client.CurrentUsersTracks(ctx, opts...)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get saved tracks")
	}

	tracks := make([]track.Track, 0, len(page.Tracks))
	for _, st := range page.Tracks {
		tracks = append(tracks, *convertTrack(&st.FullTrack))
	}
	return tracks, nil
}

// convertTrack converts a Spotify FullTrack to the domain Track.
func convertTrack(t *spotify.FullTrack) *track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	return &track.Track{
		ID:          string(t.ID),
		URI:         string(t.URI),
		Name:        t.Name,
		Artists:     artists,
		Album:       t.Album.Name,
		AlbumArtURL: albumArt,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}
