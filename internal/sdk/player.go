// Package sdk defines the boundary to the vendor Web Playback SDK.
//
// The real SDK lives inside the vendor's playback infrastructure and is
// consumed as a black box: a long-lived player object with imperative
// transport controls and an asynchronous event stream. Implementations of
// Player adapt a concrete transport (see internal/infra/poller) to this
// contract.
package sdk

import "context"

// Options configure a Player instance, mirroring the vendor constructor:
// a display name, an initial output volume, and a callback that supplies
// the current OAuth token on demand so token rotation does not require
// reconstructing the player.
type Options struct {
	Name      string
	Volume    float64 // 0.0 - 1.0
	TokenFunc func(ctx context.Context) (string, error)
}

// Factory constructs a Player from Options. The session controller owns
// the factory and builds at most one live player at a time.
type Factory func(opts Options) Player

// Player is a vendor playback endpoint bound to this process.
// Connect opens the underlying streaming connection; events are delivered
// on the Events channel until Disconnect is called. Disconnect is
// idempotent and closes the event channel.
type Player interface {
	Connect(ctx context.Context) error
	Disconnect()

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	SetVolume(ctx context.Context, volume float64) error
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error

	Events() <-chan Event
}
