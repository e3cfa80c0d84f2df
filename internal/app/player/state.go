// Package player provides the playback session controller: it owns the
// live playback state, mediates between optimistic local state and the
// player's asynchronous event stream, and coordinates device selection.
package player

import (
	"github.com/cockroachdb/errors"

	"github.com/pefelippe/spotify-player/internal/domain/device"
	"github.com/pefelippe/spotify-player/internal/domain/track"
)

// RepeatMode represents the repeat setting.
type RepeatMode int

const (
	RepeatOff     RepeatMode = iota // No repeat
	RepeatContext                   // Repeat the current context
	RepeatTrack                     // Repeat the current track
)

// String returns the Web API representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatContext:
		return "context"
	case RepeatTrack:
		return "track"
	default:
		return "unknown"
	}
}

// ParseRepeatMode parses a Web API repeat state string.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch s {
	case "off":
		return RepeatOff, nil
	case "context":
		return RepeatContext, nil
	case "track":
		return RepeatTrack, nil
	default:
		return RepeatOff, errors.Newf("invalid repeat mode: %s", s)
	}
}

// Snapshot is the reactive state exposed to the presentation layer.
// All playback state is ephemeral; it is rebuilt from the vendor on
// every session.
type Snapshot struct {
	CurrentTrack      *track.Track    `json:"current_track"`
	IsPlaying         bool            `json:"is_playing"`
	PositionMs        int             `json:"position_ms"`
	DurationMs        int             `json:"duration_ms"`
	IsReady           bool            `json:"is_ready"`
	DeviceID          string          `json:"device_id"`
	AvailableDevices  []device.Device `json:"available_devices"`
	ActiveDeviceID    string          `json:"active_device_id"`
	RepeatMode        string          `json:"repeat_mode"`
	Shuffle           bool            `json:"shuffle"`
	IsPremiumRequired bool            `json:"is_premium_required"`
	HasInteracted     bool            `json:"has_interacted"`
}
