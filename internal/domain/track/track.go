// Package track provides the Track domain entity.
package track

import "time"

// Track represents a playable Spotify track.
// Contains only information retrieved from the Web API or the player SDK.
type Track struct {
	ID          string        `json:"id"`            // Spotify Track ID
	URI         string        `json:"uri"`           // Spotify URI (spotify:track:...)
	Name        string        `json:"name"`          // Track name
	Artists     []string      `json:"artists"`       // Artist names
	Album       string        `json:"album"`         // Album name
	AlbumArtURL string        `json:"album_art_url"` // Album art URL (largest image)
	Duration    time.Duration `json:"-"`             // Track duration; exposed as duration_ms on snapshots
}

// DurationMs returns the track duration in milliseconds.
func (t *Track) DurationMs() int {
	return int(t.Duration / time.Millisecond)
}

// SameIdentity reports whether two tracks refer to the same Spotify entity.
// Either side may be nil.
func SameIdentity(a, b *Track) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
