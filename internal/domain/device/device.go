// Package device provides the Device domain entity.
package device

// Device represents a Spotify Connect playback endpoint.
type Device struct {
	ID       string `json:"id"`        // Device ID
	Name     string `json:"name"`      // Display name
	Type     string `json:"type"`      // Category label (Computer, Smartphone, Speaker, ...)
	IsActive bool   `json:"is_active"` // Active target of playback commands
}

// ActiveID returns the ID of the active device in the set, or "" if none.
func ActiveID(devices []Device) string {
	for _, d := range devices {
		if d.IsActive {
			return d.ID
		}
	}
	return ""
}
