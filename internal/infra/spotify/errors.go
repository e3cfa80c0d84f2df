package spotify

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
)

// statusOf extracts the HTTP status from a Spotify API error, if any.
func statusOf(err error) (int, bool) {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	return 0, false
}

// IsPremiumRequired reports whether the error is an entitlement failure:
// the Web API gates playback control behind the paid tier with HTTP 403.
func IsPremiumRequired(err error) bool {
	status, ok := statusOf(err)
	return ok && status == http.StatusForbidden
}

// IsUnauthorized reports whether the error is an authentication failure (401).
func IsUnauthorized(err error) bool {
	status, ok := statusOf(err)
	return ok && status == http.StatusUnauthorized
}

// IsNoActiveDevice reports whether the error indicates there is no active
// device to receive the command (404 on the player endpoints).
func IsNoActiveDevice(err error) bool {
	status, ok := statusOf(err)
	return ok && status == http.StatusNotFound
}
