package auth

import "net/http"

// unauthorizedObserver is a RoundTripper that watches responses passing
// through the shared HTTP client and fires the unauthorized callback on
// any 401. The response itself is returned untouched; handling the
// failure is the manager's job, not the caller's.
type unauthorizedObserver struct {
	base           http.RoundTripper
	onUnauthorized func()
}

func (t *unauthorizedObserver) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.onUnauthorized()
	}
	return resp, err
}
