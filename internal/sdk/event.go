package sdk

// EventType represents a player event type.
type EventType int

const (
	EventReady               EventType = iota // Player is ready; DeviceID is set
	EventNotReady                             // Player lost its connection
	EventStateChanged                         // Remote playback state changed; State is set
	EventInitializationError                  // Player failed to initialize
	EventAuthenticationError                  // Token was rejected
	EventAccountError                         // Account is not entitled to playback control
	EventPlaybackError                        // Transport-level playback failure
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventNotReady:
		return "not_ready"
	case EventStateChanged:
		return "player_state_changed"
	case EventInitializationError:
		return "initialization_error"
	case EventAuthenticationError:
		return "authentication_error"
	case EventAccountError:
		return "account_error"
	case EventPlaybackError:
		return "playback_error"
	default:
		return "unknown"
	}
}

// ChangedTrack is the track snapshot carried by a state-changed event.
type ChangedTrack struct {
	ID          string
	URI         string
	Name        string
	DurationMs  int
	Artists     []string
	Album       string
	AlbumArtURL string
}

// ChangedState is the authoritative playback snapshot carried by a
// state-changed event. Track is nil when nothing is loaded.
type ChangedState struct {
	Paused     bool
	PositionMs int
	DurationMs int
	Track      *ChangedTrack
}

// Event represents a player event. DeviceID is set for ready events,
// State for state-changed events, Message for error events.
type Event struct {
	Type     EventType
	DeviceID string
	State    *ChangedState
	Message  string
}
