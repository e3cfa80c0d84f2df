// Package httpapi exposes the playback session over HTTP: JSON command
// endpoints plus a server-sent-events stream of state snapshots.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"github.com/pefelippe/spotify-player/internal/app/player"
)

// Controller is the session controller surface the API exposes.
type Controller interface {
	Snapshot() player.Snapshot
	Subscribe() (string, <-chan player.Snapshot)
	Unsubscribe(id string)

	PlayTrack(ctx context.Context, uri, contextURI string)
	PauseTrack(ctx context.Context)
	ResumeTrack(ctx context.Context)
	NextTrack(ctx context.Context)
	PreviousTrack(ctx context.Context)
	SeekToPosition(ctx context.Context, positionMs int)
	SetVolume(ctx context.Context, volume float64)
	SetShuffle(ctx context.Context, state bool)
	SetRepeat(ctx context.Context, mode player.RepeatMode)
	RefreshDevices(ctx context.Context)
	TransferPlayback(ctx context.Context, deviceID string, play bool)
	DismissPremiumWarning()
}

// Authenticator is the session-auth surface the API exposes.
type Authenticator interface {
	Logout()
	IsLoggedOut() bool
}

// Handler serves the player API.
type Handler struct {
	controller Controller
	auth       Authenticator
}

// NewHandler creates an API handler.
func NewHandler(controller Controller, auth Authenticator) *Handler {
	return &Handler{controller: controller, auth: auth}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/player/state", h.getState)
	mux.HandleFunc("GET /api/player/stream", h.streamState)
	mux.HandleFunc("GET /api/player/devices", h.getDevices)

	mux.HandleFunc("POST /api/player/play", h.play)
	mux.HandleFunc("POST /api/player/pause", h.pause)
	mux.HandleFunc("POST /api/player/resume", h.resume)
	mux.HandleFunc("POST /api/player/next", h.next)
	mux.HandleFunc("POST /api/player/previous", h.previous)
	mux.HandleFunc("POST /api/player/seek", h.seek)
	mux.HandleFunc("POST /api/player/volume", h.volume)
	mux.HandleFunc("POST /api/player/shuffle", h.shuffle)
	mux.HandleFunc("POST /api/player/repeat", h.repeat)
	mux.HandleFunc("POST /api/player/transfer", h.transfer)
	mux.HandleFunc("POST /api/player/premium-warning/dismiss", h.dismissPremium)

	mux.HandleFunc("POST /api/session/logout", h.logout)
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

// streamState pushes a snapshot event on every state mutation until the
// client goes away.
func (h *Handler) streamState(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, updates := h.controller.Subscribe()
	defer h.controller.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Initial snapshot so the client does not wait for the first mutation
	if err := writeSSE(w, h.controller.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSSE(w, snap); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) getDevices(w http.ResponseWriter, r *http.Request) {
	h.controller.RefreshDevices(r.Context())
	snap := h.controller.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":          snap.AvailableDevices,
		"active_device_id": snap.ActiveDeviceID,
	})
}

func (h *Handler) play(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URI        string `json:"uri"`
		ContextURI string `json:"context_uri"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URI == "" && req.ContextURI == "" {
		writeError(w, http.StatusBadRequest, "uri or context_uri is required")
		return
	}
	h.controller.PlayTrack(r.Context(), req.URI, req.ContextURI)
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	h.controller.PauseTrack(r.Context())
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.controller.ResumeTrack(r.Context())
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	h.controller.NextTrack(r.Context())
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) previous(w http.ResponseWriter, r *http.Request) {
	h.controller.PreviousTrack(r.Context())
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) seek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PositionMs int `json:"position_ms"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PositionMs < 0 {
		writeError(w, http.StatusBadRequest, "position_ms must not be negative")
		return
	}
	h.controller.SeekToPosition(r.Context(), req.PositionMs)
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) volume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Volume < 0 || req.Volume > 1 {
		writeError(w, http.StatusBadRequest, "volume must be between 0.0 and 1.0")
		return
	}
	h.controller.SetVolume(r.Context(), req.Volume)
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) shuffle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State bool `json:"state"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.controller.SetShuffle(r.Context(), req.State)
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) repeat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	mode, err := player.ParseRepeatMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.controller.SetRepeat(r.Context(), mode)
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
		Play     bool   `json:"play"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	h.controller.TransferPlayback(r.Context(), req.DeviceID, req.Play)
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) dismissPremium(w http.ResponseWriter, r *http.Request) {
	h.controller.DismissPremiumWarning()
	writeJSON(w, http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout()
	writeJSON(w, http.StatusOK, map[string]bool{"logged_out": h.auth.IsLoggedOut()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Error().Msgf("httpapi: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeSSE(w http.ResponseWriter, snap player.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: state\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
