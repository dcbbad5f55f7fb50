// Package api exposes the state agent's HTTP handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"example.com/userstate/internal/auth"
	"example.com/userstate/internal/device"
	"example.com/userstate/internal/identity"
	"example.com/userstate/internal/lifecycle"
	"example.com/userstate/internal/navigation"
	"example.com/userstate/internal/notifications"
	"example.com/userstate/internal/persistence"
	"example.com/userstate/internal/tutorial"
)

// Dependencies are the services behind the handlers.
type Dependencies struct {
	Tutorial      *tutorial.Service
	Notifications *notifications.Service
	Navigation    *navigation.Cache
	Recorder      *navigation.Recorder
	Lifecycle     *lifecycle.Hub
	Device        *device.Service
	Logger        zerolog.Logger
}

// Handler coordinates HTTP requests with the state services.
type Handler struct {
	deps Dependencies
}

// NewHandler builds a Handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/tutorial", h.tutorialStatus)
	mux.HandleFunc("/v1/tutorial/", h.tutorialAction)
	mux.HandleFunc("/v1/notifications/settings", h.notificationSettings)
	mux.HandleFunc("/v1/navigation", h.navigation)
	mux.HandleFunc("/v1/lifecycle", h.lifecycle)
	mux.HandleFunc("/v1/onboarding", h.onboarding)
	mux.HandleFunc("/v1/device/reset", h.deviceReset)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func callerIdentity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return identity.Identity{}, false
	}
	return claims.Identity(), true
}

func (h *Handler) tutorialStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	rec, found := h.deps.Tutorial.Get(r.Context(), id)
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "tutorial status not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) tutorialAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var action func(context.Context, identity.Identity) (tutorial.Record, error)
	switch strings.TrimPrefix(r.URL.Path, "/v1/tutorial/") {
	case "ensure":
		action = h.deps.Tutorial.Ensure
	case "complete":
		action = h.deps.Tutorial.MarkCompleted
	case "skip":
		action = h.deps.Tutorial.MarkSkipped
	case "reset":
		action = h.deps.Tutorial.Reset
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown tutorial action")
		return
	}

	rec, err := action(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) notificationSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.deps.Notifications.Load(r.Context(), id))
	case http.MethodPut:
		var req notifications.Settings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		if err := validateSettings(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		saved, err := h.deps.Notifications.Update(r.Context(), id, req)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func validateSettings(s notifications.Settings) error {
	if s.ReminderTime == "" {
		return nil
	}
	if _, err := time.Parse("15:04", s.ReminderTime); err != nil {
		return errors.New("reminder_time must be HH:MM")
	}
	return nil
}

// NavigationRequest is the payload for POST /v1/navigation.
type NavigationRequest struct {
	Screen string `json:"screen"`
}

// NavigationResponse describes a fresh navigation marker.
type NavigationResponse struct {
	LastScreen string `json:"last_screen"`
}

func (h *Handler) navigation(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		screen, fresh := h.deps.Navigation.ReadIfFresh(r.Context())
		if !fresh {
			writeError(w, http.StatusNotFound, "not_found", "no fresh navigation marker")
			return
		}
		writeJSON(w, http.StatusOK, NavigationResponse{LastScreen: screen})
	case http.MethodPost:
		var req NavigationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		if strings.TrimSpace(req.Screen) == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "screen is required")
			return
		}
		h.deps.Recorder.Record(req.Screen)
		w.WriteHeader(http.StatusAccepted)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// LifecycleRequest is the payload for POST /v1/lifecycle.
type LifecycleRequest struct {
	State string `json:"state"`
}

// LifecycleResponse reports the resulting lifecycle state.
type LifecycleResponse struct {
	State   string `json:"state"`
	Changed bool   `json:"changed"`
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	var req LifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	state, err := lifecycle.ParseState(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	changed := h.deps.Lifecycle.Signal(r.Context(), state)
	writeJSON(w, http.StatusOK, LifecycleResponse{State: string(state), Changed: changed})
}

// OnboardingResponse reports the device onboarding flag.
type OnboardingResponse struct {
	Completed bool `json:"completed"`
}

func (h *Handler) onboarding(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerIdentity(w, r); !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, OnboardingResponse{Completed: h.deps.Device.OnboardingCompleted(r.Context())})
	case http.MethodPost:
		if err := h.deps.Device.MarkOnboardingCompleted(r.Context()); err != nil {
			h.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OnboardingResponse{Completed: true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) deviceReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeDeviceReset) {
		writeError(w, http.StatusForbidden, "forbidden", "scope device:reset required")
		return
	}

	if h.deps.Recorder != nil {
		h.deps.Recorder.Stop()
	}
	if err := h.deps.Device.ResetAll(r.Context()); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, persistence.ErrRemoteFailure) || errors.Is(err, persistence.ErrIOFailure) {
		h.deps.Logger.Warn().Err(err).Msg("write failed")
		writeError(w, http.StatusServiceUnavailable, "write_failed", err.Error())
		return
	}
	h.deps.Logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
