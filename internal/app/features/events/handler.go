// Package events receives guild membership events from the companion bot.
package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/auth/apikey"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/httputil"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/middleware"
)

// Members is the part of the user store events touch.
type Members interface {
	SetMembership(ctx context.Context, discordID string, isMember bool, leftAt *time.Time) error
	SetRoles(ctx context.Context, discordID string, roles []string) error
}

type Handler struct {
	members Members
	secret  string
	logger  *zap.Logger
	now     func() time.Time
}

// New returns a handler guarded by secret. An empty secret disables the
// routes with 503.
func New(members Members, secret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{members: members, secret: secret, logger: logger, now: time.Now}
}

func (h *Handler) Routes(r chi.Router) {
	r.Use(apikey.Require(h.secret, "conclave-bot", h.logger))
	r.Use(middleware.RequireJSON())
	r.Post("/member-join", h.join)
	r.Post("/member-leave", h.leave)
}

type memberEvent struct {
	UserID string     `json:"userId"`
	Roles  []string   `json:"roles"`
	At     *time.Time `json:"at"`
}

func (h *Handler) bind(w http.ResponseWriter, r *http.Request) (memberEvent, bool) {
	var ev memberEvent
	if err := httputil.BindJSONAllowUnknown(r, &ev); err != nil {
		httputil.ValidationError(w, []string{err.Error()})
		return ev, false
	}
	if ev.UserID == "" {
		httputil.ValidationError(w, []string{"userId is required"})
		return ev, false
	}
	return ev, true
}

// respond treats an unknown user as a no-op: only people who have signed
// in are tracked.
func (h *Handler) respond(w http.ResponseWriter, event string, ev memberEvent, err error) {
	switch {
	case err == nil:
		h.logger.Info("member event applied", zap.String("event", event), zap.String("discord_id", ev.UserID))
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "tracked": true})
	case errors.Is(err, store.ErrNotFound):
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "tracked": false})
	default:
		h.logger.Error("member event failed", zap.String("event", event), zap.String("discord_id", ev.UserID), zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "server_error", "could not record event")
	}
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.bind(w, r)
	if !ok {
		return
	}
	err := h.members.SetMembership(r.Context(), ev.UserID, true, nil)
	if err == nil && ev.Roles != nil {
		err = h.members.SetRoles(r.Context(), ev.UserID, ev.Roles)
	}
	h.respond(w, "join", ev, err)
}

func (h *Handler) leave(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.bind(w, r)
	if !ok {
		return
	}
	at := h.now().UTC()
	if ev.At != nil {
		at = ev.At.UTC()
	}
	err := h.members.SetMembership(r.Context(), ev.UserID, false, &at)
	if err == nil {
		err = h.members.SetRoles(r.Context(), ev.UserID, []string{})
	}
	h.respond(w, "leave", ev, err)
}
