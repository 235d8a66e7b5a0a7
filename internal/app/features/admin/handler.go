// Package admin serves the staff review and administration endpoints
// under /api/admin.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/httputil"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/discord"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/session"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/middleware"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/text"
)

// Store is the persistence admin reads and updates.
type Store interface {
	ListSubmissions(ctx context.Context, f store.ListFilter) ([]models.Submission, error)
	ReviewSubmission(ctx context.Context, kind models.Kind, id string, rv store.Review) (models.Submission, error)
	ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error)
	SetRoles(ctx context.Context, discordID string, roles []string) error
}

// Guild applies role changes with the bot token.
type Guild interface {
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	FetchMember(ctx context.Context, userID string) (discord.Member, bool, error)
}

// Options configures a Handler. Guild may be nil when the bot is not
// configured; role changes then answer 503.
type Options struct {
	Store    Store
	Guild    Guild
	Sessions *session.Manager
	Logger   *zap.Logger
}

type Handler struct {
	store    Store
	guild    Guild
	sessions *session.Manager
	logger   *zap.Logger
	now      func() time.Time
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:    opts.Store,
		guild:    opts.Guild,
		sessions: opts.Sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Routes mounts the admin endpoints. Every route needs a fully validated
// session; listing and reviewing need staff, the rest admin.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.sessions.Require(true, h.logger))

	r.Group(func(r chi.Router) {
		r.Use(session.RequirePermission(session.Staff))
		r.Get("/submissions/{kind}", h.listSubmissions)
		r.With(middleware.RequireJSON()).Patch("/submissions/{kind}/{id}", h.review)
	})

	r.Group(func(r chi.Router) {
		r.Use(session.RequirePermission(session.Admin))
		r.Get("/submissions/{kind}/export", h.exportSubmissions)
		r.Get("/audit", h.audit)
		r.With(middleware.RequireJSON()).Post("/members/{discordId}/roles", h.changeRoles)
	})
}

func kindParam(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.JSONError(w, http.StatusNotFound, "not_found", "unknown form")
		return "", false
	}
	return kind, true
}

// filterFrom reads ?status= and ?limit=.
func filterFrom(r *http.Request, kind models.Kind) (store.ListFilter, []string) {
	f := store.ListFilter{Kind: kind}
	var details []string
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		st, err := models.ParseStatus(s)
		if err != nil {
			details = append(details, "status must be pending, approved or rejected")
		}
		f.Status = st
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			details = append(details, "limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, details
}

func (h *Handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	f, details := filterFrom(r, kind)
	if len(details) > 0 {
		httputil.ValidationError(w, details)
		return
	}
	subs, err := h.store.ListSubmissions(r.Context(), f)
	if err != nil {
		h.logger.Error("list submissions", zap.String("kind", string(kind)), zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "server_error", "could not load submissions")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"submissions": subs,
		"count":       len(subs),
	})
}

type reviewRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

const maxNoteLength = 1000

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := httputil.BindJSON(r, &req); err != nil {
		httputil.ValidationError(w, []string{err.Error()})
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		httputil.ValidationError(w, []string{"status must be pending, approved or rejected"})
		return
	}

	res, _ := session.FromContext(r.Context())
	sub, err := h.store.ReviewSubmission(r.Context(), kind, chi.URLParam(r, "id"), store.Review{
		Status:   status,
		Reviewer: res.Identity.Username,
		Note:     text.Truncate(text.Sanitize(req.Note), maxNoteLength),
		At:       h.now().UTC(),
	})
	if errors.Is(err, store.ErrNotFound) {
		httputil.JSONError(w, http.StatusNotFound, "not_found", "submission not found")
		return
	}
	if err != nil {
		h.logger.Error("review submission", zap.String("kind", string(kind)), zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "server_error", "could not save review")
		return
	}
	h.logger.Info("submission reviewed",
		zap.String("correlation_id", sub.ID),
		zap.String("status", string(status)),
		zap.String("reviewer_id", res.Identity.DiscordID))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "submission": sub})
}

func (h *Handler) audit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.store.ListAudit(r.Context(), limit)
	if err != nil {
		h.logger.Error("list audit", zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "server_error", "could not load audit log")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "entries": entries})
}

type rolesRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func snowflakeErrors(target string, roleLists ...[]string) []string {
	var details []string
	if !discord.ValidSnowflake(target) {
		details = append(details, "discordId must be a numeric Discord id")
	}
	for _, ids := range roleLists {
		for _, id := range ids {
			if !discord.ValidSnowflake(id) {
				details = append(details, fmt.Sprintf("role id %q must be a numeric Discord id", id))
			}
		}
	}
	return details
}

// changeRoles applies the changes in order and stops at the first
// failure. The stored role set is then replaced by the live one.
func (h *Handler) changeRoles(w http.ResponseWriter, r *http.Request) {
	if h.guild == nil {
		httputil.JSONError(w, http.StatusServiceUnavailable, "service_not_configured", "the Discord bot is not configured")
		return
	}
	var req rolesRequest
	if err := httputil.BindJSON(r, &req); err != nil {
		httputil.ValidationError(w, []string{err.Error()})
		return
	}
	add, remove := cleanIDs(req.Add), cleanIDs(req.Remove)
	if len(add)+len(remove) == 0 {
		httputil.ValidationError(w, []string{"add or remove must list at least one role id"})
		return
	}
	target := chi.URLParam(r, "discordId")
	if details := snowflakeErrors(target, add, remove); len(details) > 0 {
		httputil.ValidationError(w, details)
		return
	}

	ctx := r.Context()
	res, _ := session.FromContext(ctx)
	log := h.logger.With(zap.String("target_id", target), zap.String("actor_id", res.Identity.DiscordID))

	apply := func(op string, ids []string, fn func(context.Context, string, string) error) error {
		for _, id := range ids {
			if err := fn(ctx, target, id); err != nil {
				return fmt.Errorf("%s role %s: %w", op, id, err)
			}
			log.Info("role changed", zap.String("op", op), zap.String("role_id", id))
		}
		return nil
	}
	err := apply("add", add, h.guild.AddRole)
	if err == nil {
		err = apply("remove", remove, h.guild.RemoveRole)
	}
	if err != nil {
		log.Error("role change failed", zap.Error(err))
		var apiErr *discord.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			httputil.JSONError(w, http.StatusNotFound, "not_found", "member or role not found")
			return
		}
		httputil.JSONError(w, http.StatusBadGateway, "upstream_error", "Discord rejected the role change")
		return
	}

	m, ok, err := h.guild.FetchMember(ctx, target)
	if err != nil || !ok {
		log.Warn("could not re-read member after role change", zap.Bool("member", ok), zap.Error(err))
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	if err := h.store.SetRoles(ctx, target, m.Roles); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("store roles after change", zap.Error(err))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "roles": m.Roles})
}
