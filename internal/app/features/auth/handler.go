// Package auth serves the Discord sign-in flow and the session endpoints
// under /api/auth.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/httputil"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/policy"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/session"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/metrics"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/crypto"
)

const (
	stateCookie   = "conclave_oauth_state"
	stateLifetime = 10 * time.Minute
)

// Options configures a Handler. Discord may be nil when OAuth is not
// configured; the flow endpoints then answer 503.
type Options struct {
	Discord       DiscordAPI
	Users         Users
	Sessions      *session.Manager
	AutoInvite    bool
	SiteURL       string
	SecureCookies bool
	Logger        *zap.Logger
}

// Handler serves /api/auth.
type Handler struct {
	discord    DiscordAPI
	users      Users
	sessions   *session.Manager
	autoInvite bool
	siteURL    string
	secure     bool
	logger     *zap.Logger
	now        func() time.Time
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		discord:    opts.Discord,
		users:      opts.Users,
		sessions:   opts.Sessions,
		autoInvite: opts.AutoInvite,
		siteURL:    strings.TrimRight(opts.SiteURL, "/"),
		secure:     opts.SecureCookies,
		logger:     logger,
		now:        time.Now,
	}
}

// Routes mounts the auth endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/discord/login", h.login)
	r.Get("/discord/callback", h.callback)
	r.Get("/refresh", h.refreshStatus)
	r.Post("/refresh", h.refresh)
	r.Get("/validate", h.validate)
	r.Post("/validate", h.validate)
	r.Get("/logout", h.logoutRedirect)
	r.Post("/logout", h.logout)
	r.With(h.sessions.Require(true, h.logger)).Get("/me", h.me)
}

func (h *Handler) notConfigured(w http.ResponseWriter) bool {
	if h.discord != nil {
		return false
	}
	httputil.JSONError(w, http.StatusServiceUnavailable, "service_not_configured", "Discord sign-in is not configured")
	return true
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, h.siteURL+path, http.StatusFound)
}

func (h *Handler) setState(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    value,
		Path:     "/api/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if h.notConfigured(w) {
		return
	}
	state, err := crypto.RandomBase64URL(32)
	if err != nil {
		h.logger.Error("generate oauth state", zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "server_error", "could not start sign-in")
		return
	}
	h.setState(w, state, int(stateLifetime.Seconds()))
	http.Redirect(w, r, h.discord.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fail := func(code string) {
		metrics.AuthLogin("failed")
		h.redirect(w, r, policy.GatewayPath(code))
	}
	if h.discord == nil {
		fail("not_configured")
		return
	}

	expected := ""
	if c, err := r.Cookie(stateCookie); err == nil {
		expected = c.Value
	}
	h.setState(w, "", -1)

	if e := q.Get("error"); e != "" {
		h.logger.Info("discord returned an oauth error", zap.String("error", e))
		fail("access_denied")
		return
	}
	state := q.Get("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		fail("invalid_state")
		return
	}
	code := q.Get("code")
	if code == "" {
		fail("no_code")
		return
	}

	u, err := h.signIn(r.Context(), code)
	if err != nil {
		h.logger.Warn("sign-in failed", zap.Error(err))
		fail(errorCode(err))
		return
	}

	token, id, err := h.sessions.Issue(session.IdentityFromUser(u))
	if err != nil {
		h.logger.Error("issue session", zap.Error(err))
		fail(codeServer)
		return
	}
	h.sessions.SetCookie(w, token, id.ExpiresAt)
	metrics.AuthLogin("success")

	perms := h.sessions.Resolver().Resolve(u.Roles)
	h.logger.Info("user signed in",
		zap.String("user_id", u.ID),
		zap.Bool("member", u.IsServerMember),
		zap.Bool("staff", perms.IsStaff))
	h.redirect(w, r, policy.LandingPath(perms))
}

type userView struct {
	ID             string   `json:"id"`
	DiscordID      string   `json:"discordId"`
	Username       string   `json:"username"`
	DisplayName    string   `json:"displayName"`
	AvatarURL      string   `json:"avatarUrl,omitempty"`
	Email          string   `json:"email,omitempty"`
	IsServerMember bool     `json:"isServerMember"`
	Roles          []string `json:"roles"`
}

func viewOf(u models.User) userView {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return userView{
		ID:             u.ID,
		DiscordID:      u.DiscordID,
		Username:       u.Username,
		DisplayName:    u.DisplayName(),
		AvatarURL:      u.AvatarURL,
		Email:          u.Email,
		IsServerMember: u.IsServerMember,
		Roles:          roles,
	}
}

func (h *Handler) refreshStatus(w http.ResponseWriter, r *http.Request) {
	res := h.sessions.Quick(session.TokenFromRequest(r))
	if !res.Valid {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"authenticated": false,
			"needsRefresh":  false,
			"expiresIn":     0,
		})
		return
	}
	needs, in := h.sessions.RefreshStatus(res.Identity)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"needsRefresh":  needs,
		"expiresIn":     int64(in.Seconds()),
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if h.notConfigured(w) {
		return
	}
	res := h.sessions.Quick(session.TokenFromRequest(r))
	if !res.Valid {
		httputil.JSONError(w, http.StatusUnauthorized, string(res.Reason), "authentication required")
		return
	}
	u, err := h.users.GetUser(r.Context(), res.Identity.UserID)
	if errors.Is(err, store.ErrNotFound) {
		h.sessions.ClearCookie(w)
		httputil.JSONError(w, http.StatusUnauthorized, string(session.ReasonUserNotFound), "authentication required")
		return
	}
	if err != nil {
		h.logger.Error("refresh: load user", zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "server_error", "could not refresh session")
		return
	}

	u, err = h.refreshUser(r.Context(), u)
	if err != nil {
		h.logger.Warn("refresh: discord token refresh failed",
			zap.String("user_id", res.Identity.UserID), zap.Error(err))
		h.sessions.ClearCookie(w)
		httputil.JSONError(w, http.StatusUnauthorized, "reauth_required", "please sign in again")
		return
	}

	token, id, err := h.sessions.Issue(session.IdentityFromUser(u))
	if err != nil {
		h.logger.Error("refresh: issue session", zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "server_error", "could not refresh session")
		return
	}
	h.sessions.SetCookie(w, token, id.ExpiresAt)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"expiresAt":   id.ExpiresAt,
		"expiresIn":   int64(id.ExpiresAt.Sub(id.IssuedAt).Seconds()),
		"user":        viewOf(u),
		"permissions": h.sessions.Resolver().Resolve(u.Roles),
	})
}

type validateRequest struct {
	Token string `json:"token"`
}

// validate runs the full check on the cookie, or on a token posted in the
// body.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromRequest(r)
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		var req validateRequest
		if err := httputil.BindJSONAllowUnknown(r, &req); err == nil && req.Token != "" {
			token = req.Token
		}
	}

	res := h.sessions.Full(r.Context(), token)
	if !res.Valid {
		status := http.StatusUnauthorized
		if res.Reason == session.ReasonServerError {
			h.logger.Error("validate session", zap.Error(res.Err))
			status = http.StatusInternalServerError
		}
		httputil.WriteJSON(w, status, map[string]any{"valid": false, "reason": res.Reason})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":               true,
		"user":                viewOf(*res.User),
		"permissions":         res.Permissions,
		"level":               res.Level,
		"expiresAt":           res.Identity.ExpiresAt,
		"discordTokenExpired": res.DiscordTokenExpired,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Signed out"})
}

func (h *Handler) logoutRedirect(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	h.redirect(w, r, "/")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	res, _ := session.FromContext(r.Context())
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"user":        viewOf(*res.User),
		"permissions": res.Permissions,
		"level":       res.Level,
	})
}
