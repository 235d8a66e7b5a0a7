// Package session issues and validates the signed session cookie.
//
// A session is an HS256 JWT carrying the identity fields the site needs
// on every request. It is not persisted; the cookie is the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/policy"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
)

const (
	CookieName = "conclave_session"
	Lifetime   = 30 * 24 * time.Hour
)

// Reason explains why a token was rejected.
type Reason string

const (
	ReasonNoToken       Reason = "no_token"
	ReasonExpired       Reason = "expired"
	ReasonInvalidFormat Reason = "invalid_format"
	ReasonParseError    Reason = "parse_error"
	ReasonUserNotFound  Reason = "user_not_found"
	ReasonServerError   Reason = "server_error"
)

// Identity is the decoded session payload.
type Identity struct {
	UserID         string    `json:"userId"`
	DiscordID      string    `json:"discordId"`
	Username       string    `json:"username"`
	Email          string    `json:"email,omitempty"`
	IsServerMember bool      `json:"isServerMember"`
	Roles          []string  `json:"roles"`
	IssuedAt       time.Time `json:"iat"`
	ExpiresAt      time.Time `json:"exp"`
}

// IdentityFromUser copies the session fields from a stored user.
func IdentityFromUser(u models.User) Identity {
	return Identity{
		UserID:         u.ID,
		DiscordID:      u.DiscordID,
		Username:       u.Username,
		Email:          u.Email,
		IsServerMember: u.IsServerMember,
		Roles:          append([]string{}, u.Roles...),
	}
}

type claims struct {
	UserID         string   `json:"userId"`
	DiscordID      string   `json:"discordId"`
	Username       string   `json:"username"`
	Email          string   `json:"email,omitempty"`
	IsServerMember bool     `json:"isServerMember"`
	Roles          []string `json:"roles"`
	jwt.RegisteredClaims
}

// UserGetter is the lookup the full check needs.
type UserGetter interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// Options configures a Manager.
type Options struct {
	Secret        []byte
	Secure        bool // Secure cookie flag; true in production
	Resolver      *policy.Resolver
	Users         UserGetter
	RefreshWindow time.Duration
}

// Manager issues, decodes and validates session tokens.
type Manager struct {
	secret        []byte
	secure        bool
	resolver      *policy.Resolver
	users         UserGetter
	refreshWindow time.Duration
	now           func() time.Time
}

// NewManager validates opts. The secret must be non-empty.
func NewManager(opts Options) (*Manager, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("session: secret is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("session: resolver is required")
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = 7 * 24 * time.Hour
	}
	return &Manager{
		secret:        opts.Secret,
		secure:        opts.Secure,
		resolver:      opts.Resolver,
		users:         opts.Users,
		refreshWindow: opts.RefreshWindow,
		now:           time.Now,
	}, nil
}

// WithClock replaces the time source. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Resolver returns the permission resolver the manager uses.
func (m *Manager) Resolver() *policy.Resolver { return m.resolver }

// Issue signs id with iat = now and exp = iat + Lifetime, and returns the
// token plus the identity as it was encoded.
func (m *Manager) Issue(id Identity) (string, Identity, error) {
	iat := m.now().UTC().Truncate(time.Second)
	id.IssuedAt = iat
	id.ExpiresAt = iat.Add(Lifetime)
	if id.Roles == nil {
		id.Roles = []string{}
	}

	c := claims{
		UserID:         id.UserID,
		DiscordID:      id.DiscordID,
		Username:       id.Username,
		Email:          id.Email,
		IsServerMember: id.IsServerMember,
		Roles:          id.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(id.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(id.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", Identity{}, fmt.Errorf("session: sign: %w", err)
	}
	return token, id, nil
}

// Decode verifies the token and returns its identity. On failure the
// reason is one of no_token, expired, parse_error or invalid_format.
func (m *Manager) Decode(token string) (Identity, Reason) {
	if token == "" {
		return Identity{}, ReasonNoToken
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ReasonExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Identity{}, ReasonParseError
	default:
		return Identity{}, ReasonInvalidFormat
	}

	if c.UserID == "" || c.DiscordID == "" || c.IssuedAt == nil {
		return Identity{}, ReasonInvalidFormat
	}
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	return Identity{
		UserID:         c.UserID,
		DiscordID:      c.DiscordID,
		Username:       c.Username,
		Email:          c.Email,
		IsServerMember: c.IsServerMember,
		Roles:          roles,
		IssuedAt:       c.IssuedAt.Time.UTC(),
		ExpiresAt:      c.ExpiresAt.Time.UTC(),
	}, ""
}

// SetCookie writes the session cookie. It replaces any previous one.
func (m *Manager) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(Lifetime / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the session cookie value, or "".
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// RefreshStatus reports whether id is close enough to expiry that the
// client should refresh, and how long it has left.
func (m *Manager) RefreshStatus(id Identity) (needsRefresh bool, expiresIn time.Duration) {
	expiresIn = id.ExpiresAt.Sub(m.now())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return expiresIn < m.refreshWindow, expiresIn
}

// lookupUser maps store errors to reasons.
func (m *Manager) lookupUser(ctx context.Context, id string) (models.User, Reason, error) {
	if m.users == nil {
		return models.User{}, ReasonServerError, errors.New("session: no user store configured")
	}
	u, err := m.users.GetUser(ctx, id)
	switch {
	case err == nil:
		return u, "", nil
	case errors.Is(err, store.ErrNotFound):
		return models.User{}, ReasonUserNotFound, nil
	default:
		return models.User{}, ReasonServerError, err
	}
}
