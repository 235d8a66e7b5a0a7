// Package discord talks to the Discord REST API: OAuth2 token exchange,
// user and guild-member lookups, auto-invite, role changes and guild
// statistics.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// DefaultAPIBase is the versioned REST root.
const DefaultAPIBase = "https://discord.com/api/v10"

// Scopes requested at sign-in. guilds.join lets the bot add the user to
// the guild with their access token.
var Scopes = []string{"identify", "email", "guilds.join"}

var (
	// ErrNotConfigured means the OAuth client credentials are missing.
	ErrNotConfigured = errors.New("discord: oauth client is not configured")
	// ErrBotNotConfigured means a bot-token call was made without a bot
	// token or guild id.
	ErrBotNotConfigured = errors.New("discord: bot token or guild id is not configured")
	// ErrInvalidID means a user or role id is not a snowflake.
	ErrInvalidID = errors.New("discord: id is not a snowflake")
)

// ValidSnowflake reports whether s is a decimal uint64, the form of every
// Discord id.
func ValidSnowflake(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

func checkIDs(ids ...string) error {
	for _, id := range ids {
		if !ValidSnowflake(id) {
			return fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return nil
}

// APIError is a non-2xx answer from Discord.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("discord: %s failed: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("discord: %s failed: status %d: %s", e.Op, e.Status, e.Body)
}

// Config holds the application's Discord credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	BotToken     string
	GuildID      string

	// APIBase defaults to DefaultAPIBase. Token and authorize endpoints
	// live under it.
	APIBase string

	// HTTPClient defaults to a 10s client with an OpenTelemetry transport.
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	oauth    *oauth2.Config
	http     *http.Client
	base     string
	botToken string
	guildID  string
	logger   *zap.Logger
}

// New validates the OAuth credentials. Bot credentials are optional; calls
// that need them return ErrBotNotConfigured.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, ErrNotConfigured
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = DefaultAPIBase
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth2/authorize",
				TokenURL:  base + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http:     hc,
		base:     base,
		botToken: cfg.BotToken,
		guildID:  cfg.GuildID,
		logger:   logger,
	}, nil
}

// GuildID returns the configured guild.
func (c *Client) GuildID() string { return c.guildID }

// BotConfigured reports whether bot-token calls can be made.
func (c *Client) BotConfigured() bool { return c.botToken != "" && c.guildID != "" }

// AuthCodeURL builds the authorize redirect for state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// Exchange trades an authorization code for tokens. Codes are single-use,
// so the call is never retried.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("discord: empty authorization code")
	}
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, tokenError("token exchange", err)
	}
	return tok, nil
}

// Refresh trades a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("discord: empty refresh token")
	}
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenError("token refresh", err)
	}
	return tok, nil
}

func tokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &APIError{Op: op, Status: status, Body: truncate(string(re.Body))}
	}
	return fmt.Errorf("discord: %s failed: %w", op, err)
}

// do sends a request and decodes a 2xx JSON body into out (if non-nil).
// The returned status is 0 when the request never got an answer.
func (c *Client) do(ctx context.Context, op, method, path, auth string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("discord: %s: encode body: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return 0, fmt.Errorf("discord: %s: %w", op, err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("discord: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return resp.StatusCode, &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(b))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("discord: %s: decode: %w", op, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) bot() string { return "Bot " + c.botToken }

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 512 {
		return s[:512]
	}
	return s
}

// User is the /users/@me profile.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	GlobalName    string `json:"global_name"`
	Avatar        string `json:"avatar"`
	Email         string `json:"email"`
	Verified      bool   `json:"verified"`
}

// AvatarURL returns the CDN URL of the avatar, or of the default avatar
// when the user has none.
func (u User) AvatarURL() string {
	if u.Avatar == "" {
		var index int64
		if u.Discriminator != "" && u.Discriminator != "0" {
			d, _ := strconv.ParseInt(u.Discriminator, 10, 64)
			index = d % 5
		} else {
			id, _ := strconv.ParseInt(u.ID, 10, 64)
			index = (id >> 22) % 6
		}
		return fmt.Sprintf("https://cdn.discordapp.com/embed/avatars/%d.png", index)
	}
	ext := "png"
	if strings.HasPrefix(u.Avatar, "a_") {
		ext = "gif"
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.%s", u.ID, u.Avatar, ext)
}

// FetchUser reads the profile of the access token's owner.
func (c *Client) FetchUser(ctx context.Context, accessToken string) (User, error) {
	var u User
	if _, err := c.do(ctx, "fetch user", http.MethodGet, "/users/@me", "Bearer "+accessToken, nil, &u); err != nil {
		return User{}, err
	}
	if u.ID == "" {
		return User{}, errors.New("discord: fetch user: response has no id")
	}
	return u, nil
}

// Member is a guild membership.
type Member struct {
	User     *User    `json:"user,omitempty"`
	Nick     string   `json:"nick"`
	Roles    []string `json:"roles"`
	JoinedAt string   `json:"joined_at"`
	Pending  bool     `json:"pending"`
}

// FetchMember looks up userID in the configured guild with the bot token.
// A 404 is the "not a member" answer and returns ok=false with no error.
func (c *Client) FetchMember(ctx context.Context, userID string) (Member, bool, error) {
	if !c.BotConfigured() {
		return Member{}, false, ErrBotNotConfigured
	}
	if err := checkIDs(userID); err != nil {
		return Member{}, false, err
	}
	var m Member
	status, err := c.do(ctx, "fetch member", http.MethodGet,
		"/guilds/"+c.guildID+"/members/"+userID, c.bot(), nil, &m)
	if status == http.StatusNotFound {
		return Member{}, false, nil
	}
	if err != nil {
		return Member{}, false, err
	}
	if m.Roles == nil {
		m.Roles = []string{}
	}
	return m, true, nil
}

// AddMember adds userID to the guild using their OAuth access token as
// the join credential. 201 (joined) and 204 (already a member) both
// succeed.
func (c *Client) AddMember(ctx context.Context, userID, accessToken string) error {
	if !c.BotConfigured() {
		return ErrBotNotConfigured
	}
	if err := checkIDs(userID); err != nil {
		return err
	}
	_, err := c.do(ctx, "add member", http.MethodPut,
		"/guilds/"+c.guildID+"/members/"+userID, c.bot(),
		map[string]string{"access_token": accessToken}, nil)
	return err
}

// AddRole grants roleID to userID.
func (c *Client) AddRole(ctx context.Context, userID, roleID string) error {
	if !c.BotConfigured() {
		return ErrBotNotConfigured
	}
	if err := checkIDs(userID, roleID); err != nil {
		return err
	}
	_, err := c.do(ctx, "add role", http.MethodPut,
		"/guilds/"+c.guildID+"/members/"+userID+"/roles/"+roleID, c.bot(), nil, nil)
	return err
}

// RemoveRole revokes roleID from userID.
func (c *Client) RemoveRole(ctx context.Context, userID, roleID string) error {
	if !c.BotConfigured() {
		return ErrBotNotConfigured
	}
	if err := checkIDs(userID, roleID); err != nil {
		return err
	}
	_, err := c.do(ctx, "remove role", http.MethodDelete,
		"/guilds/"+c.guildID+"/members/"+userID+"/roles/"+roleID, c.bot(), nil, nil)
	return err
}
