package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/discord"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
)

// DiscordAPI is the subset of the Discord client the sign-in flow uses.
type DiscordAPI interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	FetchUser(ctx context.Context, accessToken string) (discord.User, error)
	FetchMember(ctx context.Context, userID string) (discord.Member, bool, error)
	AddMember(ctx context.Context, userID, accessToken string) error
}

// Users is the persistence the flow needs.
type Users interface {
	UpsertUser(ctx context.Context, u models.User) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
}

// Failure stages, used as the gateway error code.
const (
	codeTokenExchange = "token_exchange_failed"
	codeDiscord       = "discord_error"
	codeServer        = "server_error"
)

// stageError tags an error with the gateway code it maps to.
type stageError struct {
	code string
	err  error
}

func (e *stageError) Error() string { return e.code + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func errorCode(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.code
	}
	return codeServer
}

// membership resolves guild membership, inviting the user when allowed.
// Auto-invite failures are logged and leave the user a non-member.
func (h *Handler) membership(ctx context.Context, du discord.User, accessToken string, log *zap.Logger) (discord.Member, bool, error) {
	m, ok, err := h.discord.FetchMember(ctx, du.ID)
	if errors.Is(err, discord.ErrBotNotConfigured) {
		log.Warn("bot not configured; membership unknown")
		return discord.Member{}, false, nil
	}
	if err != nil {
		return discord.Member{}, false, err
	}
	if ok || !h.autoInvite {
		return m, ok, nil
	}

	if err := h.discord.AddMember(ctx, du.ID, accessToken); err != nil {
		log.Warn("auto-invite failed; continuing as non-member", zap.Error(err))
		return discord.Member{}, false, nil
	}
	m, ok, err = h.discord.FetchMember(ctx, du.ID)
	if err != nil {
		log.Warn("membership re-check after auto-invite failed", zap.Error(err))
		return discord.Member{}, false, nil
	}
	if ok {
		log.Info("user auto-invited to guild")
	}
	return m, ok, nil
}

// signIn turns an authorization code into a stored user.
func (h *Handler) signIn(ctx context.Context, code string) (models.User, error) {
	tok, err := h.discord.Exchange(ctx, code)
	if err != nil {
		return models.User{}, &stageError{codeTokenExchange, err}
	}
	du, err := h.discord.FetchUser(ctx, tok.AccessToken)
	if err != nil {
		return models.User{}, &stageError{codeDiscord, err}
	}
	log := h.logger.With(zap.String("discord_id", du.ID))

	m, isMember, err := h.membership(ctx, du, tok.AccessToken, log)
	if err != nil {
		return models.User{}, &stageError{codeDiscord, err}
	}
	roles := []string{}
	if isMember {
		roles = m.Roles
	}

	u, err := h.users.UpsertUser(ctx, models.User{
		DiscordID:      du.ID,
		Username:       du.Username,
		Discriminator:  du.Discriminator,
		GlobalName:     du.GlobalName,
		AvatarURL:      du.AvatarURL(),
		Email:          du.Email,
		IsServerMember: isMember,
		Roles:          roles,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenExpiresAt: tok.Expiry,
		LastLoginAt:    h.now().UTC(),
	})
	if err != nil {
		return models.User{}, &stageError{codeServer, fmt.Errorf("upsert user: %w", err)}
	}
	return u, nil
}

// refreshUser renews the stored Discord tokens and re-reads the live
// roles. A failed role lookup keeps the stored roles.
func (h *Handler) refreshUser(ctx context.Context, u models.User) (models.User, error) {
	if u.RefreshToken == "" {
		return models.User{}, errors.New("no refresh token on file")
	}
	tok, err := h.discord.Refresh(ctx, u.RefreshToken)
	if err != nil {
		return models.User{}, err
	}
	u.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		u.RefreshToken = tok.RefreshToken
	}
	u.TokenExpiresAt = tok.Expiry

	m, ok, err := h.discord.FetchMember(ctx, u.DiscordID)
	switch {
	case err != nil:
		h.logger.Warn("role refresh failed; keeping stored roles",
			zap.String("discord_id", u.DiscordID), zap.Error(err))
	case ok:
		u.IsServerMember, u.Roles = true, m.Roles
	default:
		u.IsServerMember, u.Roles = false, []string{}
		if u.LeftAt == nil {
			t := h.now().UTC()
			u.LeftAt = &t
		}
	}
	u.LastLoginAt = h.now().UTC()

	return h.users.UpsertUser(ctx, u)
}

