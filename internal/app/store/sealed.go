package store

import (
	"context"
	"fmt"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/crypto"
)

// Sealed wraps a Store so OAuth tokens are encrypted before they are written
// and decrypted after they are read. Every other call passes through.
type Sealed struct {
	Store
	enc *crypto.Encryptor
}

// WithTokenSealing returns s wrapped by enc.
func WithTokenSealing(s Store, enc *crypto.Encryptor) *Sealed {
	return &Sealed{Store: s, enc: enc}
}

// UpsertUser seals the tokens, writes, and returns the user with plaintext
// tokens.
func (s *Sealed) UpsertUser(ctx context.Context, u models.User) (models.User, error) {
	access, err := s.enc.EncryptString(u.AccessToken)
	if err != nil {
		return models.User{}, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.enc.EncryptString(u.RefreshToken)
	if err != nil {
		return models.User{}, fmt.Errorf("seal refresh token: %w", err)
	}
	sealed := u
	sealed.AccessToken, sealed.RefreshToken = access, refresh

	out, err := s.Store.UpsertUser(ctx, sealed)
	if err != nil {
		return models.User{}, err
	}
	return s.open(out)
}

// GetUser implements Users.
func (s *Sealed) GetUser(ctx context.Context, id string) (models.User, error) {
	u, err := s.Store.GetUser(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	return s.open(u)
}

// GetUserByDiscordID implements Users.
func (s *Sealed) GetUserByDiscordID(ctx context.Context, discordID string) (models.User, error) {
	u, err := s.Store.GetUserByDiscordID(ctx, discordID)
	if err != nil {
		return models.User{}, err
	}
	return s.open(u)
}

func (s *Sealed) open(u models.User) (models.User, error) {
	var err error
	if u.AccessToken, err = s.enc.DecryptString(u.AccessToken); err != nil {
		return models.User{}, fmt.Errorf("open access token: %w", err)
	}
	if u.RefreshToken, err = s.enc.DecryptString(u.RefreshToken); err != nil {
		return models.User{}, fmt.Errorf("open refresh token: %w", err)
	}
	return u, nil
}
