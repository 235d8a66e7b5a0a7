package session

import (
	"context"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/policy"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
)

// Result is the outcome of a validation. When Valid is false only Reason
// (and Err for server_error) is set.
type Result struct {
	Valid       bool
	Reason      Reason
	Identity    Identity
	Permissions policy.Permissions
	Level       policy.Level

	// Set by Full only.
	User                *models.User
	DiscordTokenExpired bool

	Err error
}

// Quick decodes and checks expiry. Permissions come from the roles in the
// token.
func (m *Manager) Quick(token string) Result {
	id, reason := m.Decode(token)
	if reason != "" {
		return Result{Reason: reason}
	}
	return Result{
		Valid:       true,
		Identity:    id,
		Permissions: m.resolver.Resolve(id.Roles),
		Level:       m.resolver.Level(id.Roles, id.IsServerMember),
	}
}

// Full runs Quick, then confirms the user still exists. Permissions are
// recomputed from the stored roles, which track the live guild roles more
// closely than the token does.
func (m *Manager) Full(ctx context.Context, token string) Result {
	res := m.Quick(token)
	if !res.Valid {
		return res
	}

	u, reason, err := m.lookupUser(ctx, res.Identity.UserID)
	if reason != "" {
		return Result{Reason: reason, Err: err}
	}

	res.User = &u
	res.Permissions = m.resolver.Resolve(u.Roles)
	res.Level = m.resolver.Level(u.Roles, u.IsServerMember)
	res.DiscordTokenExpired = !u.TokenExpiresAt.IsZero() && !m.now().Before(u.TokenExpiresAt)
	return res
}
