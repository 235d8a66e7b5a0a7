// Package store defines persistence for users, intake submissions and the
// intake audit log. memstore and pgstore implement it.
package store

import (
	"context"
	"time"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
)

// Users persists Discord accounts.
type Users interface {
	// UpsertUser inserts or updates by DiscordID. ID and CreatedAt of an
	// existing row are kept; empty token fields keep the stored tokens.
	UpsertUser(ctx context.Context, u models.User) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByDiscordID(ctx context.Context, discordID string) (models.User, error)
	// SetMembership records a guild join (leftAt nil) or leave.
	SetMembership(ctx context.Context, discordID string, isMember bool, leftAt *time.Time) error
	SetRoles(ctx context.Context, discordID string, roles []string) error
}

// ListFilter narrows ListSubmissions. Zero values match everything.
type ListFilter struct {
	Kind   models.Kind
	Status models.Status
	Limit  int
}

// Review is a staff decision on a submission.
type Review struct {
	Status   models.Status
	Reviewer string
	Note     string
	At       time.Time
}

// Submissions persists intake forms.
type Submissions interface {
	CreateSubmission(ctx context.Context, s models.Submission) error
	ListSubmissions(ctx context.Context, f ListFilter) ([]models.Submission, error)
	ReviewSubmission(ctx context.Context, kind models.Kind, id string, rv Review) (models.Submission, error)
}

// Audit persists intake outcomes.
type Audit interface {
	AppendAudit(ctx context.Context, e models.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// Store is everything the service persists.
type Store interface {
	Users
	Submissions
	Audit
	Ping(ctx context.Context) error
}

// Limits applied by List calls when the caller passes zero or too much.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ClampLimit normalises a caller-supplied page size.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}
