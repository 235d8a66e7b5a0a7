// Package memstore is an in-process store.Store used in development and
// tests. Data is lost on restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
)

type Store struct {
	mu          sync.RWMutex
	users       map[string]*models.User // by internal id
	byDiscord   map[string]string       // discord id -> internal id
	submissions []models.Submission
	audit       []models.AuditEntry
	now         func() time.Time
}

func New() *Store {
	return &Store{
		users:     make(map[string]*models.User),
		byDiscord: make(map[string]string),
		now:       time.Now,
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) UpsertUser(_ context.Context, u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if id, ok := s.byDiscord[u.DiscordID]; ok {
		cur := s.users[id]
		u.ID = cur.ID
		u.CreatedAt = cur.CreatedAt
		if u.AccessToken == "" {
			u.AccessToken = cur.AccessToken
		}
		if u.RefreshToken == "" {
			u.RefreshToken = cur.RefreshToken
			u.TokenExpiresAt = cur.TokenExpiresAt
		}
		if !u.IsServerMember && u.LeftAt == nil {
			u.LeftAt = cur.LeftAt
		}
	} else {
		u.ID = uuid.NewString()
		u.CreatedAt = now
	}
	if u.IsServerMember {
		u.LeftAt = nil
	}
	u.UpdatedAt = now

	stored := u.Clone()
	s.users[u.ID] = &stored
	s.byDiscord[u.DiscordID] = u.ID
	return u.Clone(), nil
}

func (s *Store) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u.Clone(), nil
}

func (s *Store) GetUserByDiscordID(_ context.Context, discordID string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDiscord[discordID]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *Store) SetMembership(_ context.Context, discordID string, isMember bool, leftAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byDiscord[discordID]
	if !ok {
		return store.ErrNotFound
	}
	u := s.users[id]
	u.IsServerMember = isMember
	if isMember {
		u.LeftAt = nil
	} else if leftAt != nil {
		t := leftAt.UTC()
		u.LeftAt = &t
	}
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) SetRoles(_ context.Context, discordID string, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byDiscord[discordID]
	if !ok {
		return store.ErrNotFound
	}
	u := s.users[id]
	u.Roles = append([]string(nil), roles...)
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) CreateSubmission(_ context.Context, sub models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.submissions {
		if existing.ID == sub.ID {
			return store.ErrConflict
		}
	}
	if sub.Status == "" {
		sub.Status = models.StatusPending
	}
	s.submissions = append(s.submissions, sub.Clone())
	return nil
}

// ListSubmissions returns newest first.
func (s *Store) ListSubmissions(_ context.Context, f store.ListFilter) ([]models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Submission, 0)
	for _, sub := range s.submissions {
		if f.Kind != "" && sub.Kind != f.Kind {
			continue
		}
		if f.Status != "" && sub.Status != f.Status {
			continue
		}
		out = append(out, sub.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit := store.ClampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ReviewSubmission(_ context.Context, kind models.Kind, id string, rv store.Review) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.submissions {
		sub := &s.submissions[i]
		if sub.ID != id || sub.Kind != kind {
			continue
		}
		at := rv.At.UTC()
		sub.Status = rv.Status
		sub.ReviewedBy = rv.Reviewer
		sub.ReviewNote = rv.Note
		sub.ReviewedAt = &at
		return sub.Clone(), nil
	}
	return models.Submission{}, store.ErrNotFound
}

func (s *Store) AppendAudit(_ context.Context, e models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	s.audit = append(s.audit, e)
	return nil
}

// ListAudit returns newest first.
func (s *Store) ListAudit(_ context.Context, limit int) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = store.ClampLimit(limit)
	out := make([]models.AuditEntry, 0, min(limit, len(s.audit)))
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.audit[i])
	}
	return out, nil
}
