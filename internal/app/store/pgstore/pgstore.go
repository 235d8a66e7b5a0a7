// Package pgstore implements store.Store on PostgreSQL (Supabase) with pgx.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Store = (*Store)(nil)

// EnsureSchema creates tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const userColumns = `id::text, discord_id, username, discriminator, global_name, avatar_url, email,
	is_server_member, roles, access_token, refresh_token, token_expires_at, last_login_at,
	left_at, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	var tokenExp *time.Time
	err := row.Scan(&u.ID, &u.DiscordID, &u.Username, &u.Discriminator, &u.GlobalName, &u.AvatarURL,
		&u.Email, &u.IsServerMember, &u.Roles, &u.AccessToken, &u.RefreshToken, &tokenExp,
		&u.LastLoginAt, &u.LeftAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrNotFound
		}
		return models.User{}, err
	}
	if tokenExp != nil {
		u.TokenExpiresAt = *tokenExp
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	return u, nil
}

// UpsertUser relies on the unique discord_id. Two concurrent logins for the
// same account resolve last-write-wins.
func (s *Store) UpsertUser(ctx context.Context, u models.User) (models.User, error) {
	var tokenExp *time.Time
	if !u.TokenExpiresAt.IsZero() {
		t := u.TokenExpiresAt.UTC()
		tokenExp = &t
	}
	lastLogin := u.LastLoginAt
	if lastLogin.IsZero() {
		lastLogin = time.Now().UTC()
	}
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, discord_id, username, discriminator, global_name, avatar_url, email,
			is_server_member, roles, access_token, refresh_token, token_expires_at, last_login_at, left_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			CASE WHEN $8 THEN NULL ELSE $14::timestamptz END)
		ON CONFLICT (discord_id) DO UPDATE SET
			username         = EXCLUDED.username,
			discriminator    = EXCLUDED.discriminator,
			global_name      = EXCLUDED.global_name,
			avatar_url       = EXCLUDED.avatar_url,
			email            = EXCLUDED.email,
			is_server_member = EXCLUDED.is_server_member,
			roles            = EXCLUDED.roles,
			access_token     = CASE WHEN EXCLUDED.access_token = '' THEN users.access_token ELSE EXCLUDED.access_token END,
			refresh_token    = CASE WHEN EXCLUDED.refresh_token = '' THEN users.refresh_token ELSE EXCLUDED.refresh_token END,
			token_expires_at = CASE WHEN EXCLUDED.refresh_token = '' THEN users.token_expires_at ELSE EXCLUDED.token_expires_at END,
			last_login_at    = EXCLUDED.last_login_at,
			left_at          = CASE WHEN EXCLUDED.is_server_member THEN NULL ELSE COALESCE(EXCLUDED.left_at, users.left_at) END,
			updated_at       = now()
		RETURNING `+userColumns,
		uuid.New(), u.DiscordID, u.Username, u.Discriminator, u.GlobalName, u.AvatarURL, u.Email,
		u.IsServerMember, roles, u.AccessToken, u.RefreshToken, tokenExp, lastLogin, u.LeftAt,
	)
	return scanUser(row)
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, store.ErrNotFound
	}
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByDiscordID(ctx context.Context, discordID string) (models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE discord_id = $1`, discordID))
}

func (s *Store) SetMembership(ctx context.Context, discordID string, isMember bool, leftAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			is_server_member = $2,
			left_at = CASE WHEN $2 THEN NULL ELSE COALESCE($3::timestamptz, left_at) END,
			updated_at = now()
		WHERE discord_id = $1`, discordID, isMember, leftAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetRoles(ctx context.Context, discordID string, roles []string) error {
	if roles == nil {
		roles = []string{}
	}
	tag, err := s.pool.Exec(ctx, `UPDATE users SET roles = $2, updated_at = now() WHERE discord_id = $1`, discordID, roles)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSubmission(ctx context.Context, sub models.Submission) error {
	fields, err := json.Marshal(sub.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	status := sub.Status
	if status == "" {
		status = models.StatusPending
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions (id, kind, fields, status, client_ip, delivered, delivery_attempts, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, string(sub.Kind), fields, string(status), sub.ClientIP, sub.Delivered, sub.DeliveryAttempts, sub.SubmittedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrConflict
	}
	return err
}

const submissionColumns = `id, kind, fields, status, client_ip, delivered, delivery_attempts,
	reviewed_by, review_note, reviewed_at, submitted_at`

func scanSubmission(row pgx.Row) (models.Submission, error) {
	var sub models.Submission
	var kind, status string
	var fields []byte
	err := row.Scan(&sub.ID, &kind, &fields, &status, &sub.ClientIP, &sub.Delivered, &sub.DeliveryAttempts,
		&sub.ReviewedBy, &sub.ReviewNote, &sub.ReviewedAt, &sub.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Submission{}, store.ErrNotFound
		}
		return models.Submission{}, err
	}
	sub.Kind, sub.Status = models.Kind(kind), models.Status(status)
	if err := json.Unmarshal(fields, &sub.Fields); err != nil {
		return models.Submission{}, fmt.Errorf("decode fields of %s: %w", sub.ID, err)
	}
	return sub, nil
}

func (s *Store) ListSubmissions(ctx context.Context, f store.ListFilter) ([]models.Submission, error) {
	var where []string
	var args []any
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + submissionColumns + ` FROM submissions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, store.ClampLimit(f.Limit))
	q += fmt.Sprintf(` ORDER BY submitted_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) ReviewSubmission(ctx context.Context, kind models.Kind, id string, rv store.Review) (models.Submission, error) {
	return scanSubmission(s.pool.QueryRow(ctx, `
		UPDATE submissions SET status = $3, reviewed_by = $4, review_note = $5, reviewed_at = $6
		WHERE kind = $1 AND id = $2
		RETURNING `+submissionColumns,
		string(kind), id, string(rv.Status), rv.Reviewer, rv.Note, rv.At.UTC()))
}

func (s *Store) AppendAudit(ctx context.Context, e models.AuditEntry) error {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_audit (id, kind, outcome, correlation_id, client_ip, detail, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, string(e.Kind), e.Outcome, e.CorrelationID, e.ClientIP, e.Detail, e.Attempts, created.UTC())
	return err
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, kind, outcome, correlation_id, client_ip, detail, attempts, created_at
		FROM webhook_audit ORDER BY created_at DESC LIMIT $1`, store.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.AuditEntry, 0)
	for rows.Next() {
		var e models.AuditEntry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Outcome, &e.CorrelationID, &e.ClientIP, &e.Detail, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = models.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
