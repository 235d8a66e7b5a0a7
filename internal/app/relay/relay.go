// Package relay validates public intake forms, forwards them to Discord
// incoming webhooks, and keeps a durable copy plus an audit trail.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/metrics"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/crypto"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/ratelimit"
)

var (
	// ErrNotConfigured means the kind has no webhook URL.
	ErrNotConfigured = errors.New("relay: webhook is not configured")
	// ErrUnavailable means delivery failed and the durable copy could not
	// be written either.
	ErrUnavailable = errors.New("relay: delivery and persistence both failed")
)

// RateLimitError is returned when the client exceeded the kind's window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited; retry after %s", e.RetryAfter.Round(time.Second))
}

// Receipt describes an accepted submission.
type Receipt struct {
	ID        string
	Message   string
	Attempts  int
	Delivered bool
	Persisted bool
}

// Deliverer posts a payload to a webhook URL.
type Deliverer interface {
	Deliver(ctx context.Context, url string, payload any) (attempts int, err error)
}

// Store is the persistence the relay writes to.
type Store interface {
	CreateSubmission(ctx context.Context, s models.Submission) error
	AppendAudit(ctx context.Context, e models.AuditEntry) error
}

// Options configures a Relay.
type Options struct {
	URLs     map[models.Kind]string
	Sender   Deliverer
	Store    Store
	Limiters map[models.Kind]ratelimit.Limiter
	Logger   *zap.Logger
}

// Relay is safe for concurrent use.
type Relay struct {
	urls     map[models.Kind]string
	sender   Deliverer
	store    Store
	limiters map[models.Kind]ratelimit.Limiter
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a Relay. Kinds without a limiter get an in-memory one with
// the form's rule.
func New(opts Options) *Relay {
	limiters := make(map[models.Kind]ratelimit.Limiter, len(Forms))
	for kind, form := range Forms {
		if l, ok := opts.Limiters[kind]; ok && l != nil {
			limiters[kind] = l
			continue
		}
		limiters[kind] = ratelimit.NewMemory(form.Rule)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		urls:     opts.URLs,
		sender:   opts.Sender,
		store:    opts.Store,
		limiters: limiters,
		logger:   logger,
		now:      time.Now,
	}
}

const writeTimeout = 5 * time.Second

// Configured reports whether kind has a webhook URL.
func (r *Relay) Configured(kind models.Kind) bool {
	return r.urls[kind] != ""
}

// NewCorrelationID returns PREFIX-<unix ms>-<6 upper-case alphanumerics>.
func NewCorrelationID(prefix string, now time.Time) (string, error) {
	suffix, err := crypto.RandomString(6, crypto.UpperAlphanumeric)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix), nil
}

// Submit runs the intake pipeline for one request: configuration check,
// validation, per-IP rate limit, delivery with retries, durable copy and
// audit entry. Only valid submissions count against the limit.
//
// Errors: ErrNotConfigured, *RateLimitError, *ValidationError,
// ErrUnavailable, or an unexpected error. A delivery failure with a
// successful durable write is not an error; Receipt.Delivered is false.
func (r *Relay) Submit(ctx context.Context, kind models.Kind, input map[string]string, clientIP string) (Receipt, error) {
	form, ok := Forms[kind]
	if !ok {
		return Receipt{}, fmt.Errorf("relay: unknown kind %q", kind)
	}
	log := r.logger.With(zap.String("kind", string(kind)), zap.String("client_ip", clientIP))

	url := r.urls[kind]
	if url == "" {
		log.Error("webhook url not configured")
		r.audit(ctx, models.AuditEntry{Kind: kind, Outcome: models.OutcomeError, ClientIP: clientIP, Detail: "webhook not configured"})
		return Receipt{}, ErrNotConfigured
	}

	fields, err := form.Clean(input)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			r.audit(ctx, models.AuditEntry{Kind: kind, Outcome: models.OutcomeValidationFailed, ClientIP: clientIP, Detail: ve.Error()})
		}
		return Receipt{}, err
	}

	dec, err := r.limiters[kind].Allow(ctx, clientIP)
	if err != nil {
		// Fail open.
		log.Warn("rate limiter unavailable; allowing request", zap.Error(err))
	} else if !dec.Allowed {
		metrics.RateLimited(string(kind))
		return Receipt{}, &RateLimitError{RetryAfter: dec.RetryAfter}
	}

	now := r.now().UTC()
	id, err := NewCorrelationID(form.Prefix, now)
	if err != nil {
		r.audit(ctx, models.AuditEntry{Kind: kind, Outcome: models.OutcomeError, ClientIP: clientIP, Detail: err.Error()})
		return Receipt{}, fmt.Errorf("relay: correlation id: %w", err)
	}
	log = log.With(zap.String("correlation_id", id))

	attempts, deliverErr := r.sender.Deliver(ctx, url, form.Embed(id, fields, now))
	delivered := deliverErr == nil
	if delivered {
		metrics.WebhookDelivery(string(kind), "delivered")
	} else {
		metrics.WebhookDelivery(string(kind), "failed")
		log.Error("webhook delivery failed", zap.Int("attempts", attempts), zap.Error(deliverErr))
	}

	persistCtx, cancel := r.writeContext(ctx)
	persistErr := r.store.CreateSubmission(persistCtx, models.Submission{
		ID:               id,
		Kind:             kind,
		Fields:           fields,
		Status:           models.StatusPending,
		ClientIP:         clientIP,
		Delivered:        delivered,
		DeliveryAttempts: attempts,
		SubmittedAt:      now,
	})
	cancel()
	if persistErr != nil {
		log.Error("persisting submission failed", zap.Error(persistErr))
	}

	entry := models.AuditEntry{Kind: kind, CorrelationID: id, ClientIP: clientIP, Attempts: attempts}
	switch {
	case delivered && persistErr == nil:
		entry.Outcome = models.OutcomeSuccess
	case delivered:
		entry.Outcome = models.OutcomeSuccess
		entry.Detail = "delivered; durable copy failed: " + persistErr.Error()
	case persistErr == nil:
		entry.Outcome = models.OutcomeFailed
		entry.Detail = deliverErr.Error()
	default:
		entry.Outcome = models.OutcomeError
		entry.Detail = fmt.Sprintf("delivery: %v; persist: %v", deliverErr, persistErr)
	}
	r.audit(ctx, entry)

	if !delivered && persistErr != nil {
		return Receipt{ID: id, Attempts: attempts}, fmt.Errorf("%w: %w", ErrUnavailable, deliverErr)
	}
	return Receipt{
		ID:        id,
		Message:   form.Success,
		Attempts:  attempts,
		Delivered: delivered,
		Persisted: persistErr == nil,
	}, nil
}

// Reject records a submission refused before it reached the form rules,
// such as an undecodable body.
func (r *Relay) Reject(ctx context.Context, kind models.Kind, clientIP, detail string) {
	r.audit(ctx, models.AuditEntry{Kind: kind, Outcome: models.OutcomeValidationFailed, ClientIP: clientIP, Detail: detail})
}

// writeContext detaches durable writes from the request so a client that
// hangs up during delivery retries does not lose the record.
func (r *Relay) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

// audit never fails the request; a broken audit table is only logged.
func (r *Relay) audit(ctx context.Context, e models.AuditEntry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	wctx, cancel := r.writeContext(ctx)
	defer cancel()
	if err := r.store.AppendAudit(wctx, e); err != nil {
		r.logger.Error("audit write failed",
			zap.String("kind", string(e.Kind)), zap.String("outcome", e.Outcome), zap.Error(err))
	}
}
