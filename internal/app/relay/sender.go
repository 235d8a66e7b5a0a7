package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/retry"
)

// Sender posts JSON payloads to Discord incoming webhooks.
type Sender struct {
	http   *http.Client
	policy retry.Policy
	logger *zap.Logger
	now    func() time.Time
}

// NewSender uses up to three attempts with 2^attempt second backoff. A 429
// waits for the Retry-After header or the retry_after body field instead.
func NewSender(hc *http.Client, policy retry.Policy, logger *zap.Logger) *Sender {
	if hc == nil {
		hc = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sender{http: hc, policy: policy, logger: logger, now: time.Now}
	if s.policy.OnRetry == nil {
		s.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			s.logger.Warn("webhook delivery attempt failed; retrying",
				zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		}
	}
	return s
}

// StatusError is a non-2xx webhook answer.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.Status, e.Body)
}

// Deliver posts payload to url and returns how many attempts were made.
func (s *Sender) Deliver(ctx context.Context, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode webhook payload: %w", err)
	}
	return retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) error {
		return s.post(ctx, url, body)
	})
}

func (s *Sender) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.PermanentError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	serr := &StatusError{Status: resp.StatusCode, Body: string(raw)}
	if resp.StatusCode == http.StatusTooManyRequests {
		return retry.WithRetryAfter(serr, retryAfter(resp.Header.Get("Retry-After"), raw, s.now()))
	}
	if retry.IsRetryableStatus(resp.StatusCode) {
		return serr
	}
	return retry.PermanentError(serr)
}

// retryAfter prefers the header and falls back to Discord's JSON body.
func retryAfter(header string, body []byte, now time.Time) time.Duration {
	if d := retry.ParseRetryAfter(header, now); d > 0 {
		return d
	}
	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if json.Unmarshal(body, &rl) == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	return 0
}
