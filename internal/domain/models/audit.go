package models

import "time"

// Audit outcomes for intake requests.
const (
	OutcomeSuccess          = "success"
	OutcomeValidationFailed = "validation_failed"
	OutcomeFailed           = "failed"
	OutcomeError            = "error"
)

// AuditEntry records the outcome of one intake request.
type AuditEntry struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Outcome       string    `json:"outcome"`
	CorrelationID string    `json:"correlationId,omitempty"`
	ClientIP      string    `json:"clientIp,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"createdAt"`
}
