package models

import (
	"fmt"
	"time"
)

// Kind names one of the public intake forms.
type Kind string

const (
	KindContact     Kind = "contact"
	KindAppeals     Kind = "appeals"
	KindSubmissions Kind = "submissions"
	KindComplaints  Kind = "complaints"
)

// Kinds lists every intake form in display order.
var Kinds = []Kind{KindContact, KindAppeals, KindSubmissions, KindComplaints}

// ParseKind validates a URL path segment.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// Status is the review state of a submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus validates a review status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusRejected:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Submission is the durable copy of an intake form. ID is the correlation
// id shown in the Discord embed footer.
type Submission struct {
	ID               string            `json:"id"`
	Kind             Kind              `json:"kind"`
	Fields           map[string]string `json:"fields"`
	Status           Status            `json:"status"`
	ClientIP         string            `json:"-"`
	Delivered        bool              `json:"delivered"`
	DeliveryAttempts int               `json:"deliveryAttempts"`
	ReviewedBy       string            `json:"reviewedBy,omitempty"`
	ReviewNote       string            `json:"reviewNote,omitempty"`
	ReviewedAt       *time.Time        `json:"reviewedAt,omitempty"`
	SubmittedAt      time.Time         `json:"submittedAt"`
}

// Clone returns a deep copy.
func (s Submission) Clone() Submission {
	fields := make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		fields[k] = v
	}
	s.Fields = fields
	if s.ReviewedAt != nil {
		t := *s.ReviewedAt
		s.ReviewedAt = &t
	}
	return s
}
