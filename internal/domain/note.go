package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Status represents the lifecycle state of a note.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDelivered  Status = "delivered"
	StatusDead       Status = "dead"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDelivered, StatusDead:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

const (
	MaxTitleLength = 200
	MaxBodyLength  = 10000
)

// Attempt is the immutable record of one delivery try.
type Attempt struct {
	At         time.Time
	StatusCode int
	OK         bool
	Error      string
}

// Note is a unit of scheduled webhook delivery work.
type Note struct {
	ID          string
	Title       string
	Body        string
	ReleaseAt   time.Time
	WebhookURL  string
	Status      Status
	Attempts    []Attempt
	DeliveredAt *time.Time
	LockedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (n *Note) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(n.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if l := len([]rune(n.Title)); l > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters (got %d)", ErrValidation, MaxTitleLength, l)
	}
	if l := len([]rune(n.Body)); l > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLength, l)
	}
	if n.ReleaseAt.IsZero() {
		return fmt.Errorf("%w: releaseAt is required", ErrValidation)
	}
	if err := validateWebhookURL(n.WebhookURL); err != nil {
		return err
	}
	return nil
}

func validateWebhookURL(raw string) error {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: invalid webhookUrl", ErrValidation)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: webhookUrl must use http or https", ErrValidation)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: webhookUrl host is required", ErrValidation)
	}
	return nil
}

// FailureCount returns the number of failed attempts in the note's history.
func (n *Note) FailureCount() int {
	count := 0
	for _, a := range n.Attempts {
		if !a.OK {
			count++
		}
	}
	return count
}

// Claim moves a due pending note into processing.
func (n *Note) Claim(now time.Time) error {
	if n.Status != StatusPending {
		return fmt.Errorf("%w: claim from %s", ErrInvalidTransition, n.Status)
	}
	lockedAt := now.UTC()
	n.Status = StatusProcessing
	n.LockedAt = &lockedAt
	return nil
}

// MarkDelivered records a successful attempt and closes the note.
func (n *Note) MarkDelivered(a Attempt, now time.Time) error {
	if n.Status != StatusProcessing {
		return fmt.Errorf("%w: deliver from %s", ErrInvalidTransition, n.Status)
	}
	if !a.OK {
		return fmt.Errorf("%w: delivered note needs a successful attempt", ErrValidation)
	}
	deliveredAt := now.UTC()
	n.Attempts = append(n.Attempts, a)
	n.Status = StatusDelivered
	n.DeliveredAt = &deliveredAt
	n.LockedAt = nil
	return nil
}

// ScheduleRetry records a failed attempt and puts the note back in the queue at releaseAt.
func (n *Note) ScheduleRetry(a Attempt, releaseAt time.Time) error {
	if n.Status != StatusProcessing {
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, n.Status)
	}
	if a.OK {
		return fmt.Errorf("%w: retry needs a failed attempt", ErrValidation)
	}
	releaseAt = NormalizeTime(releaseAt)
	if releaseAt.Before(n.ReleaseAt) {
		return fmt.Errorf("%w: releaseAt cannot move backward", ErrInvalidTransition)
	}
	n.Attempts = append(n.Attempts, a)
	n.Status = StatusPending
	n.ReleaseAt = releaseAt
	n.LockedAt = nil
	return nil
}

// MarkDead records the final failed attempt once retries are exhausted.
func (n *Note) MarkDead(a Attempt) error {
	if n.Status != StatusProcessing {
		return fmt.Errorf("%w: give up from %s", ErrInvalidTransition, n.Status)
	}
	if a.OK {
		return fmt.Errorf("%w: dead note needs a failed attempt", ErrValidation)
	}
	n.Attempts = append(n.Attempts, a)
	n.Status = StatusDead
	n.LockedAt = nil
	return nil
}

// Replay resets the note for immediate redelivery from any status. Attempts are kept.
func (n *Note) Replay(now time.Time) {
	n.Status = StatusPending
	n.ReleaseAt = NormalizeTime(now)
	n.LockedAt = nil
	n.DeliveredAt = nil
}

// Payload returns the JSON body sent to the webhook.
func (n *Note) Payload() DeliveryPayload {
	return DeliveryPayload{
		Title:     n.Title,
		Body:      n.Body,
		ReleaseAt: FormatReleaseAt(n.ReleaseAt),
	}
}

// DeliveryPayload is the wire body of a delivery.
type DeliveryPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	ReleaseAt string `json:"releaseAt"`
}
