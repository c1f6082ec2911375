package retry

import (
	"fmt"
	"strings"
	"time"
)

const DefaultMaxRetries = 3

// DefaultBackoff is the delay table used when none is configured.
var DefaultBackoff = []time.Duration{time.Second, 5 * time.Second, 25 * time.Second}

// Decision is the action taken after a failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy maps the number of failed attempts to the next action.
type Policy struct {
	maxRetries int
	backoff    []time.Duration
}

func NewPolicy(maxRetries int, backoff []time.Duration) (*Policy, error) {
	if maxRetries < 1 {
		return nil, fmt.Errorf("max retries must be >= 1, got %d", maxRetries)
	}
	if len(backoff) == 0 {
		return nil, fmt.Errorf("backoff schedule must not be empty")
	}
	for i, d := range backoff {
		if d <= 0 {
			return nil, fmt.Errorf("backoff[%d] must be positive, got %s", i, d)
		}
	}

	return &Policy{
		maxRetries: maxRetries,
		backoff:    append([]time.Duration(nil), backoff...),
	}, nil
}

func DefaultPolicy() *Policy {
	p, _ := NewPolicy(DefaultMaxRetries, DefaultBackoff)
	return p
}

func (p *Policy) MaxRetries() int { return p.maxRetries }

// Delay returns the backoff for the k-th failure (1-indexed). The last entry covers any overflow.
func (p *Policy) Delay(failures int) time.Duration {
	idx := failures - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(p.backoff)-1 {
		idx = len(p.backoff) - 1
	}
	return p.backoff[idx]
}

// Decide returns retry-with-delay while failures < max retries, give up otherwise.
func (p *Policy) Decide(failures int) Decision {
	if failures < p.maxRetries {
		return Decision{Retry: true, Delay: p.Delay(failures)}
	}
	return Decision{}
}

// ParseSchedule parses a comma-separated list of durations such as "1s,5s,25s".
func ParseSchedule(raw string) ([]time.Duration, error) {
	parts := strings.Split(raw, ",")
	schedule := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid backoff entry %q: %w", part, err)
		}
		schedule = append(schedule, d)
	}
	if len(schedule) == 0 {
		return nil, fmt.Errorf("backoff schedule is empty")
	}
	return schedule, nil
}
