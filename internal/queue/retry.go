package queue

import (
	"math"
	"time"

	"vitalsync/internal/models"
)

// RetryPolicy computes backoff delays tiered by operation priority:
// urgent operations retry sooner. Deterministic and side-effect-free.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelays  map[models.Priority]time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors the shipped configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelays: map[models.Priority]time.Duration{
			models.PriorityCritical: 2 * time.Second,
			models.PriorityHigh:     5 * time.Second,
			models.PriorityNormal:   15 * time.Second,
			models.PriorityLow:      60 * time.Second,
		},
		MaxDelay: 30 * time.Minute,
	}
}

// Delay returns the backoff before retry `attempt` (1-based) of an
// operation at the given priority: baseDelay(priority) * 2^(attempt-1),
// clamped to MaxDelay.
func (p RetryPolicy) Delay(priority models.Priority, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelays[priority]
	if base <= 0 {
		base = 15 * time.Second
	}

	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		d = base
	}
	return d
}
