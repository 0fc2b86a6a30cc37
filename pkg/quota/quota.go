// Package quota limits how many questions a student may ask per day or month.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jajabor-ai/tutor/pkg/models"
)

// ErrQuotaExceeded is returned when a student has used up a quota.
var ErrQuotaExceeded = errors.New("question quota exceeded")

// Counter counts the questions a student asked since a point in time.
type Counter interface {
	CountSince(ctx context.Context, userEmail string, since time.Time) (int, error)
}

// Enforcer checks question counts against quota policies.
type Enforcer struct {
	policies []models.QuotaPolicy
	counter  Counter
	now      func() time.Time
}

// New creates an Enforcer. A nil Enforcer allows everything.
func New(policies []models.QuotaPolicy, c Counter) *Enforcer {
	return &Enforcer{policies: policies, counter: c, now: time.Now}
}

// Check returns ErrQuotaExceeded if user has reached any applicable policy.
func (e *Enforcer) Check(ctx context.Context, user string) error {
	if e == nil || e.counter == nil {
		return nil
	}
	for _, p := range e.policiesFor(user) {
		used, err := e.counter.CountSince(ctx, user, periodStart(p.Period, e.now()))
		if err != nil {
			return fmt.Errorf("quota check: %w", err)
		}
		if used >= p.MaxQuestions {
			return ErrQuotaExceeded
		}
	}
	return nil
}

// Status returns usage against every policy that applies to user.
func (e *Enforcer) Status(ctx context.Context, user string) ([]models.QuotaStatus, error) {
	if e == nil || e.counter == nil {
		return nil, nil
	}
	policies := e.policiesFor(user)
	statuses := make([]models.QuotaStatus, 0, len(policies))
	for _, p := range policies {
		used, err := e.counter.CountSince(ctx, user, periodStart(p.Period, e.now()))
		if err != nil {
			return nil, fmt.Errorf("quota status: %w", err)
		}
		statuses = append(statuses, models.QuotaStatus{
			Policy:    p,
			Used:      used,
			Remaining: max(p.MaxQuestions-used, 0),
		})
	}
	return statuses, nil
}

func (e *Enforcer) policiesFor(user string) []models.QuotaPolicy {
	var result []models.QuotaPolicy
	for _, p := range e.policies {
		if p.User == "*" || p.User == user {
			result = append(result, p)
		}
	}
	return result
}

func periodStart(period models.QuotaPeriod, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case models.QuotaMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
