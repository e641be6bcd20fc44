package expiration

import (
	"time"

	"github.com/eddiefleurent/covered_call/internal/market"
	"github.com/eddiefleurent/covered_call/internal/models"
)

// Resolver validates requested expirations against the exchange clock.
type Resolver struct {
	Session market.Session
}

// NewResolver returns a Resolver for session.
func NewResolver(session market.Session) *Resolver {
	return &Resolver{Session: session}
}

// Resolve validates requested (or, when empty, the earliest bucketed date) and
// returns it sanitized to yyyy-MM-dd.
//
// The date is normalized to the session close on that calendar day and must not
// be before now. When buckets is non-empty the sanitized date must be one of its
// members; with no buckets any future date is accepted.
func (r *Resolver) Resolve(requested string, buckets [][]time.Time, now time.Time) (string, error) {
	if requested == "" {
		if len(buckets) == 0 || len(buckets[0]) == 0 {
			return "", models.NewError(models.KindInvalidExpirationDate, "")
		}
		requested = buckets[0][0].Format(DateLayout)
	}

	d, err := ParseDate(requested, r.Session.Location)
	if err != nil {
		return "", err
	}

	closeAt := r.Session.CloseOn(d)
	if closeAt.Before(now.In(r.Session.Location)) {
		return "", models.NewError(models.KindDateAlreadyPassed, requested)
	}

	sanitized := closeAt.Format(DateLayout)
	if len(buckets) == 0 {
		return sanitized, nil
	}
	for _, b := range buckets {
		for _, ex := range b {
			if ex.Format(DateLayout) == sanitized {
				return sanitized, nil
			}
		}
	}
	return "", models.NewError(models.KindInvalidExpirationDate, sanitized)
}
