package academy

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Status is the subscription status of an Academy.
type Status string

const (
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusExpired      Status = "expired"
	// StatusUnknown is rendered when the expiry date is missing.
	StatusUnknown Status = "unknown"
)

// ExpiringSoonDays is the inclusive upper bound of days remaining for a subscription to be expiring soon.
const ExpiringSoonDays = 10

var (
	NowFunc = time.Now // mockable

	ErrMissingExpiryDate = errors.New("missing subscription expiry date")
)

// Subscription is the evaluated subscription of an Academy.
// DaysRemaining is not clamped: an academy that expired 3 days ago has -3 days remaining.
type Subscription struct {
	Status        Status `json:"status"`
	DaysRemaining int    `json:"days_remaining"`
}

// DaysUntil returns the number of days from now to expiry, rounded up:
// 9 days and 12 hours count as 10 days, minus 1 day counts as -1.
func DaysUntil(expiry, now time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Hours() / 24))
}

// Evaluate classifies a subscription expiring at `expiry` as seen at `now`.
// A missing expiry date returns ErrMissingExpiryDate along with a StatusUnknown Subscription.
func Evaluate(expiry Date, now time.Time) (Subscription, error) {
	if !expiry.Valid {
		return Subscription{Status: StatusUnknown}, ErrMissingExpiryDate
	}

	days := DaysUntil(expiry.Time.Time, now)
	switch {
	case days <= 0:
		return Subscription{Status: StatusExpired, DaysRemaining: days}, nil
	case days <= ExpiringSoonDays:
		return Subscription{Status: StatusExpiringSoon, DaysRemaining: days}, nil
	default:
		return Subscription{Status: StatusActive, DaysRemaining: days}, nil
	}
}

// EvaluateNow is Evaluate at NowFunc().
func EvaluateNow(expiry Date) (Subscription, error) {
	return Evaluate(expiry, NowFunc())
}
