package rate

import (
	"errors"
	"fmt"
)

var (
	// ErrIPLimitExceeded is returned once the IP's daily send budget is spent.
	ErrIPLimitExceeded = errors.New("ip daily sms limit exceeded")
	// ErrPhoneLimitExceeded is returned once the phone's daily send budget is spent.
	ErrPhoneLimitExceeded = errors.New("phone daily sms limit exceeded")
	// ErrTooFrequent matches any [TooFrequentError] via errors.Is.
	ErrTooFrequent = errors.New("sms send too frequent")
	// ErrRedisUnavailable wraps transport-level Redis faults.
	ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
)

// TooFrequentError reports a send inside the minimum interval, carrying
// the whole seconds left until the next send is allowed.
type TooFrequentError struct {
	RemainingSeconds int
}

func (e *TooFrequentError) Error() string {
	return fmt.Sprintf("sms send too frequent, retry in %d seconds", e.RemainingSeconds)
}

func (e *TooFrequentError) Unwrap() error { return ErrTooFrequent }
