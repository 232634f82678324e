package domain

import "time"

// LoginAttempt is an immutable audit record of one login attempt. The
// (UserID, AttemptedAt) pair is unique; same-millisecond collisions are
// disambiguated by the recorder, never overwritten.
type LoginAttempt struct {
	UserID      string
	AttemptedAt time.Time
	Success     bool
}
