package domain

import "time"

// UserType tags the principal class a user belongs to.
const (
	UserTypeLearner = "learner"
	UserTypeStaff   = "staff"
)

type User struct {
	ID           string
	TenantID     string
	Username     string
	Email        string
	UserType     string
	PasswordHash string // argon2id encoded
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
