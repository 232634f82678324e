package service

import "errors"

// Caller-visible failure taxonomy. Handlers map these onto status codes;
// anything else escaping a service is an internal fault.
var (
	// ErrAuthenticationFailed covers bad credentials and expired, invalid
	// or reused tokens. Detail is logged, never echoed to the caller.
	ErrAuthenticationFailed = errors.New("authentication_failed")

	// ErrValidation rejects malformed input before any store or network
	// side effect.
	ErrValidation = errors.New("validation_failed")

	// ErrNotFound covers unknown federations, unresolved email domains and
	// unknown exchange tokens.
	ErrNotFound = errors.New("not_found")

	// ErrServer flags storage faults during invalidation or rotation. A
	// half-completed invalidate leaves a live session, so it is always
	// reported, never swallowed.
	ErrServer = errors.New("server_error")
)
