package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/campushq/identity/internal/identity/domain"
	"github.com/campushq/identity/internal/identity/store"
	"github.com/campushq/identity/pkg/slogx"
)

// AttemptRecorder appends immutable login-attempt audit rows. Timestamps are
// truncated to the millisecond, which is also the collision granularity of
// the (user, attempted-at) key.
type AttemptRecorder struct {
	Store store.Store

	// Blocking makes a recording failure fail the login itself. Off by
	// default: audit loss is preferable to locking users out when the
	// attempts table misbehaves.
	Blocking bool
}

const (
	// attemptCollisionBudget bounds how many one-millisecond nudges resolve
	// a colliding (user, attempted-at) key. Collisions do not consume the
	// transient retry.
	attemptCollisionBudget = 4

	// attemptTransientRetries is how many extra writes follow a transient
	// store error.
	attemptTransientRetries = 1
)

// Record writes one attempt. A same-millisecond collision is nudged forward
// one millisecond rather than dropped or overwritten; a transient store
// error gets one retry before the attempt is logged and dropped.
func (r *AttemptRecorder) Record(ctx context.Context, userID string, success bool) error {
	l := slogx.FromContext(ctx)

	at := time.Now().UTC().Truncate(time.Millisecond)

	var err error
	collisions, transients := 0, 0
	for {
		err = r.Store.LoginAttempts().CreateLoginAttempt(ctx, domain.LoginAttempt{
			UserID:      userID,
			AttemptedAt: at,
			Success:     success,
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrAlreadyExists) {
			if collisions++; collisions > attemptCollisionBudget {
				break
			}
			at = at.Add(time.Millisecond)
			continue
		}
		if transients++; transients > attemptTransientRetries {
			break
		}
	}

	l.Warn("login attempt not recorded",
		slog.String("user_id", userID),
		slog.Bool("success", success),
		slog.Any("err", err),
	)
	if r.Blocking {
		return ErrServer
	}
	return nil
}
