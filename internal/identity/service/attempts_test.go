package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/campushq/identity/internal/identity/domain"
	"github.com/campushq/identity/internal/identity/service"
	"github.com/campushq/identity/internal/identity/store"

	"github.com/stretchr/testify/require"
)

func TestAttemptRecorderDisambiguatesCollisions(t *testing.T) {
	s := newTestStore(t)
	user := createUser(t, s, "tenant-a", "busy", "b@example.edu", "pw-123456")
	rec := &service.AttemptRecorder{Store: s}

	// Several records inside the same millisecond must all land.
	for range 2 {
		require.NoError(t, rec.Record(t.Context(), user.ID, false))
	}

	attempts, err := s.LoginAttempts().ListLoginAttempts(t.Context(), user.ID, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
}

// failingAttempts simulates a store whose attempts table is down.
type failingAttempts struct {
	store.Store
	calls int
}

func (f *failingAttempts) LoginAttempts() store.LoginAttempts { return f }

func (f *failingAttempts) CreateLoginAttempt(ctx context.Context, a domain.LoginAttempt) error {
	f.calls++
	return errors.New("disk on fire")
}

func (f *failingAttempts) ListLoginAttempts(ctx context.Context, userID string, limit int) ([]domain.LoginAttempt, error) {
	return nil, errors.New("disk on fire")
}

// scriptedAttempts replays a canned error per call, then succeeds.
type scriptedAttempts struct {
	store.Store
	script []error
	calls  int
	last   domain.LoginAttempt
}

func (f *scriptedAttempts) LoginAttempts() store.LoginAttempts { return f }

func (f *scriptedAttempts) CreateLoginAttempt(ctx context.Context, a domain.LoginAttempt) error {
	f.calls++
	f.last = a
	if f.calls <= len(f.script) {
		return f.script[f.calls-1]
	}
	return nil
}

func (f *scriptedAttempts) ListLoginAttempts(ctx context.Context, userID string, limit int) ([]domain.LoginAttempt, error) {
	return nil, nil
}

func TestAttemptRecorderCollisionKeepsRetryBudget(t *testing.T) {
	// A timestamp collision must not eat the transient-error retry: nudge,
	// hit the transient failure, retry, land.
	scripted := &scriptedAttempts{
		Store:  newTestStore(t),
		script: []error{store.ErrAlreadyExists, errors.New("disk on fire")},
	}
	rec := &service.AttemptRecorder{Store: scripted, Blocking: true}

	require.NoError(t, rec.Record(t.Context(), "user-1", false))
	require.Equal(t, 3, scripted.calls)
}

func TestAttemptRecorderCollisionBudgetExhausts(t *testing.T) {
	collisions := make([]error, 6)
	for i := range collisions {
		collisions[i] = store.ErrAlreadyExists
	}
	scripted := &scriptedAttempts{Store: newTestStore(t), script: collisions}
	rec := &service.AttemptRecorder{Store: scripted, Blocking: true}

	require.ErrorIs(t, rec.Record(t.Context(), "user-1", false), service.ErrServer)
	require.Equal(t, 5, scripted.calls, "initial write plus four nudges")
}

func TestAttemptRecorderBestEffort(t *testing.T) {
	t.Run("non-blocking drops after one retry", func(t *testing.T) {
		failing := &failingAttempts{Store: newTestStore(t)}
		rec := &service.AttemptRecorder{Store: failing}

		require.NoError(t, rec.Record(t.Context(), "user-1", true))
		require.Equal(t, 2, failing.calls, "one retry before dropping")
	})

	t.Run("blocking surfaces a server error", func(t *testing.T) {
		failing := &failingAttempts{Store: newTestStore(t)}
		rec := &service.AttemptRecorder{Store: failing, Blocking: true}

		require.ErrorIs(t, rec.Record(t.Context(), "user-1", true), service.ErrServer)
	})
}
