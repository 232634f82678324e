package service_test

import (
	"testing"

	"github.com/campushq/identity/internal/identity/service"
	"github.com/campushq/identity/internal/identity/store"

	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	s := newTestStore(t)
	svc := &service.AuthorizeService{Store: s}
	user := createUser(t, s, "tenant-a", "grantee", "g@example.edu", "pw-123456")

	role, err := svc.CreateRole(t.Context(), "tenant-a", "course-admin")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(t.Context(), user.ID, role.ID))

	_, err = svc.Grant(t.Context(), role.ID, "course", "", "admin")
	require.ErrorIs(t, err, service.ErrValidation, "blank reference is rejected before the store")
	_, err = svc.Grant(t.Context(), role.ID, "course", "course-42", "admin")
	require.NoError(t, err)

	t.Run("granted triple allows", func(t *testing.T) {
		d, err := svc.Authorize(t.Context(), user.ID, "course", "course-42")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, user.ID, d.UserID)
		require.Contains(t, d.Roles, "course-admin")
	})

	t.Run("ungranted triple denies without error", func(t *testing.T) {
		d, err := svc.Authorize(t.Context(), user.ID, "course", "course-99")
		require.NoError(t, err)
		require.False(t, d.Allowed)
	})

	t.Run("unknown principal fails authentication", func(t *testing.T) {
		_, err := svc.Authorize(t.Context(), "ghost", "course", "course-42")
		require.ErrorIs(t, err, service.ErrAuthenticationFailed)
	})

	t.Run("duplicate grant triple rejected at write", func(t *testing.T) {
		_, err := svc.Grant(t.Context(), role.ID, "course", "course-42", "admin")
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("blank capability fails validation", func(t *testing.T) {
		_, err := svc.Authorize(t.Context(), user.ID, "", "")
		require.ErrorIs(t, err, service.ErrValidation)
	})
}
