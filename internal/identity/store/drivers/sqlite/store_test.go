package sqlite_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/campushq/identity/internal/identity/domain"
	"github.com/campushq/identity/internal/identity/store"
	"github.com/campushq/identity/internal/identity/store/drivers/sqlite"
	"github.com/campushq/identity/pkg/idx"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "identity.db")
	s, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func seedUser(t *testing.T, s *sqlite.Store, tenantID, username, email string) domain.User {
	t.Helper()

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenantID,
		Username:     username,
		Email:        email,
		UserType:     domain.UserTypeLearner,
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.Users().CreateUser(t.Context(), u))
	return u
}

func TestUsersRepo(t *testing.T) {
	s := newTestStore(t)
	u := seedUser(t, s, "tenant-a", "alice", "Alice@Example.EDU")

	t.Run("get by id", func(t *testing.T) {
		got, err := s.Users().GetUserByID(t.Context(), u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Username, got.Username)
	})

	t.Run("get by username scoped to tenant", func(t *testing.T) {
		_, err := s.Users().GetUserByUsername(t.Context(), "tenant-a", "alice")
		require.NoError(t, err)

		_, err = s.Users().GetUserByUsername(t.Context(), "tenant-b", "alice")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("email lookup is case-insensitive", func(t *testing.T) {
		got, err := s.Users().GetUserByEmail(t.Context(), "tenant-a", "alice@example.edu")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		dup := u
		dup.ID = idx.New().String()
		dup.Email = "other@example.edu"
		err := s.Users().CreateUser(t.Context(), dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})
}

func seedRefreshRecord(t *testing.T, s *sqlite.Store, userID string, expiresAt time.Time) domain.RefreshRecord {
	t.Helper()

	now := time.Now().UTC()
	rec := domain.RefreshRecord{
		ID:              idx.New().String(),
		UserID:          userID,
		TenantID:        "tenant-a",
		SessionID:       idx.New().String(),
		FingerprintHash: "fp-hash",
		IssuedAt:        now,
		ExpiresAt:       expiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.RefreshRecords().CreateRefreshRecord(t.Context(), rec))
	return rec
}

func TestConsumeRefreshRecord(t *testing.T) {
	s := newTestStore(t)
	u := seedUser(t, s, "tenant-a", "bob", "bob@example.edu")

	t.Run("consume once then reuse is flagged", func(t *testing.T) {
		rec := seedRefreshRecord(t, s, u.ID, time.Now().Add(time.Hour))

		got, err := s.RefreshRecords().ConsumeRefreshRecord(t.Context(), rec.ID, time.Now())
		require.NoError(t, err)
		require.True(t, got.Consumed)
		require.Equal(t, rec.SessionID, got.SessionID)

		_, err = s.RefreshRecords().ConsumeRefreshRecord(t.Context(), rec.ID, time.Now())
		require.ErrorIs(t, err, store.ErrAlreadyConsumed)
	})

	t.Run("expired record", func(t *testing.T) {
		rec := seedRefreshRecord(t, s, u.ID, time.Now().Add(-time.Minute))

		_, err := s.RefreshRecords().ConsumeRefreshRecord(t.Context(), rec.ID, time.Now())
		require.ErrorIs(t, err, store.ErrExpired)
	})

	t.Run("unknown record", func(t *testing.T) {
		_, err := s.RefreshRecords().ConsumeRefreshRecord(t.Context(), idx.New().String(), time.Now())
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("exactly one concurrent winner", func(t *testing.T) {
		rec := seedRefreshRecord(t, s, u.ID, time.Now().Add(time.Hour))

		const contenders = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range contenders {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.RefreshRecords().ConsumeRefreshRecord(t.Context(), rec.ID, time.Now())
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, wins, "exactly one consumer should win")
	})
}

func TestGetActiveSessionRecord(t *testing.T) {
	s := newTestStore(t)
	u := seedUser(t, s, "tenant-a", "carol", "carol@example.edu")

	rec := seedRefreshRecord(t, s, u.ID, time.Now().Add(time.Hour))

	got, err := s.RefreshRecords().GetActiveSessionRecord(t.Context(), rec.SessionID, time.Now())
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)

	_, err = s.RefreshRecords().ConsumeRefreshRecord(t.Context(), rec.ID, time.Now())
	require.NoError(t, err)

	_, err = s.RefreshRecords().GetActiveSessionRecord(t.Context(), rec.SessionID, time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOneTimeKeysRepo(t *testing.T) {
	s := newTestStore(t)

	k := domain.OneTimeKey{
		KeyHash:   "abc123",
		Purpose:   domain.KeyPurposeSSOState,
		TenantID:  "tenant-a",
		Context:   "campus-idp",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.OneTimeKeys().CreateOneTimeKey(t.Context(), k))

	t.Run("wrong purpose does not redeem", func(t *testing.T) {
		_, err := s.OneTimeKeys().RedeemOneTimeKey(t.Context(), "abc123", domain.KeyPurposeExchange)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("redeems exactly once", func(t *testing.T) {
		got, err := s.OneTimeKeys().RedeemOneTimeKey(t.Context(), "abc123", domain.KeyPurposeSSOState)
		require.NoError(t, err)
		require.Equal(t, "campus-idp", got.Context)

		_, err = s.OneTimeKeys().RedeemOneTimeKey(t.Context(), "abc123", domain.KeyPurposeSSOState)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func seedFederation(t *testing.T, s *sqlite.Store, name string, position int, domains ...string) domain.Federation {
	t.Helper()

	now := time.Now().UTC()
	f := domain.Federation{
		ID:           idx.New().String(),
		TenantID:     "tenant-a",
		Name:         name,
		AuthURL:      "https://idp.example.edu/authorize",
		TokenURL:     "https://idp.example.edu/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://sso.example.edu/callback",
		Scopes:       []string{"openid", "email"},
		AuthMethod:   domain.AuthMethodSecretPost,
		EmailDomains: domains,
		Position:     position,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.Federations().CreateFederation(t.Context(), f))
	return f
}

func TestFederationsRepo(t *testing.T) {
	s := newTestStore(t)

	seedFederation(t, s, "Campus", 1, "example.edu")
	seedFederation(t, s, "Partner", 0, "partner.org", "example.edu")

	t.Run("name lookup is case-insensitive", func(t *testing.T) {
		got, err := s.Federations().GetFederationByName(t.Context(), "tenant-a", "campus")
		require.NoError(t, err)
		require.Equal(t, "Campus", got.Name)
		require.Equal(t, []string{"openid", "email"}, got.Scopes)
	})

	t.Run("duplicate name rejected case-insensitively", func(t *testing.T) {
		f := seedFederation(t, s, "Uniq", 5)
		f.ID = idx.New().String()
		f.Name = "UNIQ"
		err := s.Federations().CreateFederation(t.Context(), f)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("list orders by position", func(t *testing.T) {
		list, err := s.Federations().ListFederations(t.Context(), "tenant-a")
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(list), 2)
		require.Equal(t, "Partner", list[0].Name)
		require.Equal(t, "Campus", list[1].Name)
		require.Equal(t, []string{"partner.org", "example.edu"}, list[0].EmailDomains)
	})
}

func TestRBACRepo(t *testing.T) {
	s := newTestStore(t)
	u := seedUser(t, s, "tenant-a", "dave", "dave@example.edu")

	now := time.Now().UTC()
	role := domain.Role{
		ID:        idx.New().String(),
		TenantID:  "tenant-a",
		Name:      "course-admin",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.RBAC().CreateRole(t.Context(), role))
	require.NoError(t, s.RBAC().AssignRole(t.Context(), u.ID, role.ID))

	t.Run("roles for user", func(t *testing.T) {
		roles, err := s.RBAC().GetRolesForUser(t.Context(), u.ID)
		require.NoError(t, err)
		require.Len(t, roles, 1)
		require.Equal(t, "course-admin", roles[0].Name)
	})

	t.Run("duplicate grant triple rejected", func(t *testing.T) {
		g := domain.AccessGrant{
			ID:          idx.New().String(),
			RoleID:      role.ID,
			AccessType:  "course",
			ReferenceID: "course-42",
			GrantedBy:   u.ID,
			GrantedAt:   now,
		}
		require.NoError(t, s.RBAC().CreateAccessGrant(t.Context(), g))

		g.ID = idx.New().String()
		err := s.RBAC().CreateAccessGrant(t.Context(), g)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("grants for roles", func(t *testing.T) {
		grants, err := s.RBAC().ListAccessGrantsForRoles(t.Context(), []string{role.ID})
		require.NoError(t, err)
		require.Len(t, grants, 1)
		require.Equal(t, "course-42", grants[0].ReferenceID)

		grants, err = s.RBAC().ListAccessGrantsForRoles(t.Context(), nil)
		require.NoError(t, err)
		require.Empty(t, grants)
	})
}

func TestLoginAttemptsRepo(t *testing.T) {
	s := newTestStore(t)
	u := seedUser(t, s, "tenant-a", "erin", "erin@example.edu")

	at := time.Now().UTC().Truncate(time.Millisecond)
	a := domain.LoginAttempt{UserID: u.ID, AttemptedAt: at, Success: false}
	require.NoError(t, s.LoginAttempts().CreateLoginAttempt(t.Context(), a))

	t.Run("same instant collides", func(t *testing.T) {
		err := s.LoginAttempts().CreateLoginAttempt(t.Context(), a)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("millisecond nudge succeeds", func(t *testing.T) {
		nudged := domain.LoginAttempt{UserID: u.ID, AttemptedAt: at.Add(time.Millisecond), Success: true}
		require.NoError(t, s.LoginAttempts().CreateLoginAttempt(t.Context(), nudged))

		list, err := s.LoginAttempts().ListLoginAttempts(t.Context(), u.ID, 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.True(t, list[0].AttemptedAt.After(list[1].AttemptedAt), "newest first")
	})
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)

	boom := domainErr("boom")
	err := s.WithTx(t.Context(), func(tx store.Tx) error {
		now := time.Now().UTC()
		u := domain.User{
			ID:           idx.New().String(),
			TenantID:     "tenant-a",
			Username:     "ghost",
			Email:        "ghost@example.edu",
			UserType:     domain.UserTypeStaff,
			PasswordHash: "x",
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Users().CreateUser(t.Context(), u); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Users().GetUserByUsername(t.Context(), "tenant-a", "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
}

type domainErr string

func (e domainErr) Error() string { return string(e) }
