package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/campushq/identity/internal/identity/domain"
	"github.com/campushq/identity/internal/identity/store"
	"github.com/campushq/identity/pkg/cryptox"
	"github.com/campushq/identity/pkg/idx"
	"github.com/campushq/identity/pkg/jwtx"
	"github.com/campushq/identity/pkg/slogx"
)

// SessionService owns the credential lifecycle: password login, refresh
// rotation, exchange-token redemption and invalidation. Stateless; all
// shared state lives in the store.
type SessionService struct {
	Codec    *jwtx.Codec
	Store    store.Store
	Attempts *AttemptRecorder
}

// SessionCredentials is what every successful issuance path returns. The
// fingerprint travels back in an HTTP-only cookie, never in the body.
type SessionCredentials struct {
	Pair        domain.TokenPair
	Fingerprint string
	Principal   domain.Principal
}

// Login authenticates a password credential and mints a fresh session.
func (s *SessionService) Login(ctx context.Context, tenantID, username, password string) (SessionCredentials, error) {
	l := slogx.FromContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return SessionCredentials{}, ErrValidation
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, tenantID, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SessionCredentials{}, ErrAuthenticationFailed
		}
		return SessionCredentials{}, err
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		l.Info("password verification failed",
			slog.String("user_id", user.ID),
			slog.String("tenant_id", tenantID),
		)
		if rerr := s.Attempts.Record(ctx, user.ID, false); rerr != nil {
			return SessionCredentials{}, rerr
		}
		return SessionCredentials{}, ErrAuthenticationFailed
	}

	if user.Disabled {
		l.Info("login rejected for disabled user", slog.String("user_id", user.ID))
		if rerr := s.Attempts.Record(ctx, user.ID, false); rerr != nil {
			return SessionCredentials{}, rerr
		}
		return SessionCredentials{}, ErrAuthenticationFailed
	}

	creds, err := s.startSession(ctx, user)
	if err != nil {
		return SessionCredentials{}, err
	}

	if rerr := s.Attempts.Record(ctx, user.ID, true); rerr != nil {
		return SessionCredentials{}, rerr
	}
	return creds, nil
}

// ExchangeToken redeems a one-time exchange token minted at the end of a
// federated login and returns the session it stands for. Blank input is a
// validation failure before any store access.
func (s *SessionService) ExchangeToken(ctx context.Context, opaqueToken string) (SessionCredentials, error) {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(opaqueToken) == "" {
		return SessionCredentials{}, ErrValidation
	}

	claims, err := s.Codec.Verify(jwtx.KindExchange, opaqueToken)
	if err != nil {
		l.Info("exchange token verification failed", slog.Any("err", err))
		return SessionCredentials{}, ErrAuthenticationFailed
	}

	// The jti is single-use; redemption deletes the backing key.
	_, err = s.Store.OneTimeKeys().RedeemOneTimeKey(ctx,
		cryptox.FingerprintToken(claims.ID), domain.KeyPurposeExchange)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Warn("exchange token replay or unknown jti", slog.String("user_id", claims.Subject))
			return SessionCredentials{}, ErrNotFound
		}
		return SessionCredentials{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SessionCredentials{}, ErrAuthenticationFailed
		}
		return SessionCredentials{}, err
	}
	if user.Disabled {
		return SessionCredentials{}, ErrAuthenticationFailed
	}

	creds, err := s.startSession(ctx, user)
	if err != nil {
		return SessionCredentials{}, err
	}

	if rerr := s.Attempts.Record(ctx, user.ID, true); rerr != nil {
		return SessionCredentials{}, rerr
	}
	return creds, nil
}

// Refresh rotates a refresh token: the presented token is consumed
// atomically and a replacement pair minted under the same session id. Every
// failure surfaces as AuthenticationFailed; rotation is never retried.
func (s *SessionService) Refresh(ctx context.Context, refreshToken, fingerprint string) (SessionCredentials, error) {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(refreshToken) == "" {
		return SessionCredentials{}, ErrValidation
	}

	claims, err := s.Codec.Verify(jwtx.KindRefresh, refreshToken)
	if err != nil {
		l.Info("refresh token verification failed", slog.Any("err", err))
		return SessionCredentials{}, ErrAuthenticationFailed
	}

	now := time.Now()

	var creds SessionCredentials
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		rec, err := tx.RefreshRecords().ConsumeRefreshRecord(ctx, claims.ID, now)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyConsumed) {
				// Reuse of a rotated token means the token leaked or the
				// client is broken. Either way the session is dead.
				l.Warn("refresh token reuse detected",
					slog.String("user_id", rec.UserID),
					slog.String("session_id", rec.SessionID),
				)
			}
			return ErrAuthenticationFailed
		}

		if !fingerprintMatches(rec.FingerprintHash, fingerprint) {
			l.Warn("refresh fingerprint mismatch",
				slog.String("user_id", rec.UserID),
				slog.String("session_id", rec.SessionID),
			)
			return ErrAuthenticationFailed
		}

		user, err := tx.Users().GetUserByID(ctx, rec.UserID)
		if err != nil {
			return ErrAuthenticationFailed
		}
		if user.Disabled {
			return ErrAuthenticationFailed
		}

		roles, err := tx.RBAC().GetRolesForUser(ctx, user.ID)
		if err != nil {
			return err
		}

		creds, err = s.issuePair(ctx, tx, user, roleNames(roles), rec.SessionID, now)
		return err
	})
	if err != nil {
		return SessionCredentials{}, err
	}
	return creds, nil
}

// Invalidate tears a session down: the refresh record is consumed even if
// still live. Storage faults surface as ErrServer since a half-completed
// invalidate leaves an exploitable session.
func (s *SessionService) Invalidate(ctx context.Context, principal domain.Principal, refreshToken string) error {
	l := slogx.FromContext(ctx)

	claims, err := s.Codec.Verify(jwtx.KindRefresh, refreshToken)
	if err != nil {
		return ErrAuthenticationFailed
	}
	if claims.Subject != principal.UserID {
		l.Warn("invalidate called with foreign refresh token",
			slog.String("caller", principal.UserID),
			slog.String("token_subject", claims.Subject),
		)
		return ErrAuthenticationFailed
	}

	_, err = s.Store.RefreshRecords().ConsumeRefreshRecord(ctx, claims.ID, time.Now())
	switch {
	case err == nil, errors.Is(err, store.ErrAlreadyConsumed):
		// Already-consumed is fine: the session is equally dead.
		return nil
	case errors.Is(err, store.ErrExpired):
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrAuthenticationFailed
	default:
		l.Error("invalidate failed to consume refresh record", slog.Any("err", err))
		return ErrServer
	}
}

// ValidateFingerprint checks the cookie-delivered fingerprint against the
// live record for the token's session. Fed into the authn middleware.
func (s *SessionService) ValidateFingerprint(ctx context.Context, sid, fingerprint string) error {
	rec, err := s.Store.RefreshRecords().GetActiveSessionRecord(ctx, sid, time.Now())
	if err != nil {
		return ErrAuthenticationFailed
	}
	if !fingerprintMatches(rec.FingerprintHash, fingerprint) {
		return ErrAuthenticationFailed
	}
	return nil
}

// StartSessionForUser mints a brand-new session for an externally
// authenticated user. Used by the federation flow after code exchange.
func (s *SessionService) StartSessionForUser(ctx context.Context, user domain.User) (SessionCredentials, error) {
	return s.startSession(ctx, user)
}

func (s *SessionService) startSession(ctx context.Context, user domain.User) (SessionCredentials, error) {
	now := time.Now()

	roles, err := s.Store.RBAC().GetRolesForUser(ctx, user.ID)
	if err != nil {
		return SessionCredentials{}, err
	}

	var creds SessionCredentials
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		creds, err = s.issuePair(ctx, tx, user, roleNames(roles), idx.New().String(), now)
		return err
	})
	if err != nil {
		return SessionCredentials{}, err
	}
	return creds, nil
}

// issuePair mints the access/refresh pair plus fingerprint and persists the
// refresh footprint. The refresh token's jti doubles as the record id.
func (s *SessionService) issuePair(ctx context.Context, tx store.Tx, user domain.User, roles []string, sessionID string, now time.Time) (SessionCredentials, error) {
	accessTTL := s.Codec.TTL(jwtx.KindAccess)
	refreshTTL := s.Codec.TTL(jwtx.KindRefresh)

	accessClaims := jwtx.NewClaims(user.ID, sessionID, now, accessTTL)
	accessClaims.Username = user.Username
	accessClaims.UserType = user.UserType
	accessClaims.TenantID = user.TenantID
	accessClaims.Roles = roles

	accessToken, err := s.Codec.Issue(jwtx.KindAccess, accessClaims)
	if err != nil {
		return SessionCredentials{}, err
	}

	refreshClaims := jwtx.NewClaims(user.ID, sessionID, now, refreshTTL)
	refreshToken, err := s.Codec.Issue(jwtx.KindRefresh, refreshClaims)
	if err != nil {
		return SessionCredentials{}, err
	}

	fingerprint, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return SessionCredentials{}, err
	}

	rec := domain.RefreshRecord{
		ID:              refreshClaims.ID,
		UserID:          user.ID,
		TenantID:        user.TenantID,
		SessionID:       sessionID,
		FingerprintHash: cryptox.FingerprintToken(fingerprint),
		IssuedAt:        now,
		ExpiresAt:       now.Add(refreshTTL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.RefreshRecords().CreateRefreshRecord(ctx, rec); err != nil {
		return SessionCredentials{}, err
	}

	return SessionCredentials{
		Pair: domain.TokenPair{
			AccessToken:      accessToken,
			AccessExpiresAt:  now.Add(accessTTL),
			RefreshToken:     refreshToken,
			RefreshExpiresAt: now.Add(refreshTTL),
			TokenType:        "Bearer",
		},
		Fingerprint: fingerprint,
		Principal: domain.Principal{
			UserID:   user.ID,
			Username: user.Username,
			UserType: user.UserType,
			TenantID: user.TenantID,
			Roles:    roles,
		},
	}, nil
}

func fingerprintMatches(storedHash, presented string) bool {
	if presented == "" || storedHash == "" {
		return false
	}
	computed := cryptox.FingerprintToken(presented)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(computed)) == 1
}

func roleNames(roles []domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.Name)
	}
	return out
}
