package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/campushq/identity/pkg/jwtx"
	"github.com/campushq/identity/pkg/slogx"
)

// FingerprintValidator checks that the fingerprint presented in the session
// cookie still matches the session identified by sid. Token verification and
// fingerprint binding are independently checkable; both must pass here.
type FingerprintValidator func(ctx context.Context, sid, fingerprint string) error

// AuthnMiddleware verifies the bearer access token and, when a validator and
// cookie name are provided, the out-of-band fingerprint cookie. A verified
// token with a missing or mismatched fingerprint is rejected the same way as
// a bad token.
func AuthnMiddleware(codec *jwtx.Codec, cookieName string, validate FingerprintValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := codec.Verify(jwtx.KindAccess, raw)
			if err != nil {
				log.Warn("access token verification failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			if validate != nil {
				cookie, err := r.Cookie(cookieName)
				if err != nil || cookie.Value == "" {
					writeBearerError(w, "missing session fingerprint")
					return
				}
				if err := validate(ctx, claims.SID, cookie.Value); err != nil {
					log.Warn("session fingerprint mismatch", "sid", claims.SID)
					writeBearerError(w, "session fingerprint mismatch")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(ctx, claims)))
		})
	}
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyRoles, c.Roles)
	ctx = context.WithValue(ctx, CtxKeyTenant, c.TenantID)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// ClaimsFromCtx returns the verified claims placed by AuthnMiddleware.
func ClaimsFromCtx(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
