package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/campushq/identity/internal/identity/domain"
	identityhttp "github.com/campushq/identity/internal/identity/http"
	"github.com/campushq/identity/internal/identity/idp"
	"github.com/campushq/identity/internal/identity/service"
	"github.com/campushq/identity/internal/identity/store/drivers/sqlite"
	"github.com/campushq/identity/pkg/cryptox"
	"github.com/campushq/identity/pkg/httpx"
	"github.com/campushq/identity/pkg/idx"
	"github.com/campushq/identity/pkg/jwtx"
	"github.com/campushq/identity/pkg/slogx"

	gocache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Password hashing needs a pepper file before the first HashPassword call.
	pepperPath := filepath.Join(os.TempDir(), "identity-http-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

type fixture struct {
	router *identityhttp.Router
	store  *sqlite.Store
	cookie httpx.CookieConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	codec, err := jwtx.NewCodec(map[jwtx.Kind]jwtx.KeyConfig{
		jwtx.KindAccess: {
			Secret:   []byte("access-secret-0123456789-0123456789"),
			Issuer:   "identity-test",
			Audience: []string{"campus-api"},
			TTL:      time.Minute,
		},
		jwtx.KindRefresh: {
			Secret:   []byte("refresh-secret-0123456789-0123456789"),
			Issuer:   "identity-test",
			Audience: []string{"identity-test"},
			TTL:      time.Hour,
		},
		jwtx.KindExchange: {
			Secret:   []byte("exchange-secret-0123456789-0123456789"),
			Issuer:   "identity-test",
			Audience: []string{"identity-test"},
			TTL:      2 * time.Minute,
		},
	})
	require.NoError(t, err)

	cookie := httpx.CookieConfig{Name: "__session_fp", SameSite: "strict", TTL: time.Hour}

	sessions := &service.SessionService{
		Codec:    codec,
		Store:    s,
		Attempts: &service.AttemptRecorder{Store: s},
	}

	logger := slogx.New(slogx.Config{Level: "error", Format: "text"})
	router := identityhttp.NewRouter(codec, cookie, "test", s, logger)
	router.SessionService = sessions
	router.FederationService = &service.FederationService{
		Store:    s,
		IdP:      idp.NewClient(),
		Codec:    codec,
		Cache:    gocache.New(time.Second, time.Minute),
		StateTTL: time.Minute,
	}
	router.AuthorizeService = &service.AuthorizeService{Store: s}
	router.ApplyRoutes()

	return &fixture{router: router, store: s, cookie: cookie}
}

func (f *fixture) createUser(t *testing.T, username, password string, roles ...string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	now := time.Now().UTC()
	u := domain.User{
		ID:           idx.New().String(),
		TenantID:     "tenant-a",
		Username:     username,
		Email:        username + "@example.edu",
		UserType:     domain.UserTypeStaff,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.store.Users().CreateUser(t.Context(), u))

	for _, name := range roles {
		role := domain.Role{
			ID:        idx.New().String(),
			TenantID:  "tenant-a",
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, f.store.RBAC().CreateRole(t.Context(), role))
		require.NoError(t, f.store.RBAC().AssignRole(t.Context(), u.ID, role.ID))
	}
	return u
}

func (f *fixture) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

// login runs the full login round trip and returns the token response plus
// the fingerprint cookie.
func (f *fixture) login(t *testing.T, username, password string) (identityhttp.TokenResponse, *http.Cookie) {
	t.Helper()

	rr := f.do(t, http.MethodPost, "/v1/sessions/login", map[string]string{
		"tenant_id": "tenant-a",
		"username":  username,
		"password":  password,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var tokens identityhttp.TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tokens))

	var fp *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == f.cookie.Name {
			fp = c
		}
	}
	require.NotNil(t, fp, "login must bind the fingerprint cookie")
	return tokens, fp
}

func TestLoginEndpoint(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice", "pw-123456")

	t.Run("success sets cookie and returns pair", func(t *testing.T) {
		tokens, fp := f.login(t, "alice", "pw-123456")
		require.NotEmpty(t, tokens.AccessToken)
		require.NotEmpty(t, tokens.RefreshToken)
		require.Equal(t, "Bearer", tokens.TokenType)
		require.True(t, fp.HttpOnly)
		require.NotContains(t, tokens.AccessToken, fp.Value,
			"fingerprint never rides inside the token")
	})

	t.Run("bad password is unauthorized", func(t *testing.T) {
		rr := f.do(t, http.MethodPost, "/v1/sessions/login", map[string]string{
			"tenant_id": "tenant-a",
			"username":  "alice",
			"password":  "nope",
		})
		require.Equal(t, http.StatusUnauthorized, rr.Code)

		var resp identityhttp.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, "authentication_failed", resp.Error)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "bob", "pw-123456")
	tokens, fp := f.login(t, "bob", "pw-123456")

	t.Run("refresh with cookie rotates the pair", func(t *testing.T) {
		rr := f.do(t, http.MethodPost, "/v1/sessions/refresh",
			map[string]string{"refresh_token": tokens.RefreshToken},
			func(r *http.Request) { r.AddCookie(fp) },
		)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var next identityhttp.TokenResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &next))
		require.NotEqual(t, tokens.RefreshToken, next.RefreshToken)

		// The old refresh token is spent.
		rr = f.do(t, http.MethodPost, "/v1/sessions/refresh",
			map[string]string{"refresh_token": tokens.RefreshToken},
			func(r *http.Request) { r.AddCookie(fp) },
		)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("refresh without the cookie fails", func(t *testing.T) {
		fresh, _ := f.login(t, "bob", "pw-123456")
		rr := f.do(t, http.MethodPost, "/v1/sessions/refresh",
			map[string]string{"refresh_token": fresh.RefreshToken})
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestInvalidateEndpoint(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "carol", "pw-123456")
	tokens, fp := f.login(t, "carol", "pw-123456")

	auth := func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		r.AddCookie(fp)
	}

	rr := f.do(t, http.MethodPost, "/v1/sessions/invalidate",
		map[string]string{"refresh_token": tokens.RefreshToken}, auth)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	// The dead refresh token no longer rotates.
	rr = f.do(t, http.MethodPost, "/v1/sessions/refresh",
		map[string]string{"refresh_token": tokens.RefreshToken},
		func(r *http.Request) { r.AddCookie(fp) },
	)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestExchangeEndpointValidation(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/sessions/exchange", map[string]string{"token": ""})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp identityhttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "validation_failed", resp.Error, "blank token is a validation error, not auth")
}

func TestAuthorizeEndpoint(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "dave", "pw-123456", "admin")
	tokens, fp := f.login(t, "dave", "pw-123456")

	auth := func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		r.AddCookie(fp)
	}

	// Guarded endpoints reject a bare token without the cookie.
	rr := f.do(t, http.MethodPost, "/v1/authorize",
		map[string]string{"access_type": "course", "reference_id": "course-1"},
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tokens.AccessToken) },
	)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// Create a role, grant it, assign it, then check the decision.
	rr = f.do(t, http.MethodPost, "/v1/roles",
		map[string]string{"tenant_id": "tenant-a", "name": "course-admin"}, auth)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var role struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &role))

	rr = f.do(t, http.MethodPost, "/v1/roles/"+role.ID+"/grants",
		map[string]string{"access_type": "course", "reference_id": "course-1"}, auth)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodPost, "/v1/roles/"+role.ID+"/assign",
		map[string]string{"user_id": user.ID}, auth)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodPost, "/v1/authorize",
		map[string]string{"access_type": "course", "reference_id": "course-1"}, auth)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var decision service.Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decision))
	require.True(t, decision.Allowed)
	require.Equal(t, user.ID, decision.UserID)

	// Duplicate grant is a conflict.
	rr = f.do(t, http.MethodPost, "/v1/roles/"+role.ID+"/grants",
		map[string]string{"access_type": "course", "reference_id": "course-1"}, auth)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestFederationEndpoints(t *testing.T) {
	f := newFixture(t)

	now := time.Now().UTC()
	fed := domain.Federation{
		ID:           idx.New().String(),
		TenantID:     "tenant-a",
		Name:         "Campus",
		AuthURL:      "https://idp.example.edu/authorize",
		TokenURL:     "https://idp.example.edu/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://sso.example.edu/callback",
		Scopes:       []string{"openid", "email"},
		AuthMethod:   domain.AuthMethodSecretPost,
		EmailDomains: []string{"example.edu"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.store.Federations().CreateFederation(t.Context(), fed))

	t.Run("find routes by email domain", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, "/v1/federations/find?tenant_id=tenant-a&email=user%40Example.EDU", nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var match service.FederationMatchResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &match))
		require.Equal(t, "Campus", match.FederationName)
		require.Equal(t, service.FederationMatch, match.Status)
	})

	t.Run("unclaimed domain is 404 with no-match body", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, "/v1/federations/find?tenant_id=tenant-a&email=user%40other.net", nil)
		require.Equal(t, http.StatusNotFound, rr.Code)

		var match service.FederationMatchResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &match))
		require.Equal(t, service.FederationNoMatch, match.Status)
		require.Empty(t, match.FederationName)
	})

	t.Run("url endpoint returns the provider redirect", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, "/v1/federations/Campus/url?tenant_id=tenant-a", nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Contains(t, resp["redirect_url"], "https://idp.example.edu/authorize?")
		require.Contains(t, resp["redirect_url"], "state=")
	})

	t.Run("callback with fabricated state is 404", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, "/v1/federations/callback?tenant_id=tenant-a&code=x&state=fake", nil)
		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/livez", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var health identityhttp.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "ok", health.Checks["database"])
}
