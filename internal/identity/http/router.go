package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/campushq/identity/internal/identity/service"
	"github.com/campushq/identity/internal/identity/store"
	"github.com/campushq/identity/pkg/httpx"
	"github.com/campushq/identity/pkg/jwtx"
	"github.com/campushq/identity/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	codec        *jwtx.Codec
	cookie       httpx.CookieConfig
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store             store.Store
	SessionService    *service.SessionService
	FederationService *service.FederationService
	AuthorizeService  *service.AuthorizeService
}

func NewRouter(
	codec *jwtx.Codec,
	cookie httpx.CookieConfig,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		codec:        codec,
		cookie:       cookie,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSessions()
	r.registerFederations()
	r.registerAuthorize()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authn guards an endpoint with token verification plus the fingerprint
// cookie check against the live session record.
func (r *Router) authn() httpx.Middleware {
	return httpx.AuthnMiddleware(r.codec, r.cookie.Name, r.SessionService.ValidateFingerprint)
}

func (r *Router) registerSessions() {
	h := &SessionHandler{Sessions: r.SessionService, Cookie: r.cookie}

	// Credential endpoints get the strict limit to slow brute force.
	r.Mux.Handle("POST /v1/sessions/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/sessions/exchange",
		httpx.Chain(http.HandlerFunc(h.HandleExchange),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/sessions/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/sessions/invalidate",
		httpx.Chain(http.HandlerFunc(h.HandleInvalidate),
			r.authn(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerFederations() {
	h := &FederationHandler{Federations: r.FederationService}

	r.Mux.Handle("GET /v1/federations/find",
		httpx.Chain(http.HandlerFunc(h.HandleFind),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/federations/{name}/url",
		httpx.Chain(http.HandlerFunc(h.HandleURL),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/federations/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerAuthorize() {
	h := &AuthorizeHandler{Authorize: r.AuthorizeService}

	r.Mux.Handle("POST /v1/authorize",
		httpx.Chain(http.HandlerFunc(h.HandleCheck),
			r.authn(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// Role and grant management is admin-only.
	r.Mux.Handle("POST /v1/roles",
		httpx.Chain(http.HandlerFunc(h.HandleCreateRole),
			r.authn(),
			httpx.RequireAnyRole("admin"),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/roles/{id}/assign",
		httpx.Chain(http.HandlerFunc(h.HandleAssignRole),
			r.authn(),
			httpx.RequireAnyRole("admin"),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/roles/{id}/grants",
		httpx.Chain(http.HandlerFunc(h.HandleGrant),
			r.authn(),
			httpx.RequireAnyRole("admin"),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Monitoring systems may poll frequently, keep the limit lenient.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
