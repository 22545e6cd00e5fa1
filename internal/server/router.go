package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/drago-vuckovic/sso/internal/auth"
	"github.com/drago-vuckovic/sso/internal/telemetry"
)

// RouterOptions controls the construction of the admin HTTP router.
type RouterOptions struct {
	Users    UserService
	Enforcer casbin.IEnforcer
	// Authenticator stores an auth.Principal on the request context,
	// typically the middleware returned by auth.NewVerifier.
	Authenticator func(http.Handler) http.Handler
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	Logger      *slog.Logger
}

// CORSOptions returns the CORS policy for the given origins.
func CORSOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Location", "X-Request-Id"},
		MaxAge:         300,
	}
}

// NewRouter assembles the chi router with shared middleware and the admin
// routes mounted behind authentication and per-route authorization.
func NewRouter(opts RouterOptions) (chi.Router, error) {
	if opts.Users == nil {
		return nil, fmt.Errorf("router requires a user service")
	}
	if opts.Enforcer == nil {
		return nil, fmt.Errorf("router requires an enforcer")
	}
	if opts.Authenticator == nil {
		return nil, fmt.Errorf("router requires an authenticator")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(CORSOptions(opts.CORSOrigins)))

	r.Get("/health", handleHealth)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", telemetry.Handler(opts.Gatherer))
	}

	h := &userHandlers{users: opts.Users, validator: validator, logger: logger}
	allow := func(obj, act string) func(http.Handler) http.Handler {
		return auth.RequirePermission(opts.Enforcer, obj, act)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(opts.Authenticator)
		r.Get("/whoami", handleWhoAmI)

		r.Route("/admin", func(r chi.Router) {
			r.With(allow(auth.ObjUsers, auth.ActList)).Get("/users", h.list)
			r.With(allow(auth.ObjUsers, auth.ActCreate)).Post("/users", h.create)
			r.With(allow(auth.ObjUsers, auth.ActRead)).Get("/users/{userID}", h.get)
			r.With(allow(auth.ObjUsers, auth.ActUpdate)).Put("/users/{userID}", h.update)
			r.With(allow(auth.ObjUsers, auth.ActDelete)).Delete("/users/{userID}", h.delete)
			r.With(allow(auth.ObjRoles, auth.ActList)).Get("/roles", h.listRoles)
		})
	})

	return r, nil
}

// NewH2CHandler wraps the router with an h2c server to provide HTTP/2 over
// cleartext.
func NewH2CHandler(opts RouterOptions) (http.Handler, error) {
	router, err := NewRouter(opts)
	if err != nil {
		return nil, err
	}
	return h2c.NewHandler(router, &http2.Server{}), nil
}
