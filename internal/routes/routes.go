package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/AnshRaj112/accountd/internal/handlers"
	"github.com/AnshRaj112/accountd/internal/middleware"
)

// Options configures the router. RateLimiter and Global are optional.
type Options struct {
	GraphQL        http.Handler
	Tokens         middleware.TokenVerifier
	Logger         *zap.Logger
	AllowedOrigins []string
	Production     bool
	AllowedHost    string
	Global         *middleware.IPLimiters
	RateLimiter    *middleware.RateLimiter
}

// NewRouter builds the HTTP surface.
//
// Production: SecurityHeaders → HostCheck → GlobalRateLimit.
// Otherwise the Redis limiter is used when configured.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(middleware.CORS(opts.AllowedOrigins))

	// Health check (no rate limit)
	r.Get("/health", handlers.Health)

	r.Group(func(r chi.Router) {
		switch {
		case opts.Production && opts.Global != nil:
			for _, mw := range middleware.ProductionSecurity(opts.AllowedHost, opts.Global) {
				r.Use(mw)
			}
		case opts.RateLimiter != nil:
			r.Use(opts.RateLimiter.Middleware)
		}
		r.Use(middleware.Identify(opts.Tokens))
		SetupRoutes(r, opts.GraphQL)
	})
	return r
}

func SetupRoutes(r chi.Router, graphql http.Handler) {
	r.Get("/graphql", graphql.ServeHTTP)
	r.Post("/graphql", graphql.ServeHTTP)
}
