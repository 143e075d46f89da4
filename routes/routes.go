package routes

import (
	"net/http"
	"time"

	"github.com/bluewing/auth-core/app"
	"github.com/bluewing/auth-core/auth"
	"github.com/bluewing/auth-core/handlers"
	appmiddleware "github.com/bluewing/auth-core/middleware"
	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(deps.Metrics.Instrument)
	r.Use(appmiddleware.RequestContext)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", auth.AuthorizationHeader, "Content-Type", auth.RefreshTokenHeader},
		ExposedHeaders:   []string{auth.AuthorizationHeader, auth.RefreshTokenHeader, "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/user", func(r chi.Router) {
		r.Use(throttle(deps))
		r.Post("/login", deps.AuthHandler.HandleLogin)
		r.Post("/signup", deps.AuthHandler.HandleSignup)
	})

	r.Route("/api", func(r chi.Router) {
		r.With(throttle(deps)).Post("/token", deps.AuthHandler.HandleToken)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/logout", deps.AuthHandler.HandleLogout)
				r.Get("/sessions", deps.AuthHandler.HandleSessions)
				r.Delete("/sessions/devices/{device}", deps.AuthHandler.HandleRevokeDevice)
			})

			r.Get("/me", handlers.HandleMe)

			r.Route("/locations", func(r chi.Router) {
				r.Get("/", deps.LocationHandler.HandleList)
				r.Post("/", deps.LocationHandler.HandleCreate)
				r.Get("/{id}", deps.LocationHandler.HandleGet)
				r.Delete("/{id}", deps.LocationHandler.HandleDelete)
			})

			// Audit logs (require admin role)
			r.Route("/audit", func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole(models.RoleAdmin))
				r.Get("/logs", deps.AuditLogHandler.HandleList)
				r.Get("/logs/{id}", deps.AuditLogHandler.HandleGet)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

// throttle applies the login rate limit when it is enabled
func throttle(deps *app.Dependencies) func(http.Handler) http.Handler {
	if deps.RateLimitMiddleware == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return deps.RateLimitMiddleware.Limit
}
