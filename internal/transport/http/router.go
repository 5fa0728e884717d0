package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/go-api-accounts/internal/application/auth"
	"github.com/go-api-accounts/internal/application/session"
	"github.com/go-api-accounts/internal/application/user"
	"github.com/go-api-accounts/internal/config"
	jwtinfra "github.com/go-api-accounts/internal/infrastructure/jwt"
	"github.com/go-api-accounts/internal/transport/http/handler"
	appmiddleware "github.com/go-api-accounts/internal/transport/http/middleware"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo     UserRepository
	Confirmation Confirmation
	Tasks        TaskQueue
	JWTProvider  *jwtinfra.Provider
	Google       GoogleClient // nil disables Google sign-in
	// HashCost overrides bcrypt.DefaultCost. Tests lower it.
	HashCost int
	// RateLimit and RateBurst bound the sensitive public endpoints per client IP.
	RateLimit rate.Limit
	RateBurst int
}

// NewRouter builds the application router. The returned stop func releases
// the rate limiter and must be called once the server has shut down.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, func()) {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustedProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limit, burst := deps.RateLimit, deps.RateBurst
	if limit == 0 {
		limit, burst = rate.Limit(5), 10
	}
	sensitiveRL := appmiddleware.NewRateLimiter(limit, burst)
	authMw := appmiddleware.Auth(deps.JWTProvider, deps.UserRepo)

	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:     deps.UserRepo,
		Confirmation: deps.Confirmation,
		Tasks:        deps.Tasks,
		AlertAdmin:   cfg.AdminEmail != "",
		ExposeCodes:  cfg.DebugExposeConfirmationCode,
		HashCost:     deps.HashCost,
	})
	sessionDeps := session.ServiceDeps{UserRepo: deps.UserRepo, JWTProvider: deps.JWTProvider}
	if deps.Google != nil {
		sessionDeps.Google = deps.Google
	}
	sessionSvc := session.NewService(sessionDeps)
	userSvc := user.NewService(user.ServiceDeps{UserRepo: deps.UserRepo, HashCost: deps.HashCost})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	sessionH := handler.NewSessionHandler(sessionSvc)
	userH := handler.NewUserHandler(userSvc)

	r.Get("/health-check/{action}", healthH.Ping)

	r.Route("/auth", func(r chi.Router) {
		r.With(sensitiveRL.Limit).Post("/register", authH.Register)
		r.With(sensitiveRL.Limit).Post("/confirm", authH.Confirm)
		r.With(sensitiveRL.Limit).Post("/resend", authH.Resend)
		r.With(sensitiveRL.Limit).Post("/login", sessionH.Login)
		r.With(sensitiveRL.Limit).Post("/google", sessionH.Google)
		r.Post("/jwt/refresh", sessionH.Refresh)
		r.Post("/jwt/verify", sessionH.Verify)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(authMw)
		r.Get("/me", userH.Me)
		r.Put("/me", userH.UpdateMe)
		r.Post("/me/change-password", userH.ChangePassword)
		r.With(appmiddleware.RequireSelfOrStaff("id")).Get("/{id}", userH.Get)
	})

	return r, sensitiveRL.Stop
}
