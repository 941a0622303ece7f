/**
 * @description
 * This file sets up the HTTP router for the BudgetLink service using the `chi`
 * routing library. It defines all the API routes and applies necessary middleware.
 */
package api

import (
	"log/slog"
	"net/http"

	"github.com/budgetlink/budgetlink-service/internal/app"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Services bundles what the router needs.
type Services struct {
	Auth         *app.AuthService
	Enrollments  *app.EnrollmentService
	Transactions *app.TransactionService
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(svc Services, allowedOrigins []string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	userHandler := NewUserHandler(svc.Auth, logger)
	accountHandler := NewAccountHandler(svc.Enrollments, svc.Transactions, logger)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", userHandler.Register)
		r.Post("/login", userHandler.Login)
	})

	// Group routes that require authentication
	r.Route("/api/account", func(r chi.Router) {
		r.Use(AuthMiddleware(svc.Auth))
		r.Put("/enroll", accountHandler.Enroll)
		r.Get("/getData", accountHandler.GetData)
	})

	return r
}
