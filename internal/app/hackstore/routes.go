package hackstore

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	// регистрирует swagger-спецификацию
	_ "github.com/magabrotheeeer/hackstore/internal/docs"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/banks"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/deposits"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/health"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/packages"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/session"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/settings"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/tickets"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/transactions"
	"github.com/magabrotheeeer/hackstore/internal/http/handlers/users"
	"github.com/magabrotheeeer/hackstore/internal/http/middlewarectx"
	"github.com/magabrotheeeer/hackstore/internal/metrics"
	authservice "github.com/magabrotheeeer/hackstore/internal/services/auth"
	"github.com/magabrotheeeer/hackstore/internal/services/catalog"
	"github.com/magabrotheeeer/hackstore/internal/services/deposit"
	"github.com/magabrotheeeer/hackstore/internal/services/shop"
	"github.com/magabrotheeeer/hackstore/internal/services/ticket"
	usersservice "github.com/magabrotheeeer/hackstore/internal/services/users"
)

// Services сервисы, которые обслуживают маршруты.
type Services struct {
	Auth     *authservice.Service
	Catalog  *catalog.Service
	Deposits *deposit.Service
	Shop     *shop.Service
	Tickets  *ticket.Service
	Users    *usersservice.Service
	Storage  health.Storage
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, svc Services, limiter *middlewarectx.IPLimiter, allowedOrigins []string) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		metrics.InstrumentHandler,
		cors.New(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler,
	)

	sessionHandler := session.New(logger, svc.Auth)
	packagesHandler := packages.New(logger, svc.Catalog, svc.Shop)
	banksHandler := banks.New(logger, svc.Catalog)
	settingsHandler := settings.New(logger, svc.Catalog)
	depositsHandler := deposits.New(logger, svc.Deposits)
	transactionsHandler := transactions.New(logger, svc.Shop)
	ticketsHandler := tickets.New(logger, svc.Tickets)
	usersHandler := users.New(logger, svc.Users)
	rateLimit := middlewarectx.RateLimitMiddleware(limiter, logger)

	r.Route("/api", func(r chi.Router) {
		// Открытые конечные точки
		r.Get("/health", health.New(svc.Storage).ServeHTTP)
		r.With(rateLimit).Post("/auth/register", register.New(logger, svc.Auth).ServeHTTP)
		r.With(rateLimit).Post("/auth/login", login.New(logger, svc.Auth).ServeHTTP)
		r.Get("/packages", packagesHandler.List)
		r.Get("/packages/{id}", packagesHandler.Get)
		r.Get("/banks", banksHandler.ListActive)
		r.Get("/settings", settingsHandler.Get)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(svc.Auth, logger))
			r.Post("/auth/logout", sessionHandler.Logout)
			r.Get("/me", sessionHandler.Me)
			r.With(rateLimit).Post("/deposits/create", depositsHandler.Create)
			r.Get("/deposits", depositsHandler.ListMine)
			r.Post("/packages/{id}/purchase", packagesHandler.Purchase)
			r.Get("/transactions", transactionsHandler.Mine)
			r.Post("/tickets", ticketsHandler.Create)
			r.Get("/tickets", ticketsHandler.Mine)
			r.Get("/tickets/{id}", ticketsHandler.Get)
			r.Post("/tickets/{id}/responses", ticketsHandler.Respond)

			// Админка
			r.Route("/admin", func(r chi.Router) {
				r.Use(middlewarectx.AdminOnly(logger))
				r.Get("/users", usersHandler.List)
				r.Get("/users/{id}", usersHandler.Get)
				r.Put("/users/{id}", usersHandler.Update)
				r.Delete("/users/{id}", usersHandler.Delete)
				r.Get("/deposits", depositsHandler.List)
				r.Post("/deposits/{id}/approve", depositsHandler.Approve)
				r.Post("/deposits/{id}/reject", depositsHandler.Reject)
				r.Post("/packages", packagesHandler.Create)
				r.Put("/packages/{id}", packagesHandler.Update)
				r.Delete("/packages/{id}", packagesHandler.Delete)
				r.Get("/banks", banksHandler.ListAll)
				r.Post("/banks", banksHandler.Create)
				r.Put("/banks/{id}", banksHandler.Update)
				r.Delete("/banks/{id}", banksHandler.Delete)
				r.Get("/tickets", ticketsHandler.List)
				r.Put("/tickets/{id}/status", ticketsHandler.SetStatus)
				r.Put("/settings", settingsHandler.Update)
				r.Post("/transactions/{id}/refund", transactionsHandler.Refund)
			})
		})
	})

	r.Handle("/metrics", metrics.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
