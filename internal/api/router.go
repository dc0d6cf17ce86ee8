package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/peerpay/ledgercore/internal/api/handler"
	"github.com/peerpay/ledgercore/internal/api/middleware"
	"github.com/peerpay/ledgercore/internal/api/spec"
	"github.com/peerpay/ledgercore/internal/config"
	"github.com/peerpay/ledgercore/internal/idempotency"
	"github.com/peerpay/ledgercore/internal/notification"
	"github.com/peerpay/ledgercore/internal/service"
)

// Services bundles the wired application services the router exposes.
type Services struct {
	Identity      *service.IdentityService
	Account       *service.AccountService
	Transfer      *service.TransferCoordinator
	Notifications *notification.Service
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	redis     redis.Cmdable
	idemStore *idempotency.Store
	services  Services
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redis redis.Cmdable, idemStore *idempotency.Store, services Services) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redis,
		idemStore: idemStore,
		services:  services,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	authHandler := handler.NewAuthHandler(api.services.Identity)
	identityHandler := handler.NewIdentityHandler(api.services.Identity)
	accountHandler := handler.NewAccountHandler(api.services.Account)
	transferHandler := handler.NewTransferHandler(api.services.Transfer)
	notificationHandler := handler.NewNotificationHandler(api.services.Notifications)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Operational endpoints
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/identities", identityHandler.Register)
		r.Post("/v1/auth/login", authHandler.Login)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/identities/me", identityHandler.Me)

		// Accounts
		r.Post("/v1/accounts", accountHandler.CreateAccount)
		r.Get("/v1/accounts", accountHandler.ListAccounts)
		r.Get("/v1/accounts/{id}/balance", accountHandler.GetBalance)

		// Transfers: every mutation carries an Idempotency-Key
		r.Group(func(r chi.Router) {
			r.Use(middleware.IdempotencyMiddleware(api.idemStore, api.logger))
			r.Post("/v1/transfers", transferHandler.Propose)
			r.Post("/v1/transfers/{id}/decision", transferHandler.Decide)
			r.Post("/v1/transfers/{id}/cancel", transferHandler.Cancel)
		})
		r.Get("/v1/transfers", transferHandler.ListTransfers)
		r.Get("/v1/transfers/{id}", transferHandler.GetTransfer)

		// Notifications
		r.Get("/v1/notifications", notificationHandler.List)
		r.Post("/v1/notifications/{id}/read", notificationHandler.MarkRead)

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
				Post("/v1/admin/deposits", accountHandler.Deposit)
		})
	})

	return r
}
