// Package hackstore собирает приложение витрины: хранилище, репозитории, журнал баланса,
// сервисы, HTTP-сервер и фоновые задачи.
package hackstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/hackstore/internal/config"
	"github.com/magabrotheeeer/hackstore/internal/events"
	"github.com/magabrotheeeer/hackstore/internal/http/middlewarectx"
	"github.com/magabrotheeeer/hackstore/internal/lib/jwt"
	"github.com/magabrotheeeer/hackstore/internal/lib/sl"
	authservice "github.com/magabrotheeeer/hackstore/internal/services/auth"
	"github.com/magabrotheeeer/hackstore/internal/services/catalog"
	"github.com/magabrotheeeer/hackstore/internal/services/deposit"
	"github.com/magabrotheeeer/hackstore/internal/services/ledger"
	"github.com/magabrotheeeer/hackstore/internal/services/shop"
	"github.com/magabrotheeeer/hackstore/internal/services/ticket"
	usersservice "github.com/magabrotheeeer/hackstore/internal/services/users"
	"github.com/magabrotheeeer/hackstore/internal/storage/kv"
	"github.com/magabrotheeeer/hackstore/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App приложение витрины.
type App struct {
	server      *http.Server
	logger      *slog.Logger
	store       *kv.Adapter
	deposits    *deposit.Service
	maintenance *Maintenance
	amqpConn    *amqp.Connection
	amqpCh      *amqp.Channel
	probeTime   time.Duration
}

// New собирает приложение. Сеть не трогается: проверка хранилища и
// восстановление намерений выполняются в Run.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "hackstore.New"

	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("%s: jwt secret key is not set", op)
	}

	store, err := kv.Open(cfg.Storage, cfg.RedisConnection, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app := &App{logger: logger, store: store, probeTime: cfg.ProbeTimeout}

	publisher, err := app.setupPublisher(cfg.RabbitMQ)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	services, compactors := wire(cfg, store, publisher, logger)
	app.deposits = services.Deposits

	if !cfg.MaintenanceDisabled {
		app.maintenance, err = NewMaintenance(cfg.RecoverySpec, cfg.CompactionSpec, services.Deposits, store, compactors, logger)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	router := chi.NewRouter()
	limiter := middlewarectx.NewIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitIdle)
	RegisterRoutes(router, logger, services, limiter, cfg.AllowedOrigins)

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// wire создаёт репозитории, журнал баланса и сервисы поверх store.
func wire(cfg *config.Config, store *kv.Adapter, publisher events.Publisher, logger *slog.Logger) (Services, []Compactor) {
	userRepo := repository.NewUserRepository(store, cfg.Wallet, logger)
	txRepo := repository.NewTransactionRepository(store, cfg.Tolerance)
	intentRepo := repository.NewIntentRepository(store)
	depositRepo := repository.NewDepositRepository(store)
	packageRepo := repository.NewPackageRepository(store)
	bankRepo := repository.NewBankRepository(store)
	ticketRepo := repository.NewTicketRepository(store)
	settingsRepo := repository.NewSettingsRepository(store)

	journal := ledger.New(userRepo, txRepo, intentRepo, publisher, cfg.Tolerance, logger)

	services := Services{
		Auth:     authservice.NewAuthService(userRepo, jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL), store, logger),
		Catalog:  catalog.New(packageRepo, bankRepo, settingsRepo, logger),
		Deposits: deposit.New(depositRepo, bankRepo, userRepo, journal, publisher, cfg.MinDeposit, logger),
		Shop:     shop.New(packageRepo, userRepo, txRepo, journal, publisher, logger),
		Tickets:  ticket.New(ticketRepo, logger),
		Users:    usersservice.New(userRepo, logger),
		Storage:  store,
	}
	compactors := []Compactor{userRepo, txRepo, intentRepo, depositRepo, packageRepo, bankRepo, ticketRepo}
	return services, compactors
}

func (a *App) setupPublisher(cfg config.RabbitMQ) (events.Publisher, error) {
	if cfg.RabbitMQURL == "" {
		a.logger.Info("rabbitmq is not configured, events are logged only")
		return events.NewNoop(a.logger), nil
	}
	conn, err := events.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := events.SetupChannel(conn, cfg.RabbitMQExchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	a.amqpConn, a.amqpCh = conn, ch
	return events.NewAMQPPublisher(ch, cfg.RabbitMQExchange, a.logger), nil
}

// Run проверяет хранилище, доигрывает прерванные операции и обслуживает HTTP до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, a.probeTime)
	_ = a.store.Probe(probeCtx)
	cancel()

	if n, err := a.deposits.Recover(ctx); err != nil {
		a.logger.Error("startup recovery finished with errors", slog.Int("recovered", n), sl.Err(err))
	} else if n > 0 {
		a.logger.Info("startup recovery finished", slog.Int("recovered", n))
	}

	if a.maintenance != nil {
		a.maintenance.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.maintenance != nil {
		a.maintenance.Stop()
	}
	if a.amqpCh != nil {
		if err := a.amqpCh.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.amqpConn != nil {
		if err := a.amqpConn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
