package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bestheroz/account-service/internal/api"
	"github.com/bestheroz/account-service/internal/api/handler"
	"github.com/bestheroz/account-service/internal/core/domain"
	"github.com/bestheroz/account-service/internal/core/ports"
	"github.com/bestheroz/account-service/internal/core/service"
	"github.com/bestheroz/account-service/internal/infrastructure/db/mongo"
	"github.com/bestheroz/account-service/internal/infrastructure/db/postgres"
	"github.com/bestheroz/account-service/internal/infrastructure/db/redis"
	"github.com/bestheroz/account-service/internal/infrastructure/idgen"
	"github.com/bestheroz/account-service/internal/infrastructure/password"
	"github.com/bestheroz/account-service/internal/infrastructure/token"
	"github.com/bestheroz/account-service/internal/pkg/config"
	"github.com/bestheroz/account-service/pkg/logger"
)

// @title                       Account Service API
// @version                     1.0
// @description                 Admin and user account lifecycle with JWT sessions.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Access token as "Bearer <token>".
func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:    cfg.LogLevel,
		Pretty:   cfg.IsDevelopment(),
		FilePath: cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("account service stopped")
	}
	log.Info().Msg("goodbye")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Stores ---
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	throttle := openLimiter(ctx, redis.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB}, cfg.Login, log)
	defer throttle.close()

	// --- Security primitives ---
	ids, err := idgen.NewSnowflake(cfg.SnowflakeID)
	if err != nil {
		return err
	}
	hasher := password.NewBcryptHasher(cfg.BcryptCost)
	issuer, err := token.NewIssuer(token.Config{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	if err != nil {
		return err
	}

	// --- Services ---
	adminAccounts := service.NewAccountService(store.admins, hasher, ids, log)
	userAccounts := service.NewAccountService(store.users, hasher, ids, log)
	adminSessions := service.NewSessionService(store.admins, hasher, issuer, throttle.limiter, log)
	userSessions := service.NewSessionService(store.users, hasher, issuer, throttle.limiter, log)
	directory := service.NewAccountDirectory(store.admins, store.users)

	if err := bootstrapAdmin(ctx, cfg.Bootstrap, adminAccounts, log); err != nil {
		return err
	}

	checks := map[string]handler.PingFunc{cfg.StoreDriver: store.ping}
	if throttle.ping != nil {
		checks["redis"] = throttle.ping
	}

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		Logger: log,
		Tokens: issuer,
		Admins: handler.NewAccountHandler(adminAccounts, adminSessions, directory),
		Users:  handler.NewAccountHandler(userAccounts, userSessions, directory),
		Health: handler.NewHealthHandler(checks),
		CORSOrigins: cfg.CORSOrigins,
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("account service listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown failed")
	}
	return nil
}

// accountStore is the selected backend with one repository per kind.
type accountStore struct {
	admins ports.AccountRepository
	users  ports.AccountRepository
	ping   handler.PingFunc
	close  func()
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*accountStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.URL, MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info().Msg("connected to postgres")
		return &accountStore{
			admins: postgres.NewAccountRepository(db, domain.KindAdmin),
			users:  postgres.NewAccountRepository(db, domain.KindUser),
			ping:   postgres.Pinger(db),
			close:  func() { _ = db.Close() },
		}, nil

	default:
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		admins := mongo.NewAccountRepository(db, domain.KindAdmin)
		// Both kinds share one collection, so one index pass covers both.
		if err := admins.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")
		return &accountStore{
			admins: admins,
			users:  mongo.NewAccountRepository(db, domain.KindUser),
			ping:   mongo.Pinger(client),
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = client.Disconnect(ctx)
			},
		}, nil
	}
}

// loginThrottle is the optional Redis login limiter. A zero value means
// throttling is off.
type loginThrottle struct {
	limiter ports.LoginLimiter
	ping    handler.PingFunc
	close   func()
}

// openLimiter connects the login limiter. When Redis is unreachable the
// service starts without throttling instead of refusing to boot.
func openLimiter(ctx context.Context, rc redis.Config, lc config.LoginConfig, log zerolog.Logger) loginThrottle {
	rdb, err := redis.Connect(ctx, rc)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, login throttling disabled")
		return loginThrottle{close: func() {}}
	}
	return loginThrottle{
		limiter: redis.NewLoginLimiter(rdb, lc.MaxAttempts, lc.Cooldown),
		ping:    redis.Pinger(rdb),
		close:   func() { _ = rdb.Close() },
	}
}

// bootstrapAdmin seeds a manager admin so a fresh deployment can log in.
func bootstrapAdmin(ctx context.Context, cfg config.BootstrapConfig, admins ports.AccountService, log zerolog.Logger) error {
	if cfg.LoginID == "" || cfg.Password == "" {
		return nil
	}
	_, err := admins.Create(ctx, ports.CreateAccountInput{
		LoginID:     cfg.LoginID,
		Password:    cfg.Password,
		Name:        cfg.LoginID,
		UseFlag:     true,
		ManagerFlag: true,
	}, domain.SystemOperator)
	switch {
	case errors.Is(err, domain.ErrAlreadyJoinedAccount):
		return nil
	case err != nil:
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	log.Info().Str("login_id", cfg.LoginID).Msg("bootstrap admin created")
	return nil
}
