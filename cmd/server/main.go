package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillsign/federate/internal/api"
	"github.com/quillsign/federate/internal/app"
	"github.com/quillsign/federate/internal/app/maintenance"
	iauth "github.com/quillsign/federate/internal/auth"
	"github.com/quillsign/federate/internal/cache"
	"github.com/quillsign/federate/internal/database"
	"github.com/quillsign/federate/internal/federation"
	"github.com/quillsign/federate/internal/handlers"
	"github.com/quillsign/federate/internal/middleware"
	"github.com/quillsign/federate/internal/notify"
	"github.com/quillsign/federate/internal/services"
	"github.com/quillsign/federate/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("federate-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Info("generated runtime secret", zap.String("key", key))
	}

	cfg.Federation.ExternalSecret = strings.TrimSpace(cfg.Federation.ExternalSecret)
	if cfg.Federation.ExternalSecret == "" {
		log.Warn("federation.external_secret is not configured; federation endpoints will reject all calls")
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	dbStore := cache.NewDatabaseStore(db)

	var redisClient cache.Store
	if cfg.Cache.Redis.Enabled {
		client, redisErr := cache.NewRedisClient(cache.RedisConfig{
			Address:  cfg.Cache.Redis.Address,
			Username: cfg.Cache.Redis.Username,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			TLS:      cfg.Cache.Redis.TLS,
			Timeout:  cfg.Cache.Redis.Timeout,
		})
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(redisErr))
		} else {
			redisClient = client
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	defer func() {
		if rc, ok := redisClient.(*cache.RedisClient); ok && rc != nil {
			_ = rc.Close()
		}
	}()

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionSvc, err := iauth.NewSessionService(db, jwtService, iauth.SessionConfig{
		RefreshTokenTTL: cfg.Auth.Session.RefreshTTL,
		RefreshLength:   cfg.Auth.Session.RefreshLength,
	})
	if err != nil {
		return fmt.Errorf("initialise session service: %w", err)
	}

	identitySvc, err := services.NewIdentityService(db)
	if err != nil {
		return fmt.Errorf("initialise identity service: %w", err)
	}

	provisioningSvc, err := services.NewProvisioningService(db)
	if err != nil {
		return fmt.Errorf("initialise provisioning service: %w", err)
	}

	credentialSvc, err := services.NewCredentialService(db)
	if err != nil {
		return fmt.Errorf("initialise credential service: %w", err)
	}

	tokenStore, sweeper := buildTokenStore(cfg, redisClient, log)

	notifier := notify.NewPartnerNotifier(notify.PartnerConfig{
		WebhookBaseURL: cfg.Federation.Webhook.BaseURL,
		SigningSecret:  cfg.Federation.Webhook.Secret,
		Timeout:        cfg.Federation.Webhook.Timeout,
	})

	secrets := federation.NewSecretValidator(cfg.Federation.ExternalSecret)

	federationHandler, err := handlers.NewFederationHandler(
		secrets, tokenStore, identitySvc, provisioningSvc, credentialSvc, sessionSvc, notifier,
		cfg.Federation.ExchangePath,
	)
	if err != nil {
		return fmt.Errorf("build federation handler: %w", err)
	}

	redirectHandler := handlers.NewRedirectHandler(federationHandler, cfg.Federation.SignInURL)

	cleaner := maintenance.NewCleaner(sweeper, sessionSvc,
		maintenance.WithSweepSchedule(sweepSpec(cfg.Federation.SweepInterval)))
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	var rateStore middleware.RateStore
	switch {
	case redisClient != nil:
		rateStore = middleware.NewRedisRateStore(redisClient)
	case dbStore != nil:
		rateStore = middleware.NewDatabaseRateStore(dbStore)
	}

	router := api.NewRouter(cfg, api.Deps{
		Federation: federationHandler,
		Redirect:   redirectHandler,
		RateStore:  rateStore,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

// buildTokenStore prefers the cache-backed store so one-time semantics hold
// across replicas; the in-memory store is the single-node default.
func buildTokenStore(cfg *app.Config, redisClient cache.Store, log *zap.Logger) (federation.TokenStore, maintenance.TokenSweeper) {
	ttl := cfg.Federation.TokenTTL
	if redisClient != nil {
		log.Info("federation tokens backed by redis")
		return federation.NewCacheTokenStore(redisClient, ttl), nil
	}

	store := federation.NewMemoryTokenStore(federation.WithTokenTTL(ttl))
	return store, store
}

func sweepSpec(interval time.Duration) string {
	if interval <= 0 {
		return ""
	}
	return "@every " + interval.String()
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := database.Config{
		Driver:   strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:     strings.TrimSpace(cfg.Database.Path),
		DSN:      strings.TrimSpace(cfg.Database.DSN),
		Host:     strings.TrimSpace(cfg.Database.Host),
		Port:     cfg.Database.Port,
		Name:     strings.TrimSpace(cfg.Database.Name),
		User:     strings.TrimSpace(cfg.Database.User),
		Password: cfg.Database.Password,
		Options:  cfg.Database.Options,
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to access underlying database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
