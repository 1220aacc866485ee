package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/api"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/session"
	"github.com/platinummonkey/warden/pkg/token"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	obs := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := sql.Open("sqlite3", cfg.Database.Path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	ctx := context.Background()

	store := accounts.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to create accounts schema")
	}
	roles := rbac.NewStore(db)
	if err := roles.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to create rbac schema")
	}
	auditor := audit.NewDBLogger(db)
	if err := auditor.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to create audit schema")
	}

	superRole, err := rbac.Seed(ctx, roles)
	if err != nil {
		logger.WithError(err).Fatal("failed to seed roles and permissions")
	}

	if err := bootstrapSuperadmin(ctx, store, superRole, cfg, logger); err != nil {
		logger.WithError(err).Fatal("failed to bootstrap superadmin")
	}

	client, err := session.NewClient(session.Config{
		URL:        cfg.Redis.URL,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		MaxRetries: cfg.Redis.MaxRetries,
		PoolSize:   cfg.Redis.PoolSize,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	registry := session.NewRedisRegistry(client)
	defer registry.Close()

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	} else {
		metrics = observability.NopMetrics()
	}

	issuer := token.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenExpiry)
	authenticator := accounts.NewAuthenticator(store, registry, issuer, auditor, metrics, accounts.AuthenticatorConfig{
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockoutDuration:  cfg.Auth.LockoutDuration,
		SessionTTL:       cfg.Auth.SessionTTL,
		BCryptCost:       cfg.Auth.BCryptCost,
	})
	guard := rbac.NewGuard(roles, store)
	gate := middleware.NewGate(issuer, store, registry, roles, metrics)

	server := api.NewServer(api.Deps{
		Config:        cfg,
		Logger:        logger,
		Observability: obs,
		Metrics:       metrics,
		Authenticator: authenticator,
		Accounts:      store,
		Roles:         roles,
		Guard:         guard,
		Auditor:       auditor,
		Registry:      registry,
		Gate:          gate,
	})

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", addr).Info("warden listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

// bootstrapSuperadmin creates the first superadmin account from the
// environment when none exists yet
func bootstrapSuperadmin(ctx context.Context, store *accounts.Store, superRole *rbac.Role, cfg *config.Config, logger *logrus.Logger) error {
	email := os.Getenv("WARDEN_BOOTSTRAP_EMAIL")
	password := os.Getenv("WARDEN_BOOTSTRAP_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	existing, err := store.GetByEmail(ctx, accounts.KindAdmin, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := accounts.HashPassword(password, cfg.Auth.BCryptCost)
	if err != nil {
		return err
	}

	admin := &accounts.Principal{
		Kind:         accounts.KindAdmin,
		FirstName:    "Super",
		LastName:     "Admin",
		Email:        email,
		PasswordHash: hash,
		RoleID:       superRole.ID,
		IsActive:     true,
	}
	if err := store.Create(ctx, admin); err != nil {
		return err
	}

	logger.WithField("email", admin.Email).Info("bootstrapped superadmin account")
	return nil
}
