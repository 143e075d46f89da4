package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bluewing/auth-core/auth"
	"github.com/bluewing/auth-core/config"
	"github.com/bluewing/auth-core/handlers"
	"github.com/bluewing/auth-core/internal/observability"
	"github.com/bluewing/auth-core/middleware"
	"github.com/bluewing/auth-core/repositories"
	"github.com/bluewing/auth-core/repositories/postgres"
	"github.com/bluewing/auth-core/services/audit"
	authsvc "github.com/bluewing/auth-core/services/auth"
	"github.com/bluewing/auth-core/services/locations"
	"github.com/bluewing/auth-core/services/ratelimit"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repositories *repositories.Repositories
	TxManager    repositories.TransactionManager

	// Services
	AuditService     *audit.AuditService
	AuthService      *authsvc.Service
	LocationService  *locations.Service
	RateLimitService *ratelimit.RateLimitService

	// HTTP
	AuthHandler         *auth.Handler
	LocationHandler     *handlers.LocationHandler
	AuditLogHandler     *handlers.AuditLogHandler
	HealthHandler       *handlers.HealthHandler
	AuthMiddleware      *middleware.AuthMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware

	stopWorkers context.CancelFunc
}

// NewDependencies opens the configured databases and wires every component
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := factory.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		logger.Info("database schema initialized")
	}

	deps, err := newDependencies(cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesFromDB wires every component over an already opened pool
func NewDependenciesFromDB(cfg *config.Config, db *postgres.DB, logger *zap.Logger) (*Dependencies, error) {
	return newDependencies(cfg, postgres.NewRepositoryFactoryFromDB(db, logger), logger)
}

func newDependencies(cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	deps.initRepositories()

	if err := deps.initAudit(); err != nil {
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	if err := deps.initAuth(); err != nil {
		_ = deps.AuditService.Stop(cfg.Audit.StopTimeout)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initRateLimit()
	deps.initHandlers()
	deps.startWorkers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.Repositories = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initAudit() error {
	d.AuditService = audit.NewAuditService(d.Repositories.AuditLogs, d.Logger, audit.Config{
		BufferSize:  d.Config.Audit.BufferSize,
		WorkerCount: d.Config.Audit.WorkerCount,
	})
	return d.AuditService.Start()
}

func (d *Dependencies) initAuth() error {
	cfg := d.Config.Auth

	jwtManager, err := authsvc.NewJWTManager(authsvc.JWTConfig{
		SigningKey: cfg.SigningKey,
		Audience:   cfg.Audience,
		Validity:   cfg.JWTValidity,
	}, d.Metrics)
	if err != nil {
		return err
	}

	refresh := authsvc.NewRefreshTokenManager(
		d.Repositories.RefreshTokens,
		authsvc.NewTokenGenerator(nil),
		authsvc.RefreshConfig{
			Prefix:    cfg.RefreshPrefix,
			Length:    cfg.RefreshLength,
			Retention: cfg.RefreshRetention,
		},
		d.Logger,
		d.Metrics,
	)

	d.AuthService = authsvc.NewService(
		d.Repositories,
		d.TxManager,
		jwtManager,
		refresh,
		authsvc.NewPasswordHasher(cfg.BcryptCost),
		d.AuditService,
		d.Logger,
		d.Metrics,
		authsvc.ServiceConfig{
			RotateRefreshTokens: cfg.RotateRefreshTokens,
			MemberCacheTTL:      cfg.MemberCacheTTL,
			MemberCacheSize:     cfg.MemberCacheSize,
		},
	)

	d.AuthHandler = auth.NewHandler(d.AuthService, cfg.RefreshRetention, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.AuthService, d.Logger)

	d.Logger.Info("auth initialized",
		zap.Duration("jwt_validity", cfg.JWTValidity),
		zap.Duration("refresh_retention", cfg.RefreshRetention),
		zap.Bool("rotate_refresh_tokens", cfg.RotateRefreshTokens))
	return nil
}

// startWorkers runs the background cleanup loops until Close
func (d *Dependencies) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	d.stopWorkers = cancel

	interval := d.Config.RateLimit.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	if d.RateLimitService != nil {
		go d.RateLimitService.StartCleanupWorker(ctx, interval)
	}
	go d.AuthService.StartCacheCleanupWorker(ctx, interval)
}

func (d *Dependencies) initRateLimit() {
	cfg := d.Config.RateLimit
	if !cfg.Enabled {
		d.Logger.Warn("login rate limiting disabled")
		return
	}

	d.RateLimitService = ratelimit.NewRateLimitService(ratelimit.Config{
		PerSecond: cfg.PerSecond,
		Burst:     cfg.Burst,
		IdleTTL:   cfg.IdleTTL,
	}, d.Logger)
	d.RateLimitMiddleware = middleware.NewRateLimitMiddleware(d.RateLimitService, d.Metrics, d.Logger)
}

func (d *Dependencies) initHandlers() {
	d.LocationService = locations.NewService(d.Repositories.Locations, d.AuditService, d.Logger)
	d.LocationHandler = handlers.NewLocationHandler(d.LocationService, d.Logger)
	d.AuditLogHandler = handlers.NewAuditLogHandler(d.AuditService, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.AuditService, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopWorkers != nil {
		d.stopWorkers()
	}

	// Drain pending audit events before the pool goes away
	if d.AuditService != nil {
		timeout := d.Config.Audit.StopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		if err := d.AuditService.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
