package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/vision-care-api/internal/repository"
	"github.com/noah-isme/vision-care-api/internal/service"
	"github.com/noah-isme/vision-care-api/pkg/cache"
	"github.com/noah-isme/vision-care-api/pkg/config"
	"github.com/noah-isme/vision-care-api/pkg/database"
)

// Container holds the wired services shared by the API server and the admin CLI.
type Container struct {
	DB        *sqlx.DB
	Store     *repository.Store
	Redis     *redis.Client
	Validator *validator.Validate
	Metrics   *service.MetricsService

	Auth        *service.AuthService
	Frames      *service.FrameAllocator
	History     *service.PhaseHistoryService
	Transitions *service.TransitionService
	Batch       *service.BatchTransitionService
}

// Build opens the database (and Redis when frame caching is enabled) and wires every service.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.Database.RunMigrations {
		version, err := database.Migrate(db, cfg.Database.Name)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("database migrated", zap.Uint("version", version))
	}

	c := &Container{
		DB:        db,
		Store:     repository.NewStore(db),
		Validator: validator.New(),
		Metrics:   service.NewMetricsService(),
	}

	var cacheSvc *service.CacheService
	if cfg.FrameCache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("frame cache disabled: redis unavailable", zap.Error(err))
		} else {
			c.Redis = client
			cacheRepo := repository.NewCacheRepository(client, logger)
			cacheSvc = service.NewCacheService(cacheRepo, c.Metrics, cfg.FrameCache.TTL, logger, true)
		}
	}

	students := repository.NewStudentRepository(db)
	frames := repository.NewFrameRepository(db)
	sizes := repository.NewFrameSizeRepository(db)
	history := repository.NewPhaseHistoryRepository(db)

	c.Auth = service.NewAuthService(logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})
	c.Frames = service.NewFrameAllocator(c.Store, frames, students, sizes, c.Validator, logger,
		service.WithFrameCache(cacheSvc, cfg.FrameCache.TTL),
		service.WithFrameMetrics(c.Metrics),
	)
	c.History = service.NewPhaseHistoryService(history, students, cfg.Workflow.HistoryLimit, logger)
	c.Transitions = service.NewTransitionService(c.Store, students, c.Frames, c.History, logger,
		service.WithTransitionMetrics(c.Metrics),
	)
	c.Batch = service.NewBatchTransitionService(c.Transitions, c.Metrics, logger,
		cfg.Workflow.BatchMaxSize, cfg.Workflow.BatchConcurrency)

	return c, nil
}

// Close releases the database and cache connections.
func (c *Container) Close() error {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	return c.DB.Close()
}
