package api

import (
	"context"

	"fit-analyse/dashboard/internal/common"
	"fit-analyse/dashboard/internal/config"
	"fit-analyse/dashboard/internal/db/repositories"
	"fit-analyse/dashboard/internal/feed"
	"fit-analyse/dashboard/internal/jobs"
	"fit-analyse/dashboard/internal/logging"
	"fit-analyse/dashboard/internal/metrics"
	"fit-analyse/dashboard/internal/providers"
	"fit-analyse/dashboard/internal/services"
	"fit-analyse/dashboard/internal/session"
	"fit-analyse/dashboard/internal/upload"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

type Repositories struct {
	Activities *repositories.ActivityRepo
	SyncRuns   *repositories.SyncRunRepo
}

type Services struct {
	Activities *services.ActivityService
	Feed       *feed.Feed
	Sync       *jobs.FullSyncJob
	Uploader   *upload.BatchUploader
	Sessions   *session.Manager
}

type Dependencies struct {
	// BaseCtx outlives requests; background work started by handlers runs on it
	BaseCtx  context.Context
	Config   *config.Config
	SQLX     *sqlx.DB
	Cache    common.CacheInterface
	Metrics  *metrics.MetricsRegistry
	Repo     *Repositories
	Services *Services
}

// InitDependencies builds the HTTP activity source and the configured cache,
// then wires everything else
func InitDependencies(ctx context.Context, cfg *config.Config, gdb *gorm.DB, sx *sqlx.DB, metricsReg *metrics.MetricsRegistry) (*Dependencies, error) {
	source := providers.NewHTTPActivitySource(cfg.APIBaseURL, cfg.APIToken, cfg.RemoteTimeout, cfg.RemoteRateRPS, cfg.RemoteRateBurst)
	source.Metrics = metricsReg

	var cache common.CacheInterface
	if cfg.CacheBackend == config.CacheBackendRedis {
		redisCache, err := common.NewRedisCacheService(ctx, cfg.RedisAddr(), cfg.RedisPassword, "fitdash:")
		if err != nil {
			logging.Warn("Redis cache unavailable, falling back to in-memory cache", "error", err)
		} else {
			cache = redisCache
		}
	}
	if cache == nil {
		cache = common.NewCacheService(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	deps := NewDependencies(ctx, cfg, source, source, gdb, sx, cache, metricsReg)
	source.OnUnauthorized = deps.Services.Sessions.HandleUnauthorized
	return deps, nil
}

// NewDependencies wires repositories and services around an activity source
func NewDependencies(
	ctx context.Context,
	cfg *config.Config,
	source providers.ActivitySource,
	tokens session.TokenSetter,
	gdb *gorm.DB,
	sx *sqlx.DB,
	cache common.CacheInterface,
	metricsReg *metrics.MetricsRegistry,
) *Dependencies {
	repos := &Repositories{
		Activities: repositories.NewActivityRepo(gdb),
		SyncRuns:   repositories.NewSyncRunRepo(gdb),
	}

	syncJob := jobs.NewFullSyncJob(source, repos.Activities, repos.SyncRuns, metricsReg, cfg.SyncPageSize)
	activityFeed := feed.New(source, repos.Activities, feed.Options{
		PageLimit:         cfg.FeedPageLimit,
		PrefetchThreshold: cfg.PrefetchThresholdPx,
		Sync:              syncJob,
		Metrics:           metricsReg,
	})
	uploader := upload.NewBatchUploader(source, metricsReg)
	activitySvc := services.NewActivityService(source, repos.Activities, activityFeed, cache, metricsReg, cfg.CacheTTL)
	sessions := session.NewManager(ctx, tokens, syncJob, activityFeed, uploader, nil)

	return &Dependencies{
		BaseCtx: ctx,
		Config:  cfg,
		SQLX:    sx,
		Cache:   cache,
		Metrics: metricsReg,
		Repo:    repos,
		Services: &Services{
			Activities: activitySvc,
			Feed:       activityFeed,
			Sync:       syncJob,
			Uploader:   uploader,
			Sessions:   sessions,
		},
	}
}
