package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/config"
	"github.com/clipstream/backend/internal/db"
	"github.com/clipstream/backend/internal/handlers"
	"github.com/clipstream/backend/internal/media"
	"github.com/clipstream/backend/internal/middleware"
	"github.com/clipstream/backend/internal/repositories"
	"github.com/clipstream/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup drains the background blob cleaner.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, func(context.Context) error, error) {
	objectStore, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	cleaner := storage.NewCleaner(objectStore, storage.CleanerConfig{
		QueueSize: cfg.CleanerQueueSize,
		Workers:   cfg.CleanerWorkers,
	}, slog.Default())

	deps := handlers.Dependencies{
		Users:          repositories.NewPostgresUserRepository(pool),
		Videos:         repositories.NewPostgresVideoRepository(pool),
		Tweets:         repositories.NewPostgresTweetRepository(pool),
		Subscriptions:  repositories.NewPostgresSubscriptionRepository(pool),
		Issuer:         auth.NewIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Storage:        objectStore,
		Prober:         media.NewFFProbeProvider(cfg.FFProbePath, cfg.FFProbeTimeout),
		Cleaner:        cleaner,
		Limiter:        middleware.NewIPRateLimiter(10, time.Minute, 10, 10*time.Minute),
		MaxUploadBytes: cfg.MaxUploadBytes,
		TempDir:        cfg.UploadTempDir,
	}

	return deps, cleaner.Shutdown, nil
}
