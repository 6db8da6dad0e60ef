// Package app assembles the governance services from configuration. The
// HTTP server and the admin CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raakeshmj/textgate/internal/audit"
	"github.com/raakeshmj/textgate/internal/auth"
	"github.com/raakeshmj/textgate/internal/cache"
	"github.com/raakeshmj/textgate/internal/circuitbreaker"
	"github.com/raakeshmj/textgate/internal/config"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/kv"
	"github.com/raakeshmj/textgate/internal/kv/filestore"
	"github.com/raakeshmj/textgate/internal/kv/memory"
	"github.com/raakeshmj/textgate/internal/kv/redisstore"
	"github.com/raakeshmj/textgate/internal/kv/sqlitestore"
	"github.com/raakeshmj/textgate/internal/limiter"
	"github.com/raakeshmj/textgate/internal/metrics"
	"github.com/raakeshmj/textgate/internal/repository/kvrepo"
	"github.com/raakeshmj/textgate/internal/service"
	"github.com/raakeshmj/textgate/internal/tools"
	"github.com/redis/go-redis/v9"
)

const classifyCacheSize = 10000

type App struct {
	Config *config.Config
	Store  kv.Store
	// Redis is nil unless the redis backend or the breaker is enabled.
	Redis *redis.Client

	Limits      *config.DynamicConfigManager
	JWT         *auth.JWTManager
	Credentials *service.CredentialManager
	Keys        *service.APIKeyManager
	History     *service.HistoryManager
	Analytics   *service.Analytics
	Limiter     limiter.Limiter
	Tools       *service.ToolService
	Metrics     *metrics.MetricsCollector
	Audit       audit.Logger
}

// Open connects the configured store and builds every service on it.
// auditLog may be nil.
func Open(ctx context.Context, cfg *config.Config, auditLog audit.Logger) (*App, error) {
	if cfg.BcryptCost > 0 {
		auth.PasswordCost = cfg.BcryptCost
	}

	a := &App{
		Config:  cfg,
		Limits:  config.NewDynamicConfigManager(cfg.TierLimits()),
		JWT:     auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		Metrics: metrics.NewCollector(1000),
		Audit:   auditLog,
	}

	if cfg.StoreBackend == config.BackendRedis || cfg.BreakerEnabled {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	store, err := openStore(ctx, cfg, a.Redis)
	if err != nil {
		a.closeRedis()
		return nil, err
	}
	a.Store = store

	repo := kvrepo.New(store)
	a.Credentials = service.NewCredentialManager(repo, a.JWT, auditLog)
	a.Keys = service.NewAPIKeyManager(repo, auditLog)
	a.History = service.NewHistoryManager(repo)
	a.Analytics = service.NewAnalytics(a.History)

	if cfg.StoreBackend == config.BackendRedis {
		a.Limiter = limiter.NewRedisSlidingWindow(a.Redis, a.Limits)
	} else {
		a.Limiter = limiter.NewSlidingWindow(repo, a.Limits)
	}

	var breaker service.Breaker
	if cfg.BreakerEnabled {
		breaker = circuitbreaker.New(a.Redis, 3, 10*time.Second)
	}
	remote := tools.NewRemoteProcessor(cfg.InferenceURL, cfg.InferenceTimeout)
	var sentiment, fakeNews tools.Classifier = remote.ForModel("sentiment"), remote.ForModel("fake-news")
	if cfg.InferenceCacheTTL > 0 {
		sentiment = tools.NewCachedClassifier(sentiment, cache.NewMemoryCache[tools.Classification](cfg.InferenceCacheTTL, classifyCacheSize))
		fakeNews = tools.NewCachedClassifier(fakeNews, cache.NewMemoryCache[tools.Classification](cfg.InferenceCacheTTL, classifyCacheSize))
	}
	a.Tools = service.NewToolService(service.Processors{
		Sentiment:  sentiment,
		FakeNews:   fakeNews,
		Summarizer: remote,
		Matcher:    remote,
	}, a.History, breaker, a.Metrics)

	if cfg.AdminUsername != "" {
		if err := a.Credentials.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			a.Close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (kv.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendFile:
		return filestore.Open(cfg.DataDir)
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o750); err != nil {
			return nil, errs.Storage("create sqlite dir", err)
		}
		return sqlitestore.Open(ctx, cfg.SQLitePath)
	case config.BackendRedis:
		return redisstore.New(rdb, redisstore.DefaultNamespace), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// Ready reports whether the store and redis (if used) answer.
func (a *App) Ready(ctx context.Context) error {
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	_, err := a.Store.Get(ctx, "ready:probe")
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return nil
}

func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	return errors.Join(err, a.closeRedis())
}

func (a *App) closeRedis() error {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.Close()
}
