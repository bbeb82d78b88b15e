package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/submission-guard/internal/adapters/cache"
	quarantineadapter "github.com/mikey/submission-guard/internal/adapters/quarantine"
	reputationadapter "github.com/mikey/submission-guard/internal/adapters/reputation"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/ratelimit"
	"go.uber.org/zap"
)

// StoreFactory creates the persistence backends based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create SQLite directory: %w", err)
	}
	return nil
}

// CreateReputationRepository creates the reputation repository
func (f *StoreFactory) CreateReputationRepository() (core.ReputationRepository, error) {
	storeCfg := f.cfg.GetReputationStore()

	switch storeCfg.Type {
	case "memory":
		return reputationadapter.NewMemoryRepository(f.logger), nil
	case "sqlite":
		if err := ensureDir(storeCfg.SQLitePath); err != nil {
			return nil, err
		}
		return reputationadapter.NewSQLiteRepository(storeCfg.SQLitePath, f.logger)
	case "mysql":
		return reputationadapter.NewMySQLRepository(storeCfg.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported reputation store: %s", storeCfg.Type)
	}
}

// CreateQuarantineRepository creates the quarantine repository
func (f *StoreFactory) CreateQuarantineRepository() (core.QuarantineRepository, error) {
	storeCfg := f.cfg.GetQuarantineStore()

	switch storeCfg.Type {
	case "memory":
		return quarantineadapter.NewMemoryRepository(f.logger), nil
	case "sqlite":
		if err := ensureDir(storeCfg.SQLitePath); err != nil {
			return nil, err
		}
		return quarantineadapter.NewSQLiteRepository(storeCfg.SQLitePath, f.logger)
	case "mysql":
		return quarantineadapter.NewMySQLRepository(storeCfg.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported quarantine store: %s", storeCfg.Type)
	}
}

// CreateRateLimitStore creates the window counter store
func (f *StoreFactory) CreateRateLimitStore() (ratelimit.Store, error) {
	storeCfg := f.cfg.GetRateLimitStore()

	switch storeCfg.Type {
	case "memory":
		return ratelimit.NewMemoryStore(f.logger, storeCfg.CleanupFrequency), nil
	case "redis":
		f.logger.Info("Using Redis rate limit store", zap.String("address", storeCfg.RedisAddress))
		return ratelimit.NewRedisStoreFromAddr(
			storeCfg.RedisAddress,
			storeCfg.RedisPassword,
			storeCfg.RedisDB,
			storeCfg.RedisKeyPrefix,
		), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit store: %s", storeCfg.Type)
	}
}

// CreateVerdictCache creates the store that remembers model verdicts
func (f *StoreFactory) CreateVerdictCache() (core.VerdictCache, error) {
	cacheCfg := f.cfg.GetLLM().Cache

	switch cacheCfg.Store.Type {
	case "memory":
		return cache.NewMemoryCache(f.logger, cacheCfg.CleanupFrequency), nil
	case "sqlite":
		if err := ensureDir(cacheCfg.Store.SQLitePath); err != nil {
			return nil, err
		}
		return cache.NewSQLiteCache(cacheCfg.Store.SQLitePath, f.logger, cacheCfg.CleanupFrequency)
	case "mysql":
		return cache.NewMySQLCache(cacheCfg.Store.MySQLDSN, f.logger, cacheCfg.CleanupFrequency)
	default:
		return nil, fmt.Errorf("unsupported verdict cache store: %s", cacheCfg.Store.Type)
	}
}
