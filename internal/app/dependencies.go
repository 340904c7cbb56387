package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
	"github.com/vladislavdragonenkov/grubdash/internal/health"
	"github.com/vladislavdragonenkov/grubdash/internal/ids"
	"github.com/vladislavdragonenkov/grubdash/internal/seed"
	"github.com/vladislavdragonenkov/grubdash/internal/storage/memory"
	"github.com/vladislavdragonenkov/grubdash/internal/storage/postgres"
)

// runtimeDependencies содержит хранилища и общий аллокатор ID.
type runtimeDependencies struct {
	dishRepo       domain.DishRepository
	orderRepo      domain.OrderRepository
	outboxRepo     domain.OutboxRepository
	allocator      *ids.Allocator
	storageChecker health.Checker
	closeFn        func() error
}

// initRuntimeDependencies открывает хранилище выбранного драйвера и загружает начальные данные.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := loadSeed(ctx, cfg, deps, logger); err != nil {
		if deps.closeFn != nil {
			_ = deps.closeFn()
		}
		return nil, err
	}
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{allocator: ids.NewAllocator()}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps.dishRepo = memory.NewDishRepository()
		deps.orderRepo = memory.NewOrderRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		logger.Info("storage driver: memory")
		return deps, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required for postgres storage driver")
		}

		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			version, count, err := store.MigrationStatus(ctx)
			if err == nil {
				logger.WithFields(log.Fields{
					"version": version,
					"applied": count,
				}).Info("postgres migrations applied")
			}
		}

		deps.dishRepo = postgres.NewDishRepository(store)
		deps.orderRepo = postgres.NewOrderRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.storageChecker = health.NewPingChecker("storage", store.Ping, true)
		deps.closeFn = store.Close
		logger.Info("storage driver: postgres")
		return deps, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// loadSeed записывает начальные данные и регистрирует все существующие ID в аллокаторе.
func loadSeed(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	var (
		data seed.Data
		err  error
	)

	switch {
	case cfg.SeedFile != "":
		data, err = seed.Load(cfg.SeedFile)
	case cfg.SeedDefaults:
		data, err = seed.Defaults()
	default:
		return seed.Observe(ctx, deps.dishRepo, deps.orderRepo, deps.allocator)
	}
	if err != nil {
		return err
	}

	return data.Apply(ctx, deps.dishRepo, deps.orderRepo, deps.allocator, logger.WithField("layer", "seed"))
}
