package app

import (
	"context"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grubdash/internal/health"
)

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.closeFn() }()

	require.NotNil(t, deps.dishRepo)
	require.NotNil(t, deps.orderRepo)
	require.NotNil(t, deps.outboxRepo)
	require.NotNil(t, deps.storageChecker)

	check := deps.storageChecker.Check(context.Background())
	assert.Equal(t, health.StatusHealthy, check.Status)
	assert.True(t, check.Critical)

	dishes, err := deps.dishRepo.List(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, dishes)

	// повторная загрузка тех же данных не должна падать на дубликатах
	again, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-reinit"))
	require.NoError(t, err)
	_ = again.closeFn()
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("GRUBDASH_POSTGRES_TEST_DSN"))
}
