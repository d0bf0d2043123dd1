package config_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/librarystack/inventory-storage-go/config"
)

func Test_Load_ShouldApplyDefaults(t *testing.T) {
	// act
	cfg, err := Load()

	// assert
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.MaxBatchSize)
	assert.Equal(t, 10, cfg.ShadowSyncParallelism)
	assert.Equal(t, "folio", cfg.EventStreamPrefix)
	assert.Equal(t, int32(20), cfg.DBMaxConns)
	assert.Equal(t, 5*time.Minute, cfg.MatViewCacheTTL)
	assert.Equal(t, time.Minute, cfg.ConsumerClaimMinIdle)
	assert.Equal(t, int64(5), cfg.ConsumerMaxDeliveries)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.AllowSuppressOptimisticLocking.IsZero())
	assert.False(t, cfg.LockPolicy().SuppressionAllowed())
}

func Test_Load_ShouldReadTheEnvironment(t *testing.T) {
	// arrange
	until := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	t.Setenv("INVENTORY_DB_DSN", "postgres://u:p@db:5432/inv")
	t.Setenv("INVENTORY_TENANT", "diku")
	t.Setenv("INVENTORY_MAX_BATCH_SIZE", "500")
	t.Setenv("INVENTORY_SHADOW_SYNC_PARALLELISM", "4")
	t.Setenv("INVENTORY_MATVIEW_REFRESH_INTERVAL", "30m")
	t.Setenv("INVENTORY_LOG_LEVEL", "debug")
	t.Setenv("DB_ALLOW_SUPPRESS_OPTIMISTIC_LOCKING", until.Format(time.RFC3339))

	// act
	cfg, err := Load()

	// assert
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/inv", cfg.DBDSN)
	assert.Equal(t, "diku", cfg.Tenant)
	assert.Equal(t, 500, cfg.MaxBatchSize)
	assert.Equal(t, 4, cfg.ShadowSyncParallelism)
	assert.Equal(t, 30*time.Minute, cfg.MatViewRefreshInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, until.Equal(cfg.AllowSuppressOptimisticLocking))
	assert.True(t, cfg.LockPolicy().SuppressionAllowed())
	assert.Len(t, cfg.EngineOptions(), 3)
}

func Test_Load_When_ValueIsMalformed_ShouldFail(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		value    string
		expected error
	}{
		{name: "not a number", key: "INVENTORY_MAX_BATCH_SIZE", value: "many", expected: ErrParsingEnvFailed},
		{name: "not an instant", key: "DB_ALLOW_SUPPRESS_OPTIMISTIC_LOCKING", value: "tomorrow", expected: ErrParsingEnvFailed},
		{name: "zero batch size", key: "INVENTORY_MAX_BATCH_SIZE", value: "0", expected: ErrInvalidConfig},
		{name: "zero parallelism", key: "INVENTORY_SHADOW_SYNC_PARALLELISM", value: "0", expected: ErrInvalidConfig},
		{name: "zero deliveries", key: "INVENTORY_CONSUMER_MAX_DELIVERIES", value: "0", expected: ErrInvalidConfig},
		{name: "min above max", key: "INVENTORY_DB_MIN_CONNS", value: "50", expected: ErrInvalidConfig},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)

			_, err := Load()

			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func Test_PGXPoolConfig_ShouldApplyPoolSizing(t *testing.T) {
	// arrange
	cfg := Config{
		DBDSN:             "postgres://u:p@db:5432/inv?sslmode=disable",
		DBMaxConns:        8,
		DBMinConns:        1,
		DBMaxConnLifetime: time.Hour,
		DBConnectTimeout:  3 * time.Second,
	}

	// act
	poolConfig, err := cfg.PGXPoolConfig()

	// assert
	require.NoError(t, err)
	assert.Equal(t, int32(8), poolConfig.MaxConns)
	assert.Equal(t, int32(1), poolConfig.MinConns)
	assert.Equal(t, time.Hour, poolConfig.MaxConnLifetime)
	assert.Equal(t, 3*time.Second, poolConfig.ConnConfig.ConnectTimeout)
	assert.Equal(t, "db", poolConfig.ConnConfig.Host)
}

func Test_PGXPoolConfig_When_DSNIsInvalid_ShouldFail(t *testing.T) {
	_, err := Config{DBDSN: "postgres://::bad"}.PGXPoolConfig()

	assert.ErrorIs(t, err, ErrOpeningDatabaseFailed)
}

func Test_OpenSQLDB_When_DatabaseIsUnreachable_ShouldFail(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Config{DBDSN: "postgres://u:p@127.0.0.1:1/inv?sslmode=disable&connect_timeout=1", DBMaxConns: 1}.OpenSQLDB(ctx)

	assert.ErrorIs(t, err, ErrOpeningDatabaseFailed)
}

func Test_RedisOptions_ShouldCarryTheAddress(t *testing.T) {
	options := Config{RedisAddr: "redis:6379", RedisDB: 2}.RedisOptions()

	assert.Equal(t, "redis:6379", options.Addr)
	assert.Equal(t, 2, options.DB)
}
