package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuongbtq/inference-hitl/internal/config"
	"github.com/cuongbtq/inference-hitl/internal/storage"
	"github.com/cuongbtq/inference-hitl/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDatabase_SQLiteAutoMigrate(t *testing.T) {
	ctx := context.Background()
	conn, err := InitDatabase(ctx, &config.DatabaseConfig{
		Driver:      config.DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "jobs.db"),
		AutoMigrate: true,
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	assert.Equal(t, "sqlite", conn.Dialect())
	require.NoError(t, conn.HealthCheck(ctx))

	store := storage.NewStorage(conn.GetDB(), logger.Discard())
	id, err := store.CreateJob(ctx, []byte(`{}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestInitDatabase_UnsupportedDriver(t *testing.T) {
	_, err := InitDatabase(context.Background(), &config.DatabaseConfig{Driver: "mysql"}, logger.Discard())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestInitBroker_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	ctx := context.Background()
	cfg := &config.Config{
		Broker: config.BrokerConfig{Driver: config.BrokerRedis},
		Redis: config.RedisConfig{
			URL:    "redis://" + mr.Addr(),
			Stream: "inference-jobs",
			Block:  10 * time.Millisecond,
		},
	}

	broker, err := InitBroker(ctx, cfg, "worker-test", logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { broker.Close() })

	require.NoError(t, broker.HealthCheck(ctx))
	require.NoError(t, broker.Publish(ctx, "2NWrFMd1zIrx8vjFY0C6iqGhFzZ"))

	entries, err := mr.Stream("inference-jobs")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRedisConsumerName(t *testing.T) {
	host := func() (string, error) { return "worker-host-1", nil }
	noHost := func() (string, error) { return "", errors.New("no hostname") }

	// a per-start id must never win over a stable name
	assert.Equal(t, "configured", redisConsumerName("configured", host, "worker-2f1c"))
	assert.Equal(t, "worker-host-1", redisConsumerName("", host, "worker-2f1c"))
	assert.Equal(t, "worker-2f1c", redisConsumerName("", noHost, "worker-2f1c"))
}

func TestInitBroker_UnsupportedDriver(t *testing.T) {
	_, err := InitBroker(context.Background(), &config.Config{
		Broker: config.BrokerConfig{Driver: "kafka"},
	}, "worker-test", logger.Discard())
	assert.ErrorContains(t, err, "unsupported broker driver")
}

func TestInitLogger(t *testing.T) {
	log, err := InitLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	assert.NotNil(t, log.Logger)
}
