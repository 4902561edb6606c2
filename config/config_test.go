package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CLAMD_ADDRESS", "")
	t.Setenv("RABBITMQ_WORKERS", "")
	t.Setenv("CLAMD_IO_TIMEOUT", "")
	t.Setenv("RABBITMQ_REQUEUE_DELAY", "")

	cfg := Load()
	assert.Equal(t, "127.0.0.1:3310", cfg.Scan.Address)
	assert.Equal(t, 4, cfg.MQ.Workers)
	assert.Equal(t, 60*time.Second, cfg.Scan.IOTimeout)
	assert.Equal(t, 64<<10, cfg.Scan.ChunkSize)
	assert.Equal(t, 2*time.Second, cfg.MQ.RequeueDelay)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("CLAMD_ADDRESS", "unix:/run/clamd.sock")
	t.Setenv("CLAMD_DIAL_TIMEOUT", "250ms")
	t.Setenv("RABBITMQ_WORKERS", "16")
	t.Setenv("STORAGE_ROOT", "/srv/files")
	t.Setenv("SERVICE_REPOSITORY", "memory")
	t.Setenv("RABBITMQ_REQUEUE_DELAY", "10s")

	cfg := Load()
	assert.Equal(t, "unix:/run/clamd.sock", cfg.Scan.Address)
	assert.Equal(t, 250*time.Millisecond, cfg.Scan.DialTimeout)
	assert.Equal(t, 16, cfg.MQ.Workers)
	assert.Equal(t, "/srv/files", cfg.Storage.Root)
	assert.Equal(t, "memory", cfg.App.Repository)
	assert.Equal(t, 10*time.Second, cfg.MQ.RequeueDelay)
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	t.Setenv("RABBITMQ_WORKERS", "many")
	t.Setenv("CLAMD_IO_TIMEOUT", "soon")

	cfg := Load()
	assert.Equal(t, 4, cfg.MQ.Workers)
	assert.Equal(t, 60*time.Second, cfg.Scan.IOTimeout)
}

func TestConfig_DBDSN(t *testing.T) {
	_, err := Config{}.DBDSN()
	require.Error(t, err)

	dsn, err := Config{DB: DB{User: "u", Password: "p@ss", Name: "files", Host: "db", Port: "5432"}}.DBDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p%40ss@db:5432/files", dsn)
}

func TestConfig_AMQPDSN(t *testing.T) {
	_, err := Config{}.AMQPDSN()
	require.Error(t, err)

	dsn, err := Config{MQ: MQ{User: "guest", Password: "guest", Host: "mq", AmqpPort: "5672", Vhost: "/"}}.AMQPDSN()
	require.NoError(t, err)
	assert.Equal(t, "amqp://guest:guest@mq:5672/%2F", dsn)
}
