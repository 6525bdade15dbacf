package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/linkvault/internal/config"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

func baseConfig() *config.Config {
	return &config.Config{
		ListenPort:        ":0",
		ShutdownTimeout:   time.Second,
		RequestTimeout:    time.Second,
		Backend:           config.BackendMemory,
		JWTSecret:         "0123456789abcdef0123456789abcdef",
		WriteBurst:        5,
		WriteRefillPerMin: 5,
		ImportKind:        "bookmarks",
		ImportInterval:    time.Hour,
		SweepInterval:     time.Hour,
	}
}

func TestOpenBackendMemory(t *testing.T) {
	b, err := OpenBackend(context.Background(), baseConfig(), logger.Nop())
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Equal(t, "memory", b.Name())
	assert.NoError(t, b.Ping(context.Background()))
}

func TestOpenBackendRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := baseConfig()
	cfg.Backend = config.BackendRedis
	cfg.RedisAddr = mr.Addr()
	cfg.RedisDT = time.Second
	cfg.RedisRT = time.Second
	cfg.RedisWT = time.Second
	cfg.RedisPoolSize = 2
	cfg.RedisConnectTimeout = 2 * time.Second
	cfg.RedisRetryInterval = 10 * time.Millisecond
	cfg.RedisMaxWait = 50 * time.Millisecond
	cfg.RedisPingTimeout = time.Second
	cfg.RedisWarnThreshold = 1

	b, err := OpenBackend(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Equal(t, "redis", b.Name())
}

func TestOpenBackendUnknown(t *testing.T) {
	cfg := baseConfig()
	cfg.Backend = "sqlite"

	_, err := OpenBackend(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestNewWiresImportAndSweeper(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bookmarks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`- Dev:
    - GitHub:
        - abbr: GH
          href: https://github.com/
`), 0o644))

	cfg := baseConfig()
	cfg.ImportFile = path
	cfg.ImportOwner = "alice"

	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer a.closeBackend()

	require.NotNil(t, a.reloader)
	assert.Nil(t, a.sweeper, "the memory store has no index to sweep")

	require.NoError(t, a.reloader.Reload(context.Background()))
	items, err := a.backend.ListByOwner(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://github.com/", items[0].URL)
}

func TestNewRejectsBadImportKind(t *testing.T) {
	cfg := baseConfig()
	cfg.ImportFile = "/does/not/matter.yaml"
	cfg.ImportOwner = "alice"
	cfg.ImportKind = "widgets"

	_, err := New(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}
