package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, 72*time.Hour, cfg.Security.JWTTTLH)
	assert.Equal(t, 10*time.Second, cfg.Progress.LockTTL)
	assert.Equal(t, 3*time.Second, cfg.Progress.LockWait)
	assert.Equal(t, 5*time.Minute, cfg.Progress.RankingRefresh)
	assert.Equal(t, 100, cfg.Progress.RankingSize)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  mode: mysql
  mysql_dsn: "u:p@tcp(localhost:3306)/agri"
cache:
  redis_addr: "localhost:6379"
server:
  admin_key: secret
  admin_ips: ["127.0.0.1"]
progress:
  lock_wait: 500ms
`))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Mode)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.Server.AdminIPs)
	assert.Equal(t, 500*time.Millisecond, cfg.Progress.LockWait)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
