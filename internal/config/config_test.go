package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-cs-agent/server/internal/core"
)

func TestLoad(t *testing.T) {
	t.Run("Should apply defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 300*time.Second, cfg.Cache.ResponseTTL)
		assert.Equal(t, 3, cfg.Session.MaxTurns)
		assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
		assert.Equal(t, 8080, cfg.HTTP.Port)
		assert.Equal(t, int64(16), cfg.Background.Concurrency)
		assert.Equal(t, core.Development, cfg.Env())
	})

	t.Run("Should read overrides from the environment", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		t.Setenv("CACHE_LONG_ANSWER_MIN_LEN", "120")
		t.Setenv("HTTP_ALLOWED_ORIGINS", "https://a.example,https://b.example")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, core.Production, cfg.Env())
		assert.Equal(t, 120, cfg.Cache.LongAnswer)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	})

	t.Run("Should load an env file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("BUSINESS_NAME=测试商城\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv("BUSINESS_NAME") })

		cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, "测试商城", cfg.Business.Name)
	})

	t.Run("Should reject malformed values", func(t *testing.T) {
		t.Setenv("SESSION_TTL", "forever")
		_, err := Load()
		assert.Error(t, err)
	})
}
