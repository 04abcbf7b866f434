package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad(t *testing.T) {
	t.Run("默认配置", func(t *testing.T) {
		t.Setenv("HELPDESK_JWT_SECRET", testSecret)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 3*time.Minute, cfg.Sync.Interval)
		assert.Equal(t, 5*time.Minute, cfg.Sync.AccountTimeout)
		assert.Equal(t, 4, cfg.Sync.Workers)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		// 默认不配数据库，走内存存储
		assert.Empty(t, cfg.Database.Type)
		assert.Empty(t, cfg.Redis.Address)
		assert.Equal(t, 587, cfg.SMTP.Port)
		assert.True(t, cfg.SMTP.StartTLS)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		t.Setenv("HELPDESK_JWT_SECRET", testSecret)
		t.Setenv("HELPDESK_SERVER_PORT", "9090")
		t.Setenv("HELPDESK_SYNC_INTERVAL", "30s")
		t.Setenv("HELPDESK_CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
		assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORS.AllowedOrigins)
	})

	t.Run("拒绝默认 JWT secret", func(t *testing.T) {
		t.Setenv("HELPDESK_JWT_SECRET", "change-me-in-production")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT secret")
	})

	t.Run("拒绝过短的 JWT secret", func(t *testing.T) {
		t.Setenv("HELPDESK_JWT_SECRET", "short")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "32 characters")
	})

	t.Run("拒绝过小的同步间隔", func(t *testing.T) {
		t.Setenv("HELPDESK_JWT_SECRET", testSecret)
		t.Setenv("HELPDESK_SYNC_INTERVAL", "100ms")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.interval")
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList("a, b"))
	assert.Equal(t, []string{"a"}, parseList("a,,  "))
	assert.Empty(t, parseList(""))
	assert.Equal(t, []string{"*"}, parseList("*"))
}
