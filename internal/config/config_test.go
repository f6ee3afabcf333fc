package config

import (
	"go/format"
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
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
instagram:
  username: relaybot
  password: secret
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Telegram.UpdateTimeout)
	assert.Equal(t, 90*time.Second, cfg.Telegram.HTTPTimeout)
	assert.Equal(t, ".", cfg.Telegram.FailureLogDir)
	assert.Equal(t, 30*24*time.Hour, cfg.Telegram.FailureLogRetention)
	assert.Equal(t, 5, cfg.Instagram.FeedLimit)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 4, cfg.Relay.Workers)
	assert.Equal(t, 100, cfg.Relay.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.Relay.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Relay.DialogTimeout)
	assert.Equal(t, []string{"cancel", "取消"}, cfg.Relay.CancelKeywords)
	assert.Empty(t, cfg.API.ListenAddr)
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  allowed_chats: [-1001, 42]
  allowed_users: [alice]
instagram:
  session_file: /var/lib/insta-relay/session
  feed_limit: 8
cache:
  redis_addr: localhost:6379
  ttl: 2m
relay:
  workers: 2
  request_timeout: 15s
api:
  listen_addr: ":8080"
  whitelist_ips: ["10.0.0.0/8"]
log_level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []int64{-1001, 42}, cfg.Telegram.AllowedChats)
	assert.Equal(t, []string{"alice"}, cfg.Telegram.AllowedUsers)
	assert.Equal(t, 8, cfg.Instagram.FeedLimit)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 2, cfg.Relay.Workers)
	assert.Equal(t, 15*time.Second, cfg.Relay.RequestTimeout)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.API.WhitelistIPs)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("INSTAGRAM_USERNAME", "envuser")
	t.Setenv("INSTAGRAM_PASSWORD", "envpass")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("API_LISTEN_ADDR", ":9090")

	cfg, err := LoadConfig(writeConfig(t, "telegram:\n  token: file-token\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "envuser", cfg.Instagram.Username)
	assert.Equal(t, "envpass", cfg.Instagram.Password)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 3, cfg.Cache.RedisDB)
	assert.Equal(t, ":9090", cfg.API.ListenAddr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("INSTAGRAM_USERNAME", "")
	t.Setenv("INSTAGRAM_PASSWORD", "")

	cases := map[string]string{
		"missing token":       "instagram:\n  username: u\n  password: p\n",
		"missing credentials": "telegram:\n  token: t\n",
		"feed limit too high": "telegram:\n  token: t\ninstagram:\n  username: u\n  password: p\n  feed_limit: 50\n",
	}
	for name, body := range cases {
		_, err := LoadConfig(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "telegram: [unclosed"))
	assert.Error(t, err)
}

func TestConfigSourceIsGofmted(t *testing.T) {
	src, err := os.ReadFile("config.go")
	require.NoError(t, err)
	formatted, err := format.Source(src)
	require.NoError(t, err)
	assert.Equal(t, string(formatted), string(src))
}
