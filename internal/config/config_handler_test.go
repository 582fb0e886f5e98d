package config

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/parkdesk/auth-go/token"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createConfigFile(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path.Join(dir, "config.yaml"), []byte(contents), 0666))
}

func createSecretFile(t *testing.T, dir string) {
	t.Helper()
	contents := `---
store:
  redis:
    password: redis-password-from-secret-file
monitoring:
  sentry:
    dsn: https://public@sentry.example.com/1
`
	require.NoError(t, os.WriteFile(path.Join(dir, "secret_config.yaml"), []byte(contents), 0666))
}

const mainConfig = `---
client:
  baseURL: https://garage.example.com
  timeout: 10s
  rateLimits:
    enabled: true
    rate: 5
    burst: 10
store:
  type: redis
  redis:
    addresses:
      - localhost:6379
    keyPrefix: "kiosk-3:"
    ttl: 24h
poller:
  enabled: true
  healthInterval: 15s
monitoring:
  sentry:
    enabled: true
    environment: staging
logging:
  level: debug
`

func TestReadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CONFIG_LOCATION", tmpDir)
	createConfigFile(t, tmpDir, mainConfig)
	createSecretFile(t, tmpDir)

	config, err := NewConfigHandler().Config()
	require.NoError(t, err)

	assert.Equal(t, "https://garage.example.com", config.Client.BaseURL.String())
	assert.Equal(t, 10*time.Second, config.Client.Timeout)
	assert.Equal(t, RateLimits{Enabled: true, Rate: 5, Burst: 10}, config.Client.RateLimits)
	assert.Equal(t, StoreTypeRedis, config.Store.Type)
	assert.Equal(t, []string{"localhost:6379"}, config.Store.Redis.Addresses)
	assert.Equal(t, "kiosk-3:", config.Store.Redis.KeyPrefix)
	assert.Equal(t, 24*time.Hour, config.Store.Redis.TTL)
	assert.Equal(t, RedactedString("redis-password-from-secret-file"), config.Store.Redis.Password)
	assert.Equal(t, 15*time.Second, config.Poller.HealthInterval)
	assert.Equal(t, 5*time.Minute, config.Poller.VerifyInterval)
	assert.Equal(t, RedactedString("https://public@sentry.example.com/1"), config.Monitoring.Sentry.Dsn)
	assert.Equal(t, 1.0, config.Monitoring.Sentry.SampleRate)

	level, err := config.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestReadConfigWithEnvVars(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CONFIG_LOCATION", tmpDir)
	createConfigFile(t, tmpDir, mainConfig)
	createSecretFile(t, tmpDir)
	t.Setenv("PARKING_CLIENT_BASEURL", "http://localhost:8080")
	t.Setenv("PARKING_STORE_REDIS_PASSWORD", "env-var-secret")
	t.Setenv("PARKING_POLLER_VERIFYINTERVAL", "90s")

	config, err := NewConfigHandler().Config()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", config.Client.BaseURL.String())
	assert.Equal(t, RedactedString("env-var-secret"), config.Store.Redis.Password)
	assert.Equal(t, 90*time.Second, config.Poller.VerifyInterval)
	assert.Equal(t, RedactedString("https://public@sentry.example.com/1"), config.Monitoring.Sentry.Dsn)
}

func TestReadConfigWithEnvVarsNoFiles(t *testing.T) {
	t.Setenv("CONFIG_LOCATION", t.TempDir())
	t.Setenv("PARKING_CLIENT_BASEURL", "http://localhost:8080")
	t.Setenv("PARKING_STORE_TYPE", StoreTypeMemory)

	config, err := NewConfigHandler().Config()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", config.Client.BaseURL.String())
	assert.Equal(t, 30*time.Second, config.Client.Timeout)
	assert.Equal(t, StoreTypeMemory, config.Store.Type)
	assert.False(t, config.Poller.Enabled)
	assert.Equal(t, LogFormatJSON, config.Logging.Format)
}

func TestReadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing base URL", env: map[string]string{}},
		{name: "relative base URL", env: map[string]string{"PARKING_CLIENT_BASEURL": "/api"}},
		{name: "unknown store", env: map[string]string{"PARKING_STORE_TYPE": "etcd"}},
		{name: "redis without address", env: map[string]string{"PARKING_STORE_TYPE": StoreTypeRedis}},
		{name: "ssm without region", env: map[string]string{"PARKING_STORE_TYPE": StoreTypeSSM}},
		{name: "sentry without dsn", env: map[string]string{"PARKING_MONITORING_SENTRY_ENABLED": "true"}},
		{name: "bad log level", env: map[string]string{"PARKING_LOGGING_LEVEL": "loud"}},
		{name: "bad rate limit", env: map[string]string{"PARKING_CLIENT_RATELIMITS_ENABLED": "true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_LOCATION", t.TempDir())
			if tt.name != "missing base URL" {
				t.Setenv("PARKING_CLIENT_BASEURL", "http://localhost:8080")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewConfigHandler().Config()
			assert.Error(t, err)
		})
	}
}

func TestHandleChanges(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CONFIG_LOCATION", tmpDir)
	createConfigFile(t, tmpDir, "client:\n  baseURL: http://one.example.com\nstore:\n  type: memory\n")

	ch := NewConfigHandler()
	config, err := ch.Config()
	require.NoError(t, err)
	require.Equal(t, "http://one.example.com", config.Client.BaseURL.String())

	var mux sync.Mutex
	var seen []string
	ch.HandleChanges(func(c Config, err error) {
		if err != nil {
			return
		}
		mux.Lock()
		defer mux.Unlock()
		seen = append(seen, c.Client.BaseURL.String())
	})
	ch.Watch()

	createConfigFile(t, tmpDir, "client:\n  baseURL: http://two.example.com\nstore:\n  type: memory\n")
	assert.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == "http://two.example.com"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestTokenStore(t *testing.T) {
	store, err := StoreConfig{Type: StoreTypeMemory}.TokenStore()
	require.NoError(t, err)
	assert.IsType(t, &token.MemoryStore{}, store)

	store, err = StoreConfig{Type: StoreTypeFile, Path: path.Join(t.TempDir(), "tokens.json")}.TokenStore()
	require.NoError(t, err)
	assert.IsType(t, &token.FileStore{}, store)

	mr := miniredis.RunT(t)
	store, err = StoreConfig{Type: StoreTypeRedis, Redis: RedisConfig{Addresses: []string{mr.Addr()}, KeyPrefix: "k:"}}.TokenStore()
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), token.AccessTokenKey, "T"))
	v, err := mr.Get("k:" + token.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "T", v)

	// Every address is handed to the client, not only the first one.
	cfg := RedisConfig{Addresses: []string{mr.Addr()}}
	assert.IsType(t, &redis.Client{}, cfg.client())
	cfg.Addresses = append(cfg.Addresses, "redis-2.garage.internal:6379")
	rdb := cfg.client()
	defer func() { _ = rdb.Close() }()
	require.IsType(t, &redis.ClusterClient{}, rdb)
	assert.Equal(t, cfg.Addresses, rdb.(*redis.ClusterClient).Options().Addrs)

	_, err = StoreConfig{Type: "etcd"}.TokenStore()
	assert.Error(t, err)
}

func TestRedactedString(t *testing.T) {
	redactedString := RedactedString("some-secret-value")

	assert.Equal(t, "<redacted-17-chars>", redactedString.String())

	result, err := redactedString.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "<redacted-17-chars>", string(result))

	result, err = json.Marshal(map[string]any{"secret": redactedString})
	require.NoError(t, err)
	assert.Equal(t, "{\"secret\":\"\\u003credacted-17-chars\\u003e\"}", string(result))
}
