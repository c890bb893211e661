package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, "", cfg.APIPrefix)
	assert.Equal(t, 20, cfg.FriendRequestRateLimit)
	assert.Equal(t, time.Hour, cfg.FriendRequestRateWindow)
	assert.False(t, cfg.MailSendEnabled)
	assert.Equal(t, 5, cfg.NotificationMaxAttempts)
	assert.Equal(t, time.Minute, cfg.NotificationRetryDelay)
	assert.Empty(t, cfg.ESAddrs())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("API_PREFIX", "/api/")
	t.Setenv("FRIEND_REQUEST_RATE_LIMIT", "5")
	t.Setenv("FRIEND_REQUEST_RATE_WINDOW", "90s")
	t.Setenv("ELASTICSEARCH_ADDRS", "http://es1:9200, http://es2:9200,")
	t.Setenv("REDIS_ADDR", "")

	cfg := Load()

	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, 5, cfg.FriendRequestRateLimit)
	assert.Equal(t, 90*time.Second, cfg.FriendRequestRateWindow)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.ESAddrs())
	assert.Equal(t, "", cfg.RedisAddr, "explicitly empty REDIS_ADDR disables redis")
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("FRIEND_REQUEST_RATE_LIMIT", "many")
	t.Setenv("COOKIE_SECURE", "maybe")
	t.Setenv("JWT_ACCESS_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 20, cfg.FriendRequestRateLimit)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, time.Hour, cfg.AccessTTL)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "5432", DBName: "d", DBSSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", cfg.PostgresDSN())
}

func TestValidate(t *testing.T) {
	cfg := Load()
	assert.NoError(t, cfg.Validate())

	cfg.Env = "production"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "development defaults")

	cfg.JWTAccessSecret, cfg.JWTRefreshSecret = "a-real-secret", "another-secret"
	cfg.StoreDriver = "sqlite"
	cfg.MailSendEnabled = true
	cfg.RabbitMQURL = ""
	err = cfg.Validate()
	assert.ErrorContains(t, err, "unknown driver")
	assert.ErrorContains(t, err, "RABBITMQ_URL")
	assert.NotContains(t, err.Error(), "development defaults")
}
