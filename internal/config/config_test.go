package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		t.Setenv("APP_ENV", "test")
		t.Setenv("APP_PORT", "9090")
		t.Setenv("STORE_DRIVER", "Postgres")
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("DB_USER", "testuser")
		t.Setenv("DB_PASSWORD", "testpass")
		t.Setenv("DB_NAME", "testdb")
		t.Setenv("DB_PORT", "5433")
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("ORDER_STRICT_TRANSITIONS", "true")
		t.Setenv("RATE_LIMIT_RPS", "2.5")
		t.Setenv("RATE_LIMIT_BURST", "7")

		cfg := LoadConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, "9090", cfg.AppPort)
		assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5433", cfg.DBPort)
		assert.Equal(t, "secret", cfg.JWTSecret)
		assert.True(t, cfg.StrictStatusTransitions)
		assert.Equal(t, 2.5, cfg.RateLimitRPS)
		assert.Equal(t, 7, cfg.RateLimitBurst)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("APP_PORT", "")
		t.Setenv("DB_PORT", "")
		t.Setenv("STORE_DRIVER", "")
		t.Setenv("ORDER_STRICT_TRANSITIONS", "not-a-bool")
		t.Setenv("RATE_LIMIT_RPS", "")
		t.Setenv("RATE_LIMIT_BURST", "")
		t.Setenv("CORS_ALLOWED_ORIGIN", "")

		cfg := LoadConfig()

		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, "5432", cfg.DBPort)
		assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
		assert.False(t, cfg.StrictStatusTransitions)
		assert.Equal(t, float64(10), cfg.RateLimitRPS)
		assert.Equal(t, 20, cfg.RateLimitBurst)
		assert.Equal(t, "http://localhost:3000", cfg.CORSAllowedOrigin)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StoreDriver:    StoreDriverPostgres,
			DBHost:         "localhost",
			DBName:         "orders",
			JWTSecret:      "secret",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		}
	}

	t.Run("Valid postgres", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("Memory driver needs no DB settings", func(t *testing.T) {
		cfg := valid()
		cfg.StoreDriver = StoreDriverMemory
		cfg.DBHost = ""
		cfg.DBName = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Missing DB host and secret", func(t *testing.T) {
		cfg := valid()
		cfg.DBHost = ""
		cfg.JWTSecret = ""

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "DB_HOST")
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})

	t.Run("Unknown driver", func(t *testing.T) {
		cfg := valid()
		cfg.StoreDriver = "mysql"
		assert.ErrorContains(t, cfg.Validate(), "STORE_DRIVER")
	})

	t.Run("Non-positive rate limit", func(t *testing.T) {
		cfg := valid()
		cfg.RateLimitBurst = 0
		assert.ErrorContains(t, cfg.Validate(), "RATE_LIMIT")
	})
}
