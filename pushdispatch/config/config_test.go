package config_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch/pushdispatch/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	baseConfig := func() *config.Config {
		return &config.Config{
			ProjectID:          "base-project",
			ListenAddr:         ":8080",
			SubscriptionID:     "base-sub",
			NumPipelineWorkers: 2,
			Vapid: config.VapidConfig{
				PublicKey:  "base-pub",
				PrivateKey: "base-priv",
			},
		}
	}

	t.Run("Success - All overrides applied", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("PROJECT_ID", "env-project")
		t.Setenv("PORT", "9090")
		t.Setenv("SUBSCRIPTION_ID", "env-sub")
		t.Setenv("MAX_FAN_OUT", "16")

		t.Setenv("VAPID_PUBLIC_KEY", "env-pub")
		t.Setenv("VAPID_PRIVATE_KEY", "env-priv")
		t.Setenv("VAPID_SUB_EMAIL", "env@test.com")

		t.Setenv("APNS_KEY_ID", "env-key")
		t.Setenv("APNS_TEAM_ID", "env-team")
		t.Setenv("APNS_BUNDLE_ID", "com.env.app")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "env-project", finalCfg.ProjectID)
		assert.Equal(t, ":9090", finalCfg.ListenAddr)
		assert.Equal(t, "env-sub", finalCfg.SubscriptionID)
		assert.Equal(t, 16, finalCfg.MaxFanOut)

		assert.Equal(t, "env-pub", finalCfg.Vapid.PublicKey)
		assert.Equal(t, "env-priv", finalCfg.Vapid.PrivateKey)
		assert.Equal(t, "env@test.com", finalCfg.Vapid.SubscriberEmail)

		assert.True(t, finalCfg.APNS.Enabled)
		assert.Equal(t, "env-key", finalCfg.APNS.KeyID)
		assert.Equal(t, "env-team", finalCfg.APNS.TeamID)
		assert.Equal(t, "com.env.app", finalCfg.APNS.BundleID)
	})

	t.Run("Success - Defaults preserved", func(t *testing.T) {
		cfg := baseConfig()

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "base-project", finalCfg.ProjectID)
		assert.Equal(t, ":8080", finalCfg.ListenAddr)
		assert.Equal(t, 2, finalCfg.NumPipelineWorkers)
		assert.Zero(t, finalCfg.MaxFanOut)
		assert.False(t, finalCfg.APNS.Enabled)
	})

	t.Run("Failure - Missing project ID", func(t *testing.T) {
		cfg := baseConfig()
		cfg.ProjectID = ""

		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "project_id is required")
	})

	t.Run("Failure - Missing subscription ID", func(t *testing.T) {
		cfg := baseConfig()
		cfg.SubscriptionID = ""

		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "subscription_id is required")
	})

	t.Run("Redis enabled by REDIS_ADDR", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("REDIS_ADDR", "redis:6379")
		t.Setenv("REDIS_DB", "3")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.True(t, finalCfg.Redis.Enabled)
		assert.Equal(t, "redis:6379", finalCfg.Redis.Addr)
		assert.Equal(t, 3, finalCfg.Redis.DB)
	})
}
