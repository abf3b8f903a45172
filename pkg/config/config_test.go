package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3600, cfg.Session.TTLSeconds)
	assert.Equal(t, time.Hour, cfg.SessionTTL())
	assert.Equal(t, "* * * * *", cfg.Session.SweepSchedule)
	assert.Equal(t, 4, cfg.Workers.Min)
	assert.Equal(t, 16, cfg.Workers.Max)
	assert.Equal(t, 100, cfg.OutboundQueueSize)
	assert.Equal(t, time.Minute, cfg.MetricsInterval())
	assert.Empty(t, cfg.BotTokens)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("TELEMVC_BOT_TOKENS", "111:aaa, 222:bbb,,111:aaa")
	t.Setenv("TELEMVC_SESSION_TTL_SECONDS", "90")
	t.Setenv("TELEMVC_WORKER_POOL_MIN", "2")
	t.Setenv("TELEMVC_WORKER_POOL_MAX", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"111:aaa", "222:bbb"}, cfg.BotTokens)
	assert.Equal(t, 90*time.Second, cfg.SessionTTL())
	assert.Equal(t, 2, cfg.Workers.Min)
	assert.Equal(t, 3, cfg.Workers.Max)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Session: SessionConfig{TTLSeconds: 60, SweepSchedule: "*/5 * * * *"},
			Workers: WorkersConfig{Min: 1, Max: 2},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero ttl", func(c *Config) { c.Session.TTLSeconds = 0 }, "session ttl"},
		{"bad schedule", func(c *Config) { c.Session.SweepSchedule = "every minute" }, "sweep schedule"},
		{"zero min", func(c *Config) { c.Workers.Min = 0 }, "min must be positive"},
		{"max below min", func(c *Config) { c.Workers.Min = 5 }, "below min"},
		{"negative metrics interval", func(c *Config) { c.MetricsIntervalSeconds = -1 }, "metrics interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RejectsNonNumeric(t *testing.T) {
	t.Setenv("TELEMVC_WORKER_POOL_MAX", "lots")
	_, err := Load()
	assert.Error(t, err)
}
