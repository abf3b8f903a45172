package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
)

// Config holds the gateway settings read from TELEMVC_* environment variables.
type Config struct {
	BotTokens []string `env:"TELEMVC_BOT_TOKENS" envSeparator:","`
	Proxy     string   `env:"TELEMVC_PROXY"`
	// AllowFrom limits ingestion to these user ids or usernames. Empty allows everyone.
	AllowFrom []string `env:"TELEMVC_ALLOW_FROM" envSeparator:","`

	Session SessionConfig
	Workers WorkersConfig

	OutboundQueueSize      int `env:"TELEMVC_OUTBOUND_QUEUE_SIZE"      envDefault:"100"`
	PollTimeoutSeconds     int `env:"TELEMVC_POLL_TIMEOUT_SECONDS"     envDefault:"30"`
	ShutdownTimeoutSeconds int `env:"TELEMVC_SHUTDOWN_TIMEOUT_SECONDS" envDefault:"30"`
	// MetricsIntervalSeconds is how often counters are logged; 0 logs only at exit.
	MetricsIntervalSeconds int `env:"TELEMVC_METRICS_INTERVAL_SECONDS" envDefault:"60"`

	LogLevel  string `env:"TELEMVC_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"TELEMVC_LOG_FORMAT" envDefault:"console"`
}

type SessionConfig struct {
	TTLSeconds    int    `env:"TELEMVC_SESSION_TTL_SECONDS"    envDefault:"3600"`
	SweepSchedule string `env:"TELEMVC_SESSION_SWEEP_SCHEDULE" envDefault:"* * * * *"`
}

type WorkersConfig struct {
	Min              int `env:"TELEMVC_WORKER_POOL_MIN"           envDefault:"4"`
	Max              int `env:"TELEMVC_WORKER_POOL_MAX"           envDefault:"16"`
	KeepAliveSeconds int `env:"TELEMVC_WORKER_KEEP_ALIVE_SECONDS" envDefault:"60"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.BotTokens = compactTokens(cfg.BotTokens)
	cfg.AllowFrom = compactTokens(cfg.AllowFrom)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the numeric bounds and the sweep schedule. Bot tokens are
// only required by the gateway command and are checked there.
func (c *Config) Validate() error {
	var errs []error
	if c.Session.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("session ttl must be positive, got %d", c.Session.TTLSeconds))
	}
	if c.Session.SweepSchedule != "" && !gronx.New().IsValid(c.Session.SweepSchedule) {
		errs = append(errs, fmt.Errorf("invalid session sweep schedule %q", c.Session.SweepSchedule))
	}
	if c.Workers.Min <= 0 {
		errs = append(errs, fmt.Errorf("worker pool min must be positive, got %d", c.Workers.Min))
	}
	if c.Workers.Max <= 0 {
		errs = append(errs, fmt.Errorf("worker pool max must be positive, got %d", c.Workers.Max))
	} else if c.Workers.Max < c.Workers.Min {
		errs = append(errs, fmt.Errorf("worker pool max (%d) is below min (%d)", c.Workers.Max, c.Workers.Min))
	}
	if c.Workers.KeepAliveSeconds < 0 {
		errs = append(errs, fmt.Errorf("worker keep-alive must not be negative, got %d", c.Workers.KeepAliveSeconds))
	}
	if c.OutboundQueueSize < 0 {
		errs = append(errs, fmt.Errorf("outbound queue size must not be negative, got %d", c.OutboundQueueSize))
	}
	if c.MetricsIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("metrics interval must not be negative, got %d", c.MetricsIntervalSeconds))
	}
	return errors.Join(errs...)
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

func (c *Config) WorkerKeepAlive() time.Duration {
	return time.Duration(c.Workers.KeepAliveSeconds) * time.Second
}

func (c *Config) PollTimeout() int {
	return c.PollTimeoutSeconds
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalSeconds) * time.Second
}

func compactTokens(tokens []string) []string {
	out := tokens[:0]
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
