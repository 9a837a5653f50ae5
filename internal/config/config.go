package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "battmon/libs/config"
)

// Config defines battery monitor configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"BATTMON_HTTP_PORT"`
	} `yaml:"http"`
	Redis struct {
		Addr     string `yaml:"addr" env:"BATTMON_REDIS_ADDR"`
		Password string `yaml:"password" env:"BATTMON_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"BATTMON_REDIS_DB"`
	} `yaml:"redis"`
	Database struct {
		// Optional. Empty DSN disables the session archive.
		DSN string `yaml:"dsn" env:"BATTMON_POSTGRES_DSN"`
	} `yaml:"database"`
	Advisor struct {
		BaseURL        string `yaml:"baseUrl" env:"BATTMON_ADVISOR_URL"`
		TimeoutSeconds int    `yaml:"timeoutSeconds" env:"BATTMON_ADVISOR_TIMEOUT"`
	} `yaml:"advisor"`
	Monitor struct {
		// Ports to watch. Empty means discover from the store at startup.
		Ports                     []string `yaml:"ports" env:"BATTMON_MONITOR_PORTS"`
		StaleTimeoutSeconds       int      `yaml:"staleTimeoutSeconds" env:"BATTMON_STALE_TIMEOUT"`
		MinSessionDurationSeconds int      `yaml:"minSessionDurationSeconds" env:"BATTMON_MIN_SESSION_DURATION"`
		CheckIntervalSeconds      int      `yaml:"checkIntervalSeconds" env:"BATTMON_CHECK_INTERVAL"`
		PersistMinIntervalSeconds int      `yaml:"persistMinIntervalSeconds" env:"BATTMON_PERSIST_MIN_INTERVAL"`
		AttemptGapSeconds         int      `yaml:"attemptGapSeconds" env:"BATTMON_ATTEMPT_GAP"`
		FlushGapSeconds           int      `yaml:"flushGapSeconds" env:"BATTMON_FLUSH_GAP"`
	} `yaml:"monitor"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Redis.Addr = "localhost:6379"

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// AdvisorTimeout returns the advisor request timeout.
func (c *Config) AdvisorTimeout() time.Duration {
	if c.Advisor.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Advisor.TimeoutSeconds) * time.Second
}

// StaleTimeout returns the no-log staleness window.
func (c *Config) StaleTimeout() time.Duration {
	return seconds(c.Monitor.StaleTimeoutSeconds)
}

// MinSessionDuration returns the minimum session age before staleness applies.
func (c *Config) MinSessionDuration() time.Duration {
	return seconds(c.Monitor.MinSessionDurationSeconds)
}

// CheckInterval returns the periodic staleness check interval.
func (c *Config) CheckInterval() time.Duration {
	return seconds(c.Monitor.CheckIntervalSeconds)
}

// PersistMinInterval returns the real-time metrics write throttle window.
func (c *Config) PersistMinInterval() time.Duration {
	return seconds(c.Monitor.PersistMinIntervalSeconds)
}

// AttemptGap returns the debounce delay after a persist attempt.
func (c *Config) AttemptGap() time.Duration {
	return seconds(c.Monitor.AttemptGapSeconds)
}

// FlushGap returns the debounce delay after a successful persist.
func (c *Config) FlushGap() time.Duration {
	return seconds(c.Monitor.FlushGapSeconds)
}

// seconds converts a positive seconds count, zero otherwise. Zero lets the
// monitor apply its own defaults.
func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
