package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/ssfkit/ssf-transmit-go/ssf"
)

// Load reads configuration from a YAML file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	def := ssf.DefaultRetryConfig()

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Transmit.Timeout == 0 {
		cfg.Transmit.Timeout = ssf.DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = def.MaxAttempts
	}
	if cfg.Retry.RetryableStatuses == nil {
		cfg.Retry.RetryableStatuses = def.RetryableStatuses
	}
	if cfg.Retry.Backoff == 0 {
		cfg.Retry.Backoff = def.Backoff
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = def.MaxBackoff
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = def.BackoffMultiplier
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if c.Transmit.Timeout < 0 {
		errs = append(errs, errors.New("transmit.timeout must not be negative"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		errs = append(errs, errors.New("retry backoff durations must not be negative"))
	}
	if c.Retry.Multiplier < 0 {
		errs = append(errs, errors.New("retry.multiplier must not be negative"))
	}
	if c.Receiver.Redis.URL != "" && c.Receiver.Redis.Key == "" {
		errs = append(errs, errors.New("receiver.redis.key is required with receiver.redis.url"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
