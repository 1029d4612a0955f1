// Package config loads the ssfctl configuration file.
package config

import (
	"time"

	"github.com/ssfkit/ssf-transmit-go/ssf"
)

// Config represents the top-level configuration.
type Config struct {
	Issuer   string         `yaml:"issuer"`
	Audience string         `yaml:"audience"`
	Logging  LoggingConfig  `yaml:"logging"`
	Receiver ReceiverConfig `yaml:"receiver"`
	Transmit TransmitConfig `yaml:"transmit"`
	Retry    RetryConfig    `yaml:"retry"`
	Signer   SignerConfig   `yaml:"signer"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ReceiverConfig describes where events are delivered. When Redis.URL is set
// the receiver settings are read from the Redis hash instead.
type ReceiverConfig struct {
	URL       string            `yaml:"url"`
	AuthToken string            `yaml:"auth_token"`
	Headers   map[string]string `yaml:"headers"`
	Redis     RedisConfig       `yaml:"redis"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Key      string `yaml:"key"`
}

// TransmitConfig holds per-attempt delivery settings.
type TransmitConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	ParseResponse *bool         `yaml:"parse_response"`
	AcceptCodes   []int         `yaml:"accept_codes"`
	AcceptMax     int           `yaml:"accept_max"`
}

// RetryConfig mirrors ssf.RetryConfig.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryableStatuses []int         `yaml:"retryable_statuses"`
	Backoff           time.Duration `yaml:"backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	Multiplier        float64       `yaml:"multiplier"`
}

// SignerConfig configures the remote signer used by send.
type SignerConfig struct {
	Address  string        `yaml:"address"`
	APIKey   string        `yaml:"api_key"`
	KeyID    string        `yaml:"key_id"`
	Insecure bool          `yaml:"insecure"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SSF converts r to the library retry configuration.
func (r RetryConfig) SSF() ssf.RetryConfig {
	return ssf.RetryConfig{
		MaxAttempts:       r.MaxAttempts,
		RetryableStatuses: r.RetryableStatuses,
		Backoff:           r.Backoff,
		MaxBackoff:        r.MaxBackoff,
		BackoffMultiplier: r.Multiplier,
	}
}

// AcceptPolicy returns the configured accept policy.
func (t TransmitConfig) AcceptPolicy() ssf.AcceptPolicy {
	return ssf.AcceptPolicy{Codes: t.AcceptCodes, Max: t.AcceptMax}
}
