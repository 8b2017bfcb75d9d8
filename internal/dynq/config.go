// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dynq

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultPollInterval = 60 * time.Second

// Config holds the scheduler settings of a PollingSource.
type Config struct {
	// PollIntervalSeconds is the cadence of the scheduler.
	PollIntervalSeconds int `env:"POLL_INTERVAL_SECONDS" envDefault:"60"`
	// FetchTimeout bounds every batched fetch, zero means no bound.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"0s"`
}

// DefaultConfig returns the configuration used when nothing is set in the environment.
func DefaultConfig() Config {
	return Config{PollIntervalSeconds: int(defaultPollInterval / time.Second)}
}

// LoadConfigFromEnv reads the scheduler configuration from the environment.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) {
			err = aggErr.Errors[0]
		}
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("%w: poll interval must be greater than zero, got %d", ErrInvalidConfig, c.PollIntervalSeconds)
	}

	if c.FetchTimeout < 0 {
		return fmt.Errorf("%w: fetch timeout cannot be negative, got %s", ErrInvalidConfig, c.FetchTimeout)
	}

	return nil
}

func (c Config) pollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
