// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package http

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v11"
)

var (
	errParsingConfig       = errors.New("error parsing http fetcher configuration from environment variables")
	errMissingClientID     = errors.New("DYNQ_HTTP_CLIENT_ID is required when DYNQ_HTTP_CLIENT_SECRET or DYNQ_HTTP_PRIVATE_KEY is set")
	errMissingClientSecret = errors.New("DYNQ_HTTP_CLIENT_SECRET or DYNQ_HTTP_PRIVATE_KEY is required when DYNQ_HTTP_CLIENT_ID is set")
)

// config holds the environment-driven settings of the batch endpoint.
type config struct {
	Endpoint     string `env:"DYNQ_HTTP_ENDPOINT,required"`
	ClientID     string `env:"DYNQ_HTTP_CLIENT_ID"`
	ClientSecret string `env:"DYNQ_HTTP_CLIENT_SECRET"`
	PrivateKey   string `env:"DYNQ_HTTP_PRIVATE_KEY"`
	PrivateKeyID string `env:"DYNQ_HTTP_PRIVATE_KEY_ID"`
	AuthEndpoint string `env:"DYNQ_HTTP_AUTH_ENDPOINT"`
}

func loadConfigFromEnv() (*config, error) {
	config, err := env.ParseAs[config]()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errParsingConfig, err.Error())
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *config) validate() error {
	endpointURL, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid DYNQ_HTTP_ENDPOINT: %w", err)
	}

	hasCredential := len(c.ClientSecret) > 0 || len(c.PrivateKey) > 0
	switch {
	case len(c.ClientID) > 0 && !hasCredential:
		return errMissingClientSecret
	case hasCredential && len(c.ClientID) == 0:
		return errMissingClientID
	}

	if len(c.AuthEndpoint) == 0 {
		endpointURL.Path = "/oauth/token"
		endpointURL.RawQuery = ""
		c.AuthEndpoint = endpointURL.String()
		return nil
	}

	if _, err := url.Parse(c.AuthEndpoint); err != nil {
		return fmt.Errorf("invalid DYNQ_HTTP_AUTH_ENDPOINT: %w", err)
	}
	return nil
}
