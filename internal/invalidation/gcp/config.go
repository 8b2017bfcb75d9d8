// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package gcp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
)

// config holds the Pub/Sub subscription receiving the Cloud Asset feed.
type config struct {
	ProjectID      string `env:"GOOGLE_CLOUD_PUBSUB_PROJECT"`
	SubscriptionID string `env:"GOOGLE_CLOUD_PUBSUB_SUBSCRIPTION"`
}

func (c config) validate() error {
	missingEnvs := make([]string, 0)
	if c.ProjectID == "" {
		missingEnvs = append(missingEnvs, "GOOGLE_CLOUD_PUBSUB_PROJECT")
	}
	if c.SubscriptionID == "" {
		missingEnvs = append(missingEnvs, "GOOGLE_CLOUD_PUBSUB_SUBSCRIPTION")
	}

	if len(missingEnvs) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, strings.Join(missingEnvs, ", "))
	}

	return nil
}
