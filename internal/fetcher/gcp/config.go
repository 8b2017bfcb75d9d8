// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package gcp

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrMissingEnvVariable reports missing mandatory environment variables.
	ErrMissingEnvVariable = errors.New("missing environment variable")
	// ErrInvalidEnvVariable reports malformed environment variable values.
	ErrInvalidEnvVariable = errors.New("invalid environment value")

	syncParentRegex = regexp.MustCompile(`^(projects|organizations|folders)\/.*`)
)

// config holds the Cloud Asset settings.
type config struct {
	Parent string `env:"GOOGLE_CLOUD_SYNC_PARENT"`
}

func (c config) validate() error {
	if c.Parent == "" {
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "GOOGLE_CLOUD_SYNC_PARENT")
	}

	if !syncParentRegex.MatchString(c.Parent) {
		return fmt.Errorf("%w: %s", ErrInvalidEnvVariable, "GOOGLE_CLOUD_SYNC_PARENT must be one of 'organizations/[organization-number]', 'projects/[project-id]', 'projects/[project-number]', or 'folders/[folder-number]'")
	}
	return nil
}
