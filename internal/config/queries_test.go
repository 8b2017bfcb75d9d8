// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package config

import (
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueryConfigsFromPath(t *testing.T) {
	t.Parallel()

	disabled := false
	testCases := map[string]struct {
		path            string
		expectedConfigs []*QueryConfig
		expectedError   error
	}{
		"yaml file with one query": {
			path: filepath.Join("testdata", "one.yaml"),
			expectedConfigs: []*QueryConfig{
				{Descriptor: "team"},
			},
		},
		"yaml file with multiple documents": {
			path: filepath.Join("testdata", "multiple.yaml"),
			expectedConfigs: []*QueryConfig{
				{Descriptor: "Microsoft.Compute/virtualMachines"},
				{Descriptor: "Microsoft.Resources/resourceGroups", Autoupdate: &disabled},
			},
		},
		"toml file": {
			path: filepath.Join("testdata", "queries.toml"),
			expectedConfigs: []*QueryConfig{
				{Descriptor: "storage.googleapis.com/Bucket"},
				{Descriptor: "compute.googleapis.com/Instance", Autoupdate: &disabled},
			},
		},
		"directory": {
			path: filepath.Join("testdata", "dir"),
			expectedConfigs: []*QueryConfig{
				{Descriptor: "gitrepository"},
				{Descriptor: "team", Autoupdate: &disabled},
			},
		},
		"missing file": {
			path:          filepath.Join("testdata", "missing.yaml"),
			expectedError: syscall.ENOENT,
		},
		"unsupported extension": {
			path:          filepath.Join("testdata", "queries.json"),
			expectedError: ErrUnsupportedFormat,
		},
		"invalid value": {
			path:          filepath.Join("testdata", "invalid.yaml"),
			expectedError: ErrParsing,
		},
		"unknown yaml field": {
			path:          filepath.Join("testdata", "unknown-field.yaml"),
			expectedError: ErrParsing,
		},
		"unknown toml field": {
			path:          filepath.Join("testdata", "unknown-field.toml"),
			expectedError: ErrParsing,
		},
		"missing descriptor": {
			path:          filepath.Join("testdata", "missing-descriptor.yaml"),
			expectedError: ErrParsing,
		},
	}

	for name, test := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			configs, err := NewQueryConfigsFromPath(test.path)
			if test.expectedError != nil {
				assert.ErrorIs(t, err, test.expectedError)
				assert.Nil(t, configs)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expectedConfigs, configs)
		})
	}
}

func TestMissingDescriptorMessage(t *testing.T) {
	t.Parallel()

	_, err := NewQueryConfigsFromPath(filepath.Join("testdata", "missing-descriptor.yaml"))
	assert.ErrorContains(t, err, "missing required fields: descriptor")
}

func TestIsAutoupdate(t *testing.T) {
	t.Parallel()

	enabled := true
	disabled := false
	assert.True(t, QueryConfig{Descriptor: "team"}.IsAutoupdate())
	assert.True(t, QueryConfig{Descriptor: "team", Autoupdate: &enabled}.IsAutoupdate())
	assert.False(t, QueryConfig{Descriptor: "team", Autoupdate: &disabled}.IsAutoupdate())
}
