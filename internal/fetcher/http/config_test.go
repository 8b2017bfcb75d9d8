// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFetcher(t *testing.T) {
	testCases := map[string]struct {
		env            map[string]string
		expectedConfig config
		expectedErr    string
	}{
		"missing endpoint": {
			expectedErr: "http fetcher: error parsing http fetcher configuration from environment variables",
		},
		"minimal config infers the auth endpoint": {
			env: map[string]string{
				"DYNQ_HTTP_ENDPOINT": "https://example.com/api/batch?tenant=1",
			},
			expectedConfig: config{
				Endpoint:     "https://example.com/api/batch?tenant=1",
				AuthEndpoint: "https://example.com/oauth/token",
			},
		},
		"client credentials": {
			env: map[string]string{
				"DYNQ_HTTP_ENDPOINT":      "https://example.com/batch",
				"DYNQ_HTTP_CLIENT_ID":     "id",
				"DYNQ_HTTP_CLIENT_SECRET": "secret",
				"DYNQ_HTTP_AUTH_ENDPOINT": "https://auth.example.com/token",
			},
			expectedConfig: config{
				Endpoint:     "https://example.com/batch",
				ClientID:     "id",
				ClientSecret: "secret",
				AuthEndpoint: "https://auth.example.com/token",
			},
		},
		"client id without credentials": {
			env: map[string]string{
				"DYNQ_HTTP_ENDPOINT":  "https://example.com/batch",
				"DYNQ_HTTP_CLIENT_ID": "id",
			},
			expectedErr: errMissingClientSecret.Error(),
		},
		"private key without client id": {
			env: map[string]string{
				"DYNQ_HTTP_ENDPOINT":    "https://example.com/batch",
				"DYNQ_HTTP_PRIVATE_KEY": "key",
			},
			expectedErr: errMissingClientID.Error(),
		},
		"invalid endpoint": {
			env: map[string]string{
				"DYNQ_HTTP_ENDPOINT": "://invalid-url",
			},
			expectedErr: "invalid DYNQ_HTTP_ENDPOINT",
		},
		"invalid auth endpoint": {
			env: map[string]string{
				"DYNQ_HTTP_ENDPOINT":      "https://example.com/batch",
				"DYNQ_HTTP_AUTH_ENDPOINT": "://invalid-url",
			},
			expectedErr: "invalid DYNQ_HTTP_AUTH_ENDPOINT",
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			for key, value := range test.env {
				t.Setenv(key, value)
			}

			fetcher, err := NewFetcher()
			if test.expectedErr != "" {
				require.ErrorIs(t, err, ErrHTTPFetcher)
				assert.ErrorContains(t, err, test.expectedErr)
				assert.Nil(t, fetcher)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expectedConfig, fetcher.config)
		})
	}
}
