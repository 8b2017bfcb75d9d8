// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"fmt"
	"net/http"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/dynq/internal/config"
	"github.com/mia-platform/dynq/internal/fetcher/azuredevops"
	gcpfetcher "github.com/mia-platform/dynq/internal/fetcher/gcp"
	httpfetcher "github.com/mia-platform/dynq/internal/fetcher/http"
	azurefeed "github.com/mia-platform/dynq/internal/invalidation/azure"
	gcpfeed "github.com/mia-platform/dynq/internal/invalidation/gcp"
	"github.com/mia-platform/dynq/internal/invalidation/webhook"
	serverfake "github.com/mia-platform/dynq/internal/server/fake"
)

func TestCompletion(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		args               []string
		toComplete         string
		expectedCompletion []string
	}{
		"no args, complete every source": {
			args: []string{},
			expectedCompletion: []string{
				"azure\tAzure Resource Graph",
				"azure-devops\tAzure DevOps organization",
				"gcp\tGoogle Cloud Asset Inventory",
				"http\tgeneric batch HTTP endpoint",
			},
		},
		"some args, no completions": {
			args: []string{"gcp"},
		},
		"no args, partial string, return filtered sources": {
			args:       []string{},
			toComplete: "az",
			expectedCompletion: []string{
				"azure\tAzure Resource Graph",
				"azure-devops\tAzure DevOps organization",
			},
		},
		"no args, partial wrong string, return no source": {
			args:       []string{},
			toComplete: "x",
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			args, directive := validArgsFunc(availableSources)(nil, test.args, test.toComplete)
			assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
			assert.ElementsMatch(t, test.expectedCompletion, args)
		})
	}
}

func TestLoadQueryConfigs(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		paths                []string
		expectedDescriptors  []string
		expectedError        error
		expectedErrorMessage string
	}{
		"single file": {
			paths:               []string{filepath.Join("testdata", "queries.yaml")},
			expectedDescriptors: []string{"compute.googleapis.com/Instance", "storage.googleapis.com/Bucket"},
		},
		"same file twice keeps duplicates": {
			paths:               []string{filepath.Join("testdata", "queries.yaml"), filepath.Join("testdata", "queries.yaml")},
			expectedDescriptors: []string{"compute.googleapis.com/Instance", "storage.googleapis.com/Bucket", "compute.googleapis.com/Instance", "storage.googleapis.com/Bucket"},
		},
		"empty file": {
			paths:               []string{filepath.Join("testdata", "empty.yaml")},
			expectedDescriptors: []string{},
		},
		"no paths": {
			expectedError:        errNoQueryFiles,
			expectedErrorMessage: errNoQueryFiles.Error(),
		},
		"missing path": {
			paths:                []string{filepath.Join("testdata", "missing")},
			expectedError:        syscall.ENOENT,
			expectedErrorMessage: fmt.Sprintf("query file %q: %s", filepath.Join("testdata", "missing"), syscall.ENOENT),
		},
		"invalid file": {
			paths:                []string{filepath.Join("testdata", "invalid.yaml")},
			expectedError:        config.ErrParsing,
			expectedErrorMessage: fmt.Sprintf("%s %q: %s", config.ErrParsing, filepath.Join("testdata", "invalid.yaml"), "yaml: found character that cannot start any token"),
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			queries, err := loadQueryConfigs(test.paths)
			if test.expectedError != nil {
				assert.ErrorIs(t, err, test.expectedError)
				assert.EqualError(t, err, test.expectedErrorMessage)
				assert.Nil(t, queries)
				return
			}

			require.NoError(t, err)
			descriptors := make([]string, 0, len(queries))
			for _, query := range queries {
				descriptors = append(descriptors, query.Descriptor)
			}
			assert.Equal(t, test.expectedDescriptors, descriptors)
		})
	}
}

func TestFetcherFromSourceName(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		sourceName          string
		expectedFetcherType any
		expectedError       error
	}{
		"azure devops source": {
			sourceName:          azureDevOpsSourceName,
			expectedFetcherType: (*azuredevops.Fetcher)(nil),
		},
		"gcp source without environment": {
			sourceName:    gcpSourceName,
			expectedError: gcpfetcher.ErrGCPFetcher,
		},
		"http source without environment": {
			sourceName:    httpSourceName,
			expectedError: httpfetcher.ErrHTTPFetcher,
		},
		"invalid source": {
			sourceName:    "invalid",
			expectedError: errInvalidSource,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			fetcher, err := fetcherFromSourceName(test.sourceName)
			if test.expectedError != nil {
				assert.ErrorIs(t, err, test.expectedError)
				assert.Nil(t, fetcher)
				return
			}

			require.NoError(t, err)
			assert.IsType(t, test.expectedFetcherType, fetcher)
		})
	}
}

func TestFeedFromName(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		feedName         string
		withRouter       bool
		expectedFeedType any
		expectedRoutes   int
		expectedError    error
	}{
		"no feed": {},
		"gcp feed": {
			feedName:         gcpFeedName,
			expectedFeedType: (*gcpfeed.Feed)(nil),
		},
		"azure feed": {
			feedName:         azureFeedName,
			expectedFeedType: (*azurefeed.Feed)(nil),
		},
		"webhook feed registers its route": {
			feedName:         webhookFeedName,
			withRouter:       true,
			expectedFeedType: (*webhook.Feed)(nil),
			expectedRoutes:   1,
		},
		"webhook feed without router": {
			feedName:      webhookFeedName,
			expectedError: errWebhookWithoutServer,
		},
		"invalid feed": {
			feedName:      "invalid",
			expectedError: errInvalidFeed,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			srv := serverfake.NewFakeServer(t)
			var router webhook.Router
			if test.withRouter {
				router = srv
			}

			feed, err := feedFromName(test.feedName, router)
			if test.expectedError != nil {
				assert.ErrorIs(t, err, test.expectedError)
				assert.Nil(t, feed)
				return
			}

			require.NoError(t, err)
			if test.expectedFeedType == nil {
				assert.Nil(t, feed)
			} else {
				assert.IsType(t, test.expectedFeedType, feed)
			}

			require.Len(t, srv.RegisteredRoutes, test.expectedRoutes)
			for _, route := range srv.RegisteredRoutes {
				assert.Equal(t, http.MethodPost, route.Method)
				assert.Equal(t, webhook.Path, route.Path)
			}
		})
	}
}
