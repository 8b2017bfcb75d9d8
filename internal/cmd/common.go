// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mia-platform/dynq/internal/config"
	"github.com/mia-platform/dynq/internal/dynq"
	azurefetcher "github.com/mia-platform/dynq/internal/fetcher/azure"
	"github.com/mia-platform/dynq/internal/fetcher/azuredevops"
	gcpfetcher "github.com/mia-platform/dynq/internal/fetcher/gcp"
	httpfetcher "github.com/mia-platform/dynq/internal/fetcher/http"
	"github.com/mia-platform/dynq/internal/invalidation"
	azurefeed "github.com/mia-platform/dynq/internal/invalidation/azure"
	gcpfeed "github.com/mia-platform/dynq/internal/invalidation/gcp"
	"github.com/mia-platform/dynq/internal/invalidation/webhook"
)

const (
	azureSourceName       = "azure"
	azureDevOpsSourceName = "azure-devops"
	gcpSourceName         = "gcp"
	httpSourceName        = "http"

	azureFeedName   = "azure"
	gcpFeedName     = "gcp"
	webhookFeedName = "webhook"
)

var (
	errNoArguments          = errors.New("no source name provided")
	errInvalidSource        = errors.New("invalid source name provided")
	errInvalidFeed          = errors.New("invalid invalidation feed provided")
	errWebhookWithoutServer = errors.New("the webhook invalidation feed needs the --serve flag")
	errNoQueryFiles         = errors.New("no query file provided")

	// availableSources holds the list of available sources and their description
	// for command completion and help messages.
	availableSources = map[string]string{
		azureSourceName:       "Azure Resource Graph",
		azureDevOpsSourceName: "Azure DevOps organization",
		gcpSourceName:         "Google Cloud Asset Inventory",
		httpSourceName:        "generic batch HTTP endpoint",
	}
	// availableFeeds holds the list of invalidation feeds that can be attached to a watched source.
	availableFeeds = map[string]string{
		azureFeedName:   "Azure Event Grid notifications read from Event Hubs",
		gcpFeedName:     "Google Cloud Asset feed read from Pub/Sub",
		webhookFeedName: "HTTP webhook served on " + webhook.Path,
	}
)

// handleError will do custom print error handling based on the type of error received.
// it will return nil if the command must return 0 exit code, otherwise it will return
// the original error.
func handleError(cmd *cobra.Command, err error) error {
	switch {
	case errors.Is(err, errNoArguments):
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return nil
	case errors.Is(err, errInvalidSource), errors.Is(err, errInvalidFeed):
		cmd.PrintErrln(err)
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return err
	default:
		cmd.PrintErrln(err)
		return err
	}
}

// unwrappedError returns the unwrapped error if available, otherwise it returns the original error.
func unwrappedError(err error) error {
	if unwrapped := errors.Unwrap(err); unwrapped != nil {
		return unwrapped
	}

	return err
}

func validArgsFunc(sources map[string]string) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var comps []string
		if len(args) == 0 {
			for name, description := range sources {
				if strings.HasPrefix(name, toComplete) {
					comps = append(comps, cobra.CompletionWithDesc(name, description))
				}
			}
		}

		return comps, cobra.ShellCompDirectiveNoFileComp
	}
}

// loadQueryConfigs loads all the query configurations from the provided paths.
func loadQueryConfigs(paths []string) ([]*config.QueryConfig, error) {
	if len(paths) == 0 {
		return nil, errNoQueryFiles
	}

	queries := make([]*config.QueryConfig, 0)
	for _, path := range paths {
		cleanedPath := filepath.Clean(path)
		fileQueries, err := config.NewQueryConfigsFromPath(cleanedPath)
		if err != nil {
			if errors.Is(err, config.ErrParsing) || errors.Is(err, config.ErrUnsupportedFormat) {
				return nil, err
			}
			return nil, fmt.Errorf("query file %q: %w", cleanedPath, unwrappedError(err))
		}

		queries = append(queries, fileQueries...)
	}

	return queries, nil
}

// fetcherFromSourceName returns the batch fetcher of the source named sourceName.
func fetcherFromSourceName(sourceName string) (dynq.BatchFetcher, error) {
	var (
		fetcher dynq.BatchFetcher
		err     error
	)

	switch sourceName {
	case azureSourceName:
		var f *azurefetcher.Fetcher
		if f, err = azurefetcher.NewFetcher(); err == nil {
			fetcher = f
		}
	case azureDevOpsSourceName:
		var f *azuredevops.Fetcher
		if f, err = azuredevops.NewFetcher(); err == nil {
			fetcher = f
		}
	case gcpSourceName:
		var f *gcpfetcher.Fetcher
		if f, err = gcpfetcher.NewFetcher(); err == nil {
			fetcher = f
		}
	case httpSourceName:
		var f *httpfetcher.Fetcher
		if f, err = httpfetcher.NewFetcher(); err == nil {
			fetcher = f
		}
	default:
		err = fmt.Errorf("%w: %s", errInvalidSource, sourceName)
	}

	return fetcher, err
}

// feedFromName returns the invalidation feed named feedName. The webhook feed registers its
// route on router.
func feedFromName(feedName string, router webhook.Router) (invalidation.Feed, error) {
	switch feedName {
	case "":
		return nil, nil
	case azureFeedName:
		feed, err := azurefeed.NewFeed()
		if err != nil {
			return nil, err
		}
		return feed, nil
	case gcpFeedName:
		feed, err := gcpfeed.NewFeed()
		if err != nil {
			return nil, err
		}
		return feed, nil
	case webhookFeedName:
		if router == nil {
			return nil, errWebhookWithoutServer
		}
		return webhook.NewFeed(router), nil
	}

	return nil, fmt.Errorf("%w: %s", errInvalidFeed, feedName)
}
