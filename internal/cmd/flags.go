// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mia-platform/dynq/internal/destination"
	"github.com/mia-platform/dynq/internal/destination/catalog"
	"github.com/mia-platform/dynq/internal/destination/writer"
	"github.com/mia-platform/dynq/internal/server"
)

const (
	queryPathFlagName  = "query-file"
	queryPathFlagShort = "f"
	queryPathFlagUsage = "Path to a file or directory containing the queries to run. Can be specified multiple times."

	localOutputFlagName  = "local-output"
	localOutputFlagUsage = "If set, writes the output to stdout instead of sending it to the remote"
	defaultLocalOutput   = false

	feedFlagName  = "feed"
	feedFlagUsage = "Name of the invalidation feed refreshing the queries on change, one of: "

	serveFlagName  = "serve"
	serveFlagUsage = "If set, starts the HTTP server exposing the running queries and the webhook feed"
	defaultServe   = false
)

// flags collects the CLI options shared by the watch and load commands.
type flags struct {
	queryPaths  []string
	localOutput bool
	feedName    string
	serve       bool
}

// addFlags registers the CLI flags on cmd.
func (f *flags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(
		&f.queryPaths,
		queryPathFlagName,
		queryPathFlagShort,
		nil,
		queryPathFlagUsage)

	cmd.Flags().BoolVar(&f.localOutput, localOutputFlagName, defaultLocalOutput, localOutputFlagUsage)
}

// addWatchFlags registers the CLI flags used only while watching a source.
func (f *flags) addWatchFlags(cmd *cobra.Command) {
	allFeeds := slices.Sorted(maps.Keys(availableFeeds))
	cmd.Flags().StringVar(&f.feedName, feedFlagName, "", feedFlagUsage+strings.Join(allFeeds, ", "))
	cmd.Flags().BoolVar(&f.serve, serveFlagName, defaultServe, serveFlagUsage)

	_ = cmd.RegisterFlagCompletionFunc(feedFlagName, func(c *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return validArgsFunc(availableFeeds)(c, nil, toComplete)
	})
}

// toOptions builds an options instance from the parsed flags and CLI arguments.
func (f *flags) toOptions(cmd *cobra.Command, args []string) (*options, error) {
	sourceName := ""
	if len(args) > 0 {
		sourceName = args[0]
	}

	var destination destination.Sender
	if f.localOutput {
		destination = writer.NewDestination(cmd.OutOrStdout())
	} else {
		var err error
		destination, err = catalog.NewDestination()
		if err != nil {
			return nil, err
		}
	}

	return &options{
		sourceName:    strings.ToLower(sourceName),
		queryPaths:    f.queryPaths,
		feedName:      strings.ToLower(f.feedName),
		serve:         f.serve,
		destination:   destination,
		fetcherGetter: fetcherFromSourceName,
		serverGetter:  server.NewServer,
		closeTimeout:  defaultCloseTimeout,
	}, nil
}
