// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

const (
	watchCmdUsageTemplate = "watch [%s]"
	watchCmdShort         = "keep the queries of a source up to date"
	watchCmdLong          = `Keep the queries read from the query files up to date.
	The source is polled at every interval and every new result is sent to the
	destination. An invalidation feed can be attached to refresh the queries as
	soon as the watched resources change, and the HTTP server can be started to
	expose the invalidation webhook and a snapshot of the running queries.

	The available sources are:
	- azure: Azure Resource Graph
	- azure-devops: Azure DevOps organization
	- gcp: Google Cloud Asset Inventory
	- http: generic batch HTTP endpoint`

	watchCmdExample = `# Watch the Google Cloud assets listed in queries.yaml
	dynq watch gcp --query-file queries.yaml

	# Watch Azure resources refreshing them on every Event Grid notification
	dynq watch azure -f queries.yaml --feed azure --local-output

	# Watch a batch HTTP endpoint and accept invalidations on POST /invalidate
	dynq watch http -f queries/ --feed webhook --serve`

	loadCmdUsageTemplate = "load [%s]"
	loadCmdShort         = "load the queries of a source once"
	loadCmdLong          = `Load the queries read from the query files once.
	Every query is fetched with a single batched request per source, the results
	are sent to the destination and the command exits.

	The available sources are:
	- azure: Azure Resource Graph
	- azure-devops: Azure DevOps organization
	- gcp: Google Cloud Asset Inventory
	- http: generic batch HTTP endpoint`

	loadCmdExample = `# Print the current Azure DevOps repositories and teams
	dynq load azure-devops --query-file devops.toml --local-output`
)

// WatchCmd returns the Cobra command that keeps the queries of a source up to date.
func WatchCmd() *cobra.Command {
	flags := &flags{}
	allSources := slices.Sorted(maps.Keys(availableSources))
	cmd := &cobra.Command{
		Use:     fmt.Sprintf(watchCmdUsageTemplate, strings.Join(allSources, "|")),
		Short:   heredoc.Doc(watchCmdShort),
		Long:    heredoc.Doc(watchCmdLong),
		Example: heredoc.Doc(watchCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: validArgsFunc(availableSources),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.toOptions(cmd, args)
			if err != nil {
				return handleError(cmd, err)
			}

			if err := opts.validate(); err != nil {
				return handleError(cmd, err)
			}

			if err := opts.executeWatch(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}

			return nil
		},
	}

	flags.addFlags(cmd)
	flags.addWatchFlags(cmd)
	return cmd
}

// LoadCmd returns the Cobra command that loads the queries of a source once.
func LoadCmd() *cobra.Command {
	flags := &flags{}
	allSources := slices.Sorted(maps.Keys(availableSources))
	cmd := &cobra.Command{
		Use:     fmt.Sprintf(loadCmdUsageTemplate, strings.Join(allSources, "|")),
		Short:   heredoc.Doc(loadCmdShort),
		Long:    heredoc.Doc(loadCmdLong),
		Example: heredoc.Doc(loadCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: validArgsFunc(availableSources),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.toOptions(cmd, args)
			if err != nil {
				return handleError(cmd, err)
			}

			if err := opts.validate(); err != nil {
				return handleError(cmd, err)
			}

			if err := opts.executeLoad(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}

			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}
