// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	internalcmd "github.com/mia-platform/dynq/internal/cmd"
	"github.com/mia-platform/dynq/internal/info"
	"github.com/mia-platform/dynq/internal/logger"
)

var (
	// Version is injected at build time via the Makefile.
	Version = info.Version
	// BuildDate is injected at build time via the Makefile.
	BuildDate = info.BuildDate
)

const (
	rootShort = "keep batched queries over cloud inventories up to date"
	rootLong  = `dynq runs declarative queries against a cloud inventory and sends their
	results to a destination.

	All the queries of a source are answered by a single batched request. The load
	command fetches them once and exits, while the watch command keeps polling the
	source at the configured interval and sends a new result only when it changed.
	Queries are refreshed early when an invalidation feed reports a change.

	The polling interval and the fetch timeout are read from the POLL_INTERVAL_SECONDS
	and FETCH_TIMEOUT environment variables.`

	logLevelFlagName  = "log-level"
	logLevelFlagShort = "v"
)

func main() {
	cmd := rootCmd()
	ctx := logger.WithContext(context.Background(), logger.NewLogger(cmd.ErrOrStderr()))

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// rootCmd returns the dynq command, with the watch, load and version subcommands.
func rootCmd() *cobra.Command {
	logLevel := logger.INFO.String()

	cmd := &cobra.Command{
		Use:   info.AppName,
		Short: rootShort,
		Long:  heredoc.Doc(rootLong),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: cobra.NoFileCompletions,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := logger.ParseLevel(logLevel)
			if err != nil {
				cmd.PrintErrln(err)
				return err
			}

			logger.FromContext(cmd.Context()).SetLevel(level)
			return nil
		},
	}

	levels := levelNames()
	cmd.PersistentFlags().StringVarP(&logLevel, logLevelFlagName, logLevelFlagShort, logLevel,
		"verbosity of the logs written on stderr, one of: "+strings.Join(levels, ", "))
	_ = cmd.RegisterFlagCompletionFunc(logLevelFlagName, cobra.FixedCompletions(levels, cobra.ShellCompDirectiveNoFileComp))

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.PrintErrln(err)
		_ = c.Usage()
		return err
	})

	cmd.AddCommand(
		internalcmd.WatchCmd(),
		internalcmd.LoadCmd(),
		versionCmd(),
	)

	return cmd
}

// levelNames lists the accepted values of the log level flag.
func levelNames() []string {
	levels := logger.Levels()
	names := make([]string, 0, len(levels))
	for _, level := range levels {
		names = append(names, level.String())
	}
	return names
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the " + info.AppName + " version",

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString(Version, BuildDate, runtime.Version()))
		},
	}
}

// versionString formats the build metadata printed by the version command.
func versionString(version, buildDate, runtimeVersion string) string {
	built := ""
	if buildDate != "" {
		built = ", built " + buildDate
	}

	return fmt.Sprintf("%s %s (%s%s)", info.AppName, version, runtimeVersion, built)
}
