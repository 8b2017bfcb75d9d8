// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	gcpfetcher "github.com/mia-platform/dynq/internal/fetcher/gcp"
)

func TestCmds(t *testing.T) {
	t.Parallel()

	queryFile := filepath.Join("testdata", "queries.yaml")
	testCases := map[string]struct {
		cmd                  *cobra.Command
		args                 []string
		expectedError        error
		expectedErrorMessage string
		expectedUsage        bool
	}{
		"watch command with no arguments returns no error and print usage": {
			cmd:           WatchCmd(),
			args:          []string{},
			expectedUsage: true,
		},
		"load command with no arguments returns no error and print usage": {
			cmd:           LoadCmd(),
			args:          []string{},
			expectedUsage: true,
		},
		"watch command with invalid source return error and usage": {
			cmd:                  WatchCmd(),
			args:                 []string{"invalid"},
			expectedUsage:        true,
			expectedError:        errInvalidSource,
			expectedErrorMessage: errInvalidSource.Error() + ": invalid\n",
		},
		"load command with invalid source return error and usage": {
			cmd:                  LoadCmd(),
			args:                 []string{"invalid"},
			expectedUsage:        true,
			expectedError:        errInvalidSource,
			expectedErrorMessage: errInvalidSource.Error() + ": invalid\n",
		},
		"watch command with invalid feed return error and usage": {
			cmd:                  WatchCmd(),
			args:                 []string{"gcp", "--" + feedFlagName, "kafka"},
			expectedUsage:        true,
			expectedError:        errInvalidFeed,
			expectedErrorMessage: errInvalidFeed.Error() + ": kafka\n",
		},
		"watch command with webhook feed without server return error no usage": {
			cmd:                  WatchCmd(),
			args:                 []string{"gcp", "--" + feedFlagName, "webhook"},
			expectedError:        errWebhookWithoutServer,
			expectedErrorMessage: errWebhookWithoutServer.Error() + "\n",
		},
		"load command without query files return error no usage": {
			cmd:                  LoadCmd(),
			args:                 []string{"gcp"},
			expectedError:        errNoQueryFiles,
			expectedErrorMessage: errNoQueryFiles.Error() + "\n",
		},
		"load command missing path, return error no usage": {
			cmd:                  LoadCmd(),
			args:                 []string{"gcp", "--" + queryPathFlagName, filepath.Join("testdata", "missing")},
			expectedError:        syscall.ENOENT,
			expectedErrorMessage: fmt.Sprintf("query file %q: %s\n", filepath.Join("testdata", "missing"), syscall.ENOENT),
		},
		"watch command missing path, return error no usage": {
			cmd:                  WatchCmd(),
			args:                 []string{"gcp", "-" + queryPathFlagShort, filepath.Join("testdata", "missing")},
			expectedError:        syscall.ENOENT,
			expectedErrorMessage: fmt.Sprintf("query file %q: %s\n", filepath.Join("testdata", "missing"), syscall.ENOENT),
		},
		"load command return error when fetcher return error": {
			cmd:                  LoadCmd(),
			args:                 []string{"gcp", "--" + queryPathFlagName, queryFile},
			expectedError:        gcpfetcher.ErrGCPFetcher,
			expectedErrorMessage: "gcp fetcher: missing environment variable: GOOGLE_CLOUD_SYNC_PARENT\n",
		},
		"watch command return error when fetcher return error": {
			cmd:                  WatchCmd(),
			args:                 []string{"GCP", "--" + queryPathFlagName, queryFile},
			expectedError:        gcpfetcher.ErrGCPFetcher,
			expectedErrorMessage: "gcp fetcher: missing environment variable: GOOGLE_CLOUD_SYNC_PARENT\n",
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Parallel()

			errBuffer := new(bytes.Buffer)
			outBuffer := new(bytes.Buffer)
			test.cmd.SetOut(outBuffer)
			test.cmd.SetErr(errBuffer)
			test.cmd.SetUsageTemplate("usage string")
			test.cmd.SetArgs(append(test.args, "--"+localOutputFlagName)) // force local output to avoid external dependencies

			err := test.cmd.ExecuteContext(t.Context())
			if test.expectedError != nil {
				assert.ErrorIs(t, err, test.expectedError)
				assert.Equal(t, test.expectedErrorMessage, errBuffer.String())
			} else {
				assert.NoError(t, err)
				assert.Empty(t, errBuffer)
			}

			if test.expectedUsage {
				assert.Equal(t, "usage string", outBuffer.String())
			} else {
				assert.Empty(t, outBuffer)
			}
		})
	}
}
