// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dynq

import "errors"

var (
	// ErrQueryClosed is returned when loading items from a query that has been closed.
	ErrQueryClosed = errors.New("query closed")
	// ErrMissingFetcher reports a polling source created without a batch fetcher.
	ErrMissingFetcher = errors.New("missing batch fetcher")
	// ErrInvalidConfig reports scheduler configuration values out of range.
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
	// ErrCloseTimeout is returned when an in-flight fetch does not settle while closing a source.
	ErrCloseTimeout = errors.New("timeout closing source")
)
