// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package pipeline

import "errors"

var (
	// ErrNoQueries is returned when a pipeline is started without queries to follow.
	ErrNoQueries = errors.New("pipeline has no queries")
)

// sendError reports a result that could not be delivered to the destination.
type sendError struct {
	Descriptor string
	err        error
}

func (e *sendError) Error() string {
	return "sending result for " + e.Descriptor + ": " + e.err.Error()
}

func (e *sendError) Unwrap() error {
	return e.err
}
