// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package invalidation contains the contracts shared by the external change feeds that mark
// dynq queries as stale before their next scheduled poll.
package invalidation

import (
	"context"
	"strings"

	"github.com/mia-platform/dynq/internal/dynq"
)

// Invalidator marks stale every query whose descriptor satisfies match and returns how many
// queries have been affected. *dynq.PollingSource implements it.
type Invalidator interface {
	Invalidate(match func(dynq.Descriptor) bool) int
}

// Feed listens to an external change stream and forwards the changes to an Invalidator.
type Feed interface {
	// Start blocks until ctx is cancelled or the underlying stream fails. A cancelled context
	// is not reported as an error.
	Start(ctx context.Context, target Invalidator) error
}

var _ Invalidator = &dynq.PollingSource{}

// MatchDescriptors returns a match function selecting descriptors equal to one of values,
// ignoring case.
func MatchDescriptors(values ...string) func(dynq.Descriptor) bool {
	return func(descriptor dynq.Descriptor) bool {
		for _, value := range values {
			if strings.EqualFold(value, string(descriptor)) {
				return true
			}
		}
		return false
	}
}
