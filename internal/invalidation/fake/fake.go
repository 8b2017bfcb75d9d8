// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package fake provides an in-memory invalidation.Invalidator for tests.
package fake

import (
	"sync"
	"testing"

	"github.com/mia-platform/dynq/internal/dynq"
	"github.com/mia-platform/dynq/internal/invalidation"
)

var _ invalidation.Invalidator = &Invalidator{}

// Invalidator evaluates every match function against a fixed set of descriptors and reports
// the matching ones on a channel.
type Invalidator struct {
	tb          testing.TB
	descriptors []dynq.Descriptor

	lock        sync.Mutex
	invalidated chan []dynq.Descriptor
}

// NewInvalidator returns an Invalidator that knows about descriptors.
func NewInvalidator(tb testing.TB, descriptors ...dynq.Descriptor) *Invalidator {
	tb.Helper()

	return &Invalidator{
		tb:          tb,
		descriptors: descriptors,
		invalidated: make(chan []dynq.Descriptor, 100),
	}
}

// Invalidate implements invalidation.Invalidator. Calls that match nothing are not reported.
func (i *Invalidator) Invalidate(match func(dynq.Descriptor) bool) int {
	i.tb.Helper()
	i.lock.Lock()
	defer i.lock.Unlock()

	matched := make([]dynq.Descriptor, 0)
	for _, descriptor := range i.descriptors {
		if match(descriptor) {
			matched = append(matched, descriptor)
		}
	}

	if len(matched) > 0 {
		select {
		case i.invalidated <- matched:
		default:
			i.tb.Log("fake invalidator buffer full, dropping notification")
		}
	}
	return len(matched)
}

// Invalidated returns the channel receiving the descriptors matched by each call.
func (i *Invalidator) Invalidated() <-chan []dynq.Descriptor {
	return i.invalidated
}
