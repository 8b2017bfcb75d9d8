// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/mia-platform/dynq/internal/dynq"
)

var _ dynq.BatchFetcher = &Fetcher{}

// Fetcher answers every batch with the results configured for each descriptor; descriptors
// without a configured result get a nil entry.
type Fetcher struct {
	tb testing.TB

	mu      sync.Mutex
	results map[dynq.Descriptor]*dynq.Result
	err     error
	calls   [][]dynq.Descriptor
	called  chan []dynq.Descriptor
}

func NewFetcher(tb testing.TB) *Fetcher {
	tb.Helper()
	return &Fetcher{
		tb:      tb,
		results: make(map[dynq.Descriptor]*dynq.Result),
		called:  make(chan []dynq.Descriptor, 100),
	}
}

// SetResult configures the result returned for descriptor, nil removes it.
func (f *Fetcher) SetResult(descriptor dynq.Descriptor, result *dynq.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if result == nil {
		delete(f.results, descriptor)
		return
	}
	f.results[descriptor] = result
}

// FailWith makes every following batch fail with err, nil restores the normal behavior.
func (f *Fetcher) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls returns the descriptors of every batch received so far.
func (f *Fetcher) Calls() [][]dynq.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Called receives the descriptors of every batch as soon as it starts.
func (f *Fetcher) Called() <-chan []dynq.Descriptor {
	return f.called
}

func (f *Fetcher) FetchBatch(ctx context.Context, descriptors []dynq.Descriptor) ([]*dynq.Result, error) {
	f.tb.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, slices.Clone(descriptors))
	select {
	case f.called <- slices.Clone(descriptors):
	default:
	}

	if f.err != nil {
		return nil, f.err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]*dynq.Result, len(descriptors))
	for idx, descriptor := range descriptors {
		results[idx] = f.results[descriptor]
	}
	return results, nil
}
