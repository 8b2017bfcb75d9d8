// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package dynq

import (
	"context"
	"time"
)

// Descriptor is the consumer supplied description of a query. Its meaning is defined by the
// BatchFetcher of the source the query belongs to (an asset type, a resource type, a path...).
type Descriptor string

// Item is a single entry of a query result.
type Item = map[string]any

// Result is the outcome of fetching a single query.
type Result struct {
	// MTime is the modification time of the result as reported by the backend.
	MTime time.Time
	// Items holds the current entries matching the query.
	Items []Item
}

// BatchFetcher performs a single fetch covering many queries at once.
type BatchFetcher interface {
	// FetchBatch returns one entry for each descriptor, in the same order. A nil entry means
	// that the corresponding query has no new result (or failed on its own); an error means
	// that the whole batch failed.
	FetchBatch(ctx context.Context, descriptors []Descriptor) ([]*Result, error)
}

// BatchFetcherFunc adapts a function to the BatchFetcher interface.
type BatchFetcherFunc func(ctx context.Context, descriptors []Descriptor) ([]*Result, error)

// FetchBatch implements BatchFetcher.
func (f BatchFetcherFunc) FetchBatch(ctx context.Context, descriptors []Descriptor) ([]*Result, error) {
	return f(ctx, descriptors)
}
