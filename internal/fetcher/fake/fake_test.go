// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/dynq/internal/dynq"
)

func TestFetcher(t *testing.T) {
	t.Parallel()

	fetcher := NewFetcher(t)
	result := &dynq.Result{MTime: time.Unix(1, 0), Items: []dynq.Item{{"id": "1"}}}
	fetcher.SetResult("known", result)

	results, err := fetcher.FetchBatch(t.Context(), []dynq.Descriptor{"known", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, []*dynq.Result{result, nil}, results)
	assert.Equal(t, []dynq.Descriptor{"known", "unknown"}, <-fetcher.Called())

	fetcher.SetResult("known", nil)
	fetcher.FailWith(errors.New("boom"))
	_, err = fetcher.FetchBatch(t.Context(), []dynq.Descriptor{"known"})
	require.EqualError(t, err, "boom")

	fetcher.FailWith(nil)
	results, err = fetcher.FetchBatch(t.Context(), []dynq.Descriptor{"known"})
	require.NoError(t, err)
	assert.Equal(t, []*dynq.Result{nil}, results)

	assert.Equal(t, [][]dynq.Descriptor{{"known", "unknown"}, {"known"}, {"known"}}, fetcher.Calls())
}
