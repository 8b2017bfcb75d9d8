// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package pipeline

import (
	"context"
	"time"
)

// ClosableSource defines a source of queries that can be gracefully closed. It receives a context
// and a timeout duration to ensure the close operation does not hang indefinitely.
type ClosableSource interface {
	// Close will be called to gracefully shut down the source, releasing any resources it holds.
	Close(ctx context.Context, timeout time.Duration) (err error)
}
