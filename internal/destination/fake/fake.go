// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"context"
	"sync"
	"testing"

	"github.com/mia-platform/dynq/internal/destination"
)

var _ destination.Sender = &FakeDestination{}

type FakeDestination struct {
	tb testing.TB

	lock     sync.Mutex
	sentData []*destination.Data
	received chan *destination.Data
	err      error
}

func NewFakeDestination(tb testing.TB) *FakeDestination {
	tb.Helper()
	return &FakeDestination{
		tb:       tb,
		received: make(chan *destination.Data, 100),
	}
}

// FailWith makes every following SendData call return err.
func (f *FakeDestination) FailWith(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = err
}

func (f *FakeDestination) SendData(_ context.Context, data *destination.Data) error {
	f.tb.Helper()
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.err != nil {
		return f.err
	}

	f.sentData = append(f.sentData, data)
	select {
	case f.received <- data:
	default:
	}
	return nil
}

// SentData returns a copy of the data received so far.
func (f *FakeDestination) SentData() []*destination.Data {
	f.lock.Lock()
	defer f.lock.Unlock()

	sent := make([]*destination.Data, len(f.sentData))
	copy(sent, f.sentData)
	return sent
}

// Received returns a channel receiving every successfully sent data.
func (f *FakeDestination) Received() <-chan *destination.Data {
	return f.received
}
