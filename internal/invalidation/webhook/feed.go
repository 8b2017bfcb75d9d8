// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package webhook implements an invalidation.Feed driven by HTTP calls: every POST on the
// registered path carries the list of descriptors to invalidate.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"github.com/mia-platform/dynq/internal/invalidation"
	"github.com/mia-platform/dynq/internal/logger"
)

const (
	loggerName = "dynq:invalidation:webhook"

	// Path is the route registered by NewFeed.
	Path = "/invalidate"
)

var (
	// ErrInvalidPayload reports a request body that cannot be used for invalidation.
	ErrInvalidPayload = errors.New("invalid invalidation payload")
	// ErrNotStarted reports a request received before Start or after its context ended.
	ErrNotStarted = errors.New("invalidation feed not started")
)

var _ invalidation.Feed = &Feed{}

// Router is the part of the HTTP server the feed needs to expose its route.
type Router interface {
	AddRoute(method string, path string, handler func(ctx context.Context, headers http.Header, body []byte) error)
}

// Request is the body accepted by the invalidation route.
type Request struct {
	Descriptors []string `json:"descriptors"`
}

// Feed forwards the descriptors received over HTTP to the running Invalidator.
type Feed struct {
	target atomic.Pointer[targetHolder]
}

type targetHolder struct {
	invalidator invalidation.Invalidator
}

// NewFeed registers the invalidation route on router. Requests are rejected until Start runs.
func NewFeed(router Router) *Feed {
	feed := &Feed{}
	router.AddRoute(http.MethodPost, Path, feed.handle)
	return feed
}

// Start implements invalidation.Feed. It serves requests until ctx is cancelled.
func (f *Feed) Start(ctx context.Context, target invalidation.Invalidator) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	f.target.Store(&targetHolder{invalidator: target})
	defer f.target.Store(nil)

	log.Debug("webhook invalidation feed ready", "path", Path)
	<-ctx.Done()
	return nil
}

func (f *Feed) handle(ctx context.Context, _ http.Header, body []byte) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	holder := f.target.Load()
	if holder == nil {
		return fiber.NewError(http.StatusServiceUnavailable, ErrNotStarted.Error())
	}

	var request Request
	if err := json.Unmarshal(body, &request); err != nil {
		return fiber.NewError(http.StatusBadRequest, ErrInvalidPayload.Error()+": "+err.Error())
	}

	if len(request.Descriptors) == 0 {
		return fiber.NewError(http.StatusBadRequest, ErrInvalidPayload.Error()+": descriptors cannot be empty")
	}

	count := holder.invalidator.Invalidate(invalidation.MatchDescriptors(request.Descriptors...))
	log.Debug("invalidation requested", "descriptors", request.Descriptors, "invalidated", count)
	return nil
}
