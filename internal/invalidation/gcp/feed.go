// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package gcp implements an invalidation.Feed reading Cloud Asset change notifications from a
// Pub/Sub subscription.
package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/caarlos0/env/v11"
	"google.golang.org/grpc/status"

	"github.com/mia-platform/dynq/internal/invalidation"
	"github.com/mia-platform/dynq/internal/logger"
)

const (
	loggerName = "dynq:invalidation:gcp"
)

var (
	// ErrGCPFeed wraps errors emitted by the Pub/Sub feed.
	ErrGCPFeed = errors.New("gcp invalidation feed")

	errMissingAssetType = errors.New("message without asset type")
)

var _ invalidation.Feed = &Feed{}

// Feed invalidates the queries whose descriptor is the asset type of each received message.
type Feed struct {
	config

	client atomic.Pointer[pubsub.Client]
}

// assetEvent is the subset of a Cloud Asset feed message needed to find the changed type.
type assetEvent struct {
	Asset      map[string]any `json:"asset"`
	PriorAsset map[string]any `json:"priorAsset"`
	Deleted    bool           `json:"deleted"`
}

func (e assetEvent) assetType() string {
	if assetType, ok := e.Asset["assetType"].(string); ok && assetType != "" {
		return assetType
	}

	assetType, _ := e.PriorAsset["assetType"].(string)
	return assetType
}

// NewFeed returns a Feed configured from the environment.
func NewFeed() (*Feed, error) {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return nil, handleError(err)
	}

	return &Feed{
		config: cfg,
	}, nil
}

// Start implements invalidation.Feed.
func (f *Feed) Start(ctx context.Context, target invalidation.Invalidator) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	client, err := f.initClient(ctx)
	if err != nil {
		return handleError(err)
	}

	log.Debug("starting pubsub subscriber",
		"projectId", f.ProjectID,
		"subscriptionId", f.SubscriptionID,
	)

	subscriber := client.Subscriber(f.SubscriptionID)
	err = subscriber.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		assetType, err := decodeMessage(msg.Data)
		if err != nil {
			log.Error("failed to handle Pub/Sub message", "messageId", msg.ID, "error", err.Error())
			msg.Nack()
			return
		}

		count := target.Invalidate(invalidation.MatchDescriptors(assetType))
		log.Trace("asset change received",
			"messageId", msg.ID,
			"assetType", assetType,
			"invalidated", count,
		)
		msg.Ack()
	})

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return handleError(err)
}

// Close releases the Pub/Sub client if it has been created.
func (f *Feed) Close(ctx context.Context, _ time.Duration) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	client := f.client.Swap(nil)
	if client == nil {
		return nil
	}

	log.Debug("closing pubsub client")
	return handleError(client.Close())
}

func (f *Feed) initClient(ctx context.Context) (*pubsub.Client, error) {
	if client := f.client.Load(); client != nil {
		return client, nil
	}

	if err := f.validate(); err != nil {
		return nil, err
	}

	client, err := pubsub.NewClient(ctx, f.ProjectID)
	if err != nil {
		return nil, err
	}

	if !f.client.CompareAndSwap(nil, client) {
		client.Close()
		return f.client.Load(), nil
	}
	return client, nil
}

func decodeMessage(data []byte) (string, error) {
	var event assetEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", err
	}

	assetType := event.assetType()
	if assetType == "" {
		return "", errMissingAssetType
	}
	return assetType, nil
}

// handleError unwraps known errors and wraps them with ErrGCPFeed.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	var parseErr env.AggregateError
	if errors.As(err, &parseErr) {
		err = parseErr.Errors[0]
	}

	if statusErr, ok := status.FromError(err); ok {
		err = errors.New(statusErr.Message())
	}

	return fmt.Errorf("%w: %w", ErrGCPFeed, err)
}
