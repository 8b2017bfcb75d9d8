// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package azure implements an invalidation.Feed consuming the Azure Resource Manager events
// that Event Grid forwards to an Event Hub as CloudEvents.
package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/messaging"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/eventgrid/azsystemevents"
	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/dynq/internal/invalidation"
	"github.com/mia-platform/dynq/internal/logger"
)

const (
	logName = "dynq:invalidation:azure"

	receiveBatchSize = 100
	receiveTimeout   = time.Minute
)

var (
	// ErrAzureFeed is the sentinel error for all Azure invalidation feed errors.
	ErrAzureFeed = errors.New("azure invalidation feed")
)

var _ invalidation.Feed = &Feed{}

// Feed invalidates the queries whose descriptor is the type of a resource written or deleted
// in Azure.
type Feed struct {
	config
}

// NewFeed creates a new Azure Feed reading the needed configuration from the env variables.
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
	log := logger.FromContext(ctx).WithName(logName)
	if err := f.validate(); err != nil {
		return handleError(err)
	}

	consumer, processor, err := f.newProcessor()
	if err != nil {
		return handleError(err)
	}
	defer func() {
		if err := consumer.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error("closing event hub consumer", "error", err.Error())
		}
	}()

	handler := partitionEventHandler(target)
	go func() {
		for {
			partitionClient := processor.NextPartitionClient(ctx)
			if partitionClient == nil {
				return
			}

			go func() {
				if err := processPartition(ctx, partitionClient, handler); err != nil {
					log.Error("partition processing stopped", "partitionId", partitionClient.PartitionID(), "error", err.Error())
				}
			}()
		}
	}()

	log.Debug("starting event hub processor", "eventHub", f.EventHubName, "consumerGroup", f.EventHubConsumerGroup)
	if err := processor.Run(ctx); err != nil && ctx.Err() == nil {
		return handleError(err)
	}

	return nil
}

func processPartition(ctx context.Context, partitionClient *azeventhubs.ProcessorPartitionClient, handler func(context.Context, *azeventhubs.ReceivedEventData)) error {
	defer partitionClient.Close(context.WithoutCancel(ctx))

	for {
		receiveCtx, cancel := context.WithTimeout(ctx, receiveTimeout)
		events, err := partitionClient.ReceiveEvents(receiveCtx, receiveBatchSize, nil)
		cancel()

		if ctx.Err() != nil {
			return nil
		}

		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			var eventHubErr *azeventhubs.Error
			if errors.As(err, &eventHubErr) && eventHubErr.Code == azeventhubs.ErrorCodeOwnershipLost {
				return nil
			}
			return err
		}

		for _, event := range events {
			handler(ctx, event)
		}

		if len(events) > 0 {
			if err := partitionClient.UpdateCheckpoint(ctx, events[len(events)-1], nil); err != nil {
				return err
			}
		}
	}
}

// partitionEventHandler decodes the CloudEvents carried by a single Event Hub message and
// invalidates the types of the resources they refer to.
func partitionEventHandler(target invalidation.Invalidator) func(context.Context, *azeventhubs.ReceivedEventData) {
	return func(ctx context.Context, data *azeventhubs.ReceivedEventData) {
		log := logger.FromContext(ctx).WithName(logName)

		var events []messaging.CloudEvent
		if err := json.Unmarshal(data.Body, &events); err != nil {
			log.Error("decoding event hub message", "error", err.Error())
			return
		}

		resourceTypes := make([]string, 0, len(events))
		for _, event := range events {
			switch event.Type {
			case azsystemevents.TypeResourceWriteSuccess, azsystemevents.TypeResourceDeleteSuccess:
			default:
				log.Trace("skipping event", "id", event.ID, "type", event.Type)
				continue
			}

			if event.Subject == nil {
				log.Warn("event without subject", "id", event.ID, "type", event.Type)
				continue
			}

			resourceID, err := arm.ParseResourceID(*event.Subject)
			if err != nil {
				log.Warn("event subject is not a resource id", "id", event.ID, "subject", *event.Subject, "error", err.Error())
				continue
			}

			resourceTypes = append(resourceTypes, resourceID.ResourceType.String())
		}

		if len(resourceTypes) == 0 {
			return
		}

		count := target.Invalidate(invalidation.MatchDescriptors(resourceTypes...))
		log.Trace("resource changes received", "types", resourceTypes, "invalidated", count)
	}
}

// handleError always wraps the given error with ErrAzureFeed.
// It also unwraps some errors to cleanup the error message and removing unnecessary layers.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	var parseErr env.AggregateError
	if errors.As(err, &parseErr) {
		err = parseErr.Errors[0]
	}

	return fmt.Errorf("%w: %w", ErrAzureFeed, err)
}
