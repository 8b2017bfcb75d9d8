// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package azure implements a dynq.BatchFetcher backed by Azure Resource Graph.
// Descriptors are Azure resource types (for example Microsoft.Compute/virtualMachines); each
// one is resolved with its own paged query so that a failing type does not fail the batch.
package azure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"
	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/dynq/internal/dynq"
	"github.com/mia-platform/dynq/internal/logger"
)

const (
	logName = "dynq:fetcher:azure"

	resourceGraphQueryTemplate          = "Resources | where type =~ '%s'"
	resourceContainerGraphQueryTemplate = "ResourceContainers | where type =~ '%s'"
)

var (
	// ErrAzureFetcher is the sentinel error for all Azure fetcher errors.
	ErrAzureFetcher = errors.New("azure fetcher")

	timeSource = time.Now
)

var _ dynq.BatchFetcher = &Fetcher{}

// Fetcher runs one Resource Graph query for each resource type of a batch.
type Fetcher struct {
	config

	client atomic.Pointer[armresourcegraph.Client]
}

// NewFetcher creates a new Azure Fetcher reading the needed configuration from the env variables.
func NewFetcher() (*Fetcher, error) {
	config, err := env.ParseAs[config]()
	if err != nil {
		return nil, handleError(err)
	}

	credentials, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, handleError(err)
	}
	config.azureCredentials = credentials

	return &Fetcher{
		config: config,
	}, nil
}

// FetchBatch implements dynq.BatchFetcher. Resource Graph does not expose modification times,
// so every result is stamped with the time of the fetch.
func (f *Fetcher) FetchBatch(ctx context.Context, descriptors []dynq.Descriptor) ([]*dynq.Result, error) {
	log := logger.FromContext(ctx).WithName(logName)
	if err := f.validate(); err != nil {
		return nil, handleError(err)
	}

	client, err := f.graphClient()
	if err != nil {
		return nil, handleError(err)
	}

	byType := make(map[string]*dynq.Result, len(descriptors))
	for _, descriptor := range descriptors {
		resourceType := strings.ToLower(string(descriptor))
		if _, done := byType[resourceType]; done {
			continue
		}

		items, err := f.listResources(ctx, client, string(descriptor))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, handleError(ctxErr)
		}

		if err != nil {
			log.Error("resource graph query failed", "type", descriptor, "error", err.Error())
			byType[resourceType] = nil
			continue
		}

		byType[resourceType] = &dynq.Result{MTime: timeSource(), Items: items}
	}

	results := make([]*dynq.Result, len(descriptors))
	for idx, descriptor := range descriptors {
		results[idx] = byType[strings.ToLower(string(descriptor))]
	}
	return results, nil
}

func (f *Fetcher) listResources(ctx context.Context, client *armresourcegraph.Client, resourceType string) ([]dynq.Item, error) {
	request := armresourcegraph.QueryRequest{
		Query:         to.Ptr(graphQuery(resourceType)),
		Subscriptions: []*string{to.Ptr(f.SubscriptionID)},
		Options: &armresourcegraph.QueryRequestOptions{
			ResultFormat: to.Ptr(armresourcegraph.ResultFormatObjectArray),
		},
	}

	items := make([]dynq.Item, 0)
	for {
		response, err := client.Resources(ctx, request, nil)
		if err != nil {
			return nil, err
		}

		if rows, ok := response.Data.([]any); ok {
			for _, row := range rows {
				if item, ok := row.(map[string]any); ok {
					items = append(items, item)
				}
			}
		}

		if response.SkipToken == nil || *response.SkipToken == "" {
			return items, nil
		}
		request.Options.SkipToken = response.SkipToken
	}
}

func (f *Fetcher) graphClient() (*armresourcegraph.Client, error) {
	if client := f.client.Load(); client != nil {
		return client, nil
	}

	client, err := f.azureGraphClient()
	if err != nil {
		return nil, err
	}

	f.client.Store(client)
	return client, nil
}

// graphQuery returns the Resource Graph query listing resourceType. Subscriptions and resource
// groups live in the ResourceContainers table.
func graphQuery(resourceType string) string {
	switch strings.ToLower(resourceType) {
	case "microsoft.resources/resourcegroups", "microsoft.resources/subscriptions/resourcegroups":
		return fmt.Sprintf(resourceContainerGraphQueryTemplate, "Microsoft.Resources/subscriptions/resourceGroups")
	case "microsoft.resources/subscriptions":
		return fmt.Sprintf(resourceContainerGraphQueryTemplate, "Microsoft.Resources/subscriptions")
	default:
		return fmt.Sprintf(resourceGraphQueryTemplate, resourceType)
	}
}

// handleError always wraps the given error with ErrAzureFetcher.
// It also unwraps some errors to cleanup the error message and removing unnecessary layers.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	var parseErr env.AggregateError
	if errors.As(err, &parseErr) {
		err = parseErr.Errors[0]
	}

	return fmt.Errorf("%w: %w", ErrAzureFetcher, err)
}
