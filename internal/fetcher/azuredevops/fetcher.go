// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package azuredevops implements a dynq.BatchFetcher for the resources of an Azure DevOps
// organization. Supported descriptors are gitrepository and team; any other descriptor is
// answered with a nil entry.
package azuredevops

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/dynq/internal/dynq"
	"github.com/mia-platform/dynq/internal/logger"
)

const (
	logName = "dynq:fetcher:azuredevops"

	gitRepositoryType = "gitrepository"
	teamType          = "team"
)

var (
	// ErrDevOpsFetcher is the sentinel error for all Azure DevOps fetcher errors.
	ErrDevOpsFetcher = errors.New("azure devops fetcher")

	timeSource = time.Now
)

var _ dynq.BatchFetcher = &Fetcher{}

// Fetcher lists Azure DevOps resources through the organization REST API.
type Fetcher struct {
	config
}

// NewFetcher creates a new Azure DevOps Fetcher reading the needed configuration from the env variables.
func NewFetcher() (*Fetcher, error) {
	config, err := env.ParseAs[config]()
	if err != nil {
		return nil, handleErr(err)
	}

	return &Fetcher{
		config: config,
	}, nil
}

// FetchBatch implements dynq.BatchFetcher.
func (f *Fetcher) FetchBatch(ctx context.Context, descriptors []dynq.Descriptor) ([]*dynq.Result, error) {
	log := logger.FromContext(ctx).WithName(logName)
	if err := f.validate(); err != nil {
		return nil, handleErr(err)
	}

	client, err := newClient(f.connection())
	if err != nil {
		return nil, handleErr(err)
	}

	cache := make(map[string]*dynq.Result, len(descriptors))
	results := make([]*dynq.Result, len(descriptors))
	for idx, descriptor := range descriptors {
		resourceType := strings.ToLower(string(descriptor))
		if result, found := cache[resourceType]; found {
			results[idx] = result
			continue
		}

		path, queryParam, ok := resourceRequest(resourceType)
		if !ok {
			log.Warn("unsupported descriptor", "descriptor", descriptor)
			cache[resourceType] = nil
			continue
		}

		values, err := client.listAll(ctx, path, queryParam)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, handleErr(ctxErr)
		}

		if err != nil {
			log.Error("listing resources failed", "descriptor", descriptor, "error", err.Error())
			cache[resourceType] = nil
			continue
		}

		items := make([]dynq.Item, 0, len(values))
		for _, value := range values {
			items = append(items, value)
		}

		result := &dynq.Result{MTime: timeSource(), Items: items}
		cache[resourceType] = result
		results[idx] = result
	}

	return results, nil
}

func resourceRequest(resourceType string) (string, url.Values, bool) {
	queryParam := url.Values{}
	switch resourceType {
	case gitRepositoryType:
		queryParam.Set("includeLinks", "true")
		queryParam.Set("includeAllUrls", "true")
		queryParam.Set("includeHidden", "true")
		return "_apis/git/repositories", queryParam, true
	case teamType:
		queryParam.Set("$expandIdentity", "true")
		return "_apis/teams", queryParam, true
	}

	return "", nil, false
}

// handleErr always wraps the given error with ErrDevOpsFetcher.
// It also unwraps some errors to cleanup the error message and removing unnecessary layers.
func handleErr(err error) error {
	if err == nil {
		return nil
	}

	var parseErr env.AggregateError
	if errors.As(err, &parseErr) {
		err = parseErr.Errors[0]
	}

	return fmt.Errorf("%w: %w", ErrDevOpsFetcher, err)
}
