// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package gcp implements a dynq.BatchFetcher backed by Google Cloud Asset Inventory.
// Descriptors are asset types (for example storage.googleapis.com/Bucket) and a whole batch is
// resolved with a single ListAssets call.
package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	asset "cloud.google.com/go/asset/apiv1"
	"cloud.google.com/go/asset/apiv1/assetpb"
	"github.com/caarlos0/env/v11"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/mia-platform/dynq/internal/dynq"
	"github.com/mia-platform/dynq/internal/logger"
)

const loggerName = "dynq:fetcher:gcp"

// ErrGCPFetcher wraps every error returned by the GCP fetcher.
var ErrGCPFetcher = errors.New("gcp fetcher")

var _ dynq.BatchFetcher = &Fetcher{}

// Fetcher lists Cloud Assets grouped by asset type.
type Fetcher struct {
	config
	client atomic.Pointer[asset.Client]
}

// NewFetcher returns a Fetcher configured from the environment. The Cloud Asset client is
// created on the first fetch.
func NewFetcher() (*Fetcher, error) {
	config, err := env.ParseAs[config]()
	if err != nil {
		return nil, handleError(err)
	}

	if err := config.validate(); err != nil {
		return nil, handleError(err)
	}

	return &Fetcher{config: config}, nil
}

// FetchBatch implements dynq.BatchFetcher. Every descriptor gets a result: asset types without
// assets get an empty one. The result modification time is the latest update time of its assets.
func (f *Fetcher) FetchBatch(ctx context.Context, descriptors []dynq.Descriptor) ([]*dynq.Result, error) {
	log := logger.FromContext(ctx).WithName(loggerName)

	client, err := f.initClient(ctx)
	if err != nil {
		return nil, handleError(err)
	}

	grouped := make(map[string]*dynq.Result, len(descriptors))
	assetTypes := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		key := strings.ToLower(string(descriptor))
		if _, found := grouped[key]; found {
			continue
		}

		grouped[key] = &dynq.Result{Items: []dynq.Item{}}
		assetTypes = append(assetTypes, string(descriptor))
	}

	it := client.ListAssets(ctx, f.listAssetsRequest(assetTypes))
	listed := 0
	for {
		asset, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, handleError(err)
		}

		result, found := grouped[strings.ToLower(asset.GetAssetType())]
		if !found {
			continue
		}

		item := assetToMap(asset)
		if item == nil {
			log.Warn("skipping asset not convertible to map", "name", asset.GetName())
			continue
		}

		result.Items = append(result.Items, item)
		if updateTime := asset.GetUpdateTime().AsTime(); updateTime.After(result.MTime) {
			result.MTime = updateTime
		}
		listed++
	}

	log.Debug("assets listed", "types", len(assetTypes), "assets", listed)

	results := make([]*dynq.Result, len(descriptors))
	for idx, descriptor := range descriptors {
		results[idx] = grouped[strings.ToLower(string(descriptor))]
	}
	return results, nil
}

// Close releases the Cloud Asset client if it has been created.
func (f *Fetcher) Close(ctx context.Context, _ time.Duration) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	log.Debug("closing GCP asset client")

	client := f.client.Swap(nil)
	if client != nil {
		if err := client.Close(); err != nil {
			return handleError(err)
		}
	}

	log.Trace("closed GCP asset client")
	return nil
}

// initClient initializes the Cloud Asset client once and reuses it afterwards.
func (f *Fetcher) initClient(ctx context.Context) (*asset.Client, error) {
	client := f.client.Load()
	if client != nil {
		return client, nil
	}

	if err := f.validate(); err != nil {
		return nil, err
	}

	client, err := asset.NewClient(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}

	if !f.client.CompareAndSwap(nil, client) {
		_ = client.Close()
		return f.client.Load(), nil
	}
	return client, nil
}

func (f *Fetcher) listAssetsRequest(assetTypes []string) *assetpb.ListAssetsRequest {
	return &assetpb.ListAssetsRequest{
		Parent:      f.Parent,
		AssetTypes:  assetTypes,
		ContentType: assetpb.ContentType_RESOURCE,
	}
}

// assetToMap converts a Cloud Asset message to a generic map.
func assetToMap(asset *assetpb.Asset) map[string]any {
	if asset == nil {
		return nil
	}

	b, err := protojson.Marshal(asset)
	if err != nil {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// handleError unwraps known errors and wraps them with ErrGCPFetcher.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	var parseErr env.AggregateError
	if errors.As(err, &parseErr) {
		err = parseErr.Errors[0]
	}

	if statusErr, ok := status.FromError(err); ok && statusErr.Code() != 0 {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = errors.New(statusErr.Message())
		}
	}

	return fmt.Errorf("%w: %w", ErrGCPFetcher, err)
}
