// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	netHTTP "net/http"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mia-platform/dynq/internal/dynq"
	"github.com/mia-platform/dynq/internal/info"
	"github.com/mia-platform/dynq/internal/logger"
)

const loggerName = "dynq:fetcher:http"

// ErrHTTPFetcher wraps every error returned by the http fetcher.
var ErrHTTPFetcher = errors.New("http fetcher")

var _ dynq.BatchFetcher = &Fetcher{}

// ResponseError reports a batch request answered with an error status.
type ResponseError struct {
	StatusCode int
	err        error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.err)
}

func (e *ResponseError) Unwrap() error {
	return e.err
}

type batchRequest struct {
	Queries []dynq.Descriptor `json:"queries"`
}

type batchResult struct {
	MTime time.Time   `json:"mtime"`
	Items []dynq.Item `json:"items"`
}

type batchResponse struct {
	Results []*batchResult `json:"results"`
}

// Fetcher sends every batch to the configured endpoint.
type Fetcher struct {
	config
	client atomic.Pointer[netHTTP.Client]
}

// NewFetcher returns a Fetcher configured from the environment.
func NewFetcher() (*Fetcher, error) {
	config, err := loadConfigFromEnv()
	if err != nil {
		return nil, handleError(err)
	}

	return &Fetcher{
		config: *config,
	}, nil
}

// FetchBatch implements dynq.BatchFetcher.
func (f *Fetcher) FetchBatch(ctx context.Context, descriptors []dynq.Descriptor) ([]*dynq.Result, error) {
	log := logger.FromContext(ctx).WithName(loggerName)

	body, err := json.Marshal(batchRequest{Queries: descriptors})
	if err != nil {
		return nil, handleError(err)
	}

	request, err := netHTTP.NewRequestWithContext(ctx, netHTTP.MethodPost, f.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, handleError(err)
	}

	request.Header.Set("User-Agent", userAgentString())
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Content-Type", "application/json")

	//nolint:contextcheck // need a new context because it will be used in token requests
	resp, err := f.getClient(context.Background()).Do(request)
	if err != nil {
		return nil, handleError(err)
	}
	defer resp.Body.Close()

	log.Trace("batch response received", "status", resp.StatusCode, "size", len(descriptors))
	switch {
	case resp.StatusCode == netHTTP.StatusForbidden, resp.StatusCode == netHTTP.StatusUnauthorized:
		return nil, handleError(&ResponseError{StatusCode: resp.StatusCode, err: errors.New("invalid token or insufficient permissions")})
	case resp.StatusCode >= netHTTP.StatusBadRequest:
		return nil, handleError(&ResponseError{StatusCode: resp.StatusCode, err: errorMessage(resp)})
	}

	var response batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, handleError(fmt.Errorf("decoding batch response: %w", err))
	}

	results := make([]*dynq.Result, len(response.Results))
	for idx, result := range response.Results {
		if result == nil {
			continue
		}

		items := result.Items
		if items == nil {
			items = []dynq.Item{}
		}
		results[idx] = &dynq.Result{MTime: result.MTime, Items: items}
	}

	return results, nil
}

func errorMessage(resp *netHTTP.Response) error {
	var respBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err == nil {
		if message, ok := respBody["message"].(string); ok {
			return errors.New(message)
		}
	}

	return errors.New("unexpected error")
}

func (f *Fetcher) getClient(ctx context.Context) *netHTTP.Client {
	client := f.client.Load()
	if client != nil {
		return client
	}

	client = &netHTTP.Client{
		Transport: newTransport(ctx, f.config),
	}
	f.client.Store(client)
	return client
}

// userAgentString builds the User-Agent header sent to the batch endpoint.
func userAgentString() string {
	return info.AppName + "/" + info.Version
}

func handleError(err error) error {
	var parseErr env.AggregateError
	if errors.As(err, &parseErr) {
		err = parseErr.Errors[0]
	}

	return fmt.Errorf("%w: %w", ErrHTTPFetcher, err)
}
