// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package azuredevops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"

	"github.com/mia-platform/dynq/internal/info"
)

const continuationHeader = "X-MS-ContinuationToken"

type client struct {
	organizationURL *url.URL
	authorization   string

	client http.Client
}

func newClient(connection *azuredevops.Connection) (*client, error) {
	url, err := url.Parse(connection.BaseUrl)
	if err != nil {
		return nil, err
	}

	httpClient := http.Client{}
	if connection.Timeout != nil {
		httpClient.Timeout = *connection.Timeout
	}

	return &client{
		organizationURL: url,
		authorization:   connection.AuthorizationString,
		client:          httpClient,
	}, nil
}

func (c *client) doRequest(ctx context.Context, method string, path string, queryParam url.Values) (*http.Response, error) {
	url := c.organizationURL.JoinPath(path)
	url.RawQuery = queryParam.Encode()

	req, err := http.NewRequestWithContext(ctx, method, url.String(), nil)
	if err != nil {
		return nil, err
	}

	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json;api-version=7.1;charset=utf-8")
	req.Header.Set("User-Agent", info.AppName+"/"+info.Version)
	return c.client.Do(req)
}

// listAll follows the continuation tokens of path until every page has been read.
func (c *client) listAll(ctx context.Context, path string, queryParam url.Values) ([]map[string]any, error) {
	items := make([]map[string]any, 0)
	for {
		values, continuation, err := c.listPage(ctx, path, queryParam)
		if err != nil {
			return nil, err
		}

		items = append(items, values...)
		if continuation == "" {
			return items, nil
		}
		queryParam.Set("continuationToken", continuation)
	}
}

func (c *client) listPage(ctx context.Context, path string, queryParam url.Values) ([]map[string]any, string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, queryParam)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, path)
	}

	values, err := unmarshalResponse(resp.Body)
	if err != nil {
		return nil, "", err
	}

	return values, resp.Header.Get(continuationHeader), nil //nolint:canonicalheader
}

func unmarshalResponse(body io.Reader) ([]map[string]any, error) {
	type resultsStruct struct {
		Count int              `json:"count"`
		Value []map[string]any `json:"value"`
	}

	results := new(resultsStruct)
	if err := json.NewDecoder(body).Decode(results); err != nil {
		return nil, err
	}

	return results.Value, nil
}
