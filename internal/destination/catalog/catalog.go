// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/caarlos0/env/v11"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mia-platform/dynq/internal/destination"
	"github.com/mia-platform/dynq/internal/info"
)

var (
	errMultipleAuthMethods = errors.New("only one of DYNQ_CATALOG_TOKEN or DYNQ_CATALOG_CLIENT_ID can be set")
	errMissingClientID     = errors.New("DYNQ_CATALOG_CLIENT_ID is required when DYNQ_CATALOG_CLIENT_SECRET is set")
	errMissingClientSecret = errors.New("DYNQ_CATALOG_CLIENT_SECRET is required when DYNQ_CATALOG_CLIENT_ID is set")
)

var _ destination.Sender = &catalogDestination{}

type CatalogError struct {
	err error
}

func (e *CatalogError) Error() string {
	return "catalog: " + e.err.Error()
}

func (e *CatalogError) Unwrap() error {
	return e.err
}

func (e *CatalogError) Is(target error) bool {
	cre, ok := target.(*CatalogError)
	if !ok {
		return false
	}

	return e.err.Error() == cre.err.Error()
}

// catalogDestination implements destination.Sender publishing every fresh query result to a
// catalog HTTP endpoint.
type catalogDestination struct {
	CatalogEndpoint string `env:"DYNQ_CATALOG_ENDPOINT,required"`
	Token           string `env:"DYNQ_CATALOG_TOKEN"`
	ClientID        string `env:"DYNQ_CATALOG_CLIENT_ID"`
	ClientSecret    string `env:"DYNQ_CATALOG_CLIENT_SECRET"`
	AuthEndpoint    string `env:"DYNQ_CATALOG_AUTH_ENDPOINT"`

	client atomic.Pointer[http.Client]
}

// NewDestination returns a new destination.Sender configured from the environment.
func NewDestination() (destination.Sender, error) {
	destination := new(catalogDestination)
	if err := env.Parse(destination); err != nil {
		return nil, handleError(err)
	}

	if err := destination.validate(); err != nil {
		return nil, handleError(err)
	}

	return destination, nil
}

func (d *catalogDestination) validate() error {
	endpointURL, err := url.Parse(d.CatalogEndpoint)
	if err != nil {
		return err
	}

	switch {
	case len(d.Token) > 0 && len(d.ClientID) > 0:
		return errMultipleAuthMethods
	case len(d.ClientID) > 0 && len(d.ClientSecret) == 0:
		return errMissingClientSecret
	case len(d.ClientSecret) > 0 && len(d.ClientID) == 0:
		return errMissingClientID
	}

	if len(d.AuthEndpoint) == 0 {
		endpointURL.Path = "/oauth/token"
		endpointURL.RawQuery = ""
		d.AuthEndpoint = endpointURL.String()
		return nil
	}

	_, err = url.Parse(d.AuthEndpoint)
	return err
}

// SendData implements destination.Sender.
func (d *catalogDestination) SendData(ctx context.Context, data *destination.Data) error {
	body, err := json.Marshal(data)
	if err != nil {
		return handleError(err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, d.CatalogEndpoint, bytes.NewReader(body))
	if err != nil {
		return handleError(err)
	}

	request.Header.Set("User-Agent", userAgentString())
	request.Header.Set("Content-Type", "application/json")
	if len(d.Token) > 0 {
		request.Header.Set("Authorization", "Bearer "+d.Token)
	}

	resp, err := d.getClient(ctx).Do(request)
	if err != nil {
		return handleError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		decoder := json.NewDecoder(resp.Body)
		var respBody map[string]any
		if err := decoder.Decode(&respBody); err == nil {
			if message, ok := respBody["message"].(string); ok {
				return handleError(errors.New(message))
			}
		}
		return handleError(errors.New("unexpected error"))
	}

	return nil
}

func (d *catalogDestination) getClient(ctx context.Context) *http.Client {
	if client := d.client.Load(); client != nil {
		return client
	}

	client := http.DefaultClient
	if len(d.ClientID) > 0 {
		config := clientcredentials.Config{
			ClientID:     d.ClientID,
			ClientSecret: d.ClientSecret,
			TokenURL:     d.AuthEndpoint,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		client = &http.Client{
			Transport: &oauth2.Transport{
				Source: config.TokenSource(context.WithoutCancel(ctx)),
			},
		}
	}

	if !d.client.CompareAndSwap(nil, client) {
		return d.client.Load()
	}
	return client
}

// userAgentString returns the User-Agent string to be used in HTTP requests.
func userAgentString() string {
	return info.AppName + "/" + info.Version
}

func handleError(err error) error {
	var parseErr env.AggregateError
	if errors.As(err, &parseErr) {
		err = parseErr.Errors[0]
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return &CatalogError{
		err: err,
	}
}
