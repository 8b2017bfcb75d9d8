// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package azure

import (
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"
)

// ErrMissingEnvVariable reports missing mandatory environment variables.
var ErrMissingEnvVariable = errors.New("missing environment variable")

// config holds all the configuration needed to query Azure Resource Graph.
type config struct {
	SubscriptionID string `env:"AZURE_SUBSCRIPTION_ID"`

	clientOptions    *arm.ClientOptions
	azureCredentials azcore.TokenCredential
}

func (c config) validate() error {
	if len(c.SubscriptionID) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingEnvVariable, "AZURE_SUBSCRIPTION_ID")
	}

	return nil
}

func (c config) azureGraphClient() (*armresourcegraph.Client, error) {
	return armresourcegraph.NewClient(c.azureCredentials, c.clientOptions)
}
