// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package http

import (
	"context"
	netHTTP "net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/jwt"
)

// newTransport returns the round tripper matching the configured credentials: a JWT bearer
// flow when a private key is set, a client credentials flow when a secret is set, the default
// transport otherwise.
func newTransport(ctx context.Context, cfg config) netHTTP.RoundTripper {
	switch {
	case len(cfg.PrivateKey) > 0:
		return newTransportWithJWT(ctx, cfg.AuthEndpoint, cfg.PrivateKey, cfg.PrivateKeyID, cfg.ClientID)
	case len(cfg.ClientID) > 0 && len(cfg.ClientSecret) > 0:
		config := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.AuthEndpoint,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		return &oauth2.Transport{
			Source: config.TokenSource(ctx),
		}
	default:
		return netHTTP.DefaultTransport
	}
}

func newTransportWithJWT(ctx context.Context, tokenURL, privateKey, privateKeyID, clientID string) netHTTP.RoundTripper {
	config := &jwt.Config{
		Subject:      clientID,
		PrivateKey:   []byte(privateKey),
		PrivateKeyID: privateKeyID,
		TokenURL:     tokenURL,
	}

	return &oauth2.Transport{
		Source: config.TokenSource(ctx),
	}
}
