// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package catalog implements a destination publishing query results to a catalog service.
// Every fresh result is sent as a JSON document with a POST request, authenticated with a
// static bearer token or an OAuth2 client credentials flow.
package catalog
