// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package server contains the HTTP server exposed by dynq while watching a source.
// It sets up the Fiber application, configures the request logging middleware, and defines the
// status checks. Commands add their own routes before starting it.
package server
