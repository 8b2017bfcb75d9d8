// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package fake provides an in-memory dynq.BatchFetcher for tests.
package fake
