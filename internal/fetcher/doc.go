// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package fetcher groups the dynq.BatchFetcher implementations shipped with dynq. Every
// subpackage reads its own configuration from the environment and answers a batch of
// descriptors with positionally aligned results.
package fetcher
