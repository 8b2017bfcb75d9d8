// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package http implements a dynq.BatchFetcher calling a JSON batch endpoint.
// The whole batch is sent in a single POST request and the endpoint must answer with one result
// for each requested descriptor, in the same order, using null for entries without a result.
package http
