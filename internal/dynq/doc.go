// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package dynq keeps client-side query results fresh.
// Consumers create a Query against a QuerySource and read its items; the source decides when
// a result is stale, coalesces the stale and requested queries into a single batched fetch and
// notifies every query whose result changed.
// PollingSource is the scheduler implementation: it keeps at most one fetch in flight, always
// fires at the soonest requested deadline and re-arms itself at the configured interval.
package dynq
