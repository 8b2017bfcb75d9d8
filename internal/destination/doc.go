// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package destination defines where the results of dynq queries are delivered once they become
// fresh. Implementations live in the sub packages and share the Sender contract.
package destination
