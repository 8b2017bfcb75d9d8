// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package writer implements a destination that prints every query result it receives to the
// given io.Writer instance.
// It is primarily useful for debugging purposes, or for checking the descriptors of a query
// file before connecting a real destination.
package writer
