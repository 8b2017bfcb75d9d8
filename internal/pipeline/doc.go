// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package pipeline connects dynq queries to a destination.
// A pipeline follows a set of queries and ships every fresh result they receive to the
// destination, either continuously with Start or once with Load.
package pipeline
