// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"time"

	"github.com/mia-platform/dynq/internal/dynq"
	"github.com/mia-platform/dynq/internal/registry"
)

const queriesPath = "/queries"

// querySnapshot is the state of a running query exposed by the HTTP server.
type querySnapshot struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Descriptor string     `json:"descriptor"`
	Autoupdate bool       `json:"autoupdate"`
	UpToDate   bool       `json:"upToDate"`
	MTime      *time.Time `json:"mtime,omitempty"`
	Items      int        `json:"items"`
}

type queryLister interface {
	Queries() []*dynq.Query
}

// queriesHandler returns the snapshot of the live queries of every source in sources.
func queriesHandler(sources *registry.Registry) func(context.Context) (any, error) {
	return func(context.Context) (any, error) {
		snapshots := make([]querySnapshot, 0)
		for _, name := range sources.Names() {
			source, err := sources.Source(name)
			if err != nil {
				return nil, err
			}

			lister, ok := source.(queryLister)
			if !ok {
				continue
			}

			for _, query := range lister.Queries() {
				snapshots = append(snapshots, newQuerySnapshot(name, query))
			}
		}

		return snapshots, nil
	}
}

func newQuerySnapshot(sourceName string, query *dynq.Query) querySnapshot {
	snapshot := querySnapshot{
		ID:         query.ID(),
		Source:     sourceName,
		Descriptor: string(query.Descriptor()),
		Autoupdate: query.Autoupdate(),
		UpToDate:   query.IsUpToDate(),
		Items:      len(query.Items()),
	}

	if mtime := query.MTime(); !mtime.IsZero() {
		snapshot.MTime = &mtime
	}
	return snapshot
}
