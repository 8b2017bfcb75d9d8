// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package destination

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mia-platform/dynq/internal/dynq"
)

// Sender delivers fresh query results to a destination.
type Sender interface {
	SendData(ctx context.Context, data *Data) error
}

// Data is the snapshot of a query result shipped to a destination.
type Data struct {
	Source     string      `json:"source"`
	QueryID    string      `json:"queryId"`
	Descriptor string      `json:"descriptor"`
	MTime      time.Time   `json:"mtime"`
	Items      []dynq.Item `json:"items"`
}

// NewData builds the Data for the current result of query.
func NewData(query *dynq.Query, mtime time.Time, items []dynq.Item) *Data {
	sourceName := ""
	if source := query.Source(); source != nil {
		sourceName = source.Name()
	}

	return &Data{
		Source:     sourceName,
		QueryID:    query.ID(),
		Descriptor: string(query.Descriptor()),
		MTime:      mtime,
		Items:      items,
	}
}

// internalData breaks the recursion when customizing JSON marshaling.
type internalData Data

// MarshalJSON adds the number of items to the payload and never encodes a null items list.
func (d Data) MarshalJSON() ([]byte, error) {
	if d.Items == nil {
		d.Items = []dynq.Item{}
	}

	return json.Marshal(struct {
		internalData

		Count int `json:"count"`
	}{
		internalData: internalData(d),
		Count:        len(d.Items),
	})
}
