// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mia-platform/dynq/internal/destination"
)

var _ destination.Sender = &writerDestination{}

type writerDestination struct {
	writer io.Writer

	lock sync.Mutex
}

func NewDestination(w io.Writer) destination.Sender {
	return &writerDestination{
		writer: w,
	}
}

func (d *writerDestination) SendData(_ context.Context, data *destination.Data) error {
	builder := new(strings.Builder)
	builder.WriteString("Query result:\n")
	builder.WriteString("\tSource: " + data.Source + "\n")
	builder.WriteString("\tQuery: " + data.QueryID + "\n")
	builder.WriteString("\tDescriptor: " + data.Descriptor + "\n")
	builder.WriteString("\tModified: " + data.MTime.Format(time.RFC3339) + "\n")
	builder.WriteString("\tItems (" + strconv.Itoa(len(data.Items)) + "): ")

	encoder := json.NewEncoder(builder)
	encoder.SetIndent("\t", "\t")
	if err := encoder.Encode(data.Items); err != nil {
		return err
	}
	builder.WriteString("\n")

	d.lock.Lock()
	defer d.lock.Unlock()
	_, err := fmt.Fprint(d.writer, builder.String())
	return err
}
