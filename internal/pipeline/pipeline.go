// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mia-platform/dynq/internal/destination"
	"github.com/mia-platform/dynq/internal/dynq"
	"github.com/mia-platform/dynq/internal/logger"
)

const (
	loggerName = "dynq:pipeline"
)

type Pipeline struct {
	queries     []*dynq.Query
	destination destination.Sender
}

// update carries a result-updated event from the query listener to the sending goroutine.
type update struct {
	query *dynq.Query
	mtime time.Time
	items []dynq.Item
}

func New(queries []*dynq.Query, destination destination.Sender) *Pipeline {
	return &Pipeline{
		queries:     queries,
		destination: destination,
	}
}

// Start follows every query of the pipeline until ctx is cancelled. Stale queries are asked to
// load their result, and every update they receive afterwards is sent to the destination.
func (p *Pipeline) Start(ctx context.Context) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	if len(p.queries) == 0 {
		return ErrNoQueries
	}

	log.Trace("starting data pipeline", "queries", len(p.queries))
	channel := make(chan update, len(p.queries))

	unsubscribes := make([]func(), 0, len(p.queries))
	for _, query := range p.queries {
		unsubscribe := query.Subscribe(dynq.EventResultUpdated, func(event dynq.Event) {
			select {
			case channel <- update{query: event.Query, mtime: event.Query.MTime(), items: event.Items}:
			case <-ctx.Done():
			}
		})
		unsubscribes = append(unsubscribes, unsubscribe)
	}
	defer func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}()

	for _, query := range p.queries {
		if !query.IsUpToDate() && !query.IsClosed() {
			query.Source().LoadResult(query)
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug("pipeline cancelled from context", "error", ctx.Err())
			return nil
		case data := <-channel:
			p.send(ctx, log, data)
		}
	}
}

func (p *Pipeline) send(ctx context.Context, log logger.Logger, data update) {
	descriptor := string(data.query.Descriptor())
	log.Debug("sending data", "descriptor", descriptor, "items", len(data.items))
	if err := p.destination.SendData(ctx, destination.NewData(data.query, data.mtime, data.items)); err != nil {
		log.Error("error sending data to destination", "descriptor", descriptor, "error", err.Error())
		return
	}
	log.Trace("data sent", "descriptor", descriptor)
}

// Load waits for the result of every query and sends it to the destination once.
func (p *Pipeline) Load(ctx context.Context) error {
	log := logger.FromContext(ctx).WithName(loggerName)
	if len(p.queries) == 0 {
		return ErrNoQueries
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, query := range p.queries {
		group.Go(func() error {
			items, err := query.LoadItems(groupCtx)
			if err != nil {
				return err
			}

			descriptor := string(query.Descriptor())
			log.Debug("sending data", "descriptor", descriptor, "items", len(items))
			if err := p.destination.SendData(groupCtx, destination.NewData(query, query.MTime(), items)); err != nil {
				return &sendError{Descriptor: descriptor, err: err}
			}
			return nil
		})
	}

	return group.Wait()
}

// Stop closes every distinct source owning the pipeline queries.
func (p *Pipeline) Stop(ctx context.Context, timeout time.Duration) error {
	log := logger.FromContext(ctx).WithName(loggerName)

	closed := make(map[dynq.QuerySource]struct{})
	var errs []error
	for _, query := range p.queries {
		source := query.Source()
		if _, done := closed[source]; done {
			continue
		}
		closed[source] = struct{}{}

		closableSource, ok := source.(ClosableSource)
		if !ok {
			log.Debug("source does not implement ClosableSource, skipping close", "source", source.Name())
			continue
		}

		log.Debug("stop source", "source", source.Name())
		if err := closableSource.Close(ctx, timeout); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
