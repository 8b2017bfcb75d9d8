// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mia-platform/dynq/internal/destination"
	"github.com/mia-platform/dynq/internal/dynq"
	"github.com/mia-platform/dynq/internal/logger"
	"github.com/mia-platform/dynq/internal/pipeline"
	"github.com/mia-platform/dynq/internal/registry"
	"github.com/mia-platform/dynq/internal/server"
)

const (
	loggerName          = "dynq:cmd"
	defaultCloseTimeout = 10 * time.Second
)

// options configures the watch and load runs.
type options struct {
	sourceName    string
	queryPaths    []string
	feedName      string
	serve         bool
	destination   destination.Sender
	fetcherGetter func(string) (dynq.BatchFetcher, error)
	serverGetter  func(context.Context) (server.Server, error)
	closeTimeout  time.Duration
	// sources is the registry the watched source joins, a new one when nil
	sources *registry.Registry

	lock sync.Mutex
}

// execution holds everything built for a single command run.
type execution struct {
	fetcher  dynq.BatchFetcher
	source   *dynq.PollingSource
	registry *registry.Registry
	pipeline *pipeline.Pipeline
}

// validate checks the configured values and reports invalid setups.
func (o *options) validate() error {
	if o.sourceName == "" {
		return errNoArguments
	}

	if _, ok := availableSources[o.sourceName]; !ok {
		return fmt.Errorf("%w: %s", errInvalidSource, o.sourceName)
	}

	if o.feedName == "" {
		return nil
	}

	if _, ok := availableFeeds[o.feedName]; !ok {
		return fmt.Errorf("%w: %s", errInvalidFeed, o.feedName)
	}

	if o.feedName == webhookFeedName && !o.serve {
		return errWebhookWithoutServer
	}

	return nil
}

// executeLoad loads every query once, sends the results to the destination and closes the source.
func (o *options) executeLoad(ctx context.Context) error {
	if !o.lock.TryLock() {
		return nil
	}
	defer o.lock.Unlock()

	run, err := o.prepare(ctx, false)
	if err != nil {
		return err
	}

	loadErr := run.pipeline.Load(ctx)
	return errors.Join(loadErr, run.close(context.WithoutCancel(ctx), o.closeTimeout))
}

// executeWatch keeps the queries up to date until ctx is cancelled, then closes the source.
func (o *options) executeWatch(ctx context.Context) error {
	if !o.lock.TryLock() {
		return nil
	}
	defer o.lock.Unlock()

	log := logger.FromContext(ctx).WithName(loggerName)
	run, err := o.prepare(ctx, true)
	if err != nil {
		return err
	}

	var srv server.Server
	if o.serve {
		if srv, err = o.serverGetter(ctx); err != nil {
			return errors.Join(err, run.close(context.WithoutCancel(ctx), o.closeTimeout))
		}
		srv.AddJSONRoute(http.MethodGet, queriesPath, queriesHandler(run.registry))
	}

	feed, err := feedFromName(o.feedName, srv)
	if err != nil {
		return errors.Join(err, run.close(context.WithoutCancel(ctx), o.closeTimeout))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return run.pipeline.Start(groupCtx)
	})

	if feed != nil {
		log.Info("starting invalidation feed", "feed", o.feedName, "source", o.sourceName)
		group.Go(func() error {
			return feed.Start(groupCtx, run.source)
		})
	}

	if srv != nil {
		group.Go(srv.Start)
		group.Go(func() error {
			<-groupCtx.Done()
			return srv.Stop()
		})
	}

	log.Info("watching source", "source", o.sourceName, "queries", len(run.source.Queries()), "interval", run.source.Interval().String())
	watchErr := group.Wait()

	closeCtx := context.WithoutCancel(ctx)
	closeErr := run.close(closeCtx, o.closeTimeout)
	if closable, ok := feed.(pipeline.ClosableSource); ok {
		closeErr = errors.Join(closeErr, closable.Close(closeCtx, o.closeTimeout))
	}

	log.Debug("source closed", "source", o.sourceName)
	return errors.Join(watchErr, closeErr)
}

// prepare builds the polling source and creates on it the queries read from the query files.
// Queries keep refreshing only when watching and their file does not disable autoupdate.
func (o *options) prepare(ctx context.Context, watch bool) (*execution, error) {
	queryConfigs, err := loadQueryConfigs(o.queryPaths)
	if err != nil {
		return nil, err
	}

	if len(queryConfigs) == 0 {
		return nil, pipeline.ErrNoQueries
	}

	cfg, err := dynq.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	fetcher, err := o.fetcherGetter(o.sourceName)
	if err != nil {
		return nil, err
	}

	source, err := dynq.NewPollingSource(ctx, o.sourceName, fetcher, cfg)
	if err != nil {
		return nil, err
	}

	sources := o.sources
	if sources == nil {
		sources = registry.New()
	}

	if err := sources.Register(source); err != nil {
		return nil, errors.Join(err, release(context.WithoutCancel(ctx), o.closeTimeout, source, fetcher))
	}

	queries := make([]*dynq.Query, 0, len(queryConfigs))
	for _, queryConfig := range queryConfigs {
		query, err := sources.Query(o.sourceName, dynq.Descriptor(queryConfig.Descriptor), watch && queryConfig.IsAutoupdate())
		if err != nil {
			return nil, errors.Join(err, release(context.WithoutCancel(ctx), o.closeTimeout, source, fetcher))
		}
		queries = append(queries, query)
	}

	return &execution{
		fetcher:  fetcher,
		source:   source,
		registry: sources,
		pipeline: pipeline.New(queries, o.destination),
	}, nil
}

// close stops the pipeline sources and releases the fetcher resources.
func (r *execution) close(ctx context.Context, timeout time.Duration) error {
	err := r.pipeline.Stop(ctx, timeout)
	if closable, ok := r.fetcher.(pipeline.ClosableSource); ok {
		err = errors.Join(err, closable.Close(ctx, timeout))
	}

	return err
}

// release closes a source that never reached a pipeline together with its fetcher.
func release(ctx context.Context, timeout time.Duration, source *dynq.PollingSource, fetcher dynq.BatchFetcher) error {
	err := source.Close(ctx, timeout)
	if closable, ok := fetcher.(pipeline.ClosableSource); ok {
		err = errors.Join(err, closable.Close(ctx, timeout))
	}

	return err
}
