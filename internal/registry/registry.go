// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

// Package registry maps source names to the QuerySource registered under them, so that consumers
// can create queries knowing only the source name.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/mia-platform/dynq/internal/dynq"
)

var (
	// ErrDuplicateSource is returned when registering a name already in use.
	ErrDuplicateSource = errors.New("source already registered")
	// ErrUnknownSource is returned when looking up a name never registered.
	ErrUnknownSource = errors.New("unknown source")
)

// Registry is safe for concurrent use. The zero value is ready to use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]dynq.QuerySource
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register adds source under its name.
func (r *Registry) Register(source dynq.QuerySource) error {
	name := source.Name()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.sources[name]; found {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, name)
	}

	if r.sources == nil {
		r.sources = make(map[string]dynq.QuerySource)
	}
	r.sources[name] = source
	return nil
}

// Source returns the source registered under name.
func (r *Registry) Source(name string) (dynq.QuerySource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	source, found := r.sources[name]
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return source, nil
}

// Query creates a query for descriptor on the source registered under sourceName.
func (r *Registry) Query(sourceName string, descriptor dynq.Descriptor, autoupdate bool) (*dynq.Query, error) {
	source, err := r.Source(sourceName)
	if err != nil {
		return nil, err
	}

	return source.Query(descriptor, autoupdate), nil
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
