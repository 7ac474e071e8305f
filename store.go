// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package variantstore translates between the single global column space of
// a multi-contig variant array and contig-local coordinates, and answers
// column queries through a cached array engine.
package variantstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/googlegenomics/variantstore/engine"
	"github.com/googlegenomics/variantstore/internal/contig"
	"github.com/googlegenomics/variantstore/internal/metadata"
	"github.com/googlegenomics/variantstore/internal/sample"
)

// ErrResourceUnavailable is returned when an external resource such as the
// output sink cannot be opened.
var ErrResourceUnavailable = errors.New("resource unavailable")

// Store combines the contig registry and sample index with an engine cache.
// It is safe for concurrent use; queries are serialized.
type Store struct {
	registry *contig.Registry
	samples  *sample.Index
	logger   *slog.Logger

	mu    sync.Mutex
	cache *engine.Cache
}

// NewStore returns a Store over an already built registry and sample index.
func NewStore(registry *contig.Registry, samples *sample.Index, factory engine.Factory, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		registry: registry,
		samples:  samples,
		logger:   logger,
		cache:    engine.NewCache(factory, logger),
	}
}

// Load builds a Store from the metadata provided by loader.
func Load(ctx context.Context, loader metadata.Loader, factory engine.Factory, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	registry, samples := build(m, logger)
	return NewStore(registry, samples, factory, logger), nil
}

// build constructs the lookup structures for m.  Inconsistent contig
// layouts are reported but not rejected.
func build(m metadata.Metadata, logger *slog.Logger) (*contig.Registry, *sample.Index) {
	registry := contig.Build(m.Contigs)
	if err := registry.Validate(); err != nil {
		logger.Warn("inconsistent contig layout", "error", err)
	}
	logger.Debug("built contig registry", "contigs", registry.Len(), "samples", len(m.Samples))
	return registry, sample.NewIndex(m.Samples)
}

// Registry returns the contig registry.
func (s *Store) Registry() *contig.Registry {
	return s.registry
}

// Samples returns the sample index.
func (s *Store) Samples() *sample.Index {
	return s.samples
}

// Locate translates a global column into a contig location.
func (s *Store) Locate(position int64) (contig.Location, bool, error) {
	return s.registry.Locate(position)
}

// NextAfter returns the first contig beginning after position.
func (s *Store) NextAfter(position int64) contig.Boundary {
	return s.registry.NextAfter(position)
}

// SampleName returns the name of sample row i.
func (s *Store) SampleName(i int64) (string, error) {
	return s.samples.Name(i)
}

// QueryColumn stores in v the variant at the first column of the selected
// interval of array in workspace.
func (s *Store) QueryColumn(ctx context.Context, workspace, array string, intervalIndex int, v *engine.Variant, config engine.QueryConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	qp, err := s.cache.Query(ctx, engine.Key{Workspace: workspace, Array: array})
	if err != nil {
		return err
	}
	return qp.QueryColumn(ctx, intervalIndex, v, config)
}

// QueryColumnRange appends to variants the variants overlapping the
// selected interval of array in workspace.  paging may be nil.
func (s *Store) QueryColumnRange(ctx context.Context, workspace, array string, intervalIndex int, variants *[]engine.Variant, config engine.QueryConfig, paging *engine.PagingInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	qp, err := s.cache.Query(ctx, engine.Key{Workspace: workspace, Array: array})
	if err != nil {
		return err
	}
	return qp.QueryColumnRange(ctx, intervalIndex, variants, config, paging)
}

// Invalidate drops the cached handle for array in workspace, or for the
// whole workspace when array is empty, so that the next query reloads it.
func (s *Store) Invalidate(workspace, array string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Invalidate(engine.Key{Workspace: workspace, Array: array})
}

// Cleanup releases every cached engine handle.  It may be called more than
// once and the Store remains usable afterwards.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Cleanup()
}
