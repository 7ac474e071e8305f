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

package variantstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/variantstore/engine"
	"github.com/googlegenomics/variantstore/internal/contig"
	"github.com/googlegenomics/variantstore/internal/metadata"
)

var testMetadata = metadata.Static{
	Contigs: []contig.Contig{
		{Name: "chr2", Offset: 100, Length: 50},
		{Name: "chr1", Offset: 0, Length: 100},
	},
	Samples: []string{"NA12878", "NA12891"},
}

func newTestWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "calls"+engine.ArraySuffix))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, engine.WriteArray(f, []engine.Cell{
		{Row: 0, Begin: 10, End: 10, Fields: map[string]string{"GT": "0/1"}},
		{Row: 1, Begin: 10, End: 12, Fields: map[string]string{"GT": "1/1"}},
		{Row: 1, Begin: 120, End: 120, Fields: map[string]string{"GT": "0/1"}},
	}))
	return dir
}

func TestStore_Translation(t *testing.T) {
	store, err := Load(context.Background(), testMetadata, &engine.ArrayFactory{}, nil)
	require.NoError(t, err)

	location, ok, err := store.Locate(120)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, contig.Location{Contig: "chr2", Position: 20}, location)

	_, ok, err = store.Locate(150)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, contig.Boundary{Contig: "chr2", Offset: 100}, store.NextAfter(0))
	assert.Equal(t, contig.NoBoundary, store.NextAfter(100))

	name, err := store.SampleName(1)
	require.NoError(t, err)
	assert.Equal(t, "NA12891", name)

	_, err = store.SampleName(2)
	assert.True(t, errors.Is(err, contig.ErrContractViolation))
}

func TestStore_Query(t *testing.T) {
	ctx := context.Background()
	workspace := newTestWorkspace(t)
	store, err := Load(ctx, testMetadata, &engine.ArrayFactory{}, nil)
	require.NoError(t, err)
	defer store.Cleanup()

	config := engine.QueryConfig{ColumnIntervals: []engine.Interval{{Begin: 10, End: 10}, {Begin: 0, End: 149}}}

	var v engine.Variant
	require.NoError(t, store.QueryColumn(ctx, workspace, "calls", 0, &v, config))
	assert.Equal(t, int64(12), v.End)
	assert.Len(t, v.Calls, 2)

	var variants []engine.Variant
	require.NoError(t, store.QueryColumnRange(ctx, workspace, "calls", 1, &variants, config, nil))
	require.Len(t, variants, 2)
	assert.Equal(t, int64(120), variants[1].Begin)

	err = store.QueryColumn(ctx, workspace, "missing", 0, &v, config)
	assert.True(t, errors.Is(err, engine.ErrArrayNotFound), "got %v", err)

	err = store.QueryColumn(ctx, workspace, "calls", 5, &v, config)
	assert.True(t, errors.Is(err, engine.ErrInvalidInterval), "got %v", err)
}

func TestStore_CleanupIdempotent(t *testing.T) {
	ctx := context.Background()
	workspace := newTestWorkspace(t)
	store, err := Load(ctx, testMetadata, &engine.ArrayFactory{}, nil)
	require.NoError(t, err)

	require.NoError(t, store.Cleanup())
	config := engine.QueryConfig{ColumnIntervals: []engine.Interval{{Begin: 10, End: 10}}}
	var v engine.Variant
	require.NoError(t, store.QueryColumn(ctx, workspace, "calls", 0, &v, config))
	require.NoError(t, store.Cleanup())
	require.NoError(t, store.Cleanup())

	// The store reopens handles after cleanup.
	require.NoError(t, store.QueryColumn(ctx, workspace, "calls", 0, &v, config))
	assert.Len(t, v.Calls, 2)
	require.NoError(t, store.Invalidate(workspace, ""))
}

func TestStore_InvalidateReloads(t *testing.T) {
	ctx := context.Background()
	workspace := newTestWorkspace(t)
	store, err := Load(ctx, testMetadata, &engine.ArrayFactory{}, nil)
	require.NoError(t, err)
	defer store.Cleanup()

	config := engine.QueryConfig{ColumnIntervals: []engine.Interval{{Begin: 130, End: 130}}}
	var v engine.Variant
	require.NoError(t, store.QueryColumn(ctx, workspace, "calls", 0, &v, config))
	assert.Empty(t, v.Calls)

	f, err := os.Create(filepath.Join(workspace, "calls"+engine.ArraySuffix))
	require.NoError(t, err)
	require.NoError(t, engine.WriteArray(f, []engine.Cell{{Row: 0, Begin: 130, End: 130}}))
	require.NoError(t, f.Close())

	// Cached handles keep serving the old contents until invalidated.
	require.NoError(t, store.QueryColumn(ctx, workspace, "calls", 0, &v, config))
	assert.Empty(t, v.Calls)

	require.NoError(t, store.Invalidate(workspace, "calls"))
	require.NoError(t, store.QueryColumn(ctx, workspace, "calls", 0, &v, config))
	assert.Len(t, v.Calls, 1)
}

func TestStore_ConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	first, second := newTestWorkspace(t), newTestWorkspace(t)
	store, err := Load(ctx, testMetadata, &engine.ArrayFactory{}, nil)
	require.NoError(t, err)
	defer store.Cleanup()

	config := engine.QueryConfig{ColumnIntervals: []engine.Interval{{Begin: 10, End: 10}}}
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		workspace := first
		if i%2 == 1 {
			workspace = second
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			var v engine.Variant
			if err := store.QueryColumn(ctx, workspace, "calls", 0, &v, config); err != nil {
				errs <- err
				return
			}
			if len(v.Calls) != 2 {
				errs <- errors.New("unexpected call count")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

type failingLoader struct{}

func (failingLoader) Load(context.Context) (metadata.Metadata, error) {
	return metadata.Metadata{}, errors.New("unavailable")
}

func TestLoad_Error(t *testing.T) {
	_, err := Load(context.Background(), failingLoader{}, &engine.ArrayFactory{}, nil)
	assert.Error(t, err)
}
