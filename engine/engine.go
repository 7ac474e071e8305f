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

// Package engine defines the boundary to the array storage and query
// engines, provides a reference engine that keeps each array as a BGZF
// stream of cells in an object store, and caches engine handles.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
)

var (
	// ErrInvalidInterval is returned for an interval index that does not
	// name a query interval, or for an interval that ends before it begins.
	ErrInvalidInterval = errors.New("invalid query interval")

	// ErrArrayNotFound is returned when the named array does not exist in
	// the workspace.
	ErrArrayNotFound = errors.New("array not found")
)

// Interval is a closed range of global columns.
type Interval struct {
	Begin int64 `json:"begin"`
	End   int64 `json:"end"`
}

// Cell is one stored call: a sample row over a range of columns.
type Cell struct {
	Row    int64             `json:"row"`
	Begin  int64             `json:"begin"`
	End    int64             `json:"end"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Variant groups the calls that share a column position.
type Variant struct {
	Begin int64
	End   int64
	Calls []Cell
}

// QueryConfig selects what a query returns.
type QueryConfig struct {
	// ColumnIntervals are the intervals a query may address by index.
	ColumnIntervals []Interval
	// Rows restricts results to these sample rows.  Nil selects all rows.
	Rows *roaring.Bitmap
}

func (config QueryConfig) interval(index int) (Interval, error) {
	if index < 0 || index >= len(config.ColumnIntervals) {
		return Interval{}, fmt.Errorf("%w: index %d of %d", ErrInvalidInterval, index, len(config.ColumnIntervals))
	}
	interval := config.ColumnIntervals[index]
	if interval.End < interval.Begin {
		return Interval{}, fmt.Errorf("%w: [%d, %d]", ErrInvalidInterval, interval.Begin, interval.End)
	}
	return interval, nil
}

func (config QueryConfig) selects(row int64) bool {
	if config.Rows == nil {
		return true
	}
	return row >= 0 && row <= int64(^uint32(0)) && config.Rows.Contains(uint32(row))
}

// PagingInfo carries the state of an incremental range query between calls.
type PagingInfo struct {
	// PageSize bounds the number of variants returned per call.  Zero
	// means no bound.
	PageSize int
	// NextColumn is where the next page starts.  It is only used once
	// Started is set.
	NextColumn int64
	Started    bool
	// Done is set once the final page has been returned.
	Done bool
}

// StorageManager is a handle on a workspace.
type StorageManager interface {
	// Workspace returns the workspace the handle was opened for.
	Workspace() string
	// OpenArray returns a reader over the stored form of the named array.
	OpenArray(ctx context.Context, array string) (io.ReadCloser, error)
	io.Closer
}

// QueryProcessor answers queries against a single array.
type QueryProcessor interface {
	// QueryColumn stores the variant at the first column of the selected
	// interval in v.
	QueryColumn(ctx context.Context, intervalIndex int, v *Variant, config QueryConfig) error
	// QueryColumnRange appends the variants overlapping the selected
	// interval to variants.  paging may be nil.
	QueryColumnRange(ctx context.Context, intervalIndex int, variants *[]Variant, config QueryConfig, paging *PagingInfo) error
	io.Closer
}

// Factory constructs engine handles.
type Factory interface {
	OpenStorage(ctx context.Context, workspace string) (StorageManager, error)
	OpenQuery(ctx context.Context, storage StorageManager, array string) (QueryProcessor, error)
}
