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

package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/googlegenomics/variantstore/internal/bgzf"
	"github.com/googlegenomics/variantstore/internal/storage"
)

// ArraySuffix is appended to an array name to form its object name.
const ArraySuffix = ".cells.gz"

// ArrayFactory opens workspaces through the storage package and loads
// arrays stored by WriteArray.
type ArrayFactory struct {
	Options storage.Options
}

// OpenStorage connects to the object store holding workspace.
func (f *ArrayFactory) OpenStorage(ctx context.Context, workspace string) (StorageManager, error) {
	location, err := storage.ParseWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	client, err := storage.Open(ctx, location, f.Options)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %v", location, err)
	}
	return &arrayStorage{workspace: workspace, location: location, client: client}, nil
}

// OpenQuery loads array from storage.
func (f *ArrayFactory) OpenQuery(ctx context.Context, sm StorageManager, array string) (QueryProcessor, error) {
	r, err := sm.OpenArray(ctx, array)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	cells, err := ReadArray(r)
	if err != nil {
		return nil, fmt.Errorf("reading array %s: %v", array, err)
	}
	return newArrayQuery(cells), nil
}

type arrayStorage struct {
	workspace string
	location  storage.Location
	client    storage.Client
}

func (s *arrayStorage) Workspace() string {
	return s.workspace
}

func (s *arrayStorage) OpenArray(ctx context.Context, array string) (io.ReadCloser, error) {
	if array == "" {
		return nil, fmt.Errorf("%w: empty array name", ErrArrayNotFound)
	}
	object := s.location.Object(array + ArraySuffix)
	r, err := s.client.NewObjectHandle(s.location.Bucket, object).NewRangeReader(ctx, 0, -1)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s in %s", ErrArrayNotFound, array, s.location)
	}
	if err != nil {
		return nil, fmt.Errorf("opening array %s: %v", array, err)
	}
	return r, nil
}

func (s *arrayStorage) Close() error {
	return s.client.Close()
}

// WriteArray stores cells in the format read by ReadArray: a BGZF stream of
// JSON lines, one cell per line.
func WriteArray(w io.Writer, cells []Cell) error {
	bw := bgzf.NewWriter(w)
	encoder := json.NewEncoder(bw)
	for i := range cells {
		if err := encoder.Encode(&cells[i]); err != nil {
			return fmt.Errorf("encoding cell %d: %v", i, err)
		}
	}
	return bw.Close()
}

// ReadArray reads cells written by WriteArray.
func ReadArray(r io.Reader) ([]Cell, error) {
	gzr, err := bgzf.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gzr.Close()

	var cells []Cell
	decoder := json.NewDecoder(bufio.NewReader(gzr))
	for {
		var cell Cell
		if err := decoder.Decode(&cell); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decoding cell %d: %v", len(cells), err)
		}
		if cell.End < cell.Begin {
			return nil, fmt.Errorf("cell %d ends (%d) before it begins (%d)", len(cells), cell.End, cell.Begin)
		}
		cells = append(cells, cell)
	}
	return cells, nil
}

// arrayQuery holds an array's cells ordered by begin column.
type arrayQuery struct {
	cells []Cell
	// maxSpan is the widest End-Begin of any cell.  A cell covering column
	// c therefore begins in [c-maxSpan, c].
	maxSpan int64
}

func newArrayQuery(cells []Cell) *arrayQuery {
	sort.SliceStable(cells, func(i, j int) bool {
		if cells[i].Begin != cells[j].Begin {
			return cells[i].Begin < cells[j].Begin
		}
		return cells[i].Row < cells[j].Row
	})
	q := &arrayQuery{cells: cells}
	for _, cell := range cells {
		if span := cell.End - cell.Begin; span > q.maxSpan {
			q.maxSpan = span
		}
	}
	return q
}

// overlapping returns the cells intersecting [begin, end] in begin order.
func (q *arrayQuery) overlapping(begin, end int64, config QueryConfig) []Cell {
	from := begin - q.maxSpan
	if from > begin {
		// begin-maxSpan overflowed.
		from = begin
	}
	i := sort.Search(len(q.cells), func(i int) bool { return q.cells[i].Begin >= from })

	var out []Cell
	for ; i < len(q.cells) && q.cells[i].Begin <= end; i++ {
		cell := q.cells[i]
		if cell.End >= begin && config.selects(cell.Row) {
			out = append(out, cell)
		}
	}
	return out
}

func (q *arrayQuery) QueryColumn(ctx context.Context, intervalIndex int, v *Variant, config QueryConfig) error {
	interval, err := config.interval(intervalIndex)
	if err != nil {
		return err
	}
	column := interval.Begin
	*v = Variant{Begin: column, End: column, Calls: q.overlapping(column, column, config)}
	for _, call := range v.Calls {
		if call.End > v.End {
			v.End = call.End
		}
	}
	return nil
}

func (q *arrayQuery) QueryColumnRange(ctx context.Context, intervalIndex int, variants *[]Variant, config QueryConfig, paging *PagingInfo) error {
	interval, err := config.interval(intervalIndex)
	if err != nil {
		return err
	}
	if paging != nil && paging.Done {
		return nil
	}

	start := interval.Begin
	if paging != nil && paging.Started {
		start = paging.NextColumn
	}
	limit := 0
	if paging != nil {
		limit = paging.PageSize
	}

	count, current := 0, -1
	for _, cell := range q.overlapping(interval.Begin, interval.End, config) {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Calls starting before the interval are reported at its first column.
		column := cell.Begin
		if column < interval.Begin {
			column = interval.Begin
		}
		if column < start {
			continue
		}
		if current < 0 || (*variants)[current].Begin != column {
			if limit > 0 && count == limit {
				paging.Started = true
				paging.NextColumn = column
				return nil
			}
			*variants = append(*variants, Variant{Begin: column, End: column})
			current = len(*variants) - 1
			count++
		}
		v := &(*variants)[current]
		v.Calls = append(v.Calls, cell)
		if cell.End > v.End {
			v.End = cell.End
		}
	}
	if paging != nil {
		paging.Started = true
		paging.Done = true
	}
	return nil
}

func (q *arrayQuery) Close() error {
	q.cells = nil
	return nil
}
