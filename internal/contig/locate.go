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

package contig

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/googlegenomics/variantstore/internal/genomics"
)

var (
	// ErrContractViolation marks a broken registry or caller invariant.  It
	// signals a programming error, not a lookup miss.
	ErrContractViolation = errors.New("contract violation")

	// ErrUnknownContig is returned when a contig name is not registered.
	ErrUnknownContig = errors.New("unknown contig")

	// ErrOutOfRange is returned for a local position outside its contig.
	ErrOutOfRange = errors.New("position out of range")
)

// ContractError describes a contract violation.  It unwraps to
// ErrContractViolation.
type ContractError struct {
	Op     string
	Detail string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrContractViolation, e.Detail)
}

func (e *ContractError) Unwrap() error { return ErrContractViolation }

// NoBoundary is returned by NextAfter when no contig begins after the
// queried position.
var NoBoundary = Boundary{Contig: "", Offset: math.MaxInt64}

// Location is a position expressed relative to a contig.
type Location struct {
	Contig   string
	Position int64
}

// Boundary is the first column of a contig.
type Boundary struct {
	Contig string
	Offset int64
}

// Locate translates a global column into a contig location.  The boolean is
// false when the column falls outside every contig (before the first contig
// begins, in a gap, or past the end of the last one); that is an ordinary
// result, not an error.  An error is only returned for a contract violation.
func (r *Registry) Locate(position int64) (Location, bool, error) {
	n := len(r.byBegin)
	if n == 0 {
		return Location{}, false, nil
	}

	// First entry whose offset is >= position.
	i := sort.Search(n, func(i int) bool { return r.byBegin[i].key >= position })

	var candidate int
	switch {
	case i == n:
		candidate = r.byBegin[n-1].index
	case r.byBegin[i].key == position:
		candidate = r.byBegin[i].index
	case i == 0:
		return Location{}, false, &ContractError{
			Op:     "locate",
			Detail: fmt.Sprintf("position %d precedes the first contig at %d", position, r.byBegin[0].key),
		}
	default:
		candidate = r.byBegin[i-1].index
	}

	c := r.contigs[candidate]
	if position >= c.Offset && position < c.Offset+c.Length {
		return Location{Contig: c.Name, Position: position - c.Offset}, true, nil
	}
	return Location{}, false, nil
}

// NextAfter returns the first contig beginning strictly after position, or
// NoBoundary if there is none.
func (r *Registry) NextAfter(position int64) Boundary {
	n := len(r.byBegin)
	i := sort.Search(n, func(i int) bool { return r.byBegin[i].key > position })
	if i == n {
		return NoBoundary
	}
	c := r.contigs[r.byBegin[i].index]
	return Boundary{Contig: c.Name, Offset: c.Offset}
}

// ToGlobal translates a contig location into a global column.
func (r *Registry) ToGlobal(name string, position int64) (int64, error) {
	c, ok := r.Contig(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownContig, name)
	}
	if position < 0 || position >= c.Length {
		return 0, fmt.Errorf("%w: %s:%d (length %d)", ErrOutOfRange, name, position, c.Length)
	}
	return c.Offset + position, nil
}

// Split intersects the closed global interval [begin, end] with each
// contig and returns the overlapping parts ordered by global column.
func (r *Registry) Split(begin, end int64) []genomics.Region {
	if end < begin {
		return nil
	}

	// Contigs ending before begin cannot overlap.
	start := sort.Search(len(r.byEnd), func(i int) bool { return r.byEnd[i].key >= begin })

	var regions []genomics.Region
	for _, e := range r.byEnd[start:] {
		c := r.contigs[e.index]
		if c.Offset > end {
			continue
		}
		lo, hi := begin, end
		if lo < c.Offset {
			lo = c.Offset
		}
		if hi > c.End() {
			hi = c.End()
		}
		regions = append(regions, genomics.Region{
			Contig: c.Name,
			Start:  lo - c.Offset,
			End:    hi - c.Offset,
			Offset: c.Offset,
		})
	}
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].GlobalStart() < regions[j].GlobalStart()
	})
	return regions
}
