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

// Package contig maps between per-contig coordinates and the flattened
// global column space that variant arrays are indexed by.
//
// A Registry is built once from unordered contig definitions and is
// read-only afterwards, so any number of goroutines may query it
// concurrently.  Build must complete before the first query.
package contig

import (
	"fmt"
	"sort"
)

// Contig describes one sequence in the global column space.
type Contig struct {
	Name string
	// Offset is the global column of the contig's first base.
	Offset int64
	// Length is the number of bases in the contig.
	Length int64
}

// End returns the global column of the contig's last base.
func (c Contig) End() int64 {
	return c.Offset + c.Length - 1
}

func (c Contig) String() string {
	return fmt.Sprintf("%s[%d+%d]", c.Name, c.Offset, c.Length)
}

// entry pairs a sort key with an index into Registry.contigs.
type entry struct {
	key   int64
	index int
}

// Registry owns the contig definitions and two ordered views over them.
// Create it with Build.
type Registry struct {
	contigs []Contig
	byBegin []entry
	byEnd   []entry
	byName  map[string]int
}

// Build creates a Registry from contigs in any order.  The input is copied
// and not validated; use Validate to check for malformed definitions.
func Build(contigs []Contig) *Registry {
	n := len(contigs)
	r := &Registry{
		contigs: make([]Contig, n),
		byBegin: make([]entry, n),
		byEnd:   make([]entry, n),
		byName:  make(map[string]int, n),
	}
	copy(r.contigs, contigs)

	beginSorted, endSorted := true, true
	for i, c := range r.contigs {
		r.byBegin[i] = entry{c.Offset, i}
		r.byEnd[i] = entry{c.End(), i}
		if i > 0 {
			if c.Offset < r.byBegin[i-1].key {
				beginSorted = false
			}
			if r.byEnd[i].key < r.byEnd[i-1].key {
				endSorted = false
			}
		}
		if _, ok := r.byName[c.Name]; !ok {
			r.byName[c.Name] = i
		}
	}
	if !beginSorted {
		sortEntries(r.byBegin)
	}
	if !endSorted {
		sortEntries(r.byEnd)
	}
	return r
}

// sortEntries orders by key; equal keys keep their input order.
func sortEntries(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})
}

// Len returns the number of contigs.
func (r *Registry) Len() int {
	return len(r.contigs)
}

// Contigs returns a copy of the contig definitions in input order.
func (r *Registry) Contigs() []Contig {
	out := make([]Contig, len(r.contigs))
	copy(out, r.contigs)
	return out
}

// Sorted returns a copy of the contig definitions ordered by offset.
func (r *Registry) Sorted() []Contig {
	out := make([]Contig, len(r.byBegin))
	for i, e := range r.byBegin {
		out[i] = r.contigs[e.index]
	}
	return out
}

// Contig returns the definition of the named contig.  When several contigs
// share a name, the first one in input order wins.
func (r *Registry) Contig(name string) (Contig, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Contig{}, false
	}
	return r.contigs[i], true
}

// Validate reports the first malformed definition found: a non-positive
// length, a negative offset, a repeated name or two overlapping ranges.
// Gaps between contigs are allowed.
func (r *Registry) Validate() error {
	seen := make(map[string]bool, len(r.contigs))
	for _, c := range r.contigs {
		if c.Length <= 0 {
			return fmt.Errorf("contig %s: non-positive length %d", c.Name, c.Length)
		}
		if c.Offset < 0 {
			return fmt.Errorf("contig %s: negative offset %d", c.Name, c.Offset)
		}
		if seen[c.Name] {
			return fmt.Errorf("contig %s: duplicate name", c.Name)
		}
		seen[c.Name] = true
	}
	for i := 1; i < len(r.byBegin); i++ {
		prev, cur := r.contigs[r.byBegin[i-1].index], r.contigs[r.byBegin[i].index]
		if cur.Offset <= prev.End() {
			return fmt.Errorf("contigs %s and %s overlap", prev, cur)
		}
	}
	return nil
}
