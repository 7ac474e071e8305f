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

// Package sample resolves sample identities.  The position of a name in
// the index is the sample's canonical identity (its row in every array).
package sample

import (
	"fmt"

	"github.com/googlegenomics/variantstore/internal/contig"
)

// Index is an immutable index to name lookup table.
type Index struct {
	names  []string
	lookup map[string]int64
}

// NewIndex returns an Index over a copy of names.
func NewIndex(names []string) *Index {
	index := &Index{
		names:  append([]string(nil), names...),
		lookup: make(map[string]int64, len(names)),
	}
	for i, name := range index.names {
		if _, ok := index.lookup[name]; !ok {
			index.lookup[name] = int64(i)
		}
	}
	return index
}

// Len returns the number of samples.
func (x *Index) Len() int64 {
	return int64(len(x.names))
}

// Name returns the name of sample i.  Callers are expected to check i
// against Len; an out of range index is a contract violation.
func (x *Index) Name(i int64) (string, error) {
	if i < 0 || i >= int64(len(x.names)) {
		return "", &contig.ContractError{
			Op:     "sample name",
			Detail: fmt.Sprintf("index %d outside [0, %d)", i, len(x.names)),
		}
	}
	return x.names[i], nil
}

// Index returns the identity of the named sample.
func (x *Index) Index(name string) (int64, bool) {
	i, ok := x.lookup[name]
	return i, ok
}

// Names returns a copy of all sample names in index order.
func (x *Index) Names() []string {
	return append([]string(nil), x.names...)
}
