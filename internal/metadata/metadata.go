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

// Package metadata loads the contig and sample descriptions a store is
// built from.  Metadata can come from a SQL database, a VCF header, a FASTA
// index or fixed slices.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/googlegenomics/variantstore/internal/contig"
	"github.com/googlegenomics/variantstore/internal/vcf"
)

// ErrUnsupportedSource is returned by Open for sources it cannot identify.
var ErrUnsupportedSource = errors.New("unsupported metadata source")

// Metadata describes the columns and rows of a variant array.
type Metadata struct {
	Contigs []contig.Contig
	// Samples are the sample names in row order.
	Samples []string
}

// Loader provides Metadata.
type Loader interface {
	Load(ctx context.Context) (Metadata, error)
}

// Static is a Loader returning fixed metadata.
type Static Metadata

// Load returns a copy of the static metadata.
func (s Static) Load(context.Context) (Metadata, error) {
	return Metadata{
		Contigs: append([]contig.Contig(nil), s.Contigs...),
		Samples: append([]string(nil), s.Samples...),
	}, nil
}

// Open returns a Loader for source, which is a sqlite:/// or postgres://
// database URL, a FASTA index (.fai) or a VCF/BCF file whose header
// describes the contigs and samples.
func Open(ctx context.Context, source string) (Loader, error) {
	switch {
	case source == "":
		return nil, fmt.Errorf("%w: empty source", ErrUnsupportedSource)
	case isDatabaseURL(source):
		return OpenSQL(ctx, source)
	case strings.HasSuffix(source, ".fai"):
		return FAI{Path: source}, nil
	case strings.Contains(source, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	default:
		return Header{Path: source}, nil
	}
}

// Concatenate lays out contigs end to end in the given order starting at
// column zero.
func Concatenate(names []string, lengths []int64) []contig.Contig {
	contigs := make([]contig.Contig, len(names))
	var offset int64
	for i, name := range names {
		contigs[i] = contig.Contig{Name: name, Offset: offset, Length: lengths[i]}
		offset += lengths[i]
	}
	return contigs
}

// FromHeader derives metadata from a VCF header.  Contigs are concatenated
// in dictionary order: by IDX when every contig line carries one and in
// header order otherwise.
func FromHeader(h *vcf.Header) (Metadata, error) {
	contigs := append([]vcf.Contig(nil), h.Contigs...)
	indexed := len(contigs) > 0
	for _, c := range contigs {
		if c.Length <= 0 {
			return Metadata{}, fmt.Errorf("contig %s has no length", c.ID)
		}
		if c.IDX < 0 {
			indexed = false
		}
	}
	if indexed {
		ids := make(map[string]int, len(contigs))
		for _, c := range contigs {
			id, err := h.ReferenceID(c.ID)
			if err != nil {
				return Metadata{}, fmt.Errorf("contig %s: %v", c.ID, err)
			}
			ids[c.ID] = id
		}
		sort.SliceStable(contigs, func(i, j int) bool { return ids[contigs[i].ID] < ids[contigs[j].ID] })
	}

	names := make([]string, len(contigs))
	lengths := make([]int64, len(contigs))
	for i, c := range contigs {
		names[i], lengths[i] = c.ID, c.Length
	}
	return Metadata{
		Contigs: Concatenate(names, lengths),
		Samples: append([]string(nil), h.Samples...),
	}, nil
}
