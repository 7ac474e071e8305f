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

package metadata

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/biogo/hts/fai"

	"github.com/googlegenomics/variantstore/internal/vcf"
)

// Header loads metadata from the header of a VCF or BCF file.
type Header struct {
	Path string
}

// Load reads the header at h.Path.
func (h Header) Load(ctx context.Context) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	f, err := os.Open(h.Path)
	if err != nil {
		return Metadata{}, fmt.Errorf("opening header: %v", err)
	}
	defer f.Close()

	header, err := vcf.ReadHeader(f)
	if err != nil {
		return Metadata{}, fmt.Errorf("reading header %s: %v", h.Path, err)
	}
	return FromHeader(header)
}

// FAI loads contigs from a FASTA index.  Contigs are concatenated in the
// order their sequences appear in the FASTA file.  A FASTA index names no
// samples.
type FAI struct {
	Path string
}

// Load reads the index at f.Path.
func (f FAI) Load(ctx context.Context) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return Metadata{}, fmt.Errorf("opening index: %v", err)
	}
	defer file.Close()

	index, err := fai.ReadFrom(file)
	if err != nil {
		return Metadata{}, fmt.Errorf("reading index %s: %v", f.Path, err)
	}
	return FromIndex(index), nil
}

// FromIndex derives contigs from a FASTA index.
func FromIndex(index fai.Index) Metadata {
	records := make([]fai.Record, 0, len(index))
	for _, record := range index {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Start < records[j].Start })

	names := make([]string, len(records))
	lengths := make([]int64, len(records))
	for i, record := range records {
		names[i], lengths[i] = record.Name, int64(record.Length)
	}
	return Metadata{Contigs: Concatenate(names, lengths)}
}
