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

// Package reference looks up bases in an indexed FASTA file.
package reference

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/biogo/hts/fai"

	"github.com/googlegenomics/variantstore/internal/contig"
)

// Accessor returns reference bases by contig-local position.
type Accessor interface {
	// Base returns the upper-cased base at the zero-based position pos of
	// the named contig.
	Base(contig string, pos int64) (byte, error)
	io.Closer
}

// FASTA is an Accessor over a FASTA file and its index.
type FASTA struct {
	file  *os.File
	index fai.Index
	fasta *fai.File
}

// Open opens the FASTA file at path.  The index is read from path.fai when
// it exists and built by scanning the file otherwise.
func Open(path string) (*FASTA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening reference: %v", err)
	}
	index, err := loadIndex(path, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("indexing %s: %v", path, err)
	}
	return &FASTA{file: f, index: index, fasta: fai.NewFile(f, index)}, nil
}

func loadIndex(path string, f *os.File) (fai.Index, error) {
	idx, err := os.Open(path + ".fai")
	if err == nil {
		defer idx.Close()
		return fai.ReadFrom(idx)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	index, err := fai.NewIndex(f)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return index, nil
}

// Length returns the length of the named sequence.
func (r *FASTA) Length(name string) (int64, bool) {
	record, ok := r.index[name]
	return int64(record.Length), ok
}

// Base implements Accessor.
func (r *FASTA) Base(name string, pos int64) (byte, error) {
	record, ok := r.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", contig.ErrUnknownContig, name)
	}
	if pos < 0 || pos >= int64(record.Length) {
		return 0, fmt.Errorf("%w: position %d in %s of length %d", contig.ErrOutOfRange, pos, name, record.Length)
	}
	seq, err := r.fasta.SeqRange(name, int(pos), int(pos)+1)
	if err != nil {
		return 0, fmt.Errorf("reading %s:%d: %v", name, pos, err)
	}
	var base [1]byte
	if _, err := io.ReadFull(seq, base[:]); err != nil {
		return 0, fmt.Errorf("reading %s:%d: %v", name, pos, err)
	}
	return bytes.ToUpper(base[:])[0], nil
}

// Close closes the underlying file.
func (r *FASTA) Close() error {
	return r.file.Close()
}
