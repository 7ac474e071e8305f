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

package reference

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/googlegenomics/variantstore/internal/contig"
)

const testFASTA = ">chr1 description\n" +
	"ACGTACGTAC\n" +
	"GTacgt\n" +
	">chr2\n" +
	"NNNNTTTTGG\n"

func writeFASTA(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.fa")
	if err := os.WriteFile(path, []byte(testFASTA), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

func TestBase(t *testing.T) {
	ref, err := Open(writeFASTA(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer ref.Close()

	testCases := []struct {
		contig string
		pos    int64
		want   byte
	}{
		{"chr1", 0, 'A'},
		{"chr1", 3, 'T'},
		{"chr1", 10, 'G'},
		{"chr1", 12, 'A'},
		{"chr1", 15, 'T'},
		{"chr2", 0, 'N'},
		{"chr2", 9, 'G'},
	}
	for _, tc := range testCases {
		got, err := ref.Base(tc.contig, tc.pos)
		if err != nil {
			t.Errorf("Base(%s, %d): unexpected error: %v", tc.contig, tc.pos, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Base(%s, %d): got %c, want %c", tc.contig, tc.pos, got, tc.want)
		}
	}

	if got, ok := ref.Length("chr1"); !ok || got != 16 {
		t.Errorf("Length(chr1): got %d, %v, want 16, true", got, ok)
	}
}

func TestBase_Errors(t *testing.T) {
	ref, err := Open(writeFASTA(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer ref.Close()

	testCases := []struct {
		contig string
		pos    int64
		want   error
	}{
		{"chr3", 0, contig.ErrUnknownContig},
		{"chr1", -1, contig.ErrOutOfRange},
		{"chr1", 16, contig.ErrOutOfRange},
		{"chr2", 10, contig.ErrOutOfRange},
	}
	for _, tc := range testCases {
		if _, err := ref.Base(tc.contig, tc.pos); !errors.Is(err, tc.want) {
			t.Errorf("Base(%s, %d): got %v, want %v", tc.contig, tc.pos, err, tc.want)
		}
	}
}

func TestOpen_ExistingIndex(t *testing.T) {
	path := writeFASTA(t)
	// The index names chr1 with a shorter length than the file holds.
	index := "chr1\t4\t19\t10\t11\n"
	if err := os.WriteFile(path+".fai", []byte(index), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	ref, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer ref.Close()

	if got, ok := ref.Length("chr1"); !ok || got != 4 {
		t.Errorf("Length(chr1): got %d, %v, want 4, true", got, ok)
	}
	if _, ok := ref.Length("chr2"); ok {
		t.Errorf("Length(chr2): found a contig missing from the index")
	}
}

func TestOpen_Missing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.fa")); err == nil {
		t.Errorf("Open() succeeded on a missing file")
	}
}
