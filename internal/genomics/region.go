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

// Package genomics contains definitions related to Genomic data.
package genomics

import "fmt"

// Region defines a region of genomic interest on a single contig.
type Region struct {
	// Contig names the sequence the region lies on.
	Contig string
	// Start and End specify the closed range (in local base positions)
	// relative to the contig.
	Start, End int64
	// Offset is the global column of the contig's first base.
	Offset int64
}

// GlobalStart returns the global column of the first base of the region.
func (region Region) GlobalStart() int64 {
	return region.Offset + region.Start
}

// GlobalEnd returns the global column of the last base of the region.
func (region Region) GlobalEnd() int64 {
	return region.Offset + region.End
}

func (region Region) String() string {
	return fmt.Sprintf("[contig:%s, start:%d, end:%d]", region.Contig, region.Start, region.End)
}
