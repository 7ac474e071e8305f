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

package vcf

import (
	"fmt"
	"io"

	"github.com/googlegenomics/variantstore/internal/bgzf"
	"github.com/googlegenomics/variantstore/internal/binary"
)

// Format selects the output encoding, using the htslib mode letters.
type Format string

// Supported output formats.
const (
	FormatBCF             Format = "b"
	FormatUncompressedBCF Format = "bu"
	FormatCompressedVCF   Format = "z"
	FormatVCF             Format = ""

	// DefaultFormat is used in place of an unrecognized format.
	DefaultFormat = FormatCompressedVCF
)

// ParseFormat returns the format named by s and whether it is recognized.
// Unrecognized names map to DefaultFormat.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(s); f {
	case FormatBCF, FormatUncompressedBCF, FormatCompressedVCF, FormatVCF:
		return f, true
	}
	return DefaultFormat, false
}

// IsBCF reports whether f is a binary format.
func (f Format) IsBCF() bool {
	return f == FormatBCF || f == FormatUncompressedBCF
}

// IsCompressed reports whether f is BGZF compressed.
func (f Format) IsCompressed() bool {
	return f == FormatBCF || f == FormatCompressedVCF
}

// Writer encodes headers (and, for text formats, record lines) in a
// particular Format.
type Writer struct {
	format Format
	out    io.Writer
	bgzf   *bgzf.Writer
}

// NewWriter returns a Writer that writes to w.  Close must be called to
// terminate compressed output; it does not close w.
func NewWriter(w io.Writer, format Format) *Writer {
	writer := &Writer{format: format, out: w}
	if format.IsCompressed() {
		writer.bgzf = bgzf.NewWriter(w)
		writer.out = writer.bgzf
	}
	return writer
}

// Format returns the writer's output format.
func (w *Writer) Format() Format {
	return w.format
}

// WriteHeader writes h.
func (w *Writer) WriteHeader(h *Header) error {
	text := h.Text()
	if !w.format.IsBCF() {
		if _, err := io.WriteString(w.out, text); err != nil {
			return fmt.Errorf("writing header: %v", err)
		}
		return nil
	}

	if _, err := io.WriteString(w.out, bcfMagic); err != nil {
		return fmt.Errorf("writing magic: %v", err)
	}
	// The header text is NUL terminated and the length includes the NUL.
	if err := binary.Write(w.out, uint32(len(text)+1)); err != nil {
		return fmt.Errorf("writing header length: %v", err)
	}
	if _, err := io.WriteString(w.out, text+"\x00"); err != nil {
		return fmt.Errorf("writing header text: %v", err)
	}
	return nil
}

// WriteLine writes a single tab separated record line.  It is only
// supported by the text formats.
func (w *Writer) WriteLine(line string) error {
	if w.format.IsBCF() {
		return fmt.Errorf("text records are not supported by format %q", w.format)
	}
	if _, err := io.WriteString(w.out, line+"\n"); err != nil {
		return fmt.Errorf("writing record: %v", err)
	}
	return nil
}

// Close flushes compressed output.
func (w *Writer) Close() error {
	if w.bgzf != nil {
		return w.bgzf.Close()
	}
	return nil
}
