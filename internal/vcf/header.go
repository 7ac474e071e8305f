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

// Package vcf reads and writes VCF and BCF headers.
package vcf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/googlegenomics/variantstore/internal/bgzf"
	"github.com/googlegenomics/variantstore/internal/binary"
)

const (
	bcfMagic = "BCF\x02\x02"

	// This is just to prevent arbitrarily long allocations due to malformed
	// data.
	maximumHeaderLength = 1 << 28

	columnsPrefix = "#CHROM"
)

// The fixed columns of a VCF record line.  Sample names follow them.
var fixedColumns = []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO"}

var errMissingColumns = errors.New("missing #CHROM line")

// Contig is a ##contig header line.
type Contig struct {
	ID     string
	Length int64
	// IDX is the explicit dictionary index, or -1 when the line has none.
	IDX int
}

// Header is a parsed VCF header.
type Header struct {
	// Meta holds the ## lines in order.
	Meta    []string
	Contigs []Contig
	Samples []string
}

// ReadHeader reads a header from r.  The input may be plain VCF, BGZF
// compressed VCF, or BCF (compressed or not).
func ReadHeader(r io.Reader) (*Header, error) {
	br := bufio.NewReader(r)
	if bgzf.IsCompressed(br) {
		gzr, err := bgzf.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %v", err)
		}
		defer gzr.Close()
		br = bufio.NewReader(gzr)
	}

	magic, err := br.Peek(len(bcfMagic))
	if err == nil && string(magic) == bcfMagic {
		return readBCFHeader(br)
	}
	return readText(br)
}

func readBCFHeader(r io.Reader) (*Header, error) {
	if err := binary.ExpectBytes(r, []byte(bcfMagic)); err != nil {
		return nil, fmt.Errorf("checking magic: %v", err)
	}

	var length uint32
	if err := binary.Read(r, &length); err != nil {
		return nil, fmt.Errorf("reading header length: %v", err)
	}
	if length > maximumHeaderLength {
		return nil, fmt.Errorf("invalid header length (%d bytes)", length)
	}
	text := make([]byte, length)
	if _, err := io.ReadFull(r, text); err != nil {
		return nil, fmt.Errorf("reading header text: %v", err)
	}
	return ParseHeader(strings.TrimRight(string(text), "\x00"))
}

func readText(r *bufio.Reader) (*Header, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		b.WriteString(line)
		if strings.HasPrefix(line, columnsPrefix) {
			break
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading header: %v", err)
		}
	}
	return ParseHeader(b.String())
}

// ParseHeader parses header text made of ## lines followed by the #CHROM
// line.  Record lines after #CHROM are ignored.
func ParseHeader(text string) (*Header, error) {
	header := &Header{}
	sawColumns := false
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), maximumHeaderLength)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "##"):
			header.Meta = append(header.Meta, line)
			if strings.HasPrefix(line, "##contig") {
				contig, err := parseContig(line)
				if err != nil {
					return nil, fmt.Errorf("parsing %q: %v", line, err)
				}
				header.Contigs = append(header.Contigs, contig)
			}
		case strings.HasPrefix(line, columnsPrefix):
			fields := strings.Split(line, "\t")
			if len(fields) > len(fixedColumns)+1 {
				header.Samples = append(header.Samples, fields[len(fixedColumns)+1:]...)
			}
			sawColumns = true
		}
		if sawColumns {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning header: %v", err)
	}
	if !sawColumns {
		return nil, errMissingColumns
	}
	return header, nil
}

func parseContig(line string) (Contig, error) {
	contig := Contig{ID: contigField(line, "ID")}
	if contig.ID == "" {
		return Contig{}, errors.New("contig without ID")
	}
	if length := contigField(line, "length"); length != "" {
		n, err := strconv.ParseInt(length, 10, 64)
		if err != nil {
			return Contig{}, fmt.Errorf("parsing length: %v", err)
		}
		contig.Length = n
	}
	idx, err := getIdx(line)
	if err != nil {
		return Contig{}, fmt.Errorf("getting idx: %v", err)
	}
	contig.IDX = idx
	return contig, nil
}

// ReferenceID returns the dictionary index of the named contig, honouring
// IDX fields when present.
func (h *Header) ReferenceID(name string) (int, error) {
	for id, contig := range h.Contigs {
		if contig.ID == name {
			if contig.IDX > -1 {
				return contig.IDX, nil
			}
			return id, nil
		}
	}
	return 0, errors.New("reference name not found")
}

// Text renders the header as VCF text, ending with the #CHROM line.
func (h *Header) Text() string {
	var b strings.Builder
	for _, line := range h.Meta {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	columns := append([]string(nil), fixedColumns...)
	if len(h.Samples) > 0 {
		columns = append(columns, "FORMAT")
		columns = append(columns, h.Samples...)
	}
	b.WriteString(strings.Join(columns, "\t"))
	b.WriteByte('\n')
	return b.String()
}

func contigField(input, name string) string {
	field := fmt.Sprintf("%s=", name)
	for {
		start := strings.Index(input, field)
		if start == -1 {
			return ""
		}
		if start > 0 && !isDelimiter(input[start-1]) {
			input = input[start+len(field):]
			continue
		}
		input = input[start+len(field):]
		if end := strings.IndexAny(input, ",>"); end > 0 {
			return input[:end]
		} else {
			return input
		}
	}
}

func isDelimiter(chr byte) bool {
	return chr == ',' || chr == '<'
}

func getIdx(contig string) (int, error) {
	idx := contigField(contig, "IDX")
	if idx == "" {
		return -1, nil
	}
	return strconv.Atoi(string(idx))
}
