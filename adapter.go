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

package variantstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/googlegenomics/variantstore/engine"
	"github.com/googlegenomics/variantstore/internal/contig"
	"github.com/googlegenomics/variantstore/internal/metadata"
	"github.com/googlegenomics/variantstore/internal/reference"
	"github.com/googlegenomics/variantstore/internal/sample"
	"github.com/googlegenomics/variantstore/internal/vcf"
)

// ErrNoReference is returned by ReferenceBase when no reference is loaded.
var ErrNoReference = errors.New("no reference genome loaded")

// Stdout names the process's standard output as an output path.
const Stdout = "-"

// AdapterConfig configures NewAdapter.
type AdapterConfig struct {
	// Metadata provides the contigs and samples.
	Metadata metadata.Loader
	// HeaderPath is the template VCF header written by PrintHeader.
	HeaderPath string
	// ReferencePath is an optional indexed FASTA file.
	ReferencePath string

	// OutputPath is the file to write to, or Stdout.  It is ignored when
	// Output is set.
	OutputPath string
	Output     io.Writer
	// OutputFormat is b, bu, z or empty for plain VCF.  Other values fall
	// back to z.
	OutputFormat string

	Logger *slog.Logger
}

// Adapter renders query results as VCF or BCF.
type Adapter struct {
	registry  *contig.Registry
	samples   *sample.Index
	header    *vcf.Header
	reference reference.Accessor
	writer    *vcf.Writer
	closer    io.Closer
	logger    *slog.Logger
}

// NewAdapter loads metadata, the template header and the optional reference
// and opens the output.
func NewAdapter(ctx context.Context, cfg AdapterConfig) (*Adapter, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Metadata == nil {
		return nil, errors.New("no metadata source")
	}
	m, err := cfg.Metadata.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading metadata: %v", err)
	}
	a := &Adapter{logger: logger}
	a.registry, a.samples = build(m, logger)

	if a.header, err = readHeader(cfg.HeaderPath); err != nil {
		return nil, err
	}

	if cfg.ReferencePath != "" {
		ref, err := reference.Open(cfg.ReferencePath)
		if err != nil {
			return nil, err
		}
		a.reference = ref
	}

	format, ok := vcf.ParseFormat(cfg.OutputFormat)
	if !ok {
		logger.Warn("invalid output format, writing compressed VCF", "format", cfg.OutputFormat)
	}

	out := cfg.Output
	if out == nil {
		out, a.closer, err = createOutput(cfg.OutputPath)
		if err != nil {
			a.closeReference()
			return nil, err
		}
	}
	a.writer = vcf.NewWriter(out, format)
	return a, nil
}

func readHeader(path string) (*vcf.Header, error) {
	if path == "" {
		return nil, errors.New("no template header")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening template header: %v", err)
	}
	defer f.Close()

	header, err := vcf.ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("reading template header %s: %v", path, err)
	}
	return header, nil
}

func createOutput(path string) (io.Writer, io.Closer, error) {
	if path == "" || path == Stdout {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cannot write to output file %s: %v", ErrResourceUnavailable, path, err)
	}
	return f, f, nil
}

// Registry returns the contig registry.
func (a *Adapter) Registry() *contig.Registry {
	return a.registry
}

// Samples returns the sample index.
func (a *Adapter) Samples() *sample.Index {
	return a.samples
}

// Store returns a Store sharing the adapter's registry and sample index.
func (a *Adapter) Store(factory engine.Factory) *Store {
	return NewStore(a.registry, a.samples, factory, a.logger)
}

// Format returns the output format in use.
func (a *Adapter) Format() vcf.Format {
	return a.writer.Format()
}

// PrintHeader writes the template header to the output.
func (a *Adapter) PrintHeader() error {
	return a.writer.WriteHeader(a.header)
}

// ContigLocation translates a global column into a contig location.
func (a *Adapter) ContigLocation(position int64) (contig.Location, bool, error) {
	return a.registry.Locate(position)
}

// NextContigLocation returns the first contig beginning after position.
func (a *Adapter) NextContigLocation(position int64) contig.Boundary {
	return a.registry.NextAfter(position)
}

// SampleName returns the name of sample row i.
func (a *Adapter) SampleName(i int64) (string, error) {
	return a.samples.Name(i)
}

// ReferenceBase returns the reference base at a contig-local position.
func (a *Adapter) ReferenceBase(name string, pos int64) (byte, error) {
	if a.reference == nil {
		return 0, ErrNoReference
	}
	return a.reference.Base(name, pos)
}

// WriteVariant writes v as a VCF record line with one genotype column per
// sample.  Samples without a call are written as missing.  REF and ALT are
// taken from the first call's fields, falling back to the reference base
// and ".".
func (a *Adapter) WriteVariant(v *engine.Variant) error {
	location, ok, err := a.registry.Locate(v.Begin)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: column %d is not inside a contig", contig.ErrOutOfRange, v.Begin)
	}

	ref, alt := "", "."
	if len(v.Calls) > 0 {
		ref = v.Calls[0].Fields["REF"]
		if value := v.Calls[0].Fields["ALT"]; value != "" {
			alt = value
		}
	}
	if ref == "" {
		ref = "N"
		if base, err := a.ReferenceBase(location.Contig, location.Position); err == nil {
			ref = string(base)
		} else if !errors.Is(err, ErrNoReference) {
			return err
		}
	}

	genotypes := make([]string, a.samples.Len())
	for i := range genotypes {
		genotypes[i] = "./."
	}
	for _, call := range v.Calls {
		if call.Row < 0 || call.Row >= a.samples.Len() {
			return &contig.ContractError{Op: "write variant", Detail: fmt.Sprintf("row %d outside [0, %d)", call.Row, a.samples.Len())}
		}
		if gt := call.Fields["GT"]; gt != "" {
			genotypes[call.Row] = gt
		}
	}

	fields := []string{
		location.Contig,
		strconv.FormatInt(location.Position+1, 10),
		".", ref, alt, ".", ".", ".", "GT",
	}
	return a.writer.WriteLine(strings.Join(append(fields, genotypes...), "\t"))
}

func (a *Adapter) closeReference() error {
	if a.reference == nil {
		return nil
	}
	err := a.reference.Close()
	a.reference = nil
	return err
}

// Close flushes the output and releases the reference and output file.
func (a *Adapter) Close() error {
	var errs []error
	if a.writer != nil {
		errs = append(errs, a.writer.Close())
		a.writer = nil
	}
	if a.closer != nil {
		errs = append(errs, a.closer.Close())
		a.closer = nil
	}
	errs = append(errs, a.closeReference())
	return errors.Join(errs...)
}
