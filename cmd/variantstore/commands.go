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

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	variantstore "github.com/googlegenomics/variantstore"
	"github.com/googlegenomics/variantstore/engine"
	"github.com/googlegenomics/variantstore/internal/metadata"
)

func parsePositions(args []string) ([]int64, error) {
	positions := make([]int64, len(args))
	for i, arg := range args {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing position %q: %v", arg, err)
		}
		positions[i] = n
	}
	return positions, nil
}

func locateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "locate POSITION...",
		Short: "Translate global columns into contig positions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			positions, err := parsePositions(args)
			if err != nil {
				return err
			}
			store, closeLoader, err := openStore(cmd.Context(), opts, opts.cfg)
			if err != nil {
				return err
			}
			defer closeLoader()

			out := cmd.OutOrStdout()
			for _, position := range positions {
				location, ok, err := store.Locate(position)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(out, "%d\tnot found\n", position)
					continue
				}
				fmt.Fprintf(out, "%d\t%s\t%d\n", position, location.Contig, location.Position)
			}
			return nil
		},
	}
}

func nextCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "next POSITION...",
		Short: "Print the first contig beginning after each column",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			positions, err := parsePositions(args)
			if err != nil {
				return err
			}
			store, closeLoader, err := openStore(cmd.Context(), opts, opts.cfg)
			if err != nil {
				return err
			}
			defer closeLoader()

			for _, position := range positions {
				next := store.NextAfter(position)
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%d\n", position, next.Contig, next.Offset)
			}
			return nil
		},
	}
}

func globalCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "global CONTIG POSITION",
		Short: "Translate a contig position into a global column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			positions, err := parsePositions(args[1:])
			if err != nil {
				return err
			}
			store, closeLoader, err := openStore(cmd.Context(), opts, opts.cfg)
			if err != nil {
				return err
			}
			defer closeLoader()

			global, err := store.Registry().ToGlobal(args[0], positions[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), global)
			return nil
		},
	}
}

func samplesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "samples [INDEX...]",
		Short: "Print sample names, all of them or by index",
		RunE: func(cmd *cobra.Command, args []string) error {
			indexes, err := parsePositions(args)
			if err != nil {
				return err
			}
			store, closeLoader, err := openStore(cmd.Context(), opts, opts.cfg)
			if err != nil {
				return err
			}
			defer closeLoader()

			if len(indexes) == 0 {
				for i := int64(0); i < store.Samples().Len(); i++ {
					indexes = append(indexes, i)
				}
			}
			for _, i := range indexes {
				if i < 0 || i >= store.Samples().Len() {
					return fmt.Errorf("sample index %d outside [0, %d)", i, store.Samples().Len())
				}
				name, err := store.SampleName(i)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, name)
			}
			return nil
		},
	}
}

type queryFlags struct {
	workspace, array string
	begin, end       int64
	columnRange      bool
	headerOnly       bool
	header           string
	reference        string
	output           string
	format           string
	formatSet        bool
}

func queryCmd(opts *options) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query an array and write the result as VCF",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.formatSet = cmd.Flags().Changed("format")
			return runQuery(cmd, opts, flags)
		},
	}
	cmd.Flags().StringVar(&flags.workspace, "workspace", "", "workspace holding the array (path, gs:// or s3:// URL)")
	cmd.Flags().StringVar(&flags.array, "array", "", "array name")
	cmd.Flags().Int64Var(&flags.begin, "begin", 0, "first global column")
	cmd.Flags().Int64Var(&flags.end, "end", -1, "last global column (default: begin)")
	cmd.Flags().BoolVar(&flags.columnRange, "range", false, "return every variant in [begin, end] instead of the variant at begin")
	cmd.Flags().BoolVar(&flags.headerOnly, "header-only", false, "write only the template header")
	cmd.Flags().StringVar(&flags.header, "header", "", "template VCF header")
	cmd.Flags().StringVar(&flags.reference, "reference", "", "reference FASTA used for missing REF alleles")
	cmd.Flags().StringVarP(&flags.output, "output", "o", variantstore.Stdout, "output file")
	cmd.Flags().StringVar(&flags.format, "format", "", "output format: b, bu, z or empty for plain VCF")
	return cmd
}

func runQuery(cmd *cobra.Command, opts *options, flags queryFlags) error {
	ctx := cmd.Context()
	cfg := opts.cfg
	if flags.header == "" {
		flags.header = cfg.HeaderPath
	}
	if flags.reference == "" {
		flags.reference = cfg.ReferencePath
	}
	if !flags.formatSet {
		flags.format = cfg.OutputFormat
	}
	if !flags.headerOnly && (flags.workspace == "" || flags.array == "") {
		return errors.New("--workspace and --array are required")
	}
	if flags.end < 0 {
		flags.end = flags.begin
	}

	loader, err := metadata.Open(ctx, cfg.MetadataURL)
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}
	if c, ok := loader.(io.Closer); ok {
		defer c.Close()
	}

	adapterCfg := variantstore.AdapterConfig{
		Metadata:      loader,
		HeaderPath:    flags.header,
		ReferencePath: flags.reference,
		OutputPath:    flags.output,
		OutputFormat:  flags.format,
		Logger:        opts.logger,
	}
	if flags.output == variantstore.Stdout {
		adapterCfg.Output = cmd.OutOrStdout()
	}
	adapter, err := variantstore.NewAdapter(ctx, adapterCfg)
	if err != nil {
		return err
	}
	defer adapter.Close()

	if !flags.headerOnly && adapter.Format().IsBCF() {
		return fmt.Errorf("format %q only supports --header-only", adapter.Format())
	}
	if err := adapter.PrintHeader(); err != nil {
		return err
	}
	if flags.headerOnly {
		return adapter.Close()
	}

	store := adapter.Store(engineFactory(cfg))
	defer store.Cleanup()

	config := engine.QueryConfig{ColumnIntervals: []engine.Interval{{Begin: flags.begin, End: flags.end}}}
	if !flags.columnRange {
		var v engine.Variant
		if err := store.QueryColumn(ctx, flags.workspace, flags.array, 0, &v, config); err != nil {
			return err
		}
		if len(v.Calls) > 0 {
			if err := adapter.WriteVariant(&v); err != nil {
				return err
			}
		}
		return adapter.Close()
	}

	paging := &engine.PagingInfo{PageSize: cfg.DefaultPageSize}
	for !paging.Done {
		var variants []engine.Variant
		if err := store.QueryColumnRange(ctx, flags.workspace, flags.array, 0, &variants, config, paging); err != nil {
			return err
		}
		for i := range variants {
			if err := adapter.WriteVariant(&variants[i]); err != nil {
				return err
			}
		}
	}
	return adapter.Close()
}

func initCmd(opts *options) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the metadata database from a VCF header or FASTA index",
		Long: `init reads contigs (and samples, for a VCF header) from --from and stores
them in the database named by --metadata, replacing its previous contents.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if from == "" {
				return errors.New("--from is required")
			}
			source, err := metadata.Open(ctx, from)
			if err != nil {
				return fmt.Errorf("open source: %w", err)
			}
			m, err := source.Load(ctx)
			if err != nil {
				return err
			}

			db, err := metadata.OpenSQL(ctx, opts.cfg.MetadataURL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := db.Save(ctx, m); err != nil {
				return err
			}
			opts.logger.Info("initialized metadata", "contigs", len(m.Contigs), "samples", len(m.Samples))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "VCF/BCF header or FASTA index to import")
	return cmd
}
