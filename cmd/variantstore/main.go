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

// Command variantstore serves and queries multi-contig variant arrays.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/googlegenomics/variantstore/internal/config"
	"github.com/googlegenomics/variantstore/internal/log"
)

// options holds the flags shared by every command.
type options struct {
	envFile    string
	logLevel   string
	logFormat  string
	metadata   string
	profile    string
	profileDir string

	cfg    config.EnvConfig
	logger *slog.Logger
	stop   interface{ Stop() }
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "variantstore",
		Short: "Translate and query multi-contig variant arrays",
		Long: `variantstore maps the global columns of a variant array to contig
positions and answers column queries against arrays stored locally, in
Google Cloud Storage or in S3-compatible buckets.

Settings are read from VARIANTSTORE_* environment variables and an optional
.env file; flags override both.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.stop != nil {
				opts.stop.Stop()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", "", "path to .env file (default: .env in current directory)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")
	flags.StringVar(&opts.metadata, "metadata", "", "metadata source: sqlite:/// or postgres:// URL, VCF header or FASTA index")
	flags.StringVar(&opts.profile, "profile", "", "write a cpu or mem profile")
	flags.StringVar(&opts.profileDir, "profile-dir", ".", "directory for profile output")

	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(locateCmd(opts))
	cmd.AddCommand(nextCmd(opts))
	cmd.AddCommand(globalCmd(opts))
	cmd.AddCommand(samplesCmd(opts))
	cmd.AddCommand(queryCmd(opts))
	cmd.AddCommand(initCmd(opts))
	return cmd
}

// setup loads configuration, applies flag overrides and starts profiling.
func (opts *options) setup() error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}
	if opts.metadata != "" {
		cfg.MetadataURL = opts.metadata
	}
	opts.cfg = cfg
	opts.logger = log.NewLogger(cfg.LogLevel, log.Format(cfg.LogFormat), os.Stderr)
	slog.SetDefault(opts.logger)

	switch opts.profile {
	case "":
	case "cpu":
		opts.stop = profile.Start(profile.CPUProfile, profile.ProfilePath(opts.profileDir), profile.Quiet)
	case "mem":
		opts.stop = profile.Start(profile.MemProfile, profile.ProfilePath(opts.profileDir), profile.Quiet)
	default:
		return fmt.Errorf("unknown profile %q", opts.profile)
	}
	return nil
}
