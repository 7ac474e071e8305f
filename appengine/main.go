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

// Command appengine serves the variantstore API on Google App Engine.
// Configuration is read from VARIANTSTORE_* variables set in app.yaml.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"google.golang.org/appengine"

	variantstore "github.com/googlegenomics/variantstore"
	"github.com/googlegenomics/variantstore/api"
	"github.com/googlegenomics/variantstore/engine"
	"github.com/googlegenomics/variantstore/internal/config"
	"github.com/googlegenomics/variantstore/internal/log"
	"github.com/googlegenomics/variantstore/internal/metadata"
)

func main() {
	if err := setup(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	appengine.Main()
}

func setup(ctx context.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	logger := log.NewLogger(cfg.LogLevel, log.FormatJSON, os.Stderr)

	loader, err := metadata.Open(ctx, cfg.MetadataURL)
	if err != nil {
		return err
	}
	// Workspaces are read with the application's service account.
	store, err := variantstore.Load(ctx, loader, &engine.ArrayFactory{}, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(store, cfg.DefaultPageSize, logger)
	if buckets := cfg.BucketList(); len(buckets) > 0 {
		server.Whitelist(buckets)
	}
	http.Handle("/", api.NewRouter(server, nil))
	logger.Info("serving", "app", appengine.IsAppEngine(), "contigs", store.Registry().Len())
	return nil
}
