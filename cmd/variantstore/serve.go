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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	variantstore "github.com/googlegenomics/variantstore"
	"github.com/googlegenomics/variantstore/api"
	"github.com/googlegenomics/variantstore/engine"
	"github.com/googlegenomics/variantstore/internal/analytics"
	"github.com/googlegenomics/variantstore/internal/config"
	"github.com/googlegenomics/variantstore/internal/metadata"
	"github.com/googlegenomics/variantstore/internal/storage"
)

// Anonymous usage hits are reported to this analytics property.
const trackingID = "UA-103022118-1"

func serveCmd(opts *options) *cobra.Command {
	var (
		host       string
		port       int
		trackUsage bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if host != "" {
				cfg.Host = host
			}
			if port != 0 {
				cfg.Port = port
			}
			if trackUsage {
				cfg.TrackUsage = true
			}
			return runServe(cmd.Context(), opts, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "address to bind to")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP service port (default: 80)")
	// If enabled, anonymous information about requests handled by the server
	// is logged to Google via Google Analytics.  No user identifying
	// information is ever sent.
	cmd.Flags().BoolVar(&trackUsage, "track-usage", false, "anonymous usage tracking")
	return cmd
}

// engineFactory returns the array engine configured by cfg.
func engineFactory(cfg config.EnvConfig) engine.Factory {
	return &engine.ArrayFactory{Options: storage.Options{
		BearerToken: cfg.GCSToken,
		Public:      !cfg.Secure,
		MinIO: storage.MinIOOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Secure:    cfg.MinIO.Secure,
			Region:    cfg.MinIO.Region,
		},
	}}
}

// openStore loads the metadata named by cfg into a Store.
func openStore(ctx context.Context, opts *options, cfg config.EnvConfig) (*variantstore.Store, func(), error) {
	loader, err := metadata.Open(ctx, cfg.MetadataURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata: %w", err)
	}
	closeLoader := func() {}
	if db, ok := loader.(*metadata.SQL); ok {
		closeLoader = func() {
			if err := db.Close(); err != nil {
				opts.logger.Warn("closing metadata database", "error", err)
			}
		}
	}
	store, err := variantstore.Load(ctx, loader, engineFactory(cfg), opts.logger)
	if err != nil {
		closeLoader()
		return nil, nil, fmt.Errorf("load metadata: %w", err)
	}
	return store, closeLoader, nil
}

func runServe(ctx context.Context, opts *options, cfg config.EnvConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := opts.logger

	store, closeLoader, err := openStore(ctx, opts, cfg)
	if err != nil {
		return err
	}
	defer closeLoader()
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Error("releasing engine handles", "error", err)
		}
	}()

	server := api.NewServer(store, cfg.DefaultPageSize, logger)
	if buckets := cfg.BucketList(); len(buckets) > 0 {
		server.Whitelist(buckets)
	}

	var track func([]analytics.Hit)
	if cfg.TrackUsage {
		logger.Info("enabling anonymous usage tracking")
		client := analytics.NewClient(trackingID, "")
		track = func(hits []analytics.Hit) {
			if err := client.Send(context.Background(), hits); err != nil {
				logger.Warn("failed to send hits to analytics", "hits", len(hits), "error", err)
			}
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(server, track)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	httpServer := &http.Server{Addr: cfg.Address(), Handler: router}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("starting server",
		"addr", httpServer.Addr,
		"contigs", store.Registry().Len(),
		"samples", store.Samples().Len(),
		"secure", cfg.Secure)
	if cfg.Secure {
		err = httpServer.ListenAndServeTLS(cfg.HTTPSCert, cfg.HTTPSKey)
	} else {
		err = httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
