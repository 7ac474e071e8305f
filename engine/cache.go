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

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Key identifies a cached handle.  A Key with an empty Array names the
// storage handle of Workspace.
type Key struct {
	Workspace string
	Array     string
}

func (k Key) String() string {
	if k.Array == "" {
		return k.Workspace
	}
	return k.Workspace + "/" + k.Array
}

// Cache lazily constructs engine handles and keeps at most one storage
// handle and one query handle alive.  Asking for a different key releases
// the cached handle and builds a new one.
//
// A Cache is not safe for concurrent use; callers serialize access.
type Cache struct {
	factory Factory
	logger  *slog.Logger

	storageKey string
	storage    StorageManager

	queryKey Key
	query    QueryProcessor
}

// NewCache returns an empty Cache that builds handles with factory.
func NewCache(factory Factory, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{factory: factory, logger: logger}
}

// Storage returns the storage handle for workspace, creating it if needed.
// Replacing the storage handle also releases the query handle built on it.
func (c *Cache) Storage(ctx context.Context, workspace string) (StorageManager, error) {
	if c.storage != nil && c.storageKey == workspace {
		return c.storage, nil
	}
	if err := c.releaseStorage(); err != nil {
		c.logger.Warn("releasing storage handle", "workspace", c.storageKey, "error", err)
	}

	sm, err := c.factory.OpenStorage(ctx, workspace)
	if err != nil {
		return nil, fmt.Errorf("opening workspace %s: %w", workspace, err)
	}
	c.logger.Debug("opened storage handle", "workspace", workspace)
	c.storageKey, c.storage = workspace, sm
	return sm, nil
}

// Query returns the query handle for key, creating it if needed.
func (c *Cache) Query(ctx context.Context, key Key) (QueryProcessor, error) {
	if key.Array == "" {
		return nil, fmt.Errorf("%w: no array named for workspace %s", ErrArrayNotFound, key.Workspace)
	}
	if c.query != nil && c.queryKey == key && c.storageKey == key.Workspace {
		return c.query, nil
	}
	if err := c.releaseQuery(); err != nil {
		c.logger.Warn("releasing query handle", "key", c.queryKey, "error", err)
	}

	sm, err := c.Storage(ctx, key.Workspace)
	if err != nil {
		return nil, err
	}
	qp, err := c.factory.OpenQuery(ctx, sm, key.Array)
	if err != nil {
		return nil, fmt.Errorf("opening array %s: %w", key, err)
	}
	c.logger.Debug("opened query handle", "key", key)
	c.queryKey, c.query = key, qp
	return qp, nil
}

// Invalidate releases the handle cached for key so the next request
// rebuilds it.  Invalidating a workspace releases its query handle too.
// Keys that are not cached are ignored.
func (c *Cache) Invalidate(key Key) error {
	if key.Array == "" {
		if c.storage != nil && c.storageKey == key.Workspace {
			return c.releaseStorage()
		}
		return nil
	}
	if c.query != nil && c.queryKey == key {
		return c.releaseQuery()
	}
	return nil
}

// Cleanup releases every cached handle.  It is safe to call repeatedly.
func (c *Cache) Cleanup() error {
	return c.releaseStorage()
}

func (c *Cache) releaseQuery() error {
	if c.query == nil {
		return nil
	}
	err := c.query.Close()
	c.query, c.queryKey = nil, Key{}
	return err
}

func (c *Cache) releaseStorage() error {
	queryErr := c.releaseQuery()
	var storageErr error
	if c.storage != nil {
		storageErr = c.storage.Close()
		c.storage, c.storageKey = nil, ""
	}
	return errors.Join(queryErr, storageErr)
}
