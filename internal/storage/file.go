// Copyright 2017 Google Inc.
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

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileClient reads objects from the local file system.  The bucket is a
// directory and the object a path relative to it.
type FileClient struct{}

// NewFileClient returns a Client for local workspaces.
func NewFileClient() Client {
	return FileClient{}
}

// NewObjectHandle returns a handle to bucket/object.
func (FileClient) NewObjectHandle(bucket, object string) ObjectHandle {
	return fileObjectHandle{filepath.Join(bucket, filepath.FromSlash(object))}
}

// Close is a no-op.
func (FileClient) Close() error {
	return nil
}

type fileObjectHandle struct {
	path string
}

// readCloser has one reader and the file as its closer.
type readCloser struct {
	io.Reader
	io.Closer
}

func (h fileObjectHandle) NewRangeReader(_ context.Context, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotExist, h.path)
		}
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seeking to %d: %v", offset, err)
		}
	}
	if length < 0 {
		return f, nil
	}
	return readCloser{io.LimitReader(f, length), f}, nil
}
