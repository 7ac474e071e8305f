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

// Package storage provides uniform read access to the object stores that
// hold workspaces: local directories, Google Cloud Storage buckets and
// S3-compatible buckets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// ErrObjectNotExist is returned when an object does not exist.
var ErrObjectNotExist = errors.New("object does not exist")

// Client is an interface to the storage engine.
type Client interface {
	// NewObjectHandle returns a handle to a specified object in
	// the storage engine.
	NewObjectHandle(bucket, object string) ObjectHandle
	// Close releases any resources held by the client.
	Close() error
}

// ObjectHandle is an interface to the actual storage engine in use.
type ObjectHandle interface {
	// NewRangeReader returns a reader that reads from a specified
	// range. Length of -1 means to capture everything until the
	// end.
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// Scheme identifies a storage backend.
type Scheme string

// Supported workspace schemes.
const (
	SchemeFile Scheme = "file"
	SchemeGCS  Scheme = "gs"
	SchemeS3   Scheme = "s3"
)

// Location is a parsed workspace URL.
type Location struct {
	Scheme Scheme
	// Bucket is the bucket name, or the root directory for local files.
	Bucket string
	// Prefix is prepended to object names inside the bucket.
	Prefix string
}

// Object returns the full object name for name inside the workspace.
func (l Location) Object(name string) string {
	if l.Prefix == "" {
		return name
	}
	return path.Join(l.Prefix, name)
}

func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return path.Join(l.Bucket, l.Prefix)
	}
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Prefix)
}

// ParseWorkspace parses a workspace string.  Plain paths and file:// URLs
// are local directories; gs:// and s3:// URLs name a bucket and an optional
// prefix.
func ParseWorkspace(workspace string) (Location, error) {
	if workspace == "" {
		return Location{}, errors.New("empty workspace")
	}
	if !strings.Contains(workspace, "://") {
		return Location{Scheme: SchemeFile, Bucket: workspace}, nil
	}

	u, err := url.Parse(workspace)
	if err != nil {
		return Location{}, fmt.Errorf("parsing workspace %q: %v", workspace, err)
	}
	switch scheme := Scheme(u.Scheme); scheme {
	case SchemeFile:
		if u.Path == "" {
			return Location{}, fmt.Errorf("workspace %q has no path", workspace)
		}
		return Location{Scheme: SchemeFile, Bucket: u.Path}, nil
	case SchemeGCS, SchemeS3:
		if u.Host == "" {
			return Location{}, fmt.Errorf("workspace %q has no bucket", workspace)
		}
		return Location{Scheme: scheme, Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
	default:
		return Location{}, fmt.Errorf("unsupported workspace scheme %q", u.Scheme)
	}
}

// Options configures the clients created by Open.
type Options struct {
	// BearerToken, when set, authorizes GCS requests with an OAuth2 token.
	// Otherwise GCS access is anonymous when Public is set and uses the
	// application default credentials when it is not.
	BearerToken string
	Public      bool

	// MinIO configures access to s3:// workspaces.
	MinIO MinIOOptions
}

// Open returns a client able to read the workspace at location.
func Open(ctx context.Context, location Location, opts Options) (Client, error) {
	switch location.Scheme {
	case SchemeFile:
		return NewFileClient(), nil
	case SchemeGCS:
		switch {
		case opts.BearerToken != "":
			return NewClientFromBearerToken(ctx, opts.BearerToken)
		case opts.Public:
			return NewPublicClient(ctx)
		default:
			return NewDefaultClient(ctx)
		}
	case SchemeS3:
		return NewMinIOClient(opts.MinIO)
	default:
		return nil, fmt.Errorf("unsupported workspace scheme %q", location.Scheme)
	}
}
