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

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOOptions configures access to an S3-compatible endpoint.
type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Region    string
}

// MinIOClient is Client for S3-compatible object stores.
type MinIOClient struct {
	client *minio.Client
}

// NewMinIOClient returns a client for the configured endpoint.
func NewMinIOClient(opts MinIOOptions) (Client, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("no S3 endpoint configured")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %v", err)
	}
	return MinIOClient{client}, nil
}

// NewObjectHandle returns a handle to a specified object in the bucket.
func (c MinIOClient) NewObjectHandle(bucket, object string) ObjectHandle {
	return minioObjectHandle{c.client, bucket, object}
}

// Close is a no-op; the MinIO client holds no releasable resources.
func (MinIOClient) Close() error {
	return nil
}

type minioObjectHandle struct {
	client *minio.Client
	bucket string
	object string
}

func (h minioObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	switch {
	case length > 0:
		if err := opts.SetRange(offset, offset+length-1); err != nil {
			return nil, fmt.Errorf("setting range: %v", err)
		}
	case length == 0:
		return io.NopCloser(&io.LimitedReader{}), nil
	case offset > 0:
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, fmt.Errorf("setting range: %v", err)
		}
	}

	object, err := h.client.GetObject(ctx, h.bucket, h.object, opts)
	if err != nil {
		return nil, translateMinIOError(err)
	}
	// GetObject is lazy; Stat surfaces a missing object before the first read.
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, translateMinIOError(err)
	}
	return object, nil
}

func translateMinIOError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %v", ErrObjectNotExist, err)
	}
	return err
}
