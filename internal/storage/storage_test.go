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
	"errors"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func TestParseWorkspace(t *testing.T) {
	testCases := []struct {
		input string
		want  Location
	}{
		{"/data/ws", Location{SchemeFile, "/data/ws", ""}},
		{"relative/ws", Location{SchemeFile, "relative/ws", ""}},
		{"file:///data/ws", Location{SchemeFile, "/data/ws", ""}},
		{"gs://bucket", Location{SchemeGCS, "bucket", ""}},
		{"gs://bucket/some/prefix/", Location{SchemeGCS, "bucket", "some/prefix"}},
		{"s3://bucket/ws", Location{SchemeS3, "bucket", "ws"}},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseWorkspace(tc.input)
			if err != nil {
				t.Fatalf("ParseWorkspace returned unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Wrong location: got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseWorkspace_InvalidInputs(t *testing.T) {
	for _, input := range []string{"", "gs:///prefix", "ftp://host/x", "file://"} {
		if got, err := ParseWorkspace(input); err == nil {
			t.Errorf("ParseWorkspace(%q) = %+v, wanted error", input, got)
		}
	}
}

func TestLocation_Object(t *testing.T) {
	if got, want := (Location{Prefix: "a/b"}).Object("x.cells.gz"), "a/b/x.cells.gz"; got != want {
		t.Errorf("Wrong object: got %q, want %q", got, want)
	}
	if got, want := (Location{}).Object("x.cells.gz"), "x.cells.gz"; got != want {
		t.Errorf("Wrong object: got %q, want %q", got, want)
	}
}

func TestFileClient(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "object"), []byte("0123456789"), 0644); err != nil {
		t.Fatalf("Failed to write test data: %v", err)
	}

	testCases := []struct {
		name           string
		offset, length int64
		want           string
	}{
		{"everything", 0, -1, "0123456789"},
		{"prefix", 0, 4, "0123"},
		{"middle", 3, 4, "3456"},
		{"suffix", 7, -1, "789"},
	}
	client := NewFileClient()
	defer client.Close()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := client.NewObjectHandle(dir, "object").NewRangeReader(context.Background(), tc.offset, tc.length)
			if err != nil {
				t.Fatalf("NewRangeReader returned unexpected error: %v", err)
			}
			defer r.Close()
			got, err := ioutil.ReadAll(r)
			if err != nil {
				t.Fatalf("Failed to read: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("Wrong data: got %q, want %q", got, tc.want)
			}
		})
	}

	_, err := client.NewObjectHandle(dir, "missing").NewRangeReader(context.Background(), 0, -1)
	if !errors.Is(err, ErrObjectNotExist) {
		t.Errorf("Wrong error for missing object: got %v, want %v", err, ErrObjectNotExist)
	}
}

// This test ensures that the error translation of the GCS storage client
// does not change.
func TestGCSMissingObject(t *testing.T) {
	ctx := context.Background()
	gcs, err := storage.NewClient(ctx, option.WithHTTPClient(&http.Client{Transport: fixedStatus(http.StatusNotFound)}))
	if err != nil {
		t.Fatalf("Failed to create storage client: %v", err)
	}
	client := GCSClient{gcs}
	defer client.Close()

	_, err = client.NewObjectHandle("bucket", "object").NewRangeReader(ctx, 0, -1)
	if !errors.Is(err, ErrObjectNotExist) {
		t.Errorf("Wrong error: got %v, want %v", err, ErrObjectNotExist)
	}
}

func TestIsPermissionError(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, true},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, true},
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsPermissionError(tc.err); got != tc.want {
				t.Errorf("IsPermissionError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestOpen_S3WithoutEndpoint(t *testing.T) {
	if _, err := Open(context.Background(), Location{Scheme: SchemeS3, Bucket: "b"}, Options{}); err == nil {
		t.Error("Open succeeded without an S3 endpoint")
	}
}

type fixedStatus int

func (code fixedStatus) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		Status:     http.StatusText(int(code)),
		StatusCode: int(code),
		Body:       http.NoBody,
		Header:     make(http.Header),
	}, nil
}
