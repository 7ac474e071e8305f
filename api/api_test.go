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

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	variantstore "github.com/googlegenomics/variantstore"
	"github.com/googlegenomics/variantstore/engine"
	"github.com/googlegenomics/variantstore/internal/analytics"
	"github.com/googlegenomics/variantstore/internal/contig"
	"github.com/googlegenomics/variantstore/internal/metadata"
)

var testMetadata = metadata.Static{
	Contigs: []contig.Contig{
		{Name: "chr1", Offset: 100, Length: 100},
		{Name: "chr2", Offset: 200, Length: 50},
		{Name: "chr3", Offset: 300, Length: 10},
	},
	Samples: []string{"NA12878", "NA12891", "NA12892"},
}

type testServer struct {
	router    *gin.Engine
	workspace string
	hits      []analytics.Hit
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	workspace := t.TempDir()
	f, err := os.Create(filepath.Join(workspace, "calls"+engine.ArraySuffix))
	require.NoError(t, err)
	require.NoError(t, engine.WriteArray(f, []engine.Cell{
		{Row: 0, Begin: 105, End: 105, Fields: map[string]string{"GT": "0/1"}},
		{Row: 2, Begin: 105, End: 107, Fields: map[string]string{"GT": "1/1"}},
		{Row: 1, Begin: 150, End: 150},
		{Row: 0, Begin: 210, End: 210},
		{Row: 2, Begin: 249, End: 249},
	}))
	require.NoError(t, f.Close())

	store, err := variantstore.Load(context.Background(), testMetadata, &engine.ArrayFactory{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Cleanup() })

	ts := &testServer{workspace: workspace}
	ts.router = NewRouter(NewServer(store, 2, nil), func(hits []analytics.Hit) {
		ts.hits = append(ts.hits, hits...)
	})
	return ts
}

func (ts *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", target, nil)
	req.Header.Set("Origin", "https://example.org")
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) query(t *testing.T, params string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.get(t, "/query/calls?workspace="+url.QueryEscape(ts.workspace)+"&"+params)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

func expectError(t *testing.T, name string, code int, w *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, code, w.Code, "body: %s", w.Body.String())
	body := make(map[string]interface{})
	decode(t, w, &body)
	assert.Equal(t, name, body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestLocate(t *testing.T) {
	ts := newTestServer(t)

	w := ts.get(t, "/contigs/locate?position=120")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Contig   string `json:"contig"`
		Position int64  `json:"position"`
	}
	decode(t, w, &body)
	assert.Equal(t, "chr1", body.Contig)
	assert.Equal(t, int64(20), body.Position)
	assert.Equal(t, "https://example.org", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestLocate_Errors(t *testing.T) {
	ts := newTestServer(t)
	testCases := []struct {
		name, target, error string
		code                int
	}{
		{"missing position", "/contigs/locate", "InvalidInput", http.StatusBadRequest},
		{"bad position", "/contigs/locate?position=abc", "InvalidInput", http.StatusBadRequest},
		{"gap", "/contigs/locate?position=260", "NotFound", http.StatusNotFound},
		{"past the end", "/contigs/locate?position=310", "NotFound", http.StatusNotFound},
		{"before the first contig", "/contigs/locate?position=50", "InvalidRange", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, tc.error, tc.code, ts.get(t, tc.target))
		})
	}
}

func TestNext(t *testing.T) {
	ts := newTestServer(t)
	testCases := []struct {
		position string
		contig   string
		offset   int64
	}{
		{"0", "chr1", 100},
		{"100", "chr2", 200},
		{"299", "chr3", 300},
		{"300", "", contig.NoBoundary.Offset},
	}
	for _, tc := range testCases {
		w := ts.get(t, "/contigs/next?position="+tc.position)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Contig string `json:"contig"`
			Offset int64  `json:"offset"`
		}
		decode(t, w, &body)
		assert.Equal(t, tc.contig, body.Contig, "position %s", tc.position)
		assert.Equal(t, tc.offset, body.Offset, "position %s", tc.position)
	}
}

func TestGlobal(t *testing.T) {
	ts := newTestServer(t)

	w := ts.get(t, "/contigs/global?contig=chr2&position=10")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Position int64 `json:"position"`
	}
	decode(t, w, &body)
	assert.Equal(t, int64(210), body.Position)

	expectError(t, "NotFound", http.StatusNotFound, ts.get(t, "/contigs/global?contig=chrX&position=1"))
	expectError(t, "InvalidRange", http.StatusBadRequest, ts.get(t, "/contigs/global?contig=chr3&position=10"))
	expectError(t, "InvalidInput", http.StatusBadRequest, ts.get(t, "/contigs/global?position=1"))
}

func TestSplit(t *testing.T) {
	ts := newTestServer(t)

	w := ts.get(t, "/contigs/split?begin=190&end=305")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Regions []struct {
			Contig string `json:"contig"`
			Start  int64  `json:"start"`
			End    int64  `json:"end"`
		} `json:"regions"`
	}
	decode(t, w, &body)
	require.Len(t, body.Regions, 3)
	assert.Equal(t, "chr1", body.Regions[0].Contig)
	assert.Equal(t, int64(90), body.Regions[0].Start)
	assert.Equal(t, int64(99), body.Regions[0].End)
	assert.Equal(t, "chr3", body.Regions[2].Contig)
	assert.Equal(t, int64(5), body.Regions[2].End)

	expectError(t, "InvalidRange", http.StatusBadRequest, ts.get(t, "/contigs/split?begin=10&end=5"))
}

func TestContigsAndSamples(t *testing.T) {
	ts := newTestServer(t)

	var contigs struct {
		Contigs []contigJSON `json:"contigs"`
	}
	decode(t, ts.get(t, "/contigs"), &contigs)
	assert.Equal(t, []contigJSON{{"chr1", 100, 100}, {"chr2", 200, 50}, {"chr3", 300, 10}}, contigs.Contigs)

	var samples struct {
		Samples []string `json:"samples"`
	}
	decode(t, ts.get(t, "/samples"), &samples)
	assert.Equal(t, testMetadata.Samples, samples.Samples)

	var sample struct {
		Index int64  `json:"index"`
		Name  string `json:"name"`
	}
	decode(t, ts.get(t, "/samples/2"), &sample)
	assert.Equal(t, "NA12892", sample.Name)

	expectError(t, "InvalidRange", http.StatusBadRequest, ts.get(t, "/samples/3"))
	expectError(t, "InvalidRange", http.StatusBadRequest, ts.get(t, "/samples/-1"))
	expectError(t, "InvalidInput", http.StatusBadRequest, ts.get(t, "/samples/first"))
}

func TestQuery_Column(t *testing.T) {
	ts := newTestServer(t)

	w := ts.query(t, "begin=105")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body queryResponse
	decode(t, w, &body)
	require.Len(t, body.Variants, 1)
	v := body.Variants[0]
	assert.Equal(t, "chr1", v.Contig)
	assert.Equal(t, int64(5), v.Position)
	assert.Equal(t, int64(107), v.End)
	require.Len(t, v.Calls, 2)
	assert.Equal(t, "NA12878", v.Calls[0].Sample)
	assert.Equal(t, "NA12892", v.Calls[1].Sample)
	assert.Nil(t, body.Next)

	assert.Contains(t, ts.hits, analytics.Event("Query", "Query Request Received", "", nil))
}

func TestQuery_SampleFilter(t *testing.T) {
	ts := newTestServer(t)

	var body queryResponse
	decode(t, ts.query(t, "contig=chr1&start=5&end=5&samples=NA12892"), &body)
	require.Len(t, body.Variants, 1)
	require.Len(t, body.Variants[0].Calls, 1)
	assert.Equal(t, "NA12892", body.Variants[0].Calls[0].Sample)

	expectError(t, "NotFound", http.StatusNotFound, ts.query(t, "begin=105&samples=unknown"))
}

func TestQuery_RangePaging(t *testing.T) {
	ts := newTestServer(t)

	var columns []int64
	params := "range=true&contig=chr1&page_size=1"
	for i := 0; ; i++ {
		require.Less(t, i, 5, "paging did not terminate")
		w := ts.query(t, params)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body queryResponse
		decode(t, w, &body)
		for _, v := range body.Variants {
			columns = append(columns, v.Begin)
		}
		if body.Next == nil {
			break
		}
		params = "range=true&contig=chr1&page_size=1&next=" + strconv.FormatInt(*body.Next, 10)
	}
	assert.Equal(t, []int64{105, 150}, columns)

	var body queryResponse
	decode(t, ts.query(t, "range=true&begin=100&end=299&page_size=0"), &body)
	require.Len(t, body.Variants, 4)
	assert.Equal(t, "chr2", body.Variants[3].Contig)
	assert.Equal(t, int64(49), body.Variants[3].Position)
	assert.Nil(t, body.Next)
}

func TestQuery_Errors(t *testing.T) {
	ts := newTestServer(t)
	testCases := []struct {
		name, target, error string
		code                int
	}{
		{"no workspace", "/query/calls?begin=1", "InvalidInput", http.StatusBadRequest},
		{"no begin", "/query/calls?workspace=" + url.QueryEscape(ts.workspace), "InvalidInput", http.StatusBadRequest},
		{"reversed interval", "/query/calls?begin=10&end=5&workspace=" + url.QueryEscape(ts.workspace), "InvalidRange", http.StatusBadRequest},
		{"unknown contig", "/query/calls?contig=chrX&workspace=" + url.QueryEscape(ts.workspace), "NotFound", http.StatusNotFound},
		{"outside contig", "/query/calls?contig=chr3&end=10&workspace=" + url.QueryEscape(ts.workspace), "InvalidRange", http.StatusBadRequest},
		{"bad page size", "/query/calls?range=true&begin=1&page_size=x&workspace=" + url.QueryEscape(ts.workspace), "InvalidInput", http.StatusBadRequest},
		{"missing array", "/query/missing?begin=1&workspace=" + url.QueryEscape(ts.workspace), "NotFound", http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, tc.error, tc.code, ts.get(t, tc.target))
		})
	}
}

func TestQuery_Whitelist(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := variantstore.Load(context.Background(), testMetadata, &engine.ArrayFactory{}, nil)
	require.NoError(t, err)
	server := NewServer(store, 0, nil)
	server.Whitelist([]string{"allowed"})
	router := NewRouter(server, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/query/calls?begin=1&workspace=gs://denied/ws", nil))
	expectError(t, "PermissionDenied", http.StatusForbidden, w)
}

func TestRequestID_Forwarded(t *testing.T) {
	ts := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/samples", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
