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
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/gin-gonic/gin"

	"github.com/googlegenomics/variantstore/engine"
	"github.com/googlegenomics/variantstore/internal/analytics"
	"github.com/googlegenomics/variantstore/internal/log"
)

type callJSON struct {
	Sample string            `json:"sample"`
	Row    int64             `json:"row"`
	Begin  int64             `json:"begin"`
	End    int64             `json:"end"`
	Fields map[string]string `json:"fields,omitempty"`
}

type variantJSON struct {
	Begin    int64      `json:"begin"`
	End      int64      `json:"end"`
	Contig   string     `json:"contig,omitempty"`
	Position int64      `json:"position"`
	Calls    []callJSON `json:"calls"`
}

type queryResponse struct {
	Variants []variantJSON `json:"variants"`
	// Next is the column to pass as next to fetch the following page.
	Next *int64 `json:"next,omitempty"`
}

func (server *Server) serveQuery(c *gin.Context) {
	ctx := c.Request.Context()
	track := analytics.TrackerFromContext(ctx)
	track(analytics.Event("Query", "Query Request Received", "", nil))

	array := c.Param("array")
	workspace := c.Query("workspace")
	if workspace == "" {
		writeError(c, newInvalidInputError("parsing workspace", errMissingWorkspace))
		return
	}
	if err := server.checkWhitelist(workspace); err != nil {
		writeError(c, newPermissionDeniedError("checking whitelist", err))
		return
	}

	interval, err := server.parseInterval(c)
	if err != nil {
		writeError(c, err)
		return
	}
	rows, err := server.parseSamples(c.Query("samples"))
	if err != nil {
		writeError(c, err)
		return
	}
	config := engine.QueryConfig{ColumnIntervals: []engine.Interval{interval}, Rows: rows}

	var variants []engine.Variant
	var next *int64
	if c.Query("range") == "true" {
		paging, err := server.parsePaging(c)
		if err != nil {
			writeError(c, err)
			return
		}
		if err := server.store.QueryColumnRange(ctx, workspace, array, 0, &variants, config, paging); err != nil {
			track(analytics.Event("Query", "Query Internal Error", "", nil))
			writeError(c, translateError("querying range", err))
			return
		}
		if !paging.Done {
			next = &paging.NextColumn
		}
	} else {
		var v engine.Variant
		if err := server.store.QueryColumn(ctx, workspace, array, 0, &v, config); err != nil {
			track(analytics.Event("Query", "Query Internal Error", "", nil))
			writeError(c, translateError("querying column", err))
			return
		}
		variants = append(variants, v)
	}

	response, err := server.annotate(variants)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Next = next
	log.FromContext(ctx, server.logger).Debug("answered query",
		"workspace", workspace, "array", array, "begin", interval.Begin, "end", interval.End, "variants", len(variants))
	c.JSON(http.StatusOK, response)

	count := int64(len(variants))
	track(analytics.Event("Query", "Query Response Variant Count", "", &count))
	track(analytics.Event("Query", "Query Response Sent", "", nil))
}

// parseInterval reads either a global begin/end pair or a contig with
// optional local start/end positions.  Ends are inclusive.
func (server *Server) parseInterval(c *gin.Context) (engine.Interval, error) {
	if name := c.Query("contig"); name != "" {
		ct, ok := server.store.Registry().Contig(name)
		if !ok {
			return engine.Interval{}, newNotFoundError("resolving contig", fmt.Errorf("unknown contig %q", name))
		}
		start, end := int64(0), ct.Length-1
		var err error
		if value := c.Query("start"); value != "" {
			if start, err = strconv.ParseInt(value, 10, 64); err != nil {
				return engine.Interval{}, newInvalidInputError("parsing start", err)
			}
		}
		if value := c.Query("end"); value != "" {
			if end, err = strconv.ParseInt(value, 10, 64); err != nil {
				return engine.Interval{}, newInvalidInputError("parsing end", err)
			}
		}
		if start < 0 || end >= ct.Length || start > end {
			return engine.Interval{}, newInvalidRangeError(fmt.Errorf("%s:%d-%d outside contig of length %d", name, start, end, ct.Length))
		}
		return engine.Interval{Begin: ct.Offset + start, End: ct.Offset + end}, nil
	}

	begin, err := parsePosition(c, "begin")
	if err != nil {
		return engine.Interval{}, newInvalidInputError("parsing begin", err)
	}
	end := begin
	if c.Query("end") != "" {
		if end, err = parsePosition(c, "end"); err != nil {
			return engine.Interval{}, newInvalidInputError("parsing end", err)
		}
	}
	if end < begin {
		return engine.Interval{}, newInvalidRangeError(fmt.Errorf("begin %d > end %d", begin, end))
	}
	return engine.Interval{Begin: begin, End: end}, nil
}

// parseSamples converts a comma-separated list of sample names to a row
// filter.  An empty list selects every row.
func (server *Server) parseSamples(list string) (*roaring.Bitmap, error) {
	if list == "" {
		return nil, nil
	}
	rows := roaring.New()
	for _, name := range strings.Split(list, ",") {
		row, ok := server.store.Samples().Index(name)
		if !ok {
			return nil, newNotFoundError("resolving samples", fmt.Errorf("unknown sample %q", name))
		}
		rows.Add(uint32(row))
	}
	return rows, nil
}

func (server *Server) parsePaging(c *gin.Context) (*engine.PagingInfo, error) {
	paging := &engine.PagingInfo{PageSize: server.defaultPageSize}
	if value := c.Query("page_size"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, newInvalidInputError("parsing page_size", fmt.Errorf("invalid page size %q", value))
		}
		paging.PageSize = n
	}
	if value := c.Query("next"); value != "" {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, newInvalidInputError("parsing next", err)
		}
		paging.NextColumn, paging.Started = n, true
	}
	return paging, nil
}

func (server *Server) annotate(variants []engine.Variant) (queryResponse, error) {
	response := queryResponse{Variants: make([]variantJSON, 0, len(variants))}
	for _, v := range variants {
		out := variantJSON{Begin: v.Begin, End: v.End, Position: -1, Calls: make([]callJSON, 0, len(v.Calls))}
		// Columns outside every contig, including those before the first
		// one, are reported without a contig.
		if location, ok, err := server.store.Locate(v.Begin); err == nil && ok {
			out.Contig, out.Position = location.Contig, location.Position
		}
		for _, call := range v.Calls {
			name, err := server.store.SampleName(call.Row)
			if err != nil {
				return queryResponse{}, fmt.Errorf("annotating call: %w", err)
			}
			out.Calls = append(out.Calls, callJSON{name, call.Row, call.Begin, call.End, call.Fields})
		}
		response.Variants = append(response.Variants, out)
	}
	return response, nil
}
