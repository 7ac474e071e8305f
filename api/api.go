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

// Package api exposes coordinate translation, sample lookup and variant
// queries over HTTP.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	variantstore "github.com/googlegenomics/variantstore"
	"github.com/googlegenomics/variantstore/engine"
	"github.com/googlegenomics/variantstore/internal/analytics"
	"github.com/googlegenomics/variantstore/internal/contig"
	"github.com/googlegenomics/variantstore/internal/log"
	"github.com/googlegenomics/variantstore/internal/storage"
)

// RequestIDHeader carries the ID assigned to each request.
const RequestIDHeader = "X-Request-ID"

var errMissingWorkspace = errors.New("no workspace specified")

// Server serves a Store.  Must be created with NewServer.
type Server struct {
	store           *variantstore.Store
	defaultPageSize int
	whitelist       map[string]bool
	logger          *slog.Logger
}

// NewServer returns a Server answering from store.  Range queries without a
// page_size are limited to defaultPageSize variants; zero means unlimited.
func NewServer(store *variantstore.Store, defaultPageSize int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store, defaultPageSize, make(map[string]bool), logger}
}

// Whitelist adds buckets to the set of buckets which the server is allowed to
// access. If Whitelist is never called for a given Server then reads from any
// bucket are allowed.
func (server *Server) Whitelist(buckets []string) {
	for _, bucket := range buckets {
		server.whitelist[bucket] = true
	}
}

// Export registers the API endpoints with router.
func (server *Server) Export(router gin.IRouter) {
	router.Use(requestID(), forwardOrigin())

	router.GET("/contigs", server.serveContigs)
	router.GET("/contigs/locate", server.serveLocate)
	router.GET("/contigs/next", server.serveNext)
	router.GET("/contigs/global", server.serveGlobal)
	router.GET("/contigs/split", server.serveSplit)
	router.GET("/samples", server.serveSamples)
	router.GET("/samples/:index", server.serveSample)
	router.GET("/query/:array", server.serveQuery)
}

// NewRouter returns a gin engine serving server.  When track is not nil,
// usage hits collected while handling each request are passed to it.
func NewRouter(server *Server, track func([]analytics.Hit)) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if track != nil {
		router.Use(analytics.Middleware(track))
	}
	server.Export(router)
	return router
}

type contigJSON struct {
	Name   string `json:"name"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

func (server *Server) serveContigs(c *gin.Context) {
	var contigs []contigJSON
	for _, ct := range server.store.Registry().Sorted() {
		contigs = append(contigs, contigJSON{ct.Name, ct.Offset, ct.Length})
	}
	c.JSON(http.StatusOK, gin.H{"contigs": contigs})
}

func (server *Server) serveLocate(c *gin.Context) {
	position, err := parsePosition(c, "position")
	if err != nil {
		writeError(c, newInvalidInputError("parsing position", err))
		return
	}
	location, ok, err := server.store.Locate(position)
	if err != nil {
		writeError(c, newInvalidRangeError(err))
		return
	}
	if !ok {
		writeError(c, newNotFoundError("locating position", fmt.Errorf("column %d is not inside a contig", position)))
		return
	}
	c.JSON(http.StatusOK, gin.H{"contig": location.Contig, "position": location.Position})
}

func (server *Server) serveNext(c *gin.Context) {
	position, err := parsePosition(c, "position")
	if err != nil {
		writeError(c, newInvalidInputError("parsing position", err))
		return
	}
	next := server.store.NextAfter(position)
	c.JSON(http.StatusOK, gin.H{"contig": next.Contig, "offset": next.Offset})
}

func (server *Server) serveGlobal(c *gin.Context) {
	name := c.Query("contig")
	if name == "" {
		writeError(c, newInvalidInputError("parsing contig", errors.New("no contig specified")))
		return
	}
	position, err := parsePosition(c, "position")
	if err != nil {
		writeError(c, newInvalidInputError("parsing position", err))
		return
	}
	global, err := server.store.Registry().ToGlobal(name, position)
	if err != nil {
		writeError(c, translateError("translating position", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": global})
}

func (server *Server) serveSplit(c *gin.Context) {
	begin, err := parsePosition(c, "begin")
	if err != nil {
		writeError(c, newInvalidInputError("parsing begin", err))
		return
	}
	end, err := parsePosition(c, "end")
	if err != nil {
		writeError(c, newInvalidInputError("parsing end", err))
		return
	}
	if end < begin {
		writeError(c, newInvalidRangeError(fmt.Errorf("begin %d > end %d", begin, end)))
		return
	}
	regions := []gin.H{}
	for _, region := range server.store.Registry().Split(begin, end) {
		regions = append(regions, gin.H{"contig": region.Contig, "start": region.Start, "end": region.End})
	}
	c.JSON(http.StatusOK, gin.H{"regions": regions})
}

func (server *Server) serveSamples(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"samples": server.store.Samples().Names()})
}

func (server *Server) serveSample(c *gin.Context) {
	index, err := strconv.ParseInt(c.Param("index"), 10, 64)
	if err != nil {
		writeError(c, newInvalidInputError("parsing sample index", err))
		return
	}
	if index < 0 || index >= server.store.Samples().Len() {
		writeError(c, newInvalidRangeError(fmt.Errorf("sample index %d outside [0, %d)", index, server.store.Samples().Len())))
		return
	}
	name, err := server.store.SampleName(index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "name": name})
}

func (server *Server) checkWhitelist(workspace string) error {
	if len(server.whitelist) == 0 {
		return nil
	}
	location, err := storage.ParseWorkspace(workspace)
	if err != nil {
		return err
	}
	if server.whitelist[location.Bucket] {
		return nil
	}
	return fmt.Errorf("access to bucket %s is not allowed", location.Bucket)
}

func parsePosition(c *gin.Context, name string) (int64, error) {
	value := c.Query(name)
	if value == "" {
		return 0, fmt.Errorf("no %s specified", name)
	}
	return strconv.ParseInt(value, 10, 64)
}

// apiError is used to capture errors that have been defined in the API.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func (err *apiError) Unwrap() error {
	return err.cause
}

func newApiError(name string, code int, context string, err error) error {
	return &apiError{name, code, fmt.Errorf("%s: %w", context, err)}
}

func newInvalidInputError(context string, err error) error {
	return newApiError("InvalidInput", http.StatusBadRequest, context, err)
}

func newInvalidRangeError(err error) error {
	return &apiError{"InvalidRange", http.StatusBadRequest, err}
}

func newPermissionDeniedError(context string, err error) error {
	return newApiError("PermissionDenied", http.StatusForbidden, context, err)
}

func newNotFoundError(context string, err error) error {
	return newApiError("NotFound", http.StatusNotFound, context, err)
}

// translateError maps library errors onto the API's named errors.
func translateError(context string, err error) error {
	switch {
	case errors.Is(err, contig.ErrUnknownContig),
		errors.Is(err, engine.ErrArrayNotFound),
		errors.Is(err, storage.ErrObjectNotExist):
		return newNotFoundError(context, err)
	case errors.Is(err, contig.ErrOutOfRange),
		errors.Is(err, contig.ErrContractViolation),
		errors.Is(err, engine.ErrInvalidInterval):
		return &apiError{"InvalidRange", http.StatusBadRequest, fmt.Errorf("%s: %w", context, err)}
	case storage.IsPermissionError(err):
		return newPermissionDeniedError(context, err)
	}
	return fmt.Errorf("%s: %w", context, err)
}

// writeError writes either a JSON object or bare HTTP error describing err.
// A JSON object is written only when the error has a name and code defined
// by the API.
func writeError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.code, gin.H{
			"error":   apiErr.name,
			"message": fmt.Sprintf("%s: %v", http.StatusText(apiErr.code), apiErr.cause),
		})
		return
	}

	log.FromContext(c.Request.Context(), nil).Error("request failed", "path", c.Request.URL.Path, "error", err)
	c.String(http.StatusInternalServerError, "%s: %v", http.StatusText(http.StatusInternalServerError), err)
}

// requestID tags each request with an ID, reusing the caller's when given.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(log.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func forwardOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Next()
	}
}
