// Package server exposes recorded scenario runs and metrics over HTTP for
// `droidbg serve`.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/droidbg/internal/history"
	"github.com/loykin/droidbg/internal/metrics"
)

// Router provides embeddable HTTP handlers over the run history.
// Endpoints:
//
//	GET {basePath}/runs      query: limit=N (default 50)
//	GET {basePath}/healthz
//	GET /metrics
type Router struct {
	lister   history.Lister
	basePath string
}

// NewRouter constructs a Router with configurable basePath, e.g. "/api".
func NewRouter(lister history.Lister, basePath string) *Router {
	return &Router{lister: lister, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/runs", r.handleRuns)
	group.GET("/healthz", r.handleHealth)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, lister history.Lister) (*http.Server, error) {
	r := NewRouter(lister, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleRuns(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := r.lister.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(c, http.StatusOK, runs)
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}
