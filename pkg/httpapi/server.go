// Package httpapi is the ambient operator-facing HTTP surface: a health
// endpoint reporting database reachability and admission throughput. It is
// not part of the experiment orchestration core, but every long-running
// process needs one, so this does too.
//
// Follows a familiar gin.Engine wiring and route registration shape, with
// an inline /health handler reporting database health plus configuration
// stats, adapted to the one subsystem this core actually has to report
// on: the store and the admission pool.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mazerunner/harness/pkg/store"
	"github.com/mazerunner/harness/pkg/version"
)

// PoolStats is the subset of *admission.Pool the health handler needs,
// narrowed to an interface so tests can substitute a fake pool without
// constructing a real store-backed one.
type PoolStats interface {
	SessionsProcessed() int
}

// Server is the operator HTTP surface.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	store      *store.Client
	pool       PoolStats
}

// NewServer builds a Server and registers its routes.
func NewServer(storeClient *store.Client, pool PoolStats) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, store: storeClient, pool: pool}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.healthHandler)
}

// healthHandler handles GET /health: database reachability plus admission
// throughput, the only two things an operator needs to know this process
// is alive and making progress.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := s.store.Health(reqCtx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	body := gin.H{
		"status":   "healthy",
		"version":  version.Full(),
		"database": dbHealth,
	}
	if s.pool != nil {
		body["admission"] = gin.H{"experiments_admitted": s.pool.SessionsProcessed()}
	}
	c.JSON(http.StatusOK, body)
}

// Start starts the HTTP server on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts on a pre-created listener. Blocks until the
// server stops. The process entrypoint binds the listener itself and
// starts the server through this method.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
