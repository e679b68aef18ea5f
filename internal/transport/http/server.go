// Package http is a deliberately thin gin-based boundary over the
// application façade — the full REST endpoint layer is out of scope
// (spec §1); this exists to show the façade's operations invoked over
// HTTP, grounded on the teacher's internal/transport/http/live server
// layout (gin.New, a Recovery+logging middleware chain, an /api route
// group).
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kerner1000/riskmanager/internal/app"
	"github.com/kerner1000/riskmanager/internal/logger"
	"github.com/kerner1000/riskmanager/internal/pkg/text"
)

// Server hosts the /api routes over an *app.Facade.
type Server struct {
	addr   string
	router *gin.Engine
	srv    *http.Server
}

// NewServer builds a Server bound to addr, routing every request
// through facade.
func NewServer(addr string, facade *app.Facade) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	registerRoutes(router.Group("/api"), facade)

	return &Server{addr: addr, router: router}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof("%s %s %d %s", c.Request.Method, text.Truncate(c.Request.URL.Path, 120), c.Writer.Status(), time.Since(start))
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
