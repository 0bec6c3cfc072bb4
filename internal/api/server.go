// internal/api/server.go
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"s7gateway/internal/api/handler"
	"s7gateway/internal/api/route"
	"s7gateway/internal/config"
)

// Server bundles the Gin router and the stdlib http.Server that serves it.
// Unlike the teacher's Server, this one carries no auth/user/admin handlers:
// the REST surface here is trusted, with no session layer in front of it.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	plcHandler *handler.PLCHandler
	cfg        *config.Config
}

// NewServer wires the router to plcHandler's endpoints.
func NewServer(cfg *config.Config, plcHandler *handler.PLCHandler) *Server {
	router := gin.Default()
	return &Server{
		router:     router,
		plcHandler: plcHandler,
		cfg:        cfg,
	}
}

// Run registers routes and starts serving. It blocks until the listener
// fails or Shutdown closes it.
func (s *Server) Run() error {
	route.SetupRoutes(s.router, s.plcHandler)

	s.httpServer = &http.Server{
		Addr:           ":" + s.cfg.Server.Port,
		Handler:        s.router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Printf("api: servidor iniciado na porta %s", s.cfg.Server.Port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
