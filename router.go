package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/choraleia/opengpt/pkg/auth"
	"github.com/choraleia/opengpt/pkg/completion"
	"github.com/choraleia/opengpt/pkg/config"
	"github.com/choraleia/opengpt/pkg/event"
	"github.com/choraleia/opengpt/pkg/handler"
	"github.com/choraleia/opengpt/pkg/history"
	"github.com/choraleia/opengpt/pkg/utils"
)

// Services bundles what the HTTP layer needs from the rest of the process.
type Services struct {
	History     *history.Repository
	Users       *auth.Service
	Completions *completion.Service
	Emitter     *event.Emitter
}

type Server struct {
	ginEngine *gin.Engine
	cfg       *config.AppConfig
	services  Services
	logger    *slog.Logger
	port      int
	done      chan struct{}
}

func NewServer(cfg *config.AppConfig, services Services) *Server {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	ginEngine.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	if dir := strings.TrimSpace(cfg.Server.StaticDir); dir != "" {
		attachStatic(ginEngine, dir)
	}

	server := &Server{
		ginEngine: ginEngine,
		cfg:       cfg,
		services:  services,
		logger:    utils.GetLogger(),
		done:      make(chan struct{}),
	}

	server.SetupRoutes()

	return server
}

// corsMiddleware echoes allowed origins and credentials so the browser
// keeps sending the session cookie. Localhost origins are always allowed.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// No Origin header means this is not a browser CORS request.
		if origin != "" {
			if !allowed[origin] && !isLocalOrigin(origin) {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func isLocalOrigin(origin string) bool {
	for _, prefix := range []string{
		"http://localhost", "http://127.0.0.1",
		"https://localhost", "https://127.0.0.1",
	} {
		if origin == prefix || strings.HasPrefix(origin, prefix+":") {
			return true
		}
	}
	return false
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.ginEngine
}

// Port returns the bound port once Start has succeeded.
func (s *Server) Port() int {
	return s.port
}

// Start listens on the configured address and serves until ctx is cancelled.
// It returns once the listener is bound; use Wait to block until shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host(), strconv.Itoa(s.cfg.Port()))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Attempt to listen first; if the port is occupied return immediately.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = s.cfg.Port()
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(s.done)
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", "error", err)
		}
		errChan <- err
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Graceful shutdown failed", "error", err)
		}
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}

	s.logger.Info("Listening", "addr", ln.Addr().String())
	return nil
}

// Wait blocks until the server has stopped serving.
func (s *Server) Wait() {
	<-s.done
}

// SetupRoutes registers /healthz, the public user and completion routes, and
// the session-protected history and event routes under /api.
func (s *Server) SetupRoutes() {
	// GET /healthz
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.ginEngine.Group("/api")

	// Public routes
	handler.NewUserHandler(s.services.Users, s.cfg.CookieName(), s.cfg.Auth.SecureCookie).RegisterRoutes(api)
	handler.NewCompletionHandler(s.services.Completions).RegisterRoutes(api)

	// Everything below requires a session.
	authed := api.Group("", auth.Middleware(s.services.Users.Tokens(), s.cfg.CookieName()))
	handler.NewHistoryHandler(s.services.History).RegisterRoutes(authed)

	eventsHandler := event.NewWSHandler(s.services.Emitter, auth.UserID)
	authed.GET("/events/ws", eventsHandler.Handle)
}
