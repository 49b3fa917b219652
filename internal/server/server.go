// Package server serves the browser chat: the embedded page, a small JSON
// API for models and session settings, and turn streaming over SSE or
// websocket. Every turn goes through services.TurnService.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"akashchat/internal/logger"
	"akashchat/internal/services"
)

// SessionCookie names the cookie holding the chat session id.
const SessionCookie = "akashchat_session"

const (
	defaultKeepAlive = 15 * time.Second
	shutdownTimeout  = 10 * time.Second
	sessionKey       = "akashchat.session"
)

var serverLog = logger.NewStyledLogger("server")

// Options holds the server's dependencies.
type Options struct {
	Sessions *services.ChatSessionService
	Catalog  *services.ModelCatalogService
	Turns    *services.TurnService
	Thinking *services.ThinkingRendererService

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// SessionTTL sets the cookie lifetime. Zero makes it a browser-session cookie.
	SessionTTL time.Duration

	// KeepAlive is the SSE comment interval while a turn is running.
	KeepAlive time.Duration
}

// Server is the browser presentation shell.
type Server struct {
	opts   Options
	router *gin.Engine
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Thinking == nil {
		opts.Thinking = services.NewThinkingRendererService()
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{opts: opts, router: gin.New()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(gin.Recovery(), requestLogger(), otelgin.Middleware("akashchat"))

	r.GET("/", s.handleIndex)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/models", s.handleModels)

	withSession := api.Group("", s.sessionMiddleware())
	withSession.GET("/session", s.handleSession)
	withSession.DELETE("/session", s.handleResetSession)
	withSession.PUT("/session/settings", s.handleUpdateSettings)
	withSession.POST("/chat", s.handleChat)
	withSession.GET("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		serverLog.Info("Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		serverLog.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		serverLog.Debug("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String())
	}
}
