// Package server exposes the chat hub over HTTP: the WebSocket endpoint,
// health probes and metrics.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/omochice/support-chat/internal/auth"
	"github.com/omochice/support-chat/internal/chat"
	"github.com/omochice/support-chat/internal/config"
	"github.com/omochice/support-chat/internal/platformerrors"
	"github.com/omochice/support-chat/internal/transport/ws"
	"github.com/omochice/support-chat/pkg/protocol"
)

// Readiness reports whether a dependency can serve traffic.
type Readiness interface {
	Ready() bool
}

// HTTPServer is the HTTP server of the chat service.
type HTTPServer struct {
	cfg      *config.Config
	engine   *gin.Engine
	log      zerolog.Logger
	hub      *chat.Hub
	handler  chat.Handler
	verifier *auth.Verifier
	ready    Readiness

	// parent of every session context; replaced by Run
	baseCtx context.Context
}

// New creates the HTTP server and registers its routes.
func New(
	cfg *config.Config,
	log zerolog.Logger,
	hub *chat.Hub,
	handler chat.Handler,
	verifier *auth.Verifier,
	ready Readiness,
) *HTTPServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(RequestLogger(log))

	s := &HTTPServer{
		cfg:      cfg,
		engine:   engine,
		log:      log.With().Str("component", "http").Logger(),
		hub:      hub,
		handler:  handler,
		verifier: verifier,
		ready:    ready,
		baseCtx:  context.Background(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

func (s *HTTPServer) registerRoutes() {
	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": s.cfg.ServiceName,
			"status":  "ok",
		})
	})

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	s.engine.GET("/readyz", func(c *gin.Context) {
		if s.ready != nil && !s.ready.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "ready",
			"sessions": s.hub.SessionCount(),
		})
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.GET("/ws", s.handleWebSocket)
}

// handleWebSocket authenticates, upgrades and serves one chat session.
// Unauthenticated requests are rejected before any session exists.
func (s *HTTPServer) handleWebSocket(c *gin.Context) {
	identity, err := s.verifier.VerifyRequest(c.Request)
	if err != nil {
		s.log.Debug().Err(err).Str("request_id", GetRequestID(c)).Msg("websocket authentication failed")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "unauthorized",
			"code":  platformerrors.ErrorTypeUnauthorized.Code(),
		})
		return
	}
	codec := protocol.ParseCodec(c.Query("codec"))

	conn, err := ws.Accept(c.Writer, c.Request)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session, err := s.hub.Open(conn, identity, codec)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", identity.UserID).Msg("failed to open session")
		_ = conn.Close()
		return
	}
	s.hub.Serve(s.baseCtx, session, s.handler)
}

// Run starts the HTTP server and blocks until ctx is cancelled. On the way
// out it stops accepting requests and closes every chat session.
func (s *HTTPServer) Run(ctx context.Context) error {
	s.baseCtx = ctx
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		s.hub.Shutdown()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	s.hub.Shutdown()
	return err
}
