package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"trading-relay/src/config"
	"trading-relay/src/gateway"
	"trading-relay/src/hub"
	"trading-relay/src/interfaces"
	"trading-relay/src/logger"
	"trading-relay/src/state"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// -----------------------------------------------------------------------------
// RelayServer
// -----------------------------------------------------------------------------

// RelayServer exposes the gateway commands over REST and the broadcast hub
// over a websocket push channel.
type RelayServer struct {
	Config *config.Config
	Logger *logger.Logger
	engine *gin.Engine
	http   *http.Server

	gw    *gateway.Gateway
	hub   *hub.Hub
	link  interfaces.IUpstreamLink
	store *state.StateStore

	ctx    context.Context
	cancel context.CancelFunc
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewRelayServer(cfg *config.Config, gw *gateway.Gateway, h *hub.Hub, link interfaces.IUpstreamLink,
	store *state.StateStore, log *logger.Logger) *RelayServer {

	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &RelayServer{
		Config: cfg,
		Logger: log,
		engine: gin.New(),
		gw:     gw,
		hub:    h,
		link:   link,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}

	s.engine.Use(gin.Recovery(), requestLogger(log), cors())
	s.setupRoutes()
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogger writes one line per request. Query strings and bodies are
// left out; account endpoints carry credentials.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	z := log.Zap().Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		z.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Handler returns the router, for tests and embedding.
func (s *RelayServer) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called.
func (s *RelayServer) Start() error {
	s.Logger.Info("Starting server on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes push clients and shuts the listener down.
func (s *RelayServer) Stop(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}
