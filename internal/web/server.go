// Package web provides the HTTP surface of the coin pulser: the game page,
// the coin trigger endpoint, the admin configuration API, status, history,
// metrics and a websocket feed of pulse events.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/coin-pulser/internal/assets"
	"github.com/sweeney/coin-pulser/internal/logger"
	"github.com/sweeney/coin-pulser/internal/logic"
	"github.com/sweeney/coin-pulser/internal/repository"
	"github.com/sweeney/coin-pulser/internal/settings"
	"github.com/sweeney/coin-pulser/internal/status"
)

// Trigger queues a pulse request for the control loop. It must not block.
type Trigger interface {
	Submit(source logic.Source) bool
}

// Settings is the configuration gate as seen by the admin API.
type Settings interface {
	Game() settings.GameConfig
	Network() settings.NetworkCredentials
	Authorize(password string) error
	ApplyUpdate(ctx context.Context, password string, u settings.Update) (settings.Result, error)
}

// History lists recent pulse events.
type History interface {
	List(ctx context.Context, limit int) ([]repository.PulseRecord, error)
}

// Assets serves cached UI files.
type Assets interface {
	Get(name string) (assets.File, bool)
}

// Deps are the collaborators behind the routes. History, Assets, Metrics
// and Hub may be nil; their routes then degrade.
type Deps struct {
	Trigger  Trigger
	Settings Settings
	Tracker  *status.Tracker
	History  History
	Assets   Assets
	Metrics  http.Handler
	Hub      *Hub
	Log      *logger.Logger
}

// Server serves the web UI and API over HTTP.
type Server struct {
	httpServer *http.Server
	deps       Deps
	log        *logger.Logger
}

// New creates a Server listening on addr.
func New(addr string, d Deps) *Server {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	s := &Server{deps: d, log: d.Log}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger)

	r.GET("/", s.handleRoot)
	r.GET("/assets/*path", s.handleAsset)
	r.GET("/insert_coin", s.handleInsertCoin)

	api := r.Group("/api")
	{
		api.GET("/config", s.handleGetConfig)
		api.POST("/config", s.handleSaveConfig)
		api.POST("/login", s.handleLogin)
		api.GET("/status", s.handleStatus)
		api.GET("/pulses", s.handlePulses)
	}

	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
	if s.deps.Hub != nil {
		r.GET("/ws", s.deps.Hub.ServeWS)
	}

	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not found")
	})
	return r
}

func (s *Server) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debugw("http_request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Handler returns the HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
