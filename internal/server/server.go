// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AlverezYari/facecam/internal/control"
	"github.com/AlverezYari/facecam/internal/imaging"
	"github.com/AlverezYari/facecam/internal/logging"
	"github.com/AlverezYari/facecam/internal/pipeline"
	"github.com/AlverezYari/facecam/internal/recognition"
	"github.com/AlverezYari/facecam/internal/robot"
	"github.com/AlverezYari/facecam/pkg/camera"
)

// Deps are the components the handlers drive. Camera, Pool and Logs are
// optional and only feed /stats and /logs.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Control  *control.Surface
	Gallery  *recognition.Gallery
	Robot    robot.Link
	Camera   *camera.Exclusive
	Pool     *imaging.Pool
	Logs     *logging.Ring
}

type Options struct {
	IP   string
	Port int
	// DetectOnConnect turns detection on whenever a stream opens.
	DetectOnConnect bool
	WriteTimeout    time.Duration
}

// Server runs the control API on Port and the multipart stream on Port+1.
type Server struct {
	opts     Options
	deps     Deps
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	control   *http.Server
	stream    *http.Server
	isRunning bool
}

func New(opts Options, deps Deps, logger *zap.Logger) *Server {
	return &Server{
		opts:   opts,
		deps:   deps,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ControlHandler serves everything except /stream.
func (s *Server) ControlHandler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/", s.handleIndex)
	r.GET("/capture", s.handleCapture)
	r.GET("/control", s.handleControl)
	r.GET("/status", s.handleStatus)
	r.GET("/test1", s.handleRobot)
	r.GET("/test2", func(c *gin.Context) { c.String(http.StatusOK, "index") })
	r.GET("/Test", s.handleStream)
	r.GET("/stats", s.handleStats)
	r.GET("/logs", s.handleLogs)
	r.GET("/gallery", s.handleGallery)
	r.DELETE("/gallery/:id", s.handleGalleryDelete)
	r.GET("/ws/stream", s.handleWebSocketStream)
	return r
}

// StreamHandler serves /stream on its own listener so a long-lived stream
// never holds up control requests.
func (s *Server) StreamHandler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/stream", s.handleStream)
	return r
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Error("server is already running", zap.Int("port", s.opts.Port))
		return fmt.Errorf("server is already running")
	}

	controlLn, err := net.Listen("tcp", net.JoinHostPort(s.opts.IP, strconv.Itoa(s.opts.Port)))
	if err != nil {
		return fmt.Errorf("listening on control port: %w", err)
	}
	streamLn, err := net.Listen("tcp", net.JoinHostPort(s.opts.IP, strconv.Itoa(s.opts.Port+1)))
	if err != nil {
		controlLn.Close()
		return fmt.Errorf("listening on stream port: %w", err)
	}

	s.control = &http.Server{Handler: s.ControlHandler(), ReadHeaderTimeout: 10 * time.Second}
	s.stream = &http.Server{Handler: s.StreamHandler(), ReadHeaderTimeout: 10 * time.Second}

	serve := func(name string, srv *http.Server, ln net.Listener) {
		s.logger.Info("starting listener", zap.String("listener", name), zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.String("listener", name), zap.Error(err))
		}
	}
	go serve("control", s.control, controlLn)
	go serve("stream", s.stream, streamLn)

	s.isRunning = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		s.logger.Error("server stop requested, but server is not running")
		return fmt.Errorf("server is not running")
	}

	s.logger.Info("stopping server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Streams never finish on their own, so the stream listener is closed
	// rather than drained.
	s.stream.Close()
	if err := s.control.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown error", zap.Error(err))
		s.control.Close()
		s.isRunning = false
		return fmt.Errorf("server shutdown error: %v", err)
	}

	s.isRunning = false
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *Server) Port() int {
	return s.opts.Port
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
