package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AlverezYari/facecam/internal/control"
	"github.com/AlverezYari/facecam/internal/imaging"
	"github.com/AlverezYari/facecam/internal/logging"
	"github.com/AlverezYari/facecam/internal/pipeline"
	"github.com/AlverezYari/facecam/internal/recognition"
	"github.com/AlverezYari/facecam/pkg/camera"
	"github.com/AlverezYari/facecam/web"
)

func allowAnyOrigin(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.Index)
}

func (s *Server) handleCapture(c *gin.Context) {
	enc, res, err := s.deps.Pipeline.Capture(c.Request.Context())
	if err != nil {
		s.logger.Error("camera capture failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer enc.Release()

	s.logger.Debug("JPG",
		zap.Int("bytes", enc.Len()),
		zap.Duration("took", res.Duration),
		zap.Int("faces", res.Faces))
	c.Header("Content-Disposition", "inline; filename=capture.jpg")
	allowAnyOrigin(c)
	c.Data(http.StatusOK, "image/jpeg", enc.Bytes())
}

func (s *Server) handleControl(c *gin.Context) {
	key, okKey := c.GetQuery("var")
	raw, okVal := c.GetQuery("val")
	if !okKey || !okVal || key == "" {
		c.Status(http.StatusNotFound)
		return
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	err = s.deps.Control.Apply(key, val)
	switch {
	case errors.Is(err, control.ErrUnknownKey):
		c.Status(http.StatusNotFound)
	case errors.Is(err, control.ErrRejectedByDevice):
		s.logger.Warn("control rejected", zap.String("var", key), zap.Int("val", val), zap.Error(err))
		c.Status(http.StatusInternalServerError)
	case err != nil:
		c.Status(http.StatusInternalServerError)
	default:
		allowAnyOrigin(c)
		c.Status(http.StatusOK)
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	data, err := json.Marshal(s.deps.Control.Status())
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	allowAnyOrigin(c)
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) handleRobot(c *gin.Context) {
	payload, ok := c.GetQuery("var")
	if !ok || payload == "" {
		c.Status(http.StatusNotFound)
		return
	}
	if err := s.deps.Robot.Send(c.Request.Context(), []byte(payload)); err != nil {
		s.logger.Error("robot link send failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	allowAnyOrigin(c)
	c.Status(http.StatusOK)
}

// streamOpened applies the detect-on-connect option.
func (s *Server) streamOpened() {
	if s.opts.DetectOnConnect {
		s.deps.Control.State().SetDetection(true)
	}
}

func (s *Server) handleStream(c *gin.Context) {
	s.streamOpened()

	allowAnyOrigin(c)
	c.Header("Content-Type", pipeline.StreamContentType)
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	err := s.deps.Pipeline.Stream(c.Request.Context(), pipeline.NewMultipartSink(c.Writer))
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Info("stream ended", zap.String("remote", c.ClientIP()), zap.Error(err))
	}
}

func (s *Server) handleWebSocketStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("error upgrading websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()
	s.streamOpened()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reading is the only way to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = s.deps.Pipeline.Stream(ctx, pipeline.NewWebSocketSink(conn, s.opts.WriteTimeout))
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Info("websocket stream ended", zap.String("remote", c.ClientIP()), zap.Error(err))
	}
}

// Stats is the /stats document.
type Stats struct {
	pipeline.Snapshot
	Gallery         int                   `json:"gallery"`
	GalleryCapacity int                   `json:"gallery_capacity"`
	Camera          *camera.CheckoutStats `json:"camera,omitempty"`
	Buffers         *imaging.PoolStats    `json:"buffers,omitempty"`
	Toggles         control.Toggles       `json:"toggles"`
}

func (s *Server) stats() Stats {
	st := Stats{
		Snapshot: s.deps.Pipeline.Stats().Snapshot(),
		Toggles:  s.deps.Control.State().Snapshot(),
	}
	if g := s.deps.Gallery; g != nil {
		st.Gallery, st.GalleryCapacity = g.Len(), g.Capacity()
	}
	if s.deps.Camera != nil {
		cs := s.deps.Camera.Stats()
		st.Camera = &cs
	}
	if s.deps.Pool != nil {
		ps := s.deps.Pool.Stats()
		st.Buffers = &ps
	}
	return st
}

func (s *Server) handleStats(c *gin.Context) {
	allowAnyOrigin(c)
	c.JSON(http.StatusOK, s.stats())
}

func (s *Server) handleLogs(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("n", "0"))
	entries := []logging.Entry{}
	if s.deps.Logs != nil {
		entries = s.deps.Logs.Recent(n)
	}
	allowAnyOrigin(c)
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleGallery(c *gin.Context) {
	ids := []recognition.Identity{}
	if s.deps.Gallery != nil {
		ids = s.deps.Gallery.List()
	}
	allowAnyOrigin(c)
	c.JSON(http.StatusOK, ids)
}

func (s *Server) handleGalleryDelete(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || s.deps.Gallery == nil || !s.deps.Gallery.Remove(id) {
		c.Status(http.StatusNotFound)
		return
	}
	s.logger.Info("identity removed", zap.Int("id", id))
	allowAnyOrigin(c)
	c.Status(http.StatusNoContent)
}
