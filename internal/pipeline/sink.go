package pipeline

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Boundary separates the parts of a multipart stream.
const Boundary = "1234567890000000000000987654321"

// StreamContentType is the Content-Type of a multipart stream response.
const StreamContentType = "multipart/x-mixed-replace;boundary=" + Boundary

const partBoundary = "\r\n--" + Boundary + "\r\n"

// Sink delivers encoded frames to one client.
type Sink interface {
	WriteFrame(jpeg []byte) error
}

// MultipartSink writes frames as multipart/x-mixed-replace parts: the part
// header, the JPEG bytes and the boundary, each as its own write.
type MultipartSink struct {
	w       io.Writer
	flusher http.Flusher
}

func NewMultipartSink(w io.Writer) *MultipartSink {
	s := &MultipartSink{w: w}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

func (s *MultipartSink) WriteFrame(jpeg []byte) error {
	header := fmt.Sprintf("Content-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg))
	if _, err := io.WriteString(s.w, header); err != nil {
		return fmt.Errorf("writing part header: %w", err)
	}
	if _, err := s.w.Write(jpeg); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	if _, err := io.WriteString(s.w, partBoundary); err != nil {
		return fmt.Errorf("writing boundary: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// WebSocketSink sends each frame as one binary message.
type WebSocketSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	return &WebSocketSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *WebSocketSink) WriteFrame(jpeg []byte) error {
	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, jpeg); err != nil {
		return fmt.Errorf("error writing message to websocket: %w", err)
	}
	return nil
}
