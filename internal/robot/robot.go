// internal/robot/robot.go
package robot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// ErrLinkClosed is returned by Send after Close.
var ErrLinkClosed = errors.New("robot link closed")

// Link carries opaque command payloads to the robot body.
type Link interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// SerialLink writes newline-terminated payloads to a UART such as
// /dev/ttyUSB0, opened 8N1 at the configured baud rate.
type SerialLink struct {
	mu     sync.Mutex
	port   io.WriteCloser
	logger *zap.Logger
}

var openPort = func(device string, mode *serial.Mode) (io.WriteCloser, error) {
	return serial.Open(device, mode)
}

func OpenSerial(device string, baud int, logger *zap.Logger) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := openPort(device, mode)
	if err != nil {
		return nil, fmt.Errorf("error opening robot device %s: %w", device, err)
	}
	logger.Info("robot link open", zap.String("device", device), zap.Int("baud", baud))
	return &SerialLink{port: port, logger: logger}, nil
}

func (l *SerialLink) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return ErrLinkClosed
	}

	line := make([]byte, 0, len(payload)+1)
	line = append(append(line, payload...), '\n')
	if _, err := l.port.Write(line); err != nil {
		return fmt.Errorf("writing to robot: %w", err)
	}
	l.logger.Debug("robot command sent", zap.Int("bytes", len(payload)))
	return nil
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// LogLink records commands in the log instead of driving hardware.
type LogLink struct {
	logger *zap.Logger
}

func NewLogLink(logger *zap.Logger) *LogLink {
	return &LogLink{logger: logger}
}

func (l *LogLink) Send(ctx context.Context, payload []byte) error {
	l.logger.Info("robot command", zap.ByteString("payload", payload))
	return nil
}

func (l *LogLink) Close() error { return nil }
