// internal/logging/logging.go

package logging

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RingSize is how many recent entries a Ring keeps.
const RingSize = 100

type Options struct {
	Level       string
	File        string
	Development bool
}

// Entry is one log line kept for the console and /logs.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Ring keeps the most recent entries in memory.
type Ring struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
}

func NewRing(size int) *Ring {
	return &Ring{entries: make([]Entry, 0, size), size: size}
}

func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.size {
		r.entries = r.entries[1:]
	}
	r.mu.Unlock()
}

// Recent returns up to n entries, oldest first. n <= 0 returns everything.
func (r *Ring) Recent(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.entries) {
		n = len(r.entries)
	}
	out := make([]Entry, n)
	copy(out, r.entries[len(r.entries)-n:])
	return out
}

func (r *Ring) hook(e zapcore.Entry) error {
	r.Add(Entry{Timestamp: e.Time, Level: e.Level.CapitalString(), Message: e.Message})
	return nil
}

// New builds the process logger. Output goes to stderr and, when opts.File
// is set, to that file as JSON. Every entry at or above the level is also
// kept in the returned Ring.
func New(opts Options) (*zap.Logger, *Ring, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	consoleCfg := zap.NewProductionEncoderConfig()
	if opts.Development {
		consoleCfg = zap.NewDevelopmentEncoderConfig()
	}
	consoleCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
	}

	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), level))
	}

	ring := NewRing(RingSize)
	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.Hooks(ring.hook))
	if opts.Development {
		logger = logger.WithOptions(zap.Development())
	}
	return logger, ring, nil
}

// Attach returns a logger that also records into ring, for callers that
// build their own zap logger (tests, embedding).
func Attach(logger *zap.Logger, ring *Ring) *zap.Logger {
	return logger.WithOptions(zap.Hooks(ring.hook))
}
