package camera

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Exclusive enforces at most one checked-out frame across all callers. A
// second Acquire while a frame is outstanding fails immediately with
// ErrCameraUnavailable instead of waiting.
type Exclusive struct {
	src  FrameSource
	busy atomic.Bool

	acquired atomic.Int64
	released atomic.Int64
	rejected atomic.Int64
}

// CheckoutStats counts frames handed out and returned through an Exclusive.
type CheckoutStats struct {
	Acquired int64 `json:"acquired"`
	Released int64 `json:"released"`
	Rejected int64 `json:"rejected"`
}

func NewExclusive(src FrameSource) *Exclusive {
	return &Exclusive{src: src}
}

func (e *Exclusive) Acquire(ctx context.Context) (*Frame, error) {
	if !e.busy.CompareAndSwap(false, true) {
		e.rejected.Add(1)
		return nil, fmt.Errorf("frame already checked out: %w", ErrCameraUnavailable)
	}

	f, err := e.src.Acquire(ctx)
	if err != nil {
		e.busy.Store(false)
		return nil, err
	}

	inner := f.release
	f.release = func() {
		if inner != nil {
			inner()
		}
		e.released.Add(1)
		e.busy.Store(false)
	}
	e.acquired.Add(1)
	return f, nil
}

func (e *Exclusive) Close() error {
	return e.src.Close()
}

func (e *Exclusive) Stats() CheckoutStats {
	return CheckoutStats{
		Acquired: e.acquired.Load(),
		Released: e.released.Load(),
		Rejected: e.rejected.Load(),
	}
}

// Outstanding is the number of frames acquired but not yet released.
func (e *Exclusive) Outstanding() int64 {
	return e.acquired.Load() - e.released.Load()
}
