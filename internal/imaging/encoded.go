package imaging

import (
	"sync/atomic"

	"github.com/AlverezYari/facecam/pkg/camera"
)

// Encoded is a JPEG image ready to send. It is either Borrowed, a view of a
// camera frame that was already JPEG, or Owned, a buffer produced by the
// encoder. Release gives back whichever resource backs it; the kind is fixed
// when the value is created.
type Encoded interface {
	Bytes() []byte
	Len() int
	Release() error

	encoded()
}

// Borrowed exposes a JPEG frame's own buffer. Releasing it releases the frame.
type Borrowed struct {
	frame *camera.Frame
}

func (b *Borrowed) Bytes() []byte  { return b.frame.Data }
func (b *Borrowed) Len() int       { return b.frame.Len() }
func (b *Borrowed) Release() error { return b.frame.Release() }
func (*Borrowed) encoded()         {}

// Frame returns the camera frame backing the view.
func (b *Borrowed) Frame() *camera.Frame { return b.frame }

// Owned holds encoder output accounted to a Pool.
type Owned struct {
	data     []byte
	pool     *Pool
	released atomic.Bool
}

func (o *Owned) Bytes() []byte { return o.data }
func (o *Owned) Len() int      { return len(o.data) }
func (*Owned) encoded()        {}

func (o *Owned) Release() error {
	if !o.released.CompareAndSwap(false, true) {
		return ErrDoubleFree
	}
	o.pool.Free(o.data)
	o.data = nil
	return nil
}
