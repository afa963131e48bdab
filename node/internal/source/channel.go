package source

import (
	"context"
	"io"
	"sync"

	"github.com/mrhavens/becomingone/pkg/types"
)

// Channel is an input fed by Send. Close makes Read return io.EOF once the
// buffered samples are consumed.
type Channel struct {
	ch        chan types.Sample
	closeOnce sync.Once
	closed    chan struct{}
}

// NewChannel returns a Channel buffering up to size samples.
func NewChannel(size int) *Channel {
	return &Channel{ch: make(chan types.Sample, size), closed: make(chan struct{})}
}

// Send delivers s, blocking while the buffer is full. It returns ctx.Err()
// if ctx ends first and io.ErrClosedPipe after Close.
func (c *Channel) Send(ctx context.Context, s types.Sample) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case c.ch <- s:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read implements engine.Input.
func (c *Channel) Read(ctx context.Context) (types.Sample, error) {
	select {
	case s := <-c.ch:
		return s, nil
	default:
	}
	select {
	case s := <-c.ch:
		return s, nil
	case <-c.closed:
		select {
		case s := <-c.ch:
			return s, nil
		default:
			return types.Sample{}, io.EOF
		}
	case <-ctx.Done():
		return types.Sample{}, ctx.Err()
	}
}

// Close stops further sends. It is safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
