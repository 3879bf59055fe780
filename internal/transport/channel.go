package transport

import (
	"context"
	"slices"
)

// Channel is an in-memory transport. Hosts that receive pushes through their
// own callbacks feed them with Push; tests use Fail to simulate a dropped
// connection.
type Channel struct {
	msgs  chan []byte
	fails chan error
}

func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = 64
	}
	return &Channel{
		msgs:  make(chan []byte, buffer),
		fails: make(chan error, 1),
	}
}

func (c *Channel) Name() string { return "channel" }

// Push queues raw for delivery. It blocks while the buffer is full.
func (c *Channel) Push(ctx context.Context, raw []byte) error {
	select {
	case c.msgs <- slices.Clone(raw):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fail makes the current (or next) Listen return err. A pending failure that
// was not yet observed is replaced.
func (c *Channel) Fail(err error) {
	if err == nil {
		err = ErrClosed
	}
	for {
		select {
		case c.fails <- err:
			return
		default:
		}
		select {
		case <-c.fails:
		default:
		}
	}
}

func (c *Channel) Listen(ctx context.Context, h Handler) error {
	// Failures raised before this listener connected belong to it.
	select {
	case err := <-c.fails:
		return err
	default:
	}
	h.Connected(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-c.fails:
			return err
		case raw := <-c.msgs:
			h.Deliver(ctx, raw)
		}
	}
}
