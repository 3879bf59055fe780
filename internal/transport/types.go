// Package transport delivers raw push payloads into the engine.
//
// A Transport owns its connection. Listen blocks until ctx is cancelled
// (returning ctx.Err()) or the connection fails (returning the error); any
// other return is treated by the caller as a failure.
package transport

import (
	"context"
	"errors"
	"time"
)

// Handler receives transport callbacks. Deliver must not block for long;
// the engine admits and schedules synchronously and returns.
type Handler interface {
	// Connected is called once the transport is ready to deliver.
	Connected(ctx context.Context)
	Deliver(ctx context.Context, raw []byte)
}

type Transport interface {
	Name() string
	Listen(ctx context.Context, h Handler) error
}

// Credentials override any userinfo carried in the endpoint.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) IsZero() bool { return c.Username == "" && c.Password == "" }

type Options struct {
	Endpoint    string
	Credentials Credentials
	// DialTimeout bounds connection setup. 0 means 10s.
	DialTimeout time.Duration
}

var ErrClosed = errors.New("transport closed")

// HandlerFuncs adapts plain functions to Handler. Nil funcs are skipped.
type HandlerFuncs struct {
	OnConnected func(ctx context.Context)
	OnDeliver   func(ctx context.Context, raw []byte)
}

func (h HandlerFuncs) Connected(ctx context.Context) {
	if h.OnConnected != nil {
		h.OnConnected(ctx)
	}
}

func (h HandlerFuncs) Deliver(ctx context.Context, raw []byte) {
	if h.OnDeliver != nil {
		h.OnDeliver(ctx, raw)
	}
}

func dialTimeout(o Options) time.Duration {
	if o.DialTimeout > 0 {
		return o.DialTimeout
	}
	return 10 * time.Second
}
