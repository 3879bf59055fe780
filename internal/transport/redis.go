package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	logx "github.com/Bew090/projectlocker/pkg/logx"
)

const DefaultRedisChannel = "push"

// Redis subscribes to a pub/sub channel; each message payload is one raw push.
//
// Endpoint: redis://[user:pass@]host:port/db?channel=push (rediss:// for TLS).
type Redis struct {
	opts    *redis.Options
	channel string
	log     logx.Logger
}

func NewRedis(o Options, log logx.Logger) (*Redis, error) {
	u, err := url.Parse(strings.TrimSpace(o.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("parsing redis endpoint: %w", err)
	}
	q := u.Query()
	channel := strings.TrimSpace(q.Get("channel"))
	if channel == "" {
		channel = DefaultRedisChannel
	}
	// go-redis rejects options it does not know.
	q.Del("channel")
	u.RawQuery = q.Encode()

	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, fmt.Errorf("parsing redis endpoint: %w", err)
	}
	if !o.Credentials.IsZero() {
		opts.Username = o.Credentials.Username
		opts.Password = o.Credentials.Password
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = dialTimeout(o)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Redis{opts: opts, channel: channel, log: log}, nil
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Channel() string { return r.channel }

func (r *Redis) Addr() string { return r.opts.Addr }

func (r *Redis) Listen(ctx context.Context, h Handler) error {
	client := redis.NewClient(r.opts)
	defer client.Close()

	ps := client.Subscribe(ctx, r.channel)
	defer ps.Close()

	// Wait for the subscription confirmation before reporting ready.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("redis subscribe %q: %w", r.channel, err)
	}
	r.log.Info("redis subscribed", logx.String("addr", r.opts.Addr), logx.String("channel", r.channel))
	h.Connected(ctx)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			h.Deliver(ctx, []byte(m.Payload))
		}
	}
}
