// Package lifecycle owns the delivery session: it connects the transport,
// reconnects with bounded backoff, and feeds incoming payloads through
// normalize -> dedup -> presenter.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bew090/projectlocker/internal/eventbus"
	"github.com/Bew090/projectlocker/internal/metrics"
	"github.com/Bew090/projectlocker/internal/notification"
	rtsup "github.com/Bew090/projectlocker/internal/runtime/supervisor"
	"github.com/Bew090/projectlocker/internal/transport"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

var (
	ErrNotAccepting       = errors.New("session is not accepting messages")
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrRetryExhausted     = errors.New("transport retry budget exhausted")
)

type Normalizer interface {
	NormalizeRaw(raw []byte) notification.Intent
}

type Admitter interface {
	Admit(in notification.Intent) (notification.Decision, notification.Record)
}

type Presenter interface {
	Present(d notification.Decision, rec notification.Record) bool
}

// Options are the host's init options.
type Options struct {
	Endpoint    string
	Credentials transport.Credentials
	DialTimeout time.Duration
	RetryPolicy RetryPolicy
	// Transport overrides the endpoint-selected transport.
	Transport transport.Transport
}

type Option func(*Controller)

func WithLogger(log logx.Logger) Option { return func(c *Controller) { c.log = log } }
func WithBus(b eventbus.Bus) Option { return func(c *Controller) { c.bus = b } }
func WithMetrics(m *metrics.Metrics) Option { return func(c *Controller) { c.metrics = m } }

// WithFatalHook is called once, from the listener goroutine, when the session
// closes because the retry budget is exhausted.
func WithFatalHook(fn func(error)) Option { return func(c *Controller) { c.onFatal = fn } }

// WithTransportOpener replaces transport.Open (tests).
func WithTransportOpener(fn func(transport.Options, logx.Logger) (transport.Transport, error)) Option {
	return func(c *Controller) { c.open = fn }
}

type Controller struct {
	norm      Normalizer
	store     Admitter
	presenter Presenter

	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
	onFatal func(error)
	open    func(transport.Options, logx.Logger) (transport.Transport, error)
	now     func() time.Time

	mu     sync.Mutex
	sess   Session
	policy RetryPolicy
	sup    *rtsup.Supervisor
}

func New(norm Normalizer, store Admitter, presenter Presenter, opts ...Option) *Controller {
	c := &Controller{
		norm:      norm,
		store:     store,
		presenter: presenter,
		open:      transport.Open,
		now:       time.Now,
		policy:    DefaultRetryPolicy(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	c.log = c.log.With(logx.String("comp", "lifecycle"))
	c.sess.ChangedAt = c.now()
	return c
}

// Init starts the session. ctx bounds the session's lifetime; Shutdown ends
// it early. Without a transport the session is Active immediately and
// payloads arrive only through OnTransportMessage.
func (c *Controller) Init(ctx context.Context, opts Options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Status != StatusUninitialized {
		return ErrAlreadyInitialized
	}

	tr := opts.Transport
	if tr == nil {
		var err error
		tr, err = c.open(transport.Options{
			Endpoint:    opts.Endpoint,
			Credentials: opts.Credentials,
			DialTimeout: opts.DialTimeout,
		}, c.log)
		if err != nil {
			return fmt.Errorf("transport: %w", err)
		}
	}

	c.policy = opts.RetryPolicy.normalized()
	c.sess.ID = uuid.NewString()
	c.sess.Endpoint = redactEndpoint(opts.Endpoint)
	c.sess.RetryCount = 0
	c.sess.LastError = ""

	if tr == nil {
		c.setStatusLocked(StatusActive, "")
		c.log.Info("session active without transport", logx.String("session", c.sess.ID))
		return nil
	}

	c.sess.Transport = tr.Name()
	c.setStatusLocked(StatusConnecting, "")
	c.sup = rtsup.New(ctx,
		rtsup.WithLogger(c.log),
		rtsup.WithCancelOnError(false),
	)
	sup := c.sup
	policy := c.policy
	sup.Go("transport.listen", func(lctx context.Context) error {
		c.listenLoop(lctx, tr, policy)
		return nil
	})
	c.log.Info("session connecting",
		logx.String("session", c.sess.ID),
		logx.String("transport", tr.Name()),
		logx.String("endpoint", c.sess.Endpoint))
	return nil
}

// OnTransportMessage runs one raw payload through the pipeline. The display
// call, if any, is scheduled asynchronously.
func (c *Controller) OnTransportMessage(_ context.Context, raw []byte) (notification.Decision, error) {
	c.mu.Lock()
	st := c.sess.Status
	c.mu.Unlock()
	if !st.Accepting() {
		return notification.DecisionDrop, ErrNotAccepting
	}

	in := c.norm.NormalizeRaw(raw)
	d, rec := c.store.Admit(in)

	typ := eventbus.TypeAdmitted
	if d == notification.DecisionDrop {
		typ = eventbus.TypeDropped
		c.log.Debug("intent dropped; already clicked", logx.String("tag", in.Tag))
	}
	eventbus.PublishNotification(c.bus, typ, eventbus.NotificationEvent{
		Tag:        in.Tag,
		RecordID:   rec.ID,
		Generation: rec.Generation,
		Decision:   d.String(),
		State:      rec.State.String(),
		TargetURL:  in.TargetURL(),
	})
	if c.presenter != nil {
		c.presenter.Present(d, rec)
	}
	return d, nil
}

// Shutdown closes the session and stops the listener. It is idempotent.
func (c *Controller) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.sess.Status != StatusClosed {
		c.setStatusLocked(StatusClosed, c.sess.LastError)
		c.log.Info("session closed", logx.String("session", c.sess.ID))
	}
	sup := c.sup
	c.sup = nil
	c.mu.Unlock()

	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Controller) listenLoop(ctx context.Context, tr transport.Transport, policy RetryPolicy) {
	h := &listenHandler{c: c, name: tr.Name()}
	for {
		err := tr.Listen(ctx, h)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("listener returned without error")
		}
		terr := notification.NewError(notification.KindTransportFailure, "listen", "", err)

		n, ok := c.degrade(terr)
		if !ok {
			return
		}
		if policy.Exhausted(n) {
			c.fatal(fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, n, terr))
			return
		}

		delay := policy.Delay(n)
		c.log.Warn("transport failed; reconnecting",
			logx.String("transport", tr.Name()),
			logx.Int("retry", n),
			logx.Duration("delay", delay),
			logx.Err(terr))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if !c.transition(StatusDegraded, StatusConnecting) {
			return
		}
	}
}

// degrade records a transport failure. It reports false if the session was
// closed meanwhile.
func (c *Controller) degrade(err error) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Status == StatusClosed {
		return 0, false
	}
	c.sess.RetryCount++
	c.setStatusLocked(StatusDegraded, err.Error())
	return c.sess.RetryCount, true
}

func (c *Controller) connected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Status != StatusConnecting {
		return
	}
	c.sess.RetryCount = 0
	c.setStatusLocked(StatusActive, "")
	c.log.Info("session active", logx.String("session", c.sess.ID), logx.String("transport", c.sess.Transport))
}

func (c *Controller) transition(from, to Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Status != from {
		return false
	}
	c.setStatusLocked(to, c.sess.LastError)
	return true
}

func (c *Controller) fatal(err error) {
	c.mu.Lock()
	if c.sess.Status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.setStatusLocked(StatusClosed, err.Error())
	ev := c.sessionEventLocked(StatusDegraded)
	c.mu.Unlock()

	c.log.Error("session closed: transport unrecoverable", logx.Err(err))
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeSessionFatal, Time: ev.At, Data: ev})
	}
	if c.onFatal != nil {
		c.onFatal(err)
	}
}

// setStatusLocked must run under c.mu. Events are published under the lock so
// subscribers observe transitions in order; Publish never blocks.
func (c *Controller) setStatusLocked(to Status, lastErr string) {
	from := c.sess.Status
	c.sess.Status = to
	c.sess.LastError = lastErr
	c.sess.ChangedAt = c.now()
	c.metrics.ObserveTransition(to.String(), c.sess.RetryCount)
	if c.bus != nil {
		ev := c.sessionEventLocked(from)
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeSessionState, Time: ev.At, Data: ev})
	}
}

func (c *Controller) sessionEventLocked(from Status) eventbus.SessionEvent {
	return eventbus.SessionEvent{
		SessionID:  c.sess.ID,
		From:       from.String(),
		To:         c.sess.Status.String(),
		RetryCount: c.sess.RetryCount,
		At:         c.sess.ChangedAt,
		Error:      c.sess.LastError,
	}
}

type listenHandler struct {
	c    *Controller
	name string
}

func (h *listenHandler) Connected(context.Context) { h.c.connected() }

func (h *listenHandler) Deliver(ctx context.Context, raw []byte) {
	h.c.metrics.ObserveMessage(h.name)
	if _, err := h.c.OnTransportMessage(ctx, raw); err != nil {
		h.c.log.Debug("message ignored", logx.String("transport", h.name), logx.Err(err))
	}
}

// redactEndpoint hides passwords in URL-shaped endpoints.
func redactEndpoint(ep string) string {
	ep = strings.TrimSpace(ep)
	if ep == "" {
		return ""
	}
	u, err := url.Parse(ep)
	if err != nil {
		if scheme, _, ok := strings.Cut(ep, "://"); ok {
			return scheme + "://..."
		}
		return ""
	}
	return u.Redacted()
}
