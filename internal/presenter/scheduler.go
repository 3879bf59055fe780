// Package presenter turns admitted records into platform display calls.
//
// Calls for one tag run in admission order on a per-tag lane; different tags
// run concurrently. There is no rate limiting and no retry: a failed display
// leaves the record Pending until the next intent for that tag arrives.
//
// A queued call whose record has been replaced or resolved before it runs is
// skipped. A call that completes after its record was resolved (clicked or
// closed while the platform was still rendering) is closed again, so the
// tray never holds a notification the store no longer tracks.
package presenter

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Bew090/projectlocker/internal/eventbus"
	"github.com/Bew090/projectlocker/internal/metrics"
	"github.com/Bew090/projectlocker/internal/notification"
	"github.com/Bew090/projectlocker/internal/platform"
	rtsup "github.com/Bew090/projectlocker/internal/runtime/supervisor"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

const (
	DefaultIcon  = "/icons/Icon-192.png"
	DefaultBadge = "/icons/Icon-192.png"
)

// Options shape every display request. They can be swapped at runtime.
type Options struct {
	Icon               string
	Badge              string
	Vibrate            []int
	RequireInteraction bool
}

func DefaultOptions() Options {
	return Options{
		Icon:               DefaultIcon,
		Badge:              DefaultBadge,
		Vibrate:            []int{200, 100, 200, 100, 200},
		RequireInteraction: true,
	}
}

// Marker is the part of the dedup store the scheduler needs.
type Marker interface {
	MarkShown(rec notification.Record, at time.Time) notification.Transition
	Current(rec notification.Record) bool
}

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option { return func(s *Scheduler) { s.log = log } }
func WithBus(b eventbus.Bus) Option { return func(s *Scheduler) { s.bus = b } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }
func WithContext(ctx context.Context) Option { return func(s *Scheduler) { s.parent = ctx } }

type job struct {
	decision notification.Decision
	record   notification.Record
}

type Scheduler struct {
	display platform.Display
	store   Marker
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
	now     func() time.Time
	parent  context.Context

	sup *rtsup.Supervisor

	mu        sync.Mutex
	opts      Options
	lanes     map[string][]job
	accepting bool
	pending   int
	idle      chan struct{}
}

func New(display platform.Display, store Marker, opts Options, options ...Option) *Scheduler {
	s := &Scheduler{
		display:   display,
		store:     store,
		now:       time.Now,
		parent:    context.Background(),
		opts:      normalizeOptions(opts),
		lanes:     map[string][]job{},
		accepting: true,
	}
	for _, o := range options {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.log = s.log.With(logx.String("comp", "presenter"))
	idle := make(chan struct{})
	close(idle)
	s.idle = idle
	// Display calls are only cancelled when the scheduler is force-stopped.
	s.sup = rtsup.New(s.parent,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	return s
}

// Apply swaps the presentation options used by calls dequeued from now on.
func (s *Scheduler) Apply(opts Options) {
	s.mu.Lock()
	s.opts = normalizeOptions(opts)
	s.mu.Unlock()
}

func (s *Scheduler) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.opts
	o.Vibrate = slices.Clone(o.Vibrate)
	return o
}

// Present schedules one display call for Insert/Replace and returns
// immediately. It reports whether a call was scheduled.
func (s *Scheduler) Present(decision notification.Decision, rec notification.Record) bool {
	if !decision.Presentable() || s.display == nil {
		return false
	}
	tag := rec.Intent.Tag

	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		s.log.Debug("presenter stopped; display skipped", logx.String("tag", tag))
		return false
	}
	q, running := s.lanes[tag]
	s.lanes[tag] = append(q, job{decision: decision, record: rec.Clone()})
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	s.mu.Unlock()

	if !running {
		s.sup.Go0("presenter.lane", func(ctx context.Context) { s.runLane(ctx, tag) })
	}
	return true
}

// Drain waits until every scheduled call has completed or ctx is done.
func (s *Scheduler) Drain(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new work and drains. When ctx expires first, in-flight calls
// see their context cancelled and queued calls are abandoned.
func (s *Scheduler) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.accepting = false
	s.mu.Unlock()

	if err := s.Drain(ctx); err != nil {
		s.sup.Cancel()
		return err
	}
	return s.sup.Stop(ctx)
}

func (s *Scheduler) runLane(ctx context.Context, tag string) {
	for {
		s.mu.Lock()
		q := s.lanes[tag]
		if len(q) == 0 {
			delete(s.lanes, tag)
			s.mu.Unlock()
			return
		}
		j := q[0]
		s.lanes[tag] = q[1:]
		opts := s.opts
		s.mu.Unlock()

		if ctx.Err() == nil {
			s.show(ctx, j, opts)
		}
		s.finish()
	}
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
	s.mu.Unlock()
}

func (s *Scheduler) show(ctx context.Context, j job, opts Options) {
	rec := j.record
	tag := rec.Intent.Tag
	if !s.store.Current(rec) {
		s.log.Debug("display skipped; record superseded",
			logx.String("tag", tag), logx.Uint64("generation", rec.Generation))
		return
	}
	err := s.display.Show(ctx, buildRequest(rec, opts))
	if err != nil {
		derr := notification.NewError(notification.KindDisplayFailure, "show", tag, err)
		s.log.Warn("display failed",
			logx.String("tag", tag),
			logx.String("record_id", rec.ID),
			logx.Uint64("generation", rec.Generation),
			logx.Err(derr))
		s.metrics.ObserveDisplay(false)
		eventbus.PublishNotification(s.bus, eventbus.TypeDisplayFailed, eventbus.NotificationEvent{
			Tag:        tag,
			RecordID:   rec.ID,
			Generation: rec.Generation,
			Decision:   j.decision.String(),
			State:      notification.StatePending.String(),
			Error:      derr.Error(),
		})
		return
	}

	at := s.now()
	tr := s.store.MarkShown(rec, at)
	s.metrics.ObserveDisplay(true)
	if !tr.Changed {
		s.late(ctx, rec, tr)
		return
	}
	s.log.Debug("notification shown", logx.String("tag", tag), logx.Uint64("generation", rec.Generation))
	eventbus.PublishNotification(s.bus, eventbus.TypeShown, eventbus.NotificationEvent{
		Tag:        tag,
		RecordID:   rec.ID,
		Generation: rec.Generation,
		Decision:   j.decision.String(),
		State:      tr.Record.State.String(),
		At:         at,
	})
}

// late handles a display that finished after its record moved on. While the
// tag still has an unresolved newer version, that version's own call is
// queued and supersedes the platform notification by tag. Otherwise the
// record was resolved mid-call and the platform notification is closed again.
func (s *Scheduler) late(ctx context.Context, rec notification.Record, tr notification.Transition) {
	tag := rec.Intent.Tag
	if tr.Found && !tr.Record.State.Terminal() {
		s.log.Debug("display superseded", logx.String("tag", tag),
			logx.Uint64("generation", rec.Generation),
			logx.Uint64("current_generation", tr.Record.Generation))
		return
	}
	s.log.Debug("display resolved mid-call; closing", logx.String("tag", tag),
		logx.Uint64("generation", rec.Generation))
	if err := s.display.Close(ctx, tag); err != nil {
		s.log.Debug("close of late display failed", logx.String("tag", tag), logx.Err(err))
	}
}

func buildRequest(rec notification.Record, opts Options) platform.Request {
	icon := rec.Intent.Icon
	if icon == "" {
		icon = opts.Icon
	}
	return platform.Request{
		Tag:                rec.Intent.Tag,
		Title:              rec.Intent.Title,
		Body:               rec.Intent.Body,
		Icon:               icon,
		Badge:              opts.Badge,
		Vibrate:            slices.Clone(opts.Vibrate),
		RequireInteraction: opts.RequireInteraction,
		Data:               maps.Clone(rec.Intent.Data),
	}
}

func normalizeOptions(o Options) Options {
	d := DefaultOptions()
	if o.Icon == "" {
		o.Icon = d.Icon
	}
	if o.Badge == "" {
		o.Badge = d.Badge
	}
	if o.Vibrate == nil {
		o.Vibrate = d.Vibrate
	}
	o.Vibrate = slices.Clone(o.Vibrate)
	return o
}
