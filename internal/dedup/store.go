// Package dedup is the coalescing table of notification records, keyed by tag.
//
// The Store is the only component that mutates records. Every method is atomic
// under one mutex and returns value copies, so callers never share state with
// the table. Persistence is optional and write-behind: mutations are queued to
// a single goroutine in the order they were applied.
package dedup

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bew090/projectlocker/internal/metrics"
	"github.com/Bew090/projectlocker/internal/notification"
	rtsup "github.com/Bew090/projectlocker/internal/runtime/supervisor"
	"github.com/Bew090/projectlocker/internal/storage"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

const persistQueueSize = 1024

type Option func(*Store)

// WithBackend enables write-behind persistence.
func WithBackend(st storage.Store) Option { return func(s *Store) { s.backend = st } }

func WithLogger(log logx.Logger) Option { return func(s *Store) { s.log = log } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }

// WithClock sets the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the record ID source (uuid v4 by default).
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

type Store struct {
	log     logx.Logger
	metrics *metrics.Metrics
	backend storage.Store
	now     func() time.Time
	newID   func() string

	mu      sync.Mutex
	records map[string]notification.Record
	counts  map[notification.State]int

	// persistence (nil when not started)
	persistCh chan persistOp
	sup       *rtsup.Supervisor
}

type persistOp struct {
	del    bool
	tag    string
	record notification.Record
}

func New(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		newID:   uuid.NewString,
		records: map[string]notification.Record{},
		counts:  map[notification.State]int{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "dedup"))
	return s
}

// Admit applies the coalescing rules to an incoming intent and returns the
// decision together with the resulting record (the existing record on Drop).
func (s *Store) Admit(in notification.Intent) (notification.Decision, notification.Record) {
	in = in.Clone()
	tag := in.Tag

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	cur, ok := s.records[tag]
	if !ok {
		rec := notification.Record{
			ID:         s.newID(),
			Intent:     in,
			State:      notification.StatePending,
			UpdatedAt:  now,
			Generation: 1,
		}
		s.putLocked(rec, notification.StatePending, false)
		s.metrics.ObserveDecision(notification.DecisionInsert.String())
		return notification.DecisionInsert, rec.Clone()
	}

	if cur.State == notification.StateClicked && !in.ReceivedAt.After(cur.ShownAt) {
		s.metrics.ObserveDecision(notification.DecisionDrop.String())
		return notification.DecisionDrop, cur.Clone()
	}

	prev := cur.State
	cur.Intent = in
	cur.Generation++
	cur.UpdatedAt = now
	// The replacement has not been displayed yet.
	cur.State = notification.StatePending
	if prev.Terminal() {
		// New presentation cycle.
		cur.ShownAt = time.Time{}
	}
	s.putLocked(cur, prev, true)
	s.metrics.ObserveDecision(notification.DecisionReplace.String())
	return notification.DecisionReplace, cur.Clone()
}

// MarkShown records that the displayed version rec reached the screen:
// Pending/Shown -> Shown. It applies only while rec is still the current
// version of its tag (same ID and Generation); a confirmation for a
// superseded or already resolved version returns Changed == false.
func (s *Store) MarkShown(rec notification.Record, at time.Time) notification.Transition {
	tag := rec.Intent.Tag
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[tag]
	if !ok {
		return notification.Transition{}
	}
	if cur.ID != rec.ID || cur.Generation != rec.Generation {
		return notification.Transition{Record: cur.Clone(), Found: true}
	}
	switch cur.State {
	case notification.StatePending, notification.StateShown:
		prev := cur.State
		cur.State = notification.StateShown
		cur.ShownAt = at
		cur.UpdatedAt = s.now()
		s.putLocked(cur, prev, true)
		return notification.Transition{Record: cur.Clone(), Found: true, Changed: true}
	default:
		return notification.Transition{Record: cur.Clone(), Found: true}
	}
}

// Current reports whether rec is still the live, unresolved version of its
// tag: same ID and Generation, state Pending or Shown.
func (s *Store) Current(rec notification.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.Intent.Tag]
	return ok && cur.ID == rec.ID && cur.Generation == rec.Generation && !cur.State.Terminal()
}

// MarkDismissed handles a platform close event.
//
//	Shown     -> Dismissed
//	Clicked   -> removed (cycle complete)
//	Pending   -> unchanged (a newer intent is waiting for display)
//	Dismissed -> unchanged
func (s *Store) MarkDismissed(tag string) notification.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[tag]
	if !ok {
		return notification.Transition{}
	}
	switch cur.State {
	case notification.StateShown:
		cur.State = notification.StateDismissed
		cur.UpdatedAt = s.now()
		s.putLocked(cur, notification.StateShown, true)
		return notification.Transition{Record: cur.Clone(), Found: true, Changed: true}
	case notification.StateClicked:
		s.deleteLocked(tag)
		return notification.Transition{Record: cur.Clone(), Found: true, Changed: true, Removed: true}
	default:
		return notification.Transition{Record: cur.Clone(), Found: true}
	}
}

// MarkClicked handles a user click.
//
//	Pending/Shown -> Clicked
//	Dismissed     -> removed (already closed; the click completes the cycle)
//	Clicked       -> unchanged
func (s *Store) MarkClicked(tag string) notification.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[tag]
	if !ok {
		return notification.Transition{}
	}
	switch cur.State {
	case notification.StatePending, notification.StateShown:
		prev := cur.State
		cur.State = notification.StateClicked
		cur.UpdatedAt = s.now()
		s.putLocked(cur, prev, true)
		return notification.Transition{Record: cur.Clone(), Found: true, Changed: true}
	case notification.StateDismissed:
		s.deleteLocked(tag)
		return notification.Transition{Record: cur.Clone(), Found: true, Changed: true, Removed: true}
	default:
		return notification.Transition{Record: cur.Clone(), Found: true}
	}
}

// Remove drops the record for tag regardless of state.
func (s *Store) Remove(tag string) notification.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[tag]
	if !ok {
		return notification.Transition{}
	}
	s.deleteLocked(tag)
	return notification.Transition{Record: cur.Clone(), Found: true, Changed: true, Removed: true}
}

func (s *Store) Get(tag string) (notification.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[tag]
	if !ok {
		return notification.Record{}, false
	}
	return r.Clone(), true
}

// Snapshot returns copies of all records ordered by tag.
func (s *Store) Snapshot() []notification.Record {
	s.mu.Lock()
	out := make([]notification.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Intent.Tag < out[j].Intent.Tag })
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Counts returns the number of records per state name.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countsLocked()
}

// ExpireTerminal removes Dismissed/Clicked records last updated before the
// cutoff and returns how many were removed.
func (s *Store) ExpireTerminal(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tag, r := range s.records {
		if r.State.Terminal() && r.UpdatedAt.Before(before) {
			s.deleteLocked(tag)
			n++
		}
	}
	return n
}

// Restore loads persisted records into an empty table. Records already present
// in memory win over persisted ones.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.backend == nil {
		return 0, nil
	}
	recs, err := s.backend.LoadRecords(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range recs {
		tag := r.Intent.Tag
		if strings.TrimSpace(tag) == "" {
			continue
		}
		if _, exists := s.records[tag]; exists {
			continue
		}
		s.records[tag] = r.Clone()
		s.counts[r.State]++
		n++
	}
	s.metrics.SetRecords(s.countsLocked())
	return n, nil
}

// Start launches the persist goroutine. It is a no-op without a backend or
// when already started.
func (s *Store) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.backend == nil || s.persistCh != nil {
		s.mu.Unlock()
		return
	}
	ch := make(chan persistOp, persistQueueSize)
	s.persistCh = ch
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	st := s.backend
	s.mu.Unlock()

	sup.Go0("dedup.persist", func(c context.Context) { s.persistLoop(c, ch, st) })
}

// Stop closes the persist queue and waits for queued writes until ctx is done.
// Writes still queued at the deadline are abandoned.
func (s *Store) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	ch := s.persistCh
	sup := s.sup
	s.persistCh = nil
	s.sup = nil
	s.mu.Unlock()
	if ch == nil {
		return nil
	}
	close(ch)

	done := make(chan error, 1)
	go func() { done <- sup.Wait(context.Background()) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		sup.Cancel()
		return ctx.Err()
	}
}

func (s *Store) persistLoop(ctx context.Context, ch <-chan persistOp, st storage.Store) {
	for op := range ch {
		// Drain even after cancellation so Stop observes a closed loop; skip I/O.
		if ctx.Err() != nil {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		var err error
		if op.del {
			err = st.DeleteRecord(cctx, op.tag)
		} else {
			err = st.PutRecord(cctx, op.record)
		}
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("persist record failed", logx.String("tag", op.tag), logx.Bool("delete", op.del), logx.Err(err))
		}
	}
}

func (s *Store) putLocked(r notification.Record, prev notification.State, existed bool) {
	tag := r.Intent.Tag
	s.records[tag] = r
	if existed {
		s.counts[prev]--
	}
	s.counts[r.State]++
	s.metrics.SetRecords(s.countsLocked())
	s.enqueueLocked(persistOp{tag: tag, record: r.Clone()})
}

func (s *Store) deleteLocked(tag string) {
	r, ok := s.records[tag]
	if !ok {
		return
	}
	delete(s.records, tag)
	s.counts[r.State]--
	s.metrics.SetRecords(s.countsLocked())
	s.enqueueLocked(persistOp{del: true, tag: tag})
}

// enqueueLocked runs under s.mu, which keeps queue order equal to mutation order.
func (s *Store) enqueueLocked(op persistOp) {
	if s.persistCh == nil {
		return
	}
	select {
	case s.persistCh <- op:
	default:
		s.log.Warn("persist queue full; dropping write", logx.String("tag", op.tag))
	}
}

func (s *Store) countsLocked() map[string]int {
	out := make(map[string]int, len(s.counts))
	for st, n := range s.counts {
		if n > 0 {
			out[st.String()] = n
		}
	}
	return out
}
