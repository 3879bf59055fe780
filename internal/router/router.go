// Package router handles user interaction with displayed notifications:
// clicks navigate to the notification's target, closes dismiss it.
package router

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/Bew090/projectlocker/internal/eventbus"
	"github.com/Bew090/projectlocker/internal/metrics"
	"github.com/Bew090/projectlocker/internal/notification"
	"github.com/Bew090/projectlocker/internal/platform"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

type Outcome int

const (
	// OutcomeIgnored: unknown tag or a repeated click.
	OutcomeIgnored Outcome = iota
	OutcomeFocused
	OutcomeOpened
	// OutcomeFailed: navigation was attempted and failed. The record is
	// still Clicked; the failure is logged and published, never returned.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeFocused:
		return "focused"
	case OutcomeOpened:
		return "opened"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Store is the part of the dedup store the router mutates through.
type Store interface {
	MarkClicked(tag string) notification.Transition
	MarkDismissed(tag string) notification.Transition
}

type Option func(*Router)

func WithLogger(log logx.Logger) Option { return func(r *Router) { r.log = log } }
func WithBus(b eventbus.Bus) Option { return func(r *Router) { r.bus = b } }
func WithMetrics(m *metrics.Metrics) Option { return func(r *Router) { r.metrics = m } }

type Router struct {
	store   Store
	display platform.Display
	windows platform.Windows
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
}

func New(store Store, display platform.Display, windows platform.Windows, opts ...Option) *Router {
	r := &Router{store: store, display: display, windows: windows}
	for _, o := range opts {
		o(r)
	}
	if r.windows == nil {
		r.windows = platform.NopWindows{}
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	r.log = r.log.With(logx.String("comp", "router"))
	return r
}

// OnClick marks the record clicked and brings the user to its target URL.
func (r *Router) OnClick(ctx context.Context, tag string) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := r.store.MarkClicked(tag)
	if !tr.Changed {
		r.log.Debug("click ignored", logx.String("tag", tag), logx.Bool("found", tr.Found))
		r.metrics.ObserveClick(OutcomeIgnored.String())
		return OutcomeIgnored
	}
	rec := tr.Record
	target := rec.Intent.TargetURL()
	eventbus.PublishNotification(r.bus, eventbus.TypeClicked, eventbus.NotificationEvent{
		Tag:        tag,
		RecordID:   rec.ID,
		Generation: rec.Generation,
		State:      notification.StateClicked.String(),
		TargetURL:  target,
	})

	if r.display != nil {
		if err := r.display.Close(ctx, tag); err != nil {
			r.log.Debug("close after click failed", logx.String("tag", tag), logx.Err(err))
		}
	}

	out := r.navigate(ctx, rec, target)
	r.metrics.ObserveClick(out.String())
	if out != OutcomeFailed {
		eventbus.PublishNotification(r.bus, eventbus.TypeRouted, eventbus.NotificationEvent{
			Tag:        tag,
			RecordID:   rec.ID,
			Generation: rec.Generation,
			Outcome:    out.String(),
			TargetURL:  target,
		})
	}
	return out
}

// OnClose records a platform dismissal. It never navigates.
func (r *Router) OnClose(_ context.Context, tag string) notification.Transition {
	tr := r.store.MarkDismissed(tag)
	if tr.Changed {
		state := tr.Record.State.String()
		if !tr.Removed {
			state = notification.StateDismissed.String()
		}
		eventbus.PublishNotification(r.bus, eventbus.TypeClosed, eventbus.NotificationEvent{
			Tag:        tag,
			RecordID:   tr.Record.ID,
			Generation: tr.Record.Generation,
			State:      state,
		})
	}
	return tr
}

func (r *Router) navigate(ctx context.Context, rec notification.Record, target string) Outcome {
	tag := rec.Intent.Tag

	windows, err := r.windows.List(ctx)
	if err != nil {
		// Treated as "no matching window".
		r.routingFailed(rec, target, "list", err)
		windows = nil
	}
	for _, w := range windows {
		if !w.Focusable || !Matches(w.URL, target) {
			continue
		}
		if err := r.windows.Focus(ctx, w.ID); err != nil {
			// The matching window exists, so no second one is opened. This
			// mirrors the service worker, which returns client.focus() without
			// a fallback to openWindow.
			r.routingFailed(rec, target, "focus", err)
			return OutcomeFailed
		}
		r.log.Debug("focused window", logx.String("tag", tag), logx.String("window", w.ID))
		return OutcomeFocused
	}

	if err := r.windows.Open(ctx, target); err != nil {
		r.routingFailed(rec, target, "open", err)
		return OutcomeFailed
	}
	r.log.Debug("opened window", logx.String("tag", tag), logx.String("url", target))
	return OutcomeOpened
}

func (r *Router) routingFailed(rec notification.Record, target, op string, err error) {
	tag := rec.Intent.Tag
	rerr := notification.NewError(notification.KindWindowRouting, op, tag, err)
	r.log.Warn("window routing failed",
		logx.String("tag", tag),
		logx.String("target_url", target),
		logx.Err(rerr))
	eventbus.PublishNotification(r.bus, eventbus.TypeRoutingFailed, eventbus.NotificationEvent{
		Tag:        tag,
		RecordID:   rec.ID,
		Generation: rec.Generation,
		Outcome:    op,
		TargetURL:  target,
		Error:      rerr.Error(),
	})
}

var errBadURL = errors.New("window url is not absolute")

// Matches reports whether a window at windowURL shows target. target may be
// relative; it is resolved against windowURL. Scheme, host, cleaned path and
// query must be equal; fragments are ignored.
func Matches(windowURL, target string) bool {
	base, err := parseAbsolute(windowURL)
	if err != nil {
		return false
	}
	ref, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return false
	}
	want := base.ResolveReference(ref)
	return strings.EqualFold(base.Scheme, want.Scheme) &&
		strings.EqualFold(base.Host, want.Host) &&
		cleanPath(base.Path) == cleanPath(want.Path) &&
		base.RawQuery == want.RawQuery
}

func parseAbsolute(s string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errBadURL
	}
	return u, nil
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean(p)
}
