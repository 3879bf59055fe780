// Package platformtest provides recording fakes of the platform interfaces.
package platformtest

import (
	"context"
	"slices"
	"sync"

	"github.com/Bew090/projectlocker/internal/platform"
)

// Display records Show/Close calls. ShowFunc, when set, decides the result
// of each Show (it runs outside the fake's lock and may block).
type Display struct {
	ShowFunc  func(ctx context.Context, req platform.Request) error
	CloseFunc func(ctx context.Context, tag string) error

	mu     sync.Mutex
	shown  []platform.Request
	closed []string
	notify chan struct{}
}

func NewDisplay() *Display { return &Display{notify: make(chan struct{}, 1024)} }

func (d *Display) Show(ctx context.Context, req platform.Request) error {
	var err error
	if d.ShowFunc != nil {
		err = d.ShowFunc(ctx, req)
	}
	d.mu.Lock()
	d.shown = append(d.shown, req)
	d.mu.Unlock()
	d.signal()
	return err
}

func (d *Display) Close(ctx context.Context, tag string) error {
	d.mu.Lock()
	d.closed = append(d.closed, tag)
	d.mu.Unlock()
	if d.CloseFunc != nil {
		return d.CloseFunc(ctx, tag)
	}
	return nil
}

func (d *Display) Shown() []platform.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.shown)
}

func (d *Display) Closed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.closed)
}

// Calls returns a channel that receives one value per completed Show.
func (d *Display) Calls() <-chan struct{} { return d.notify }

func (d *Display) signal() {
	if d.notify == nil {
		return
	}
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Windows is a scripted window manager.
type Windows struct {
	mu      sync.Mutex
	windows []platform.Window

	ListErr  error
	FocusErr error
	OpenErr  error

	focused []string
	opened  []string
}

func NewWindows(ws ...platform.Window) *Windows { return &Windows{windows: ws} }

func (w *Windows) List(context.Context) ([]platform.Window, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ListErr != nil {
		return nil, w.ListErr
	}
	return slices.Clone(w.windows), nil
}

func (w *Windows) Focus(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused = append(w.focused, id)
	return w.FocusErr
}

func (w *Windows) Open(_ context.Context, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened = append(w.opened, url)
	if w.OpenErr != nil {
		return w.OpenErr
	}
	w.windows = append(w.windows, platform.Window{ID: url, URL: url, Focusable: true})
	return nil
}

func (w *Windows) Focused() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.focused)
}

func (w *Windows) Opened() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.opened)
}
