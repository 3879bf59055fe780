// Package platform declares the host capabilities the engine drives:
// displaying notifications and managing application windows.
//
// Calls may block on the host; the engine never cancels them except at
// shutdown.
package platform

import "context"

// Request is a display call for one notification.
type Request struct {
	Tag                string
	Title              string
	Body               string
	Icon               string
	Badge              string
	Vibrate            []int
	RequireInteraction bool
	Data               map[string]string
}

type Display interface {
	Show(ctx context.Context, req Request) error
	// Close removes the visible notification for tag, if any.
	Close(ctx context.Context, tag string) error
}

// Window is an application window/tab the host controls.
type Window struct {
	ID        string
	URL       string
	Focusable bool
}

type Windows interface {
	// List returns the host's windows in host order, including uncontrolled ones.
	List(ctx context.Context) ([]Window, error)
	Focus(ctx context.Context, id string) error
	Open(ctx context.Context, url string) error
}

// NopWindows drops all navigation. List returns no windows and Open succeeds.
type NopWindows struct{}

func (NopWindows) List(context.Context) ([]Window, error) { return nil, nil }
func (NopWindows) Focus(context.Context, string) error    { return nil }
func (NopWindows) Open(context.Context, string) error     { return nil }
