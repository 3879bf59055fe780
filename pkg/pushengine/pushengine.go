// Package pushengine is the embedding API of the notification engine.
//
// A host supplies the platform display and window boundaries, builds an
// Engine from a config, calls Init, and then forwards platform events:
//
//	eng, err := pushengine.NewFromFile("engine.yaml", pushengine.Deps{Display: tray, Windows: wm})
//	if err != nil { ... }
//	if err := eng.Init(ctx); err != nil { ... }
//	defer eng.Shutdown(context.Background())
//
//	tray.OnClick(func(tag string) { eng.OnClick(ctx, tag) })
//	tray.OnClose(func(tag string) { eng.OnClose(ctx, tag) })
package pushengine

import (
	"github.com/Bew090/projectlocker/internal/app"
	"github.com/Bew090/projectlocker/internal/config"
	"github.com/Bew090/projectlocker/internal/eventbus"
	"github.com/Bew090/projectlocker/internal/lifecycle"
	"github.com/Bew090/projectlocker/internal/notification"
	"github.com/Bew090/projectlocker/internal/platform"
	"github.com/Bew090/projectlocker/internal/router"
	"github.com/Bew090/projectlocker/internal/transport"
)

type (
	Engine = app.Engine
	Deps   = app.Deps
	Health = app.Health
	Config = config.Config

	Display = platform.Display
	Windows = platform.Windows
	Request = platform.Request
	Window  = platform.Window

	Transport   = transport.Transport
	Handler     = transport.Handler
	Credentials = transport.Credentials

	Intent     = notification.Intent
	Record     = notification.Record
	State      = notification.State
	Decision   = notification.Decision
	Transition = notification.Transition
	Error      = notification.Error
	ErrorKind  = notification.Kind

	Session       = lifecycle.Session
	SessionStatus = lifecycle.Status
	RetryPolicy   = lifecycle.RetryPolicy
	Outcome       = router.Outcome

	Event             = eventbus.Event
	NotificationEvent = eventbus.NotificationEvent
	SessionEvent      = eventbus.SessionEvent
	MaintenanceEvent  = eventbus.MaintenanceEvent
)

const (
	StatePending   = notification.StatePending
	StateShown     = notification.StateShown
	StateDismissed = notification.StateDismissed
	StateClicked   = notification.StateClicked

	DecisionInsert  = notification.DecisionInsert
	DecisionReplace = notification.DecisionReplace
	DecisionDrop    = notification.DecisionDrop

	KindMalformedPayload = notification.KindMalformedPayload
	KindDisplayFailure   = notification.KindDisplayFailure
	KindWindowRouting    = notification.KindWindowRouting
	KindTransportFailure = notification.KindTransportFailure

	StatusUninitialized = lifecycle.StatusUninitialized
	StatusConnecting    = lifecycle.StatusConnecting
	StatusActive        = lifecycle.StatusActive
	StatusDegraded      = lifecycle.StatusDegraded
	StatusClosed        = lifecycle.StatusClosed

	OutcomeIgnored = router.OutcomeIgnored
	OutcomeFocused = router.OutcomeFocused
	OutcomeOpened  = router.OutcomeOpened
	OutcomeFailed  = router.OutcomeFailed
)

var (
	New           = app.New
	NewFromFile   = app.NewFromFile
	ParseConfig   = config.ParseBytes
	DefaultConfig = config.Default
	IsKind        = notification.IsKind
	NewChannel    = transport.NewChannel
)

var (
	ErrNoDisplay          = app.ErrNoDisplay
	ErrNotAccepting       = lifecycle.ErrNotAccepting
	ErrAlreadyInitialized = lifecycle.ErrAlreadyInitialized
	ErrRetryExhausted     = lifecycle.ErrRetryExhausted
)
