// Package app wires the engine components together and owns their lifetime.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/Bew090/projectlocker/internal/config"
	"github.com/Bew090/projectlocker/internal/dedup"
	"github.com/Bew090/projectlocker/internal/eventbus"
	"github.com/Bew090/projectlocker/internal/lifecycle"
	"github.com/Bew090/projectlocker/internal/metrics"
	"github.com/Bew090/projectlocker/internal/normalize"
	"github.com/Bew090/projectlocker/internal/notification"
	"github.com/Bew090/projectlocker/internal/observability/diag"
	"github.com/Bew090/projectlocker/internal/platform"
	"github.com/Bew090/projectlocker/internal/presenter"
	"github.com/Bew090/projectlocker/internal/router"
	rtsup "github.com/Bew090/projectlocker/internal/runtime/supervisor"
	"github.com/Bew090/projectlocker/internal/storage"
	"github.com/Bew090/projectlocker/internal/transport"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

var ErrNoDisplay = errors.New("app: platform display is required")

// Deps are the host-provided collaborators.
type Deps struct {
	Display platform.Display
	// Windows may be nil; clicks then neither focus nor open anything.
	Windows platform.Windows
	// Transport overrides the transport selected by transport.endpoint.
	Transport transport.Transport
	// Registerer receives the engine's collectors. nil disables metrics
	// unless diagnostics are enabled, which then use a private registry.
	Registerer prometheus.Registerer
	// HostLog receives log lines when logging.host.enabled is set.
	HostLog logx.HostSink
	// Logger replaces the config-driven log service.
	Logger logx.Logger
	// OnFatal is called once, on its own goroutine, when the session closes
	// for good.
	OnFatal func(error)
}

// Health is a point-in-time view for host diagnostics.
type Health struct {
	Healthy bool
	Session lifecycle.Session
	Records map[string]int
	Storage string
	// EventsDropped counts events a full subscriber buffer missed.
	EventsDropped uint64
	Supervisor    rtsup.Snapshot
}

type Engine struct {
	deps Deps
	cfgm *config.ConfigManager

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	metrics *metrics.Metrics

	backend       storage.Store
	storageDriver string

	store  *dedup.Store
	norm   *swapNormalizer
	pres   *presenter.Scheduler
	router *router.Router
	life   *lifecycle.Controller
	maint  *maintenance
	diag   *diag.Server

	mu          sync.Mutex
	cfg         *config.Config
	sup         *rtsup.Supervisor
	initialized bool
	closed      bool
}

// New builds an engine from cfg. Nothing runs until Init.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if deps.Display == nil {
		return nil, ErrNoDisplay
	}
	mc, err := mapMaintenanceConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc, storageEnabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	dc, err := mapDiagConfig(cfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{deps: deps, cfg: cfg}

	if deps.Logger.IsZero() {
		e.logs, e.log = logx.New(mapLogConfig(cfg), deps.HostLog)
	} else {
		e.log = deps.Logger
	}
	log := e.log
	e.log = e.log.With(logx.String("comp", "app"))

	e.bus = eventbus.New()
	reg := deps.Registerer
	gatherer, _ := reg.(prometheus.Gatherer)
	if reg == nil && dc.Enabled {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	}
	e.metrics = metrics.New(reg)

	if storageEnabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = e.closeLogs()
			return nil, err
		}
		e.backend = st
		e.storageDriver = sc.Driver
		e.log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	e.store = dedup.New(
		dedup.WithBackend(e.backend),
		dedup.WithLogger(log),
		dedup.WithMetrics(e.metrics),
	)
	e.norm = newSwapNormalizer(normalize.New(mapNormalizeOptions(cfg), log.With(logx.String("comp", "normalize"))))
	e.pres = presenter.New(deps.Display, e.store, mapPresenterOptions(cfg),
		presenter.WithLogger(log),
		presenter.WithBus(e.bus),
		presenter.WithMetrics(e.metrics),
	)
	e.router = router.New(e.store, deps.Display, deps.Windows,
		router.WithLogger(log),
		router.WithBus(e.bus),
		router.WithMetrics(e.metrics),
	)
	e.life = lifecycle.New(e.norm, e.store, e.pres,
		lifecycle.WithLogger(log),
		lifecycle.WithBus(e.bus),
		lifecycle.WithMetrics(e.metrics),
		lifecycle.WithFatalHook(e.onFatal),
	)
	e.maint = newMaintenance(mc, e.store, e.backend, e.bus, e.metrics, log)
	e.diag = diag.New(dc, gatherer, e.healthView, log)
	return e, nil
}

// NewFromFile loads and validates the config file, builds the engine and
// follows the file for hot reload once Init runs.
func NewFromFile(path string, deps Deps) (*Engine, error) {
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}
	e, err := New(cfg, deps)
	if err != nil {
		return nil, err
	}
	e.cfgm = cfgm
	cfgm.SetLogger(e.log)
	return e, nil
}

// Init restores persisted records and starts the session. ctx bounds the
// engine's background work; Shutdown ends it early.
func (e *Engine) Init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return lifecycle.ErrNotAccepting
	}
	if e.initialized {
		return lifecycle.ErrAlreadyInitialized
	}

	opts, err := mapInitOptions(e.cfg)
	if err != nil {
		return err
	}
	opts.Transport = e.deps.Transport

	sup := rtsup.New(ctx,
		rtsup.WithLogger(e.log),
		rtsup.WithCancelOnError(false),
	)

	if n, err := e.store.Restore(ctx); err != nil {
		// Persistence is best effort; start empty.
		e.log.Warn("record restore failed", logx.Err(err))
	} else if n > 0 {
		e.log.Info("records restored", logx.Int("count", n))
	}
	e.store.Start(sup.Context())

	if err := e.life.Init(sup.Context(), opts); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.store.Stop(stopCtx)
		_ = sup.Stop(stopCtx)
		return err
	}

	if err := e.maint.Start(sup.Context()); err != nil {
		e.log.Warn("maintenance not scheduled", logx.Err(err))
	}
	if err := e.diag.Start(sup.Context()); err != nil {
		e.log.Warn("diagnostics not started", logx.Err(err))
	}

	events, unsub := e.bus.Subscribe(128)
	sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				e.log.Trace("event", logx.String("type", ev.Type), logx.Time("time", ev.Time))
			}
		}
	})

	if e.cfgm != nil {
		sub := e.cfgm.Subscribe(4)
		sup.Go0("config.reload", func(c context.Context) {
			defer e.cfgm.Unsubscribe(sub)
			for {
				select {
				case <-c.Done():
					return
				case next, ok := <-sub:
					if !ok {
						return
					}
					e.applyConfig(next)
				}
			}
		})
		sup.Go("config.watch", e.cfgm.Watch)
	}

	e.sup = sup
	e.initialized = true
	e.log.Info("engine started", logx.String("session", e.life.Session().ID))
	return nil
}

// applyConfig hot-swaps logging and presentation. Other sections need a
// restart.
func (e *Engine) applyConfig(next *config.Config) {
	if next == nil {
		return
	}
	e.mu.Lock()
	prev := e.cfg
	e.cfg = next
	e.mu.Unlock()

	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		e.log.Debug("config reload received, but no effective changes detected")
		return
	}
	for _, s := range sections {
		switch s {
		case "logging":
			if e.logs != nil {
				e.logs.Apply(mapLogConfig(next))
			}
		case "presentation":
			e.norm.Store(normalize.New(mapNormalizeOptions(next), e.log.With(logx.String("comp", "normalize"))))
			e.pres.Apply(mapPresenterOptions(next))
		default:
			e.log.Warn(s+" config changed; restart required for changes to take effect", logx.String("section", s))
		}
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	e.log.Info("config reloaded", fields...)
}

// OnTransportMessage feeds one raw payload into the pipeline. Hosts that
// receive pushes themselves call this directly.
func (e *Engine) OnTransportMessage(ctx context.Context, raw []byte) (notification.Decision, error) {
	return e.life.OnTransportMessage(ctx, raw)
}

func (e *Engine) OnClick(ctx context.Context, tag string) router.Outcome {
	return e.router.OnClick(ctx, tag)
}

func (e *Engine) OnClose(ctx context.Context, tag string) notification.Transition {
	return e.router.OnClose(ctx, tag)
}

// Drain waits for scheduled display calls to finish.
func (e *Engine) Drain(ctx context.Context) error { return e.pres.Drain(ctx) }

// RunMaintenance runs one expiry/compaction sweep now.
func (e *Engine) RunMaintenance(ctx context.Context) (int, error) { return e.maint.RunOnce(ctx) }

func (e *Engine) Session() lifecycle.Session { return e.life.Session() }

func (e *Engine) Records() []notification.Record { return e.store.Snapshot() }

func (e *Engine) Record(tag string) (notification.Record, bool) { return e.store.Get(tag) }

// Subscribe returns engine events, optionally limited to the given types.
func (e *Engine) Subscribe(buffer int, types ...string) (<-chan eventbus.Event, func()) {
	return e.bus.SubscribeTypes(buffer, types...)
}

// DiagnosticsAddr is the bound diagnostics address, or "" when disabled.
func (e *Engine) DiagnosticsAddr() string { return e.diag.Addr() }

func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) Health() Health {
	e.mu.Lock()
	sup := e.sup
	e.mu.Unlock()
	sess := e.life.Session()
	driver := e.storageDriver
	if driver == "" {
		driver = "none"
	}
	return Health{
		Healthy:       sess.Status.Accepting(),
		Session:       sess,
		Records:       e.store.Counts(),
		Storage:       driver,
		EventsDropped: e.bus.Dropped(),
		Supervisor:    sup.Snapshot(),
	}
}

type healthView struct {
	Healthy    bool           `json:"healthy"`
	SessionID  string         `json:"session_id,omitempty"`
	Status     string         `json:"status"`
	Transport  string         `json:"transport,omitempty"`
	RetryCount int            `json:"retry_count"`
	LastError  string         `json:"last_error,omitempty"`
	Records    map[string]int `json:"records"`
	Storage    string         `json:"storage"`
	Goroutines int64          `json:"goroutines"`
	Dropped    uint64         `json:"events_dropped"`
}

func (e *Engine) healthView() (bool, any) {
	h := e.Health()
	return h.Healthy, healthView{
		Healthy:    h.Healthy,
		SessionID:  h.Session.ID,
		Status:     h.Session.Status.String(),
		Transport:  h.Session.Transport,
		RetryCount: h.Session.RetryCount,
		LastError:  h.Session.LastError,
		Records:    h.Records,
		Storage:    h.Storage,
		Goroutines: h.Supervisor.Counters.Active,
		Dropped:    h.EventsDropped,
	}
}

// Shutdown stops intake first, then drains display calls and persistence.
// It is idempotent; errors from every step are combined.
func (e *Engine) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sup := e.sup
	e.mu.Unlock()

	var err error
	step := func(name string, fn func(context.Context) error) {
		start := time.Now()
		if serr := fn(ctx); serr != nil {
			e.log.Warn("stop step error", logx.String("name", name), logx.Err(serr))
			err = multierr.Append(err, fmt.Errorf("%s: %w", name, serr))
			return
		}
		e.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("lifecycle", e.life.Shutdown)
	step("diagnostics", e.diag.Stop)
	step("maintenance", e.maint.Stop)
	step("presenter", e.pres.Stop)
	step("dedup", e.store.Stop)
	if sup != nil {
		step("supervisor", sup.Stop)
	}
	if e.backend != nil {
		step("storage", func(context.Context) error { return e.backend.Close() })
	}

	e.log.Info("engine stopped")
	return multierr.Append(err, e.closeLogs())
}

func (e *Engine) onFatal(err error) {
	e.log.Error("engine session closed", logx.Err(err))
	if e.deps.OnFatal != nil {
		go e.deps.OnFatal(err)
	}
}

func (e *Engine) closeLogs() error {
	if e.logs == nil {
		return nil
	}
	return e.logs.Close()
}

// swapNormalizer lets a config reload replace default texts without
// touching the lifecycle controller.
type swapNormalizer struct {
	v atomic.Pointer[normalize.Normalizer]
}

func newSwapNormalizer(n *normalize.Normalizer) *swapNormalizer {
	s := &swapNormalizer{}
	s.v.Store(n)
	return s
}

func (s *swapNormalizer) Store(n *normalize.Normalizer) { s.v.Store(n) }

func (s *swapNormalizer) NormalizeRaw(raw []byte) notification.Intent {
	return s.v.Load().NormalizeRaw(raw)
}
