package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Bew090/projectlocker/internal/config"
	"github.com/Bew090/projectlocker/internal/eventbus"
	"github.com/Bew090/projectlocker/internal/lifecycle"
	"github.com/Bew090/projectlocker/internal/notification"
	"github.com/Bew090/projectlocker/internal/platform"
	"github.com/Bew090/projectlocker/internal/platform/platformtest"
	"github.com/Bew090/projectlocker/internal/router"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

const lockerReady = `{"notification":{"title":"Locker Ready","body":"Your parcel is in locker 12","tag":"locker-notification"},"data":{"targetUrl":"/pickup"}}`

type harness struct {
	e       *Engine
	display *platformtest.Display
	windows *platformtest.Windows
}

func newHarness(t *testing.T, cfg *config.Config, windows ...platform.Window) *harness {
	t.Helper()
	h := &harness{
		display: platformtest.NewDisplay(),
		windows: platformtest.NewWindows(windows...),
	}
	e, err := New(cfg, Deps{
		Display:    h.display,
		Windows:    h.windows,
		Logger:     logx.Nop(),
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	h.e = e
	t.Cleanup(func() { h.shutdown(t) })
	return h
}

func (h *harness) shutdown(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func (h *harness) push(t *testing.T, raw string) notification.Decision {
	t.Helper()
	d, err := h.e.OnTransportMessage(context.Background(), []byte(raw))
	if err != nil {
		t.Fatalf("OnTransportMessage: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.e.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	return d
}

func (h *harness) state(t *testing.T, tag string) notification.State {
	t.Helper()
	rec, ok := h.e.Record(tag)
	if !ok {
		t.Fatalf("no record for %q", tag)
	}
	return rec.State
}

func TestLockerReadyShowAndClick(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, platform.Window{ID: "w1", URL: "https://locker.example.com/pickup", Focusable: true})

	if d := h.push(t, lockerReady); d != notification.DecisionInsert {
		t.Fatalf("decision = %v, want insert", d)
	}
	shown := h.display.Shown()
	if len(shown) != 1 {
		t.Fatalf("shown = %d, want 1", len(shown))
	}
	req := shown[0]
	if req.Tag != "locker-notification" || req.Title != "Locker Ready" || !req.RequireInteraction {
		t.Fatalf("request = %+v", req)
	}
	if req.Data[notification.DataTargetURL] != "/pickup" {
		t.Fatalf("targetUrl = %q", req.Data[notification.DataTargetURL])
	}
	if st := h.state(t, "locker-notification"); st != notification.StateShown {
		t.Fatalf("state = %v, want shown", st)
	}

	if out := h.e.OnClick(context.Background(), "locker-notification"); out != router.OutcomeFocused {
		t.Fatalf("OnClick = %v, want focused", out)
	}
	if st := h.state(t, "locker-notification"); st != notification.StateClicked {
		t.Fatalf("state after click = %v", st)
	}
	if out := h.e.OnClick(context.Background(), "locker-notification"); out != router.OutcomeIgnored {
		t.Fatalf("second click = %v, want ignored", out)
	}

	// A later push for the same slot starts a new cycle.
	if d := h.push(t, lockerReady); d != notification.DecisionReplace {
		t.Fatalf("push after click = %v, want replace", d)
	}
	if st := h.state(t, "locker-notification"); st != notification.StateShown {
		t.Fatalf("state after new cycle = %v", st)
	}
}

func TestCoalescingKeepsOneRecordPerTag(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.push(t, `{"notification":{"title":"one","tag":"slot"}}`)
	h.push(t, `{"notification":{"title":"two","tag":"slot"}}`)
	h.push(t, `{"notification":{"title":"other","tag":"other"}}`)

	if n := len(h.e.Records()); n != 2 {
		t.Fatalf("records = %d, want 2", n)
	}
	rec, _ := h.e.Record("slot")
	if rec.Generation != 2 || rec.Intent.Title != "two" {
		t.Fatalf("slot record = %+v", rec)
	}
	var titles []string
	for _, r := range h.display.Shown() {
		if r.Tag == "slot" {
			titles = append(titles, r.Title)
		}
	}
	if len(titles) != 2 || titles[0] != "one" || titles[1] != "two" {
		t.Fatalf("slot displays = %v", titles)
	}
}

func TestDismissThenNewCycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.push(t, lockerReady)

	tr := h.e.OnClose(context.Background(), "locker-notification")
	if !tr.Changed || tr.Removed {
		t.Fatalf("OnClose = %+v", tr)
	}
	if st := h.state(t, "locker-notification"); st != notification.StateDismissed {
		t.Fatalf("state = %v", st)
	}
	if d := h.push(t, lockerReady); d != notification.DecisionReplace {
		t.Fatalf("decision = %v", d)
	}
	if n := len(h.display.Shown()); n != 2 {
		t.Fatalf("shown = %d, want 2", n)
	}
}

func TestDisplayFailureKeepsRecordPending(t *testing.T) {
	t.Parallel()
	display := platformtest.NewDisplay()
	display.ShowFunc = func(context.Context, platform.Request) error { return errors.New("permission denied") }
	e, err := New(nil, Deps{Display: display, Logger: logx.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events, unsub := e.Subscribe(32)
	defer unsub()
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() { _ = e.Shutdown(context.Background()) }()

	if _, err := e.OnTransportMessage(context.Background(), []byte(lockerReady)); err != nil {
		t.Fatalf("OnTransportMessage: %v", err)
	}
	if err := e.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	rec, ok := e.Record("locker-notification")
	if !ok || rec.State != notification.StatePending {
		t.Fatalf("record = %+v, %v", rec, ok)
	}
	if s := e.Session(); s.Status != lifecycle.StatusActive {
		t.Fatalf("session = %v, display failure must not degrade it", s.Status)
	}
	saw := false
	for len(events) > 0 {
		if ev := <-events; ev.Type == eventbus.TypeDisplayFailed {
			saw = true
		}
	}
	if !saw {
		t.Fatal("no display failure event")
	}
}

func TestMaintenanceExpiresOnlyTerminal(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Maintenance = &config.MaintenanceConfig{RetainTerminal: "1ms"}
	h := newHarness(t, cfg)

	h.push(t, `{"notification":{"tag":"clicked"}}`)
	h.push(t, `{"notification":{"tag":"shown"}}`)
	h.e.OnClick(context.Background(), "clicked")
	time.Sleep(20 * time.Millisecond)

	n, err := h.e.RunMaintenance(context.Background())
	if err != nil {
		t.Fatalf("RunMaintenance: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	if _, ok := h.e.Record("clicked"); ok {
		t.Fatal("clicked record survived expiry")
	}
	if st := h.state(t, "shown"); st != notification.StateShown {
		t.Fatalf("shown record state = %v", st)
	}
}

func TestRecordsSurviveRestart(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Storage = &config.StorageConfig{Driver: driver, Path: filepath.Join(t.TempDir(), "engine.db")}

			first := newHarness(t, cfg)
			first.push(t, lockerReady)
			first.shutdown(t)

			second := newHarness(t, cfg)
			rec, ok := second.e.Record("locker-notification")
			if !ok {
				t.Fatal("record not restored")
			}
			if rec.State != notification.StateShown || rec.Intent.Title != "Locker Ready" {
				t.Fatalf("restored = %+v", rec)
			}
			if h := second.e.Health(); h.Storage != driver || h.Records[notification.StateShown.String()] != 1 {
				t.Fatalf("health = %+v", h)
			}
		})
	}
}

func TestLifecycleGuards(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, Deps{Logger: logx.Nop()}); !errors.Is(err, ErrNoDisplay) {
		t.Fatalf("New without display err = %v", err)
	}
	bad := config.Default()
	bad.Transport.Endpoint = "no-scheme"
	if _, err := New(bad, Deps{Display: platformtest.NewDisplay(), Logger: logx.Nop()}); err == nil {
		t.Fatal("invalid config accepted")
	}

	h := newHarness(t, nil)
	if !h.e.Health().Healthy {
		t.Fatalf("health = %+v", h.e.Health())
	}
	if err := h.e.Init(context.Background()); !errors.Is(err, lifecycle.ErrAlreadyInitialized) {
		t.Fatalf("second Init err = %v", err)
	}
	h.shutdown(t)
	h.shutdown(t)
	if _, err := h.e.OnTransportMessage(context.Background(), []byte(lockerReady)); !errors.Is(err, lifecycle.ErrNotAccepting) {
		t.Fatalf("message after shutdown err = %v", err)
	}
	if h.e.Health().Healthy {
		t.Fatal("closed engine reports healthy")
	}
}

func TestApplyConfigSwapsPresentation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	next := config.Default()
	next.Presentation.Icon = "/icons/new.png"
	next.Presentation.DefaultTitle = "Heads up"
	h.e.applyConfig(next)

	h.push(t, `{"notification":{"tag":"t"}}`)
	shown := h.display.Shown()
	if len(shown) != 1 {
		t.Fatalf("shown = %d", len(shown))
	}
	if shown[0].Icon != "/icons/new.png" || shown[0].Title != "Heads up" {
		t.Fatalf("request = %+v", shown[0])
	}
	if h.e.Config() != next {
		t.Fatal("Config() not updated")
	}
}

func TestNewFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	src := "logging:\n  level: warn\npresentation:\n  locale: th\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := NewFromFile(path, Deps{Display: platformtest.NewDisplay(), Logger: logx.Nop()})
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	if e.Config().Presentation.Locale != "th" {
		t.Fatalf("cfg = %+v", e.Config())
	}
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestDiagnosticsEndpoints(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Diagnostics = &config.DiagnosticsConfig{Enabled: true, Addr: "127.0.0.1:0"}
	display := platformtest.NewDisplay()
	e, err := New(cfg, Deps{Display: display, Logger: logx.Nop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() { _ = e.Shutdown(context.Background()) }()
	if _, err := e.OnTransportMessage(context.Background(), []byte(lockerReady)); err != nil {
		t.Fatalf("OnTransportMessage: %v", err)
	}

	addr := e.DiagnosticsAddr()
	if addr == "" {
		t.Fatal("diagnostics not listening")
	}
	get := func(path string) (int, string) {
		t.Helper()
		client := &http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get("http://" + addr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(b)
	}

	code, body := get("/healthz")
	if code != http.StatusOK || !strings.Contains(body, `"status":"active"`) {
		t.Fatalf("healthz = %d %s", code, body)
	}
	code, body = get("/metrics")
	if code != http.StatusOK || !strings.Contains(body, `pushengine_admissions_total{decision="insert"} 1`) {
		t.Fatalf("metrics = %d %s", code, body)
	}
}

func TestReplaceWhileFirstDisplayInFlight(t *testing.T) {
	t.Parallel()
	const (
		a1 = `{"notification":{"title":"A1","tag":"locker-notification"}}`
		a2 = `{"notification":{"title":"A2","tag":"locker-notification"}}`
	)
	setup := func(t *testing.T) (*harness, map[string]chan struct{}, <-chan string) {
		t.Helper()
		cfg := config.Default()
		cfg.Maintenance = &config.MaintenanceConfig{RetainTerminal: "1ms"}
		h := newHarness(t, cfg)
		gates := map[string]chan struct{}{"A1": make(chan struct{}), "A2": make(chan struct{})}
		started := make(chan string, 4)
		h.display.ShowFunc = func(_ context.Context, req platform.Request) error {
			started <- req.Title
			<-gates[req.Title]
			return nil
		}
		return h, gates, started
	}
	wait := func(t *testing.T, started <-chan string, want string) {
		t.Helper()
		select {
		case got := <-started:
			if got != want {
				t.Fatalf("started %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("display of %q never started", want)
		}
	}
	send := func(t *testing.T, h *harness, raw string) notification.Decision {
		t.Helper()
		d, err := h.e.OnTransportMessage(context.Background(), []byte(raw))
		if err != nil {
			t.Fatalf("OnTransportMessage: %v", err)
		}
		return d
	}
	drain := func(t *testing.T, h *harness) {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.e.Drain(ctx); err != nil {
			t.Fatalf("Drain: %v", err)
		}
	}

	t.Run("close of superseded display", func(t *testing.T) {
		t.Parallel()
		h, gates, started := setup(t)
		send(t, h, a1)
		wait(t, started, "A1")
		time.Sleep(50 * time.Millisecond)
		if d := send(t, h, a2); d != notification.DecisionReplace {
			t.Fatalf("second push = %v, want replace", d)
		}
		close(gates["A1"])
		wait(t, started, "A2")

		if tr := h.e.OnClose(context.Background(), "locker-notification"); tr.Changed {
			t.Fatalf("close while A2 pending = %+v", tr)
		}
		close(gates["A2"])
		drain(t, h)

		rec, _ := h.e.Record("locker-notification")
		if rec.State != notification.StateShown || rec.Intent.Title != "A2" {
			t.Fatalf("record = %+v, want shown A2", rec)
		}
		shown := h.display.Shown()
		if len(shown) != 2 || shown[1].Title != "A2" {
			t.Fatalf("display calls = %+v", shown)
		}
		time.Sleep(5 * time.Millisecond)
		if n, err := h.e.RunMaintenance(context.Background()); err != nil || n != 0 {
			t.Fatalf("maintenance expired %d (%v) while A2 is on screen", n, err)
		}
		if out := h.e.OnClick(context.Background(), "locker-notification"); out != router.OutcomeOpened {
			t.Fatalf("click on A2 = %v, want opened", out)
		}
	})

	t.Run("click during display", func(t *testing.T) {
		t.Parallel()
		h, gates, started := setup(t)
		send(t, h, a1)
		wait(t, started, "A1")
		if out := h.e.OnClick(context.Background(), "locker-notification"); out != router.OutcomeOpened {
			t.Fatalf("click = %v, want opened", out)
		}
		close(gates["A1"])
		drain(t, h)

		if st := h.state(t, "locker-notification"); st != notification.StateClicked {
			t.Fatalf("state = %v, want clicked", st)
		}
		// One close from the router, one for the display that landed late.
		if closed := h.display.Closed(); len(closed) != 2 {
			t.Fatalf("closed = %v, want 2", closed)
		}
	})
}
