package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Bew090/projectlocker/internal/dedup"
	"github.com/Bew090/projectlocker/internal/eventbus"
	"github.com/Bew090/projectlocker/internal/metrics"
	"github.com/Bew090/projectlocker/internal/storage"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

const maintenanceJob = "maintenance"

// maintenance expires old terminal records and compacts the backend on a
// cron schedule. It never touches Pending or Shown records.
type maintenance struct {
	cfg     maintenanceConfig
	store   *dedup.Store
	backend storage.Store
	bus     eventbus.Bus
	metrics *metrics.Metrics
	log     logx.Logger
	now     func() time.Time

	mu sync.Mutex
	c  *cron.Cron
	// running guards against overlapping runs from the schedule and RunOnce.
	running sync.Mutex
}

func newMaintenance(cfg maintenanceConfig, store *dedup.Store, backend storage.Store, bus eventbus.Bus, m *metrics.Metrics, log logx.Logger) *maintenance {
	return &maintenance{
		cfg:     cfg,
		store:   store,
		backend: backend,
		bus:     bus,
		metrics: m,
		log:     log.With(logx.String("comp", "maintenance")),
		now:     time.Now,
	}
}

// Start registers the job. ctx bounds each run's storage calls.
func (m *maintenance) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.log.Debug("maintenance disabled")
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.c != nil {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.Local))
	if _, err := c.AddFunc(m.cfg.Schedule, func() { _, _ = m.RunOnce(ctx) }); err != nil {
		return err
	}
	m.c = c
	c.Start()
	m.log.Info("maintenance scheduled",
		logx.String("schedule", m.cfg.Schedule),
		logx.Duration("retain_terminal", m.cfg.Retain))
	return nil
}

// Stop unregisters the job and waits for a running job until ctx is done.
func (m *maintenance) Stop(ctx context.Context) error {
	m.mu.Lock()
	c := m.c
	m.c = nil
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep and returns the number of expired records.
func (m *maintenance) RunOnce(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.running.Lock()
	defer m.running.Unlock()

	start := m.now()
	expired := m.store.ExpireTerminal(start.Add(-m.cfg.Retain))

	var err error
	compacted := false
	if m.backend != nil {
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = m.backend.Compact(cctx)
		cancel()
		compacted = err == nil
	}
	took := m.now().Sub(start)
	m.metrics.ObserveJob(maintenanceJob, took, err)

	ev := eventbus.MaintenanceEvent{Expired: expired, Compacted: compacted, At: m.now()}
	if err != nil {
		ev.Error = err.Error()
		m.log.Warn("storage compaction failed", logx.Err(err))
	}
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeRecordsExpired, Time: ev.At, Data: ev})
	}
	if expired > 0 {
		m.log.Info("expired terminal records", logx.Int("count", expired), logx.Duration("took", took))
	} else {
		m.log.Debug("maintenance run", logx.Duration("took", took))
	}
	return expired, err
}
