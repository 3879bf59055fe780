package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/Bew090/projectlocker/internal/config"
	"github.com/Bew090/projectlocker/internal/lifecycle"
	"github.com/Bew090/projectlocker/internal/normalize"
	"github.com/Bew090/projectlocker/internal/observability/diag"
	"github.com/Bew090/projectlocker/internal/presenter"
	"github.com/Bew090/projectlocker/internal/storage"
	"github.com/Bew090/projectlocker/internal/transport"
	logx "github.com/Bew090/projectlocker/pkg/logx"
)

const (
	defaultMaintenanceSchedule = "@every 5m"
	defaultRetainTerminal      = 10 * time.Minute
)

func mapLogConfig(cfg *config.Config) logx.Config {
	lg := cfg.Logging
	return logx.Config{
		Level:   lg.Level,
		Console: lg.Console,
		File: logx.FileConfig{
			Enabled: lg.File.Enabled,
			Path:    lg.File.Path,
		},
		Host: logx.HostConfig{
			Enabled:    lg.Host.Enabled,
			MinLevel:   lg.Host.MinLevel,
			RatePerSec: lg.Host.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:       driver,
		Path:         path,
		BusyTimeout:  busy,
		CompactEvery: sc.CompactEvery,
	}, true, nil
}

func mapNormalizeOptions(cfg *config.Config) normalize.Options {
	p := cfg.Presentation
	return normalize.Options{
		Locale:           p.Locale,
		DefaultTitle:     p.DefaultTitle,
		DefaultBody:      p.DefaultBody,
		DefaultTag:       p.DefaultTag,
		DefaultTargetURL: p.DefaultTargetURL,
	}
}

// mapPresenterOptions keeps built-in defaults for omitted fields.
func mapPresenterOptions(cfg *config.Config) presenter.Options {
	p := cfg.Presentation
	o := presenter.DefaultOptions()
	if s := strings.TrimSpace(p.Icon); s != "" {
		o.Icon = s
	}
	if s := strings.TrimSpace(p.Badge); s != "" {
		o.Badge = s
	}
	if len(p.Vibrate) > 0 {
		o.Vibrate = append([]int(nil), p.Vibrate...)
	}
	o.RequireInteraction = p.RequireInteractionOrDefault()
	return o
}

func mapInitOptions(cfg *config.Config) (lifecycle.Options, error) {
	tc := cfg.Transport
	dial, err := config.ParseDurationField("transport.dial_timeout", tc.DialTimeout)
	if err != nil {
		return lifecycle.Options{}, err
	}
	base, err := config.ParseDurationOrDefault("transport.retry.base_delay", tc.Retry.BaseDelay, lifecycle.DefaultBaseDelay)
	if err != nil {
		return lifecycle.Options{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("transport.retry.max_delay", tc.Retry.MaxDelay, lifecycle.DefaultMaxDelay)
	if err != nil {
		return lifecycle.Options{}, err
	}
	return lifecycle.Options{
		Endpoint: strings.TrimSpace(tc.Endpoint),
		Credentials: transport.Credentials{
			Username: tc.Username,
			Password: tc.Password,
		},
		DialTimeout: dial,
		RetryPolicy: lifecycle.RetryPolicy{
			MaxRetries: tc.Retry.MaxRetries,
			BaseDelay:  base,
			MaxDelay:   maxDelay,
		},
	}, nil
}

type maintenanceConfig struct {
	Enabled  bool
	Schedule string
	Retain   time.Duration
}

func mapMaintenanceConfig(cfg *config.Config) (maintenanceConfig, error) {
	mc := maintenanceConfig{
		Enabled:  cfg.Maintenance.IsEnabled(),
		Schedule: defaultMaintenanceSchedule,
		Retain:   defaultRetainTerminal,
	}
	if cfg.Maintenance == nil {
		return mc, nil
	}
	if s := strings.TrimSpace(cfg.Maintenance.Schedule); s != "" {
		mc.Schedule = s
	}
	retain, err := config.ParseDurationOrDefault("maintenance.retain_terminal", cfg.Maintenance.RetainTerminal, defaultRetainTerminal)
	if err != nil {
		return maintenanceConfig{}, err
	}
	mc.Retain = retain
	return mc, nil
}

func mapDiagConfig(cfg *config.Config) (diag.Config, error) {
	dg := cfg.Diagnostics
	if dg == nil || !dg.Enabled {
		return diag.Config{}, nil
	}
	read, err := config.ParseDurationOrDefault("diagnostics.read_timeout", dg.ReadTimeout, 10*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	// pprof profiles stream for up to 30s by default.
	write, err := config.ParseDurationOrDefault("diagnostics.write_timeout", dg.WriteTimeout, 60*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("diagnostics.idle_timeout", dg.IdleTimeout, 60*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	return diag.Config{
		Enabled:       true,
		Addr:          strings.TrimSpace(dg.Addr),
		Token:         strings.TrimSpace(dg.Token),
		AllowInsecure: dg.AllowInsecure,
		Pprof:         dg.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}
