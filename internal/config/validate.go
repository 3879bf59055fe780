package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

var validLevels = map[string]bool{
	"": true, "trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

var validDrivers = map[string]bool{"": true, "none": true, "file": true, "sqlite": true, "sqlite3": true}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	lg := cfg.Logging
	if !validLevels[strings.ToLower(strings.TrimSpace(lg.Level))] {
		add(fmt.Errorf("logging.level: unknown level %q", lg.Level))
	}
	if lg.File.Enabled && strings.TrimSpace(lg.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}
	if !validLevels[strings.ToLower(strings.TrimSpace(lg.Host.MinLevel))] {
		add(fmt.Errorf("logging.host.min_level: unknown level %q", lg.Host.MinLevel))
	}
	if lg.Host.RatePerSec < 0 {
		add(errors.New("logging.host.rate_per_sec: must be >= 0"))
	}

	tr := cfg.Transport
	if ep := strings.TrimSpace(tr.Endpoint); ep != "" && !strings.Contains(ep, "://") {
		add(fmt.Errorf("transport.endpoint: %q has no scheme", ep))
	}
	_, err := ParseDurationField("transport.dial_timeout", tr.DialTimeout)
	add(err)
	if tr.Retry.MaxRetries < -1 {
		add(errors.New("transport.retry.max_retries: must be >= -1"))
	}
	base, err := ParseDurationField("transport.retry.base_delay", tr.Retry.BaseDelay)
	add(err)
	maxDelay, err := ParseDurationField("transport.retry.max_delay", tr.Retry.MaxDelay)
	add(err)
	if base > 0 && maxDelay > 0 && maxDelay < base {
		add(errors.New("transport.retry.max_delay: must be >= base_delay"))
	}

	pr := cfg.Presentation
	for i, v := range pr.Vibrate {
		if v < 0 {
			add(fmt.Errorf("presentation.vibrate[%d]: must be >= 0", i))
		}
	}
	if u := strings.TrimSpace(pr.DefaultTargetURL); u != "" {
		if _, err := url.Parse(u); err != nil {
			add(fmt.Errorf("presentation.default_target_url: %w", err))
		}
	}

	if st := cfg.Storage; st != nil {
		driver := strings.ToLower(strings.TrimSpace(st.Driver))
		if !validDrivers[driver] {
			add(fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		if driver != "" && driver != "none" && strings.TrimSpace(st.Path) == "" {
			add(errors.New("storage.path: required for driver " + driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout)
		add(err)
		if st.CompactEvery < 0 {
			add(errors.New("storage.compact_every: must be >= 0"))
		}
	}

	if mt := cfg.Maintenance; mt != nil {
		if s := strings.TrimSpace(mt.Schedule); s != "" {
			if _, err := cron.ParseStandard(s); err != nil {
				add(fmt.Errorf("maintenance.schedule: %w", err))
			}
		}
		_, err := ParseDurationField("maintenance.retain_terminal", mt.RetainTerminal)
		add(err)
	}

	if dg := cfg.Diagnostics; dg != nil && dg.Enabled {
		if addr := strings.TrimSpace(dg.Addr); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				add(fmt.Errorf("diagnostics.addr: %w", err))
			}
		}
		for _, f := range []struct{ path, raw string }{
			{"diagnostics.read_timeout", dg.ReadTimeout},
			{"diagnostics.write_timeout", dg.WriteTimeout},
			{"diagnostics.idle_timeout", dg.IdleTimeout},
		} {
			_, err := ParseDurationField(f.path, f.raw)
			add(err)
		}
	}

	return errors.Join(errs...)
}
