package config

import (
	"slices"
	"strings"

	logx "github.com/Bew090/projectlocker/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// attrs for a reload log line. Credentials are reported as set/unset only.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	ol, nl := oldCfg.Logging, newCfg.Logging
	if ol != nl {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Bool("logging.host_enabled", nl.Host.Enabled),
		)
	}

	ot, nt := oldCfg.Transport, newCfg.Transport
	if strings.TrimSpace(ot.Endpoint) != strings.TrimSpace(nt.Endpoint) ||
		ot.Username != nt.Username ||
		ot.Password != nt.Password ||
		ot.DialTimeout != nt.DialTimeout ||
		ot.Retry != nt.Retry {
		changed = append(changed, "transport")
		attrs = append(attrs,
			logx.String("transport.scheme", endpointScheme(nt.Endpoint)),
			logx.Bool("transport.credentials_set", nt.Username != "" || nt.Password != ""),
			logx.Int("transport.max_retries", nt.Retry.MaxRetries),
		)
	}

	op, np := oldCfg.Presentation, newCfg.Presentation
	if op.Locale != np.Locale ||
		op.DefaultTitle != np.DefaultTitle ||
		op.DefaultBody != np.DefaultBody ||
		op.DefaultTag != np.DefaultTag ||
		op.DefaultTargetURL != np.DefaultTargetURL ||
		op.Icon != np.Icon ||
		op.Badge != np.Badge ||
		!slices.Equal(op.Vibrate, np.Vibrate) ||
		op.RequireInteractionOrDefault() != np.RequireInteractionOrDefault() {
		changed = append(changed, "presentation")
		attrs = append(attrs,
			logx.String("presentation.locale", np.Locale),
			logx.Bool("presentation.require_interaction", np.RequireInteractionOrDefault()),
		)
	}

	ostore, ns := deref(oldCfg.Storage), deref(newCfg.Storage)
	if ostore != ns {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", ns.Driver),
			logx.String("storage.path", ns.Path),
		)
	}

	om, nm := oldCfg.Maintenance, newCfg.Maintenance
	if om.IsEnabled() != nm.IsEnabled() || deref(om).Schedule != deref(nm).Schedule ||
		deref(om).RetainTerminal != deref(nm).RetainTerminal {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", nm.IsEnabled()),
			logx.String("maintenance.schedule", deref(nm).Schedule),
		)
	}

	od, nd := deref(oldCfg.Diagnostics), deref(newCfg.Diagnostics)
	if od != nd {
		changed = append(changed, "diagnostics")
		attrs = append(attrs,
			logx.Bool("diagnostics.enabled", nd.Enabled),
			logx.String("diagnostics.addr", nd.Addr),
			logx.Bool("diagnostics.token_set", nd.Token != ""),
		)
	}

	return changed, attrs
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func endpointScheme(ep string) string {
	scheme, _, ok := strings.Cut(strings.TrimSpace(ep), "://")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}
