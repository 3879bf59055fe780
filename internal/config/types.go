package config

// Config is the engine configuration file (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
// Unknown keys are rejected.
type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Transport    TransportConfig    `json:"transport"`
	Presentation PresentationConfig `json:"presentation"`

	// Storage is optional; omitted or driver "none" keeps records in memory only.
	Storage     *StorageConfig     `json:"storage,omitempty"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
	Diagnostics *DiagnosticsConfig `json:"diagnostics,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Host    LoggingHost `json:"host"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingHost forwards warn+ lines to the host application's log sink.
type LoggingHost struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TransportConfig selects the push transport.
//
// Example:
//
//	"transport": { "endpoint": "redis://cache:6379/0?channel=push",
//	               "retry": { "max_retries": 8, "base_delay": "1s", "max_delay": "1m" } }
//
// An empty endpoint means the host delivers payloads itself.
type TransportConfig struct {
	Endpoint    string      `json:"endpoint"`
	Username    string      `json:"username,omitempty"`
	Password    string      `json:"password,omitempty"` // never logged
	DialTimeout string      `json:"dial_timeout,omitempty"`
	Retry       RetryConfig `json:"retry"`
}

type RetryConfig struct {
	// MaxRetries 0 means the default (8); -1 retries forever.
	MaxRetries int    `json:"max_retries"`
	BaseDelay  string `json:"base_delay"`
	MaxDelay   string `json:"max_delay"`
}

type PresentationConfig struct {
	// Locale is a BCP 47 tag used to pick the default title/body.
	Locale           string `json:"locale,omitempty"`
	DefaultTitle     string `json:"default_title,omitempty"`
	DefaultBody      string `json:"default_body,omitempty"`
	DefaultTag       string `json:"default_tag,omitempty"`
	DefaultTargetURL string `json:"default_target_url,omitempty"`

	Icon    string `json:"icon,omitempty"`
	Badge   string `json:"badge,omitempty"`
	Vibrate []int  `json:"vibrate,omitempty"`
	// RequireInteraction defaults to true when omitted.
	RequireInteraction *bool `json:"require_interaction,omitempty"`
}

// StorageConfig controls record persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/records.db" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path"`
	BusyTimeout  string `json:"busy_timeout,omitempty"` // sqlite
	CompactEvery int    `json:"compact_every,omitempty"`
}

// MaintenanceConfig controls the housekeeping job.
//
// Defaults: enabled, schedule "@every 5m", retain_terminal "10m".
type MaintenanceConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Schedule       string `json:"schedule,omitempty"`
	RetainTerminal string `json:"retain_terminal,omitempty"`
}

// DiagnosticsConfig controls the optional HTTP endpoints (/metrics,
// /healthz, /debug/pprof).
//
// Security: prefer a loopback addr (the default). A non-loopback addr needs
// a token or allow_insecure.
type DiagnosticsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}

func (p PresentationConfig) RequireInteractionOrDefault() bool {
	if p.RequireInteraction == nil {
		return true
	}
	return *p.RequireInteraction
}

func (m *MaintenanceConfig) IsEnabled() bool {
	if m == nil || m.Enabled == nil {
		return true
	}
	return *m.Enabled
}
