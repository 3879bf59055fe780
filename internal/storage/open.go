package storage

import (
	"errors"
	"fmt"
	"strings"

	logx "github.com/Bew090/projectlocker/pkg/logx"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Open opens the record backend named by cfg.Driver.
// An empty driver or "none" returns (nil, nil): records then live in memory only.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "none":
		return nil, nil
	case "file", "sqlite", "sqlite3":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("storage %s: path is required", driver)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver))

	if driver == "file" {
		return openFile(cfg, log)
	}
	return openSQLite(cfg, log)
}
