package config

import (
	"fmt"
	"time"
)

var allowedLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var allowedFormats = map[string]struct{}{
	"text":   {},
	"json":   {},
	"logfmt": {},
}

func Validate(cfg Config) error {
	if cfg.Version != SchemaVersion {
		return fmt.Errorf("DOC_CONFIG_VERSION: unsupported version %d", cfg.Version)
	}
	if cfg.Storage.Root == "" {
		return fmt.Errorf("DOC_CONFIG_STORAGE: missing storage root")
	}
	if _, ok := allowedLevels[cfg.Logging.Level]; !ok {
		return fmt.Errorf("DOC_CONFIG_LOGGING: invalid logging level %q", cfg.Logging.Level)
	}
	if _, ok := allowedFormats[cfg.Logging.Format]; !ok {
		return fmt.Errorf("DOC_CONFIG_LOGGING: invalid logging format %q", cfg.Logging.Format)
	}
	for field, v := range map[string]string{"lock_timeout": cfg.Import.LockTimeout, "lock_stale_after": cfg.Import.LockStaleAfter} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DOC_CONFIG_IMPORT: invalid %s %q: %w", field, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("DOC_CONFIG_IMPORT: %s must be positive", field)
		}
	}
	for _, ext := range cfg.Import.Extensions {
		if ext == "" {
			return fmt.Errorf("DOC_CONFIG_IMPORT: empty archive extension")
		}
	}
	return nil
}

// LockDurations returns the parsed install-gate timings. cfg must be valid.
func LockDurations(cfg Config) (timeout, staleAfter time.Duration) {
	timeout, _ = time.ParseDuration(cfg.Import.LockTimeout)
	staleAfter, _ = time.ParseDuration(cfg.Import.LockStaleAfter)
	return timeout, staleAfter
}
