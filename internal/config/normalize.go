package config

import "strings"

func Normalize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Version == 0 {
		cfg.Version = SchemaVersion
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = def.Storage.Root
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Import.LockTimeout == "" {
		cfg.Import.LockTimeout = def.Import.LockTimeout
	}
	if cfg.Import.LockStaleAfter == "" {
		cfg.Import.LockStaleAfter = def.Import.LockStaleAfter
	}
	if len(cfg.Import.Extensions) > 0 {
		exts := make([]string, len(cfg.Import.Extensions))
		for i, ext := range cfg.Import.Extensions {
			exts[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		}
		cfg.Import.Extensions = exts
	}
	return cfg
}
