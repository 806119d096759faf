package config

// Build metadata, set with -ldflags "-X pkgstore/internal/config.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
