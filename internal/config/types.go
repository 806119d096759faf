package config

// Config is the frozen v1 schema of config.toml.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Import  ImportConfig  `toml:"import"`
}

type StorageConfig struct {
	Root string `toml:"root"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ImportConfig tunes the install gate shared by concurrent importers.
type ImportConfig struct {
	LockTimeout    string `toml:"lock_timeout"`
	LockStaleAfter string `toml:"lock_stale_after"`
	// Extensions restricts the archive formats accepted; empty means all built-in formats.
	Extensions []string `toml:"extensions,omitempty"`
}
