package config

const (
	SchemaVersion = 1
)

// DefaultConfig returns a fully-populated v1 config document.
func DefaultConfig() Config {
	return Config{
		Version: SchemaVersion,
		Storage: StorageConfig{
			Root: "~/.pkgstore/dep",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Import: ImportConfig{
			LockTimeout:    "30s",
			LockStaleAfter: "10m",
		},
	}
}
