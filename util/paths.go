package util

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("BEACON_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "proximity-beacon")
	}
	return filepath.Join(home, ".proximity-beacon")
}

// GetTelemetryDir returns the directory fault records are written to. It is not
// created here; the telemetry recorder creates it on open.
func GetTelemetryDir() string {
	return filepath.Join(GetDataDir(), "telemetry")
}
