package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default restorewatch data directory name (relative to home).
	DefaultDataDir = ".restorewatch"
	// ArtifactsDir is the subdirectory for uploaded artifacts.
	ArtifactsDir = "artifacts"
	// WorkDir is the subdirectory for the restore runner scratch space.
	WorkDir = "work"
	// DBFile is the progress event log database filename.
	DBFile = "restorewatch.db"
	// ConfigFile is the optional server configuration filename.
	ConfigFile = "server.yaml"

	// DefaultListenAddress is the default server listen address.
	DefaultListenAddress = "127.0.0.1:8080"
	// DefaultServerURL is the default server URL used by the client commands.
	DefaultServerURL = "http://127.0.0.1:8080"
)

// DBPath returns the database path inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// ArtifactsPath returns the artifact storage root inside a data directory.
func ArtifactsPath(dataDir string) string {
	return filepath.Join(dataDir, ArtifactsDir)
}

// WorkPath returns the restore runner scratch space inside a data directory.
func WorkPath(dataDir string) string {
	return filepath.Join(dataDir, WorkDir)
}

// ConfigPath returns the server configuration path inside a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, ConfigFile)
}
