package internal

import (
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config lookup paths and the env prefix
	DefaultAppName    = "dicomzip"
	DefaultEnvPrefix  = "DICOMZIP"
	DefaultConfigPath = filepath.Join(getHomeDir(), ".config", DefaultAppName)

	// Scan defaults
	DefaultMaxWorkers       = 32
	DefaultMaxValueLength   = 16 << 20 // values above this are skipped, not buffered
	DefaultMaxSequenceDepth = 8

	// DefaultIgnorePatterns keeps archive tooling droppings out of classification
	DefaultIgnorePatterns = []string{"__MACOSX/", ".DS_Store", "Thumbs.db"}
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a stderr zerolog logger at the given level.
// Unknown level strings fall back to info.
func GetLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
