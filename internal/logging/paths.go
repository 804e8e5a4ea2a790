package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.kfsearch/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".kfsearch", "logs")
	}
	return filepath.Join(home, ".kfsearch", "logs")
}

// DefaultLogPath returns the default engine log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "kfsearch.log")
}

// EncoderLogPath returns the query-encoder backend's own log path, when the
// backend is a locally-managed process rather than a bare HTTP endpoint.
func EncoderLogPath() string {
	return filepath.Join(DefaultLogDir(), "encoder-backend.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceGo is the engine's own logs (default).
	LogSourceGo LogSource = "go"
	// LogSourceEncoder is the query-encoder backend process logs.
	LogSourceEncoder LogSource = "encoder"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.kfsearch/logs/kfsearch.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	// Try global path
	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. Server may not have run with --debug yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	// Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceGo:
		goPath := DefaultLogPath()
		checked = append(checked, goPath)
		if _, err := os.Stat(goPath); err == nil {
			paths = append(paths, goPath)
		}

	case LogSourceEncoder:
		encPath := EncoderLogPath()
		checked = append(checked, encPath)
		if _, err := os.Stat(encPath); err == nil {
			paths = append(paths, encPath)
		}

	case LogSourceAll:
		goPath := DefaultLogPath()
		encPath := EncoderLogPath()
		checked = append(checked, goPath, encPath)

		if _, err := os.Stat(goPath); err == nil {
			paths = append(paths, goPath)
		}
		if _, err := os.Stat(encPath); err == nil {
			paths = append(paths, encPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: go, encoder, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "encoder":
		return LogSourceEncoder
	case "all":
		return LogSourceAll
	default:
		return LogSourceGo
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceGo:
		return "To generate engine logs:\n  kfsearch --debug search ..."
	case LogSourceEncoder:
		return "To generate encoder backend logs, start the configured model server\nwith its own logging directed to " + EncoderLogPath()
	case LogSourceAll:
		return "To generate logs:\n  Engine:  kfsearch --debug search ...\n  Encoder: start the configured model server"
	default:
		return ""
	}
}
