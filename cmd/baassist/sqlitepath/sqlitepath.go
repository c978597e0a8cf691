// Package sqlitepath resolves the transcript database used by commands.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/papercomputeco/baassist/pkg/config"
)

// ResolveSQLitePath returns override when set, then $BA_SQLITE, then
// ~/.baassist/transcripts.db.
func ResolveSQLitePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if v := os.Getenv(config.EnvSQLite); v != "" {
		return v, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".baassist", "transcripts.db"), nil
}
