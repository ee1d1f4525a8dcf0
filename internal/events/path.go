package events

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSocketPath is the hotkey command socket under the user's runtime
// directory.
func DefaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "volume-patrol", "commands.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("volume-patrol-%d", os.Getuid()), "commands.sock")
}
