//go:build !linux

package snapshotter

import (
	"os"
	"time"
)

// ctimeOf falls back to mtime on platforms where the change time is not
// reachable through a portable syscall field layout.
func ctimeOf(info os.FileInfo) time.Time {
	return info.ModTime()
}
