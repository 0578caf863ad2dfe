//go:build !linux

package blobstore

import (
	"os"
	"time"
)

// atime falls back to modification time on platforms whose os.FileInfo
// does not expose atime through syscall.Stat_t, documenting the deviation
// the upstream design explicitly permits.
func atime(info os.FileInfo) time.Time {
	return info.ModTime()
}
