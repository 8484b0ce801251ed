//go:build linux
// +build linux

package memfs

import (
	"golang.org/x/sys/unix"
)

func getPhysicalMemoryBytes() int64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil || info.Totalram == 0 {
		return fallbackMemoryLimitBytes
	}
	return int64(info.Totalram) * int64(info.Unit)
}
