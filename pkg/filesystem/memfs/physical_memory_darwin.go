//go:build darwin
// +build darwin

package memfs

import (
	"golang.org/x/sys/unix"
)

func getPhysicalMemoryBytes() int64 {
	memSize, err := unix.SysctlUint64("hw.memsize")
	if err != nil || memSize == 0 {
		return fallbackMemoryLimitBytes
	}
	return int64(memSize)
}
