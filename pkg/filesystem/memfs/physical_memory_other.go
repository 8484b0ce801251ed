//go:build !darwin && !linux
// +build !darwin,!linux

package memfs

func getPhysicalMemoryBytes() int64 {
	return fallbackMemoryLimitBytes
}
