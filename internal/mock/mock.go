// Package mock contains mocks of interfaces that are used by tests.
package mock

//go:generate mockgen -package mock -destination clock.go github.com/buildbarn/bb-storage/pkg/clock Clock,Ticker,Timer
//go:generate mockgen -package mock -destination fuse.go github.com/buildbarn/bb-memfs/pkg/filesystem/memfs/fuse Unmounter
//go:generate mockgen -package mock -destination memfs.go github.com/buildbarn/bb-memfs/pkg/filesystem/memfs DirectoryEntryReporter,MemoryAllocator
//go:generate mockgen -package mock -destination sync.go github.com/buildbarn/bb-memfs/pkg/sync OrderedLocker
//go:generate mockgen -package mock -destination util.go github.com/buildbarn/bb-storage/pkg/util ErrorLogger
