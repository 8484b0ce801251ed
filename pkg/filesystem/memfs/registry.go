package memfs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	otel_codes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FileSystemType is a kind of file system that can be registered
// with a Registry, and subsequently be mounted by name.
type FileSystemType interface {
	Name() string
	Mount(ctx context.Context, options MountOptions) (*MountRoot, Status)
}

type memoryFileSystemType struct{}

func (memoryFileSystemType) Name() string {
	return "memfs"
}

func (memoryFileSystemType) Mount(ctx context.Context, options MountOptions) (*MountRoot, Status) {
	return NewMountRoot(ctx, options)
}

// MemoryFileSystemType is the FileSystemType of the in-memory file
// system.
var MemoryFileSystemType FileSystemType = memoryFileSystemType{}

type registeredFileSystemType struct {
	fileSystemType FileSystemType
	activeMounts   int
}

// Registry of file system types. File system types need to be
// registered before they can be mounted, and can only be unregistered
// when no instances of them are mounted.
type Registry struct {
	tracer trace.Tracer

	lock  sync.Mutex
	types map[string]*registeredFileSystemType
}

// NewRegistry creates a Registry that has no file system types
// registered. Every mount and unmount is recorded as a trace span.
func NewRegistry(tracerProvider trace.TracerProvider) *Registry {
	return &Registry{
		tracer: tracerProvider.Tracer("github.com/buildbarn/bb-memfs/pkg/filesystem/memfs"),
		types:  map[string]*registeredFileSystemType{},
	}
}

// Register a file system type, so that it may be mounted.
func (r *Registry) Register(fileSystemType FileSystemType) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	name := fileSystemType.Name()
	if _, ok := r.types[name]; ok {
		return status.Errorf(codes.AlreadyExists, "File system type %#v is already registered", name)
	}
	r.types[name] = &registeredFileSystemType{
		fileSystemType: fileSystemType,
	}
	return nil
}

// Unregister a file system type. This fails if one or more instances
// of the file system type are still mounted.
func (r *Registry) Unregister(name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	registered, ok := r.types[name]
	if !ok {
		return status.Errorf(codes.NotFound, "File system type %#v is not registered", name)
	}
	if registered.activeMounts > 0 {
		return status.Errorf(codes.FailedPrecondition, "File system type %#v still has %d active mounts", name, registered.activeMounts)
	}
	delete(r.types, name)
	return nil
}

// Mount a new instance of a registered file system type.
func (r *Registry) Mount(ctx context.Context, name string, options MountOptions) (*Mount, error) {
	_, span := r.tracer.Start(ctx, "Registry.Mount", trace.WithAttributes(
		attribute.String("file_system_type", name),
	))
	defer span.End()

	r.lock.Lock()
	registered, ok := r.types[name]
	if !ok {
		r.lock.Unlock()
		err := status.Errorf(codes.NotFound, "File system type %#v is not registered", name)
		span.SetStatus(otel_codes.Error, err.Error())
		return nil, err
	}
	registered.activeMounts++
	r.lock.Unlock()

	mountRoot, s := registered.fileSystemType.Mount(ctx, options)
	if s != StatusOK {
		r.lock.Lock()
		registered.activeMounts--
		r.lock.Unlock()
		err := s.ToError("Failed to create root directory")
		span.SetStatus(otel_codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("instance_id", mountRoot.InstanceID().String()))
	return &Mount{
		registry:   r,
		registered: registered,
		mountRoot:  mountRoot,
	}, nil
}

// Mount of a file system, as returned by Registry.Mount().
type Mount struct {
	registry   *Registry
	registered *registeredFileSystemType
	mountRoot  *MountRoot
	once       sync.Once
}

// MountRoot returns the instance of the file system that is mounted.
func (m *Mount) MountRoot() *MountRoot {
	return m.mountRoot
}

// Unmount the file system, releasing all of its nodes. Calling this
// function more than once has no effect.
func (m *Mount) Unmount(ctx context.Context) {
	m.once.Do(func() {
		_, span := m.registry.tracer.Start(ctx, "Mount.Unmount", trace.WithAttributes(
			attribute.String("file_system_type", m.registered.fileSystemType.Name()),
			attribute.String("instance_id", m.mountRoot.InstanceID().String()),
		))
		defer span.End()

		m.mountRoot.Unmount()

		m.registry.lock.Lock()
		m.registered.activeMounts--
		m.registry.lock.Unlock()
	})
}
