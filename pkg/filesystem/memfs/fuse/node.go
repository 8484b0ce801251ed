//go:build darwin || linux
// +build darwin linux

package fuse

import (
	"context"
	"encoding/hex"
	"syscall"
	"time"

	"github.com/buildbarn/bb-memfs/pkg/filesystem/memfs"
	"github.com/buildbarn/bb-storage/pkg/filesystem"
	"github.com/buildbarn/bb-storage/pkg/filesystem/path"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"golang.org/x/sys/unix"
)

// AttributesMaskForFUSEAttr is the attributes mask to use for
// Node.GetAttributes() to populate all relevant fields of fuse.Attr.
const AttributesMaskForFUSEAttr = memfs.AttributesMaskDeviceNumber |
	memfs.AttributesMaskFileType |
	memfs.AttributesMaskInodeNumber |
	memfs.AttributesMaskLastAccessTime |
	memfs.AttributesMaskLastDataModificationTime |
	memfs.AttributesMaskLastStatusChangeTime |
	memfs.AttributesMaskLinkCount |
	memfs.AttributesMaskOwnerGroupID |
	memfs.AttributesMaskOwnerUserID |
	memfs.AttributesMaskPermissions |
	memfs.AttributesMaskSizeBytes

// DigestExtendedAttribute is the name of the extended attribute of
// regular files that contains the hexadecimal BLAKE3 digest of the
// file's contents.
const DigestExtendedAttribute = "user.blake3"

// Flags that may be provided to renameat2(), as passed on by FUSE.
const (
	renameNoReplace = 1 << 0
	renameExchange  = 1 << 1
)

// ToErrno converts a Status returned by the in-memory file system to
// an errno value that can be returned to the kernel.
func ToErrno(s memfs.Status) syscall.Errno {
	switch s {
	case memfs.StatusOK:
		return 0
	case memfs.StatusErrBadHandle:
		return syscall.EBADF
	case memfs.StatusErrExist:
		return syscall.EEXIST
	case memfs.StatusErrFault:
		return syscall.EFAULT
	case memfs.StatusErrInval:
		return syscall.EINVAL
	case memfs.StatusErrIsDir:
		return syscall.EISDIR
	case memfs.StatusErrNameTooLong:
		return syscall.ENAMETOOLONG
	case memfs.StatusErrNoEnt:
		return syscall.ENOENT
	case memfs.StatusErrNoSpc:
		return syscall.ENOSPC
	case memfs.StatusErrNotDir:
		return syscall.ENOTDIR
	case memfs.StatusErrNotEmpty:
		return syscall.ENOTEMPTY
	case memfs.StatusErrPerm:
		return syscall.EPERM
	case memfs.StatusErrStale:
		return syscall.ESTALE
	case memfs.StatusErrXDev:
		return syscall.EXDEV
	default:
		panic("Unknown status")
	}
}

func toFUSEFileType(fileType filesystem.FileType) uint32 {
	switch fileType {
	case filesystem.FileTypeBlockDevice:
		return syscall.S_IFBLK
	case filesystem.FileTypeCharacterDevice:
		return syscall.S_IFCHR
	case filesystem.FileTypeDirectory:
		return syscall.S_IFDIR
	case filesystem.FileTypeFIFO:
		return syscall.S_IFIFO
	case filesystem.FileTypeRegularFile:
		return syscall.S_IFREG
	case filesystem.FileTypeSocket:
		return syscall.S_IFSOCK
	case filesystem.FileTypeSymlink:
		return syscall.S_IFLNK
	default:
		panic("Unknown file type")
	}
}

func toFUSETime(t time.Time) (uint64, uint32) {
	nanos := t.UnixNano()
	return uint64(nanos / 1e9), uint32(nanos % 1e9)
}

func populateAttr(attributes *memfs.Attributes, out *fuse.Attr) {
	if deviceNumber, ok := attributes.GetDeviceNumber(); ok {
		out.Rdev = uint32(deviceNumber.ToRaw())
	}

	out.Ino = attributes.GetInodeNumber()
	out.Nlink = attributes.GetLinkCount()
	out.Mode = toFUSEFileType(attributes.GetFileType())

	if lastAccessTime, ok := attributes.GetLastAccessTime(); ok {
		out.Atime, out.Atimensec = toFUSETime(lastAccessTime)
	}
	if lastDataModificationTime, ok := attributes.GetLastDataModificationTime(); ok {
		out.Mtime, out.Mtimensec = toFUSETime(lastDataModificationTime)
	}
	if lastStatusChangeTime, ok := attributes.GetLastStatusChangeTime(); ok {
		out.Ctime, out.Ctimensec = toFUSETime(lastStatusChangeTime)
	}
	if ownerUserID, ok := attributes.GetOwnerUserID(); ok {
		out.Uid = ownerUserID
	}
	if ownerGroupID, ok := attributes.GetOwnerGroupID(); ok {
		out.Gid = ownerGroupID
	}

	permissions, ok := attributes.GetPermissions()
	if !ok {
		panic("Attributes do not contain mandatory permissions attribute")
	}
	out.Mode |= permissions.ToMode()

	sizeBytes, ok := attributes.GetSizeBytes()
	if !ok {
		panic("Attributes do not contain mandatory size attribute")
	}
	out.Size = sizeBytes
	out.Blocks = (sizeBytes + 511) / 512
	out.Blksize = memfs.PageSize
}

// withCallerCredentials attaches the user and group ID of the process
// that issued the FUSE request to the context, so that newly created
// nodes are owned by the caller.
func withCallerCredentials(ctx context.Context) context.Context {
	if caller, ok := fuse.FromContext(ctx); ok {
		return memfs.NewContextWithCredentials(ctx, memfs.Credentials{
			UserID:  caller.Uid,
			GroupID: caller.Gid,
		})
	}
	return ctx
}

// inode exposes a single memfs.Node through go-fuse's node API.
// Operations that don't apply to the kind of node are rejected by
// memfs.Node itself.
type inode struct {
	fs.Inode

	mountRoot *memfs.MountRoot
	node      *memfs.Node
}

var (
	_ fs.NodeAccesser    = (*inode)(nil)
	_ fs.NodeCreater     = (*inode)(nil)
	_ fs.NodeFsyncer     = (*inode)(nil)
	_ fs.NodeGetattrer   = (*inode)(nil)
	_ fs.NodeGetxattrer  = (*inode)(nil)
	_ fs.NodeLinker      = (*inode)(nil)
	_ fs.NodeListxattrer = (*inode)(nil)
	_ fs.NodeLookuper    = (*inode)(nil)
	_ fs.NodeMkdirer     = (*inode)(nil)
	_ fs.NodeMknoder     = (*inode)(nil)
	_ fs.NodeOpener      = (*inode)(nil)
	_ fs.NodeReaddirer   = (*inode)(nil)
	_ fs.NodeReadlinker  = (*inode)(nil)
	_ fs.NodeRenamer     = (*inode)(nil)
	_ fs.NodeRmdirer     = (*inode)(nil)
	_ fs.NodeSetattrer   = (*inode)(nil)
	_ fs.NodeStatfser    = (*inode)(nil)
	_ fs.NodeSymlinker   = (*inode)(nil)
	_ fs.NodeUnlinker    = (*inode)(nil)
)

// NewRootInode creates the go-fuse node of the root directory of a
// file system. It can be passed to fs.NewNodeFS().
func NewRootInode(mountRoot *memfs.MountRoot) fs.InodeEmbedder {
	return &inode{
		mountRoot: mountRoot,
		node:      mountRoot.Root(),
	}
}

// newChild returns the go-fuse node of a node that was looked up or
// created. Nodes that are already known by go-fuse under the same
// inode number, such as hard links, are reused.
func (i *inode) newChild(ctx context.Context, child *memfs.Node, out *fuse.EntryOut) *fs.Inode {
	var attributes memfs.Attributes
	child.GetAttributes(AttributesMaskForFUSEAttr, &attributes)
	populateAttr(&attributes, &out.Attr)
	return i.NewInode(
		ctx,
		&inode{
			mountRoot: i.mountRoot,
			node:      child,
		},
		fs.StableAttr{
			Mode: toFUSEFileType(child.FileType()),
			Ino:  child.ID(),
		})
}

func (i *inode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, s := i.node.Lookup(path.MustNewComponent(name))
	if s != memfs.StatusOK {
		return nil, ToErrno(s)
	}
	return i.newChild(ctx, child, out), 0
}

func (i *inode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	var attributes memfs.Attributes
	i.node.GetAttributes(AttributesMaskForFUSEAttr, &attributes)
	populateAttr(&attributes, &out.Attr)
	return 0
}

func (i *inode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	var attributesIn memfs.Attributes
	if mode, ok := in.GetMode(); ok {
		attributesIn.SetPermissions(memfs.NewPermissionsFromMode(mode))
	}
	if uid, ok := in.GetUID(); ok {
		attributesIn.SetOwnerUserID(uid)
	}
	if gid, ok := in.GetGID(); ok {
		attributesIn.SetOwnerGroupID(gid)
	}
	if size, ok := in.GetSize(); ok {
		attributesIn.SetSizeBytes(size)
	}
	if atime, ok := in.GetATime(); ok {
		attributesIn.SetLastAccessTime(atime)
	}
	if mtime, ok := in.GetMTime(); ok {
		attributesIn.SetLastDataModificationTime(mtime)
	}

	var attributesOut memfs.Attributes
	if s := i.node.SetAttributes(&attributesIn, AttributesMaskForFUSEAttr, &attributesOut); s != memfs.StatusOK {
		return ToErrno(s)
	}
	populateAttr(&attributesOut, &out.Attr)
	return 0
}

func (i *inode) Access(ctx context.Context, mask uint32) syscall.Errno {
	caller, ok := fuse.FromContext(ctx)
	if !ok || caller.Uid == 0 {
		return 0
	}

	var attributes memfs.Attributes
	i.node.GetAttributes(memfs.AttributesMaskOwnerUserID|memfs.AttributesMaskOwnerGroupID|memfs.AttributesMaskPermissions, &attributes)
	ownerUserID, _ := attributes.GetOwnerUserID()
	ownerGroupID, _ := attributes.GetOwnerGroupID()
	permissions, _ := attributes.GetPermissions()

	// Select the owner, group or other bits, and check whether all
	// of the requested access modes are granted.
	mode := permissions.ToMode()
	switch {
	case caller.Uid == ownerUserID:
		mode >>= 6
	case caller.Gid == ownerGroupID:
		mode >>= 3
	}
	if mask&^mode&(unix.R_OK|unix.W_OK|unix.X_OK) != 0 {
		return syscall.EACCES
	}
	return 0
}

func (i *inode) Mknod(ctx context.Context, name string, mode, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	var fileType filesystem.FileType
	switch mode & syscall.S_IFMT {
	case syscall.S_IFREG:
		fileType = filesystem.FileTypeRegularFile
	case syscall.S_IFBLK:
		fileType = filesystem.FileTypeBlockDevice
	case syscall.S_IFCHR:
		fileType = filesystem.FileTypeCharacterDevice
	case syscall.S_IFIFO:
		fileType = filesystem.FileTypeFIFO
	case syscall.S_IFSOCK:
		fileType = filesystem.FileTypeSocket
	default:
		return nil, syscall.EPERM
	}

	child, s := i.node.Mknod(
		withCallerCredentials(ctx),
		path.MustNewComponent(name),
		fileType,
		memfs.NewPermissionsFromMode(mode),
		filesystem.NewDeviceNumberFromRaw(uint64(dev)))
	if s != memfs.StatusOK {
		return nil, ToErrno(s)
	}
	return i.newChild(ctx, child, out), 0
}

func (i *inode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, s := i.node.Mkdir(withCallerCredentials(ctx), path.MustNewComponent(name), memfs.NewPermissionsFromMode(mode))
	if s != memfs.StatusOK {
		return nil, ToErrno(s)
	}
	return i.newChild(ctx, child, out), 0
}

func (i *inode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, s := i.node.Symlink(withCallerCredentials(ctx), path.MustNewComponent(name), []byte(target))
	if s != memfs.StatusOK {
		return nil, ToErrno(s)
	}
	return i.newChild(ctx, child, out), 0
}

func (i *inode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, s := i.node.ReadLink()
	return target, ToErrno(s)
}

func (i *inode) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := target.(*inode).node
	if s := i.node.Link(path.MustNewComponent(name), child); s != memfs.StatusOK {
		return nil, ToErrno(s)
	}
	return i.newChild(ctx, child, out), 0
}

func (i *inode) Unlink(ctx context.Context, name string) syscall.Errno {
	return ToErrno(i.node.Unlink(path.MustNewComponent(name)))
}

func (i *inode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return ToErrno(i.node.Rmdir(path.MustNewComponent(name)))
}

func (i *inode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if flags&renameExchange != 0 {
		return syscall.EINVAL
	}
	return ToErrno(i.node.Rename(
		path.MustNewComponent(name),
		newParent.(*inode).node,
		path.MustNewComponent(newName),
		flags&renameNoReplace == 0))
}

// oflagsToShareMask converts access modes stored in open() flags to a
// ShareMask, indicating which operations are expected to be called
// against the file descriptor.
func oflagsToShareMask(oflags uint32) (memfs.ShareMask, syscall.Errno) {
	switch oflags & syscall.O_ACCMODE {
	case syscall.O_RDONLY:
		return memfs.ShareMaskRead, 0
	case syscall.O_WRONLY:
		return memfs.ShareMaskWrite, 0
	case syscall.O_RDWR:
		return memfs.ShareMaskRead | memfs.ShareMaskWrite, 0
	default:
		return 0, syscall.EINVAL
	}
}

func (i *inode) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	shareAccess, errno := oflagsToShareMask(flags)
	if errno != 0 {
		return nil, nil, 0, errno
	}
	handle, _, s := i.node.CreateAndOpen(
		withCallerCredentials(ctx),
		path.MustNewComponent(name),
		memfs.NewPermissionsFromMode(mode),
		shareAccess,
		flags&syscall.O_EXCL != 0,
		flags&syscall.O_TRUNC != 0)
	if s != memfs.StatusOK {
		return nil, nil, 0, ToErrno(s)
	}
	return i.newChild(ctx, handle.Node(), out), newFileHandle(handle, flags), 0, 0
}

func (i *inode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	shareAccess, errno := oflagsToShareMask(flags)
	if errno != 0 {
		return nil, 0, errno
	}
	handle, s := i.node.Open(shareAccess, flags&syscall.O_TRUNC != 0)
	if s != memfs.StatusOK {
		return nil, 0, ToErrno(s)
	}
	return newFileHandle(handle, flags), 0, 0
}

type dirEntryCollector struct {
	entries []fuse.DirEntry
}

func (c *dirEntryCollector) ReportEntry(nextCookie uint64, name path.Component, child *memfs.Node) bool {
	c.entries = append(c.entries, fuse.DirEntry{
		Mode: toFUSEFileType(child.FileType()),
		Name: name.String(),
		Ino:  child.ID(),
	})
	return true
}

func (i *inode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var collector dirEntryCollector
	if s := i.node.ReadDir(0, &collector); s != memfs.StatusOK {
		return nil, ToErrno(s)
	}
	return fs.NewListDirStream(collector.entries), 0
}

func (i *inode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	stats := i.mountRoot.StatFS()
	out.Bsize = stats.BlockSize
	out.Frsize = stats.BlockSize
	out.NameLen = stats.NameLength
	out.Blocks = stats.Blocks
	out.Bfree = stats.BlocksAvailable
	out.Bavail = stats.BlocksAvailable
	out.Files = stats.Files
	return 0
}

func (i *inode) Fsync(ctx context.Context, f fs.FileHandle, flags uint32) syscall.Errno {
	return ToErrno(i.mountRoot.Sync())
}

func (i *inode) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	if attr != DigestExtendedAttribute {
		return 0, syscall.Errno(fuse.ENOATTR)
	}
	contents, s := i.node.Contents()
	if s != memfs.StatusOK {
		return 0, syscall.Errno(fuse.ENOATTR)
	}
	value := []byte(hex.EncodeToString(contents.Digest()))
	if len(dest) == 0 {
		return uint32(len(value)), 0
	}
	if len(dest) < len(value) {
		return uint32(len(value)), syscall.ERANGE
	}
	return uint32(copy(dest, value)), 0
}

func (i *inode) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	if i.node.Kind() != memfs.KindRegularFile {
		return 0, 0
	}
	value := append([]byte(DigestExtendedAttribute), 0)
	if len(dest) == 0 {
		return uint32(len(value)), 0
	}
	if len(dest) < len(value) {
		return uint32(len(value)), syscall.ERANGE
	}
	return uint32(copy(dest, value)), 0
}
