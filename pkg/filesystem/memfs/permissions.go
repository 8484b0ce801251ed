package memfs

// Permissions of a node, stored as the lowest 12 bits of a
// traditional UNIX style mode. Unlike the virtual file systems used by
// workers, ownership is tracked per node, meaning that owner, group
// and other permissions are kept distinct.
type Permissions uint16

const (
	// PermissionsSetUserID corresponds to S_ISUID.
	PermissionsSetUserID Permissions = 0o4000
	// PermissionsSetGroupID corresponds to S_ISGID. When set on a
	// directory, nodes created inside it inherit the directory's
	// group, and new subdirectories inherit the bit itself.
	PermissionsSetGroupID Permissions = 0o2000
	// PermissionsSticky corresponds to S_ISVTX.
	PermissionsSticky Permissions = 0o1000

	permissionsMask Permissions = 0o7777
)

// NewPermissionsFromMode creates a set of permissions from a
// traditional UNIX style mode. File type bits are discarded.
func NewPermissionsFromMode(m uint32) Permissions {
	return Permissions(m) & permissionsMask
}

// ToMode converts a set of permissions to a traditional UNIX style
// mode.
func (p Permissions) ToMode() uint32 {
	return uint32(p & permissionsMask)
}
