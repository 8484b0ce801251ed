package memfs

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Status response of operations applied against Node objects.
type Status int

const (
	// StatusOK indicates that the operation succeeded.
	StatusOK Status = iota
	// StatusErrBadHandle indicates that a Handle was used after
	// being closed, or without the share access needed by the
	// operation.
	StatusErrBadHandle
	// StatusErrExist indicates that a file system object of the
	// specified target name (when creating, renaming or linking)
	// already exists.
	StatusErrExist
	// StatusErrFault indicates that data could not be copied from
	// the caller provided source.
	StatusErrFault
	// StatusErrInval indicates that the arguments for this
	// operation are not valid.
	StatusErrInval
	// StatusErrIsDir indicates that a request is made against a
	// directory when the current operation does not allow a
	// directory as a target.
	StatusErrIsDir
	// StatusErrNameTooLong indicates that a file name exceeds
	// MaximumNameLength.
	StatusErrNameTooLong
	// StatusErrNoEnt indicates that the operation failed due to a
	// file not existing.
	StatusErrNoEnt
	// StatusErrNoSpc indicates that memory for a node or its
	// contents could not be allocated.
	StatusErrNoSpc
	// StatusErrNotDir indicates that a request is made against a
	// non-directory when the current operation requires a
	// directory as a target.
	StatusErrNotDir
	// StatusErrNotEmpty indicates that attempt was made to remove a
	// directory that was not empty.
	StatusErrNotEmpty
	// StatusErrPerm indicates that the operation is not permitted
	// on the target, such as hard linking a directory.
	StatusErrPerm
	// StatusErrStale indicates that the node has already been
	// reclaimed.
	StatusErrStale
	// StatusErrXDev indicates an attempt to do an operation, such
	// as linking, that inappropriately crosses a file system
	// boundary.
	StatusErrXDev
)

var statusNames = [...]string{
	StatusOK:             "OK",
	StatusErrBadHandle:   "BadHandle",
	StatusErrExist:       "Exist",
	StatusErrFault:       "Fault",
	StatusErrInval:       "Inval",
	StatusErrIsDir:       "IsDir",
	StatusErrNameTooLong: "NameTooLong",
	StatusErrNoEnt:       "NoEnt",
	StatusErrNoSpc:       "NoSpc",
	StatusErrNotDir:      "NotDir",
	StatusErrNotEmpty:    "NotEmpty",
	StatusErrPerm:        "Perm",
	StatusErrStale:       "Stale",
	StatusErrXDev:        "XDev",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

var statusCodes = [...]codes.Code{
	StatusOK:             codes.OK,
	StatusErrBadHandle:   codes.InvalidArgument,
	StatusErrExist:       codes.AlreadyExists,
	StatusErrFault:       codes.InvalidArgument,
	StatusErrInval:       codes.InvalidArgument,
	StatusErrIsDir:       codes.FailedPrecondition,
	StatusErrNameTooLong: codes.InvalidArgument,
	StatusErrNoEnt:       codes.NotFound,
	StatusErrNoSpc:       codes.ResourceExhausted,
	StatusErrNotDir:      codes.FailedPrecondition,
	StatusErrNotEmpty:    codes.FailedPrecondition,
	StatusErrPerm:        codes.PermissionDenied,
	StatusErrStale:       codes.NotFound,
	StatusErrXDev:        codes.InvalidArgument,
}

// ToError converts a Status to a gRPC error, so that it can be
// propagated through code that doesn't operate on Status values
// directly. StatusOK yields nil.
func (s Status) ToError(message string) error {
	if s == StatusOK {
		return nil
	}
	code := codes.Unknown
	if s >= 0 && int(s) < len(statusCodes) {
		code = statusCodes[s]
	}
	return status.Errorf(code, "%s: %s", message, s)
}
