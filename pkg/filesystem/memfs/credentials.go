package memfs

import (
	"context"
)

// Credentials of the caller of an operation that creates nodes. They
// determine the ownership of newly created nodes.
type Credentials struct {
	UserID  uint32
	GroupID uint32
}

type credentialsKey struct{}

// NewContextWithCredentials attaches the credentials of the caller to
// a context. Operations that create nodes use these to determine the
// owner of the node.
func NewContextWithCredentials(ctx context.Context, credentials Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, credentials)
}

// CredentialsFromContext extracts the credentials of the caller that
// were attached through NewContextWithCredentials().
func CredentialsFromContext(ctx context.Context) (Credentials, bool) {
	credentials, ok := ctx.Value(credentialsKey{}).(Credentials)
	return credentials, ok
}
