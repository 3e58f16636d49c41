package registry

import (
	"context"
)

// Store is the external configuration collaborator that persists
// user-defined server descriptors.
type Store interface {
	// GetServerByName returns the descriptor for name owned by the given
	// caller subject, or nil when no such server exists. Implementations
	// must scope lookups to the subject: another tenant's server is
	// indistinguishable from not-found.
	GetServerByName(ctx context.Context, name, subject string) (*ServerDescriptor, error)

	// UpdateServerStatus records the post-invocation status side-channel.
	// Best-effort from the caller's point of view.
	UpdateServerStatus(ctx context.Context, name, subject string, update StatusUpdate) error
}
