package registry

import (
	"context"
	"fmt"
)

// Resolver looks up server descriptors: built-ins first, then the caller's
// own servers from the store. No side effects.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver backed by the given store. A nil store
// resolves built-in servers only.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the descriptor for name. Built-in servers never require
// a caller subject. User-defined servers require one and are scoped to it:
// a lookup of another subject's server returns nil exactly like a server
// that does not exist.
func (r *Resolver) Resolve(ctx context.Context, name, subject string) (*ServerDescriptor, error) {
	if desc := BuiltinServer(name); desc != nil {
		return desc, nil
	}

	if r.store == nil || subject == "" {
		return nil, nil
	}

	desc, err := r.store.GetServerByName(ctx, name, subject)
	if err != nil {
		return nil, fmt.Errorf("server lookup failed: %w", err)
	}
	return desc, nil
}

// Validate checks a descriptor's connection parameters at resolve time so
// misconfiguration surfaces before any connection attempt.
func Validate(desc *ServerDescriptor) error {
	switch desc.Transport {
	case TransportStdio:
		if desc.Command == "" {
			return fmt.Errorf("stdio server %q missing command", desc.Name)
		}
	case TransportStream:
		if desc.URL == "" {
			return fmt.Errorf("stream server %q missing url", desc.Name)
		}
	case TransportDirect:
		if desc.BuiltinID == "" {
			return fmt.Errorf("direct server %q missing builtin id", desc.Name)
		}
	default:
		return fmt.Errorf("server %q has unknown transport %q", desc.Name, desc.Transport)
	}
	return nil
}
