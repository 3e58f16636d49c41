package transport

import (
	"context"
	"log/slog"

	"toolbridge/internal/registry"
	tberrors "toolbridge/pkg/errors"
)

// Handler is an in-process tool implementation for a built-in server.
type Handler func(ctx context.Context, args map[string]interface{}) (*Payload, error)

// DirectRegistry maps (builtin id, tool name) to handlers. The handler set
// is fixed at startup; there is no runtime plugin registration.
type DirectRegistry struct {
	handlers map[string]map[string]Handler
}

// NewDirectRegistry creates an empty handler registry.
func NewDirectRegistry() *DirectRegistry {
	return &DirectRegistry{handlers: make(map[string]map[string]Handler)}
}

// Register adds a handler for the given builtin id and tool name.
func (r *DirectRegistry) Register(builtinID, tool string, h Handler) {
	if r.handlers[builtinID] == nil {
		r.handlers[builtinID] = make(map[string]Handler)
	}
	r.handlers[builtinID][tool] = h
}

// lookup returns the handler for the pair, or nil.
func (r *DirectRegistry) lookup(builtinID, tool string) Handler {
	if r == nil {
		return nil
	}
	return r.handlers[builtinID][tool]
}

// DirectAdapter dispatches tool calls to in-process handlers, bypassing
// MCP framing entirely. Used for built-in servers.
type DirectAdapter struct {
	desc     *registry.ServerDescriptor
	registry *DirectRegistry
	logger   *slog.Logger
}

// NewDirectAdapter creates a direct adapter for the descriptor.
func NewDirectAdapter(desc *registry.ServerDescriptor, reg *DirectRegistry, logger *slog.Logger) *DirectAdapter {
	return &DirectAdapter{desc: desc, registry: reg, logger: logger}
}

// CallTool dispatches to the registered handler. An unknown
// (server, tool) pair is a non-retryable error.
func (a *DirectAdapter) CallTool(ctx context.Context, tool string, args map[string]interface{}) (*Payload, error) {
	h := a.registry.lookup(a.desc.BuiltinID, tool)
	if h == nil {
		return nil, tberrors.Newf(tberrors.ErrorTypeNotFound,
			"no handler for tool %q on server %q", tool, a.desc.Name)
	}
	return h(ctx, args)
}

// ListTools returns the descriptor's static tool definitions; built-in
// servers declare their tools up front.
func (a *DirectAdapter) ListTools(ctx context.Context) ([]registry.ToolDefinition, error) {
	return a.desc.Tools, nil
}
