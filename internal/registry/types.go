// Package registry defines tool-server descriptors and resolves server
// names to connection parameters. Descriptors are owned by the external
// configuration store; this package reads them and publishes status updates
// back through the Store interface.
package registry

import (
	"encoding/json"
	"time"
)

// TransportKind is the mechanism used to reach a tool server.
type TransportKind string

const (
	// TransportStdio spawns a local subprocess speaking MCP over stdio.
	TransportStdio TransportKind = "stdio"
	// TransportStream connects to a remote MCP server over SSE.
	TransportStream TransportKind = "stream"
	// TransportDirect invokes an in-process handler, bypassing MCP framing.
	TransportDirect TransportKind = "direct"
)

// Built-in identifiers for direct-transport servers.
const (
	// BuiltinModelBackend routes to the managed Bedrock model backend.
	BuiltinModelBackend = "bedrock"
	// BuiltinDocumentFetcher serves the fetch/clean documentation tools.
	BuiltinDocumentFetcher = "docfetch"
	// BuiltinLocalModels serves the local inference daemon tools.
	BuiltinLocalModels = "ollama"
)

// ToolDefinition describes a tool exposed by a server. Informational only;
// parameter payloads are opaque to this client.
type ToolDefinition struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty" yaml:"input_schema,omitempty"`
}

// ServerDescriptor holds the connection parameters for a named tool server.
// Read-only to the invocation client; the configuration store owns its
// lifecycle and persists the status side-channel.
type ServerDescriptor struct {
	// Name is the unique server key.
	Name string `yaml:"name"`

	// Transport selects the adapter used to reach the server.
	Transport TransportKind `yaml:"transport"`

	// Command, Args and Env configure stdio servers. Env entries override
	// the base process environment; empty values are dropped before spawn.
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// URL is the endpoint for stream servers.
	URL string `yaml:"url,omitempty"`

	// BuiltinID selects the handler set for direct servers.
	BuiltinID string `yaml:"builtin_id,omitempty"`

	// Disabled servers reject all invocations without connecting.
	Disabled bool `yaml:"disabled,omitempty"`

	// Timeout is the per-invocation default when the request carries no
	// override. Zero means the global 30s default.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Tools lists the server's advertised tools. Informational.
	Tools []ToolDefinition `yaml:"tools,omitempty"`
}

// IsModelBackend reports whether invocations of this server route to the
// managed model backend (and therefore require entitlement).
func (d *ServerDescriptor) IsModelBackend() bool {
	return d.Transport == TransportDirect && d.BuiltinID == BuiltinModelBackend
}

// ServerStatus is the connection state reported back to the store after
// each invocation.
type ServerStatus string

const (
	// StatusConnected means the last invocation reached the server.
	StatusConnected ServerStatus = "connected"
	// StatusError means the last invocation failed.
	StatusError ServerStatus = "error"
)

// StatusUpdate is the side-channel record emitted after an invocation.
// Owned and persisted by the configuration store, not by this client.
type StatusUpdate struct {
	Status        ServerStatus
	LastConnected time.Time
	LastError     string
	Tools         []ToolDefinition
}
