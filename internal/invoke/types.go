// Package invoke implements the tool-invocation client: it resolves a named
// tool server, executes a tool call through the matching transport adapter
// with timeout and retry handling, and reports the outcome to the
// configuration, audit, and billing collaborators.
package invoke

import (
	"context"
	"time"

	"toolbridge/internal/identity"
	"toolbridge/internal/registry"
)

// Request describes a single tool invocation. Immutable once constructed;
// one request produces exactly one Result.
type Request struct {
	// ServerName is the registered name of the tool server.
	ServerName string `json:"serverName"`

	// ToolName is the tool to execute on that server.
	ToolName string `json:"toolName"`

	// Parameters is the opaque argument payload passed through to the tool.
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// TimeoutOverride replaces the descriptor's timeout when non-zero.
	TimeoutOverride time.Duration `json:"-"`

	// Caller identifies the requesting user for authorization and billing.
	// Nil for anonymous calls against built-in servers.
	Caller *identity.Caller `json:"-"`
}

// Result is the outcome of one invocation. Exactly one of Value or Err is
// populated; ExecutionTimeMs is measured around the winning (or final)
// adapter attempt.
type Result struct {
	Success         bool        `json:"success"`
	Value           interface{} `json:"result,omitempty"`
	Err             string      `json:"error,omitempty"`
	ExecutionTimeMs int64       `json:"executionTimeMs,omitempty"`
}

// failure builds an error Result from a classified error.
func failure(err error) Result {
	return Result{Success: false, Err: err.Error()}
}

// ConnectionTestResult is the outcome of a connection test: gates only,
// plus one connect-and-list-tools round trip.
type ConnectionTestResult struct {
	Success bool                      `json:"success"`
	Status  string                    `json:"status"`
	Tools   []registry.ToolDefinition `json:"tools,omitempty"`
	Err     string                    `json:"error,omitempty"`
}

// UsageRecorder receives token-usage events for billing. Best-effort:
// failures are logged and never surfaced to the invoking caller.
// Deduplication is the recorder's concern.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, caller *identity.Caller, modelID string, inputTokens, outputTokens int) error
}

// AuditLogger receives structured audit events. Best-effort, non-fatal.
type AuditLogger interface {
	LogEvent(ctx context.Context, category, severity, message string, details map[string]interface{}) error
}
