package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"toolbridge/internal/log"
	"toolbridge/internal/registry"
	tberrors "toolbridge/pkg/errors"
)

// clientName and clientVersion identify this client in the MCP handshake.
const (
	clientName    = "toolbridge"
	clientVersion = "0.1.0"
)

// StdioAdapter reaches a tool server by spawning its command as a local
// subprocess and speaking MCP over the child's standard input/output. Each
// call spawns, handshakes, executes, and tears the child down; the process
// handle is owned by that call alone.
type StdioAdapter struct {
	desc   *registry.ServerDescriptor
	logger *slog.Logger
}

// NewStdioAdapter creates a stdio adapter for the descriptor.
func NewStdioAdapter(desc *registry.ServerDescriptor, logger *slog.Logger) *StdioAdapter {
	return &StdioAdapter{desc: desc, logger: logger}
}

// CallTool spawns the server, calls the named tool, and extracts the reply.
func (a *StdioAdapter) CallTool(ctx context.Context, tool string, args map[string]interface{}) (*Payload, error) {
	c, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer a.close(c)

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	return payloadFromResult(result)
}

// ListTools spawns the server and retrieves its tool list.
func (a *StdioAdapter) ListTools(ctx context.Context) ([]registry.ToolDefinition, error) {
	c, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer a.close(c)

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	return toolDefinitions(result.Tools)
}

// connect spawns the subprocess and completes the MCP handshake. On any
// handshake failure the child is torn down before returning.
func (a *StdioAdapter) connect(ctx context.Context) (*client.Client, error) {
	env := mergedEnv(a.desc.Env)

	c, err := client.NewStdioMCPClient(a.desc.Command, env, a.desc.Args...)
	if err != nil {
		return nil, tberrors.Wrap(tberrors.ErrorTypeConnection, "failed to spawn tool server", err)
	}

	if err := c.Start(ctx); err != nil {
		a.close(c)
		return nil, tberrors.Wrap(tberrors.ErrorTypeConnection, "failed to start tool server", err)
	}

	if _, err := c.Initialize(ctx, initializeRequest()); err != nil {
		a.close(c)
		return nil, tberrors.Wrap(tberrors.ErrorTypeConnection, "initialize handshake failed", err)
	}

	return c, nil
}

// close tears down the subprocess connection. Close-time errors are logged
// and swallowed; the invocation outcome was already decided.
func (a *StdioAdapter) close(c *client.Client) {
	if err := c.Close(); err != nil {
		a.logger.Warn("failed to close stdio server",
			slog.String(log.ServerKey, a.desc.Name),
			log.Error(err))
	}
}

// initializeRequest builds the MCP initialize request sent on every connect.
func initializeRequest() mcp.InitializeRequest {
	return mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}
}

// mergedEnv combines the base process environment with the descriptor's
// overrides. Entries with empty values are dropped rather than passed as
// literal empty variables.
func mergedEnv(overrides map[string]string) []string {
	merged := make(map[string]string)

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}

	for k, v := range overrides {
		if v == "" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}
