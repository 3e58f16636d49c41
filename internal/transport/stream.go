package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"toolbridge/internal/log"
	"toolbridge/internal/registry"
	tberrors "toolbridge/pkg/errors"
)

// StreamAdapter reaches a remote tool server over an SSE connection to the
// descriptor's URL. The connect/call/close contract matches the stdio
// adapter: one connection per call, closed on every exit path.
type StreamAdapter struct {
	desc   *registry.ServerDescriptor
	logger *slog.Logger
}

// NewStreamAdapter creates a stream adapter for the descriptor. The caller
// has already validated that the descriptor carries a URL.
func NewStreamAdapter(desc *registry.ServerDescriptor, logger *slog.Logger) *StreamAdapter {
	return &StreamAdapter{desc: desc, logger: logger}
}

// CallTool connects to the endpoint, calls the named tool, and extracts
// the reply.
func (a *StreamAdapter) CallTool(ctx context.Context, tool string, args map[string]interface{}) (*Payload, error) {
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

// ListTools connects to the endpoint and retrieves its tool list.
func (a *StreamAdapter) ListTools(ctx context.Context) ([]registry.ToolDefinition, error) {
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

// connect opens the SSE transport and completes the MCP handshake.
func (a *StreamAdapter) connect(ctx context.Context) (*client.Client, error) {
	if a.desc.URL == "" {
		return nil, tberrors.Newf(tberrors.ErrorTypeConfig, "stream server %q missing url", a.desc.Name)
	}

	c, err := client.NewSSEMCPClient(a.desc.URL)
	if err != nil {
		return nil, tberrors.Wrap(tberrors.ErrorTypeConnection, "failed to create stream client", err)
	}

	if err := c.Start(ctx); err != nil {
		a.close(c)
		return nil, tberrors.Wrap(tberrors.ErrorTypeConnection, "failed to connect to stream server", err)
	}

	if _, err := c.Initialize(ctx, initializeRequest()); err != nil {
		a.close(c)
		return nil, tberrors.Wrap(tberrors.ErrorTypeConnection, "initialize handshake failed", err)
	}

	return c, nil
}

// close shuts down the connection, swallowing close-time errors.
func (a *StreamAdapter) close(c *client.Client) {
	if err := c.Close(); err != nil {
		a.logger.Warn("failed to close stream server",
			slog.String(log.ServerKey, a.desc.Name),
			log.Error(err))
	}
}
