// Package transport provides the adapters that carry a tool call to its
// server: a stdio adapter spawning local MCP subprocesses, a stream adapter
// for remote SSE servers, and a direct adapter dispatching to in-process
// handlers. One adapter call owns its connection exclusively and releases
// it on every exit path.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"toolbridge/internal/registry"
	tberrors "toolbridge/pkg/errors"
)

// ContentItem is one piece of a tool reply.
type ContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Payload is the extracted result of a tool call.
type Payload struct {
	// Text is the concatenated text content of the reply.
	Text string `json:"text"`

	// Content preserves the individual reply items.
	Content []ContentItem `json:"content,omitempty"`

	// Structured carries non-MCP structured results from direct handlers.
	Structured interface{} `json:"structured,omitempty"`
}

// Adapter executes tool calls against one server. Implementations open and
// close their own connection per call; connections are never shared across
// attempts or invocations.
type Adapter interface {
	// CallTool connects, executes the named tool, extracts the payload,
	// and disconnects.
	CallTool(ctx context.Context, tool string, args map[string]interface{}) (*Payload, error)

	// ListTools connects, lists the server's tools, and disconnects.
	ListTools(ctx context.Context) ([]registry.ToolDefinition, error)
}

// ForDescriptor selects the adapter for a descriptor's transport kind.
// The set of transports is closed; this switch is the single selection
// boundary.
func ForDescriptor(desc *registry.ServerDescriptor, direct *DirectRegistry, logger *slog.Logger) (Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch desc.Transport {
	case registry.TransportStdio:
		if desc.Command == "" {
			return nil, tberrors.Newf(tberrors.ErrorTypeConfig, "stdio server %q missing command", desc.Name)
		}
		return NewStdioAdapter(desc, logger), nil
	case registry.TransportStream:
		if desc.URL == "" {
			return nil, tberrors.Newf(tberrors.ErrorTypeConfig, "stream server %q missing url", desc.Name)
		}
		return NewStreamAdapter(desc, logger), nil
	case registry.TransportDirect:
		return NewDirectAdapter(desc, direct, logger), nil
	default:
		return nil, tberrors.Newf(tberrors.ErrorTypeConfig, "server %q has unknown transport %q", desc.Name, desc.Transport)
	}
}

// payloadFromResult converts an MCP tool reply into a Payload. A reply
// flagged as an error becomes a protocol error carrying the reply text
// verbatim.
func payloadFromResult(result *mcp.CallToolResult) (*Payload, error) {
	payload := &Payload{
		Content: make([]ContentItem, 0, len(result.Content)),
	}

	var texts []string
	for _, content := range result.Content {
		item := ContentItem{}

		if textContent, ok := mcp.AsTextContent(content); ok {
			item.Type = textContent.Type
			item.Text = textContent.Text
			texts = append(texts, textContent.Text)
		} else if imageContent, ok := mcp.AsImageContent(content); ok {
			item.Type = imageContent.Type
			item.Data = imageContent.Data
			item.MimeType = imageContent.MIMEType
		} else {
			// Unknown content kind; round-trip through JSON to keep what
			// we can.
			raw, err := json.Marshal(content)
			if err != nil {
				return nil, tberrors.Wrap(tberrors.ErrorTypeProtocol, "unreadable tool reply content", err)
			}
			var m map[string]interface{}
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, tberrors.Wrap(tberrors.ErrorTypeProtocol, "unreadable tool reply content", err)
			}
			if t, ok := m["type"].(string); ok {
				item.Type = t
			}
			if t, ok := m["text"].(string); ok {
				item.Text = t
				texts = append(texts, t)
			}
		}

		payload.Content = append(payload.Content, item)
	}

	payload.Text = strings.Join(texts, "\n")

	if result.IsError {
		return nil, tberrors.New(tberrors.ErrorTypeProtocol, fmt.Sprintf("tool reported error: %s", payload.Text))
	}

	return payload, nil
}

// toolDefinitions converts MCP tool metadata into registry definitions.
func toolDefinitions(tools []mcp.Tool) ([]registry.ToolDefinition, error) {
	defs := make([]registry.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		var schema json.RawMessage
		if len(tool.RawInputSchema) > 0 {
			schema = json.RawMessage(tool.RawInputSchema)
		} else {
			raw, err := json.Marshal(tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal input schema for %s: %w", tool.Name, err)
			}
			schema = raw
		}
		defs = append(defs, registry.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return defs, nil
}
