// Package builtin implements the in-process handlers behind the direct
// transport: the local inference daemon tools and the document fetcher.
package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"toolbridge/internal/registry"
	"toolbridge/internal/transport"
	tberrors "toolbridge/pkg/errors"
	"toolbridge/pkg/httpclient"
)

// defaultOllamaURL is the default local inference daemon endpoint.
const defaultOllamaURL = "http://localhost:11434"

// OllamaClient serves the local-models built-in server by calling the
// daemon's REST API directly. No subprocess, no MCP framing.
type OllamaClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewOllamaClient creates a client for the local inference daemon.
func NewOllamaClient(baseURL string, logger *slog.Logger) (*OllamaClient, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = "toolbridge-ollama/1.0"

	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &OllamaClient{baseURL: baseURL, client: client, logger: logger}, nil
}

// Register wires the daemon tools into the direct registry.
func (o *OllamaClient) Register(reg *transport.DirectRegistry) {
	reg.Register(registry.BuiltinLocalModels, "chat", o.Chat)
	reg.Register(registry.BuiltinLocalModels, "list_models", o.ListModels)
	reg.Register(registry.BuiltinLocalModels, "show_model", o.ShowModel)
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Model           string            `json:"model"`
	Message         ollamaChatMessage `json:"message"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

// Chat sends a prompt to a locally installed model.
// Arguments: model (required), prompt (required), system (optional).
func (o *OllamaClient) Chat(ctx context.Context, args map[string]interface{}) (*transport.Payload, error) {
	model, _ := args["model"].(string)
	prompt, _ := args["prompt"].(string)
	if model == "" || prompt == "" {
		return nil, tberrors.New(tberrors.ErrorTypeValidation, "chat requires model and prompt arguments")
	}

	var messages []ollamaChatMessage
	if system, ok := args["system"].(string); ok && system != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(ollamaChatRequest{Model: model, Messages: messages, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := o.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return nil, tberrors.Wrap(tberrors.ErrorTypeProtocol, "failed to parse daemon response", err)
	}

	return &transport.Payload{
		Text: chatResp.Message.Content,
		Structured: map[string]interface{}{
			"model":         chatResp.Model,
			"input_tokens":  chatResp.PromptEvalCount,
			"output_tokens": chatResp.EvalCount,
		},
	}, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"models"`
}

// ListModels queries the daemon's /api/tags endpoint for installed models.
func (o *OllamaClient) ListModels(ctx context.Context, args map[string]interface{}) (*transport.Payload, error) {
	raw, err := o.get(ctx, "/api/tags")
	if err != nil {
		return nil, err
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, tberrors.Wrap(tberrors.ErrorTypeProtocol, "failed to parse daemon response", err)
	}

	names := make([]string, 0, len(tags.Models))
	models := make([]map[string]interface{}, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
		models = append(models, map[string]interface{}{"name": m.Name, "size": m.Size})
	}

	return &transport.Payload{
		Text:       strings.Join(names, "\n"),
		Structured: map[string]interface{}{"models": models},
	}, nil
}

// ShowModel retrieves details for one installed model.
// Arguments: model (required).
func (o *OllamaClient) ShowModel(ctx context.Context, args map[string]interface{}) (*transport.Payload, error) {
	model, _ := args["model"].(string)
	if model == "" {
		return nil, tberrors.New(tberrors.ErrorTypeValidation, "show_model requires a model argument")
	}

	body, err := json.Marshal(map[string]string{"name": model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := o.post(ctx, "/api/show", body)
	if err != nil {
		return nil, err
	}

	var details map[string]interface{}
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, tberrors.Wrap(tberrors.ErrorTypeProtocol, "failed to parse daemon response", err)
	}

	return &transport.Payload{
		Text:       fmt.Sprintf("model %s", model),
		Structured: details,
	}, nil
}

func (o *OllamaClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return o.do(req)
}

func (o *OllamaClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return o.do(req)
}

func (o *OllamaClient) do(req *http.Request) ([]byte, error) {
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, tberrors.NewConnection(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tberrors.Wrap(tberrors.ErrorTypeConnection, "failed to read daemon response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, tberrors.FromHTTPStatus(resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return raw, nil
}
