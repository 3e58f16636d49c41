// Copyright 2025 The toolbridge authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bedrock adapts the managed model-inference runtime to the
// built-in tool interface. Invocations go through one of two paths: a
// dedicated runtime endpoint with bearer-token auth, or the AWS SDK with
// ambient credentials.
package bedrock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"toolbridge/internal/log"
	"toolbridge/internal/registry"
	"toolbridge/internal/transport"
	tberrors "toolbridge/pkg/errors"
	"toolbridge/pkg/httpclient"
)

// Defaults applied when the configuration leaves them unset.
const (
	defaultModelID     = "anthropic.claude-haiku-4-5-20251001-v1:0"
	defaultMaxTokens   = 2048
	defaultTemperature = 0.3
)

// Config holds model backend settings.
type Config struct {
	// Region is the AWS region for the SDK path. Empty defers to the
	// SDK's own resolution chain.
	Region string `yaml:"region,omitempty"`

	// ModelID is the default model when a request names none.
	ModelID string `yaml:"model_id,omitempty"`

	// SystemPrompt is prepended to every chat invocation.
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	// MaxTokens bounds completion length.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Temperature is the sampling temperature.
	Temperature float64 `yaml:"temperature,omitempty"`

	// RuntimeEndpoint switches invocation to a dedicated runtime URL
	// with bearer-token auth instead of the AWS SDK.
	RuntimeEndpoint string `yaml:"runtime_endpoint,omitempty"`
}

// sdkInvoker is the slice of the bedrockruntime client the backend uses.
type sdkInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client serves the agent-assistant built-in server.
type Client struct {
	cfg    Config
	sdk    sdkInvoker
	http   *http.Client
	tokens *tokenCache
	logger *slog.Logger
}

// New creates a model backend client. When cfg.RuntimeEndpoint is set the
// token source is required and the AWS SDK is never touched; otherwise
// SDK credentials are resolved from the environment.
func New(ctx context.Context, cfg Config, tokens TokenSource, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModelID
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}

	c := &Client{cfg: cfg, logger: logger}

	if cfg.RuntimeEndpoint != "" {
		if tokens == nil {
			return nil, tberrors.New(tberrors.ErrorTypeConfig, "runtime endpoint configured without a token source")
		}
		hc, err := httpclient.New(httpclient.Config{
			Timeout:   2 * time.Minute,
			UserAgent: "toolbridge-bedrock/1.0",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		c.http = hc
		c.tokens = newTokenCache(tokens)
		return c, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, tberrors.Wrap(tberrors.ErrorTypeConfig, "failed to load AWS configuration", err)
	}
	c.sdk = bedrockruntime.NewFromConfig(awsCfg)
	return c, nil
}

// Register wires the chat tool into the direct registry.
func (c *Client) Register(reg *transport.DirectRegistry) {
	reg.Register(registry.BuiltinModelBackend, "chat", c.Chat)
}

// Chat invokes the configured model with a user prompt.
// Arguments: prompt (required), model, system, max_tokens, temperature,
// thinking_budget (all optional overrides).
func (c *Client) Chat(ctx context.Context, args map[string]interface{}) (*transport.Payload, error) {
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		return nil, tberrors.New(tberrors.ErrorTypeValidation, "chat requires a prompt argument")
	}

	modelID := c.cfg.ModelID
	if m, ok := args["model"].(string); ok && m != "" {
		modelID = m
	}
	system := c.cfg.SystemPrompt
	if s, ok := args["system"].(string); ok && s != "" {
		system = s
	}
	maxTokens := c.cfg.MaxTokens
	if n, ok := args["max_tokens"].(float64); ok && n > 0 {
		maxTokens = int(n)
	}
	temperature := c.cfg.Temperature
	if t, ok := args["temperature"].(float64); ok && t > 0 {
		temperature = t
	}
	thinkingBudget := 0
	if b, ok := args["thinking_budget"].(float64); ok && b > 0 {
		thinkingBudget = int(b)
	}

	if familyFor(modelID) == familyGeneric {
		c.logger.Warn("unrecognized model vendor, using generic payload",
			slog.String(log.ModelKey, modelID))
	}
	if thinkingBudget > 0 && familyFor(modelID) != familyAnthropic {
		c.logger.Warn("thinking budget is only supported by anthropic models, ignoring",
			slog.String(log.ModelKey, modelID))
		thinkingBudget = 0
	}

	body, err := buildBody(modelID, system, prompt, maxTokens, thinkingBudget, temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	c.logger.Debug("invoking model", slog.String(log.ModelKey, modelID))
	log.Trace(c.logger, "model request body", slog.String("body", string(body)))

	var raw []byte
	if c.http != nil {
		raw, err = c.invokeEndpoint(ctx, modelID, body)
	} else {
		raw, err = c.invokeSDK(ctx, modelID, body)
	}
	if err != nil {
		return nil, err
	}

	text, usage, err := parseResponse(modelID, raw)
	if err != nil {
		return nil, err
	}
	usage.fillEstimates(joinSystem(system, prompt), text)

	return &transport.Payload{
		Text: text,
		Structured: map[string]interface{}{
			"model":           modelID,
			"input_tokens":    usage.InputTokens,
			"output_tokens":   usage.OutputTokens,
			"usage_estimated": usage.Estimated,
		},
	}, nil
}

// invokeEndpoint posts the body to the dedicated runtime with a cached
// bearer token.
func (c *Client) invokeEndpoint(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, tberrors.Wrap(tberrors.ErrorTypeAuth, "failed to obtain runtime token", err)
	}

	endpoint := fmt.Sprintf("%s/model/%s/invoke", c.cfg.RuntimeEndpoint, url.PathEscape(modelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, tberrors.NewConnection(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tberrors.Wrap(tberrors.ErrorTypeConnection, "failed to read runtime response", err)
	}

	if resp.StatusCode != http.StatusOK {
		// The body stays out of the error message; it may carry request
		// fragments or account detail.
		log.Trace(c.logger, "runtime error response",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(raw)))
		return nil, tberrors.FromHTTPStatus(resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return raw, nil
}

// invokeSDK calls the runtime through the AWS SDK. HTTP-level failures
// keep their status codes so the retry classifier sees throttling and
// server errors as retryable.
func (c *Client) invokeSDK(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	out, err := c.sdk.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			return nil, tberrors.FromHTTPStatus(respErr.HTTPStatusCode(), err.Error())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, tberrors.Wrap(tberrors.ErrorTypeConnection, "model invocation failed", err)
	}
	return out.Body, nil
}
