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

package invoke

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"toolbridge/internal/identity"
	"toolbridge/internal/log"
	"toolbridge/internal/registry"
	"toolbridge/internal/transport"
	tberrors "toolbridge/pkg/errors"
)

const (
	// defaultTimeout applies when neither the request nor the descriptor
	// carries one.
	defaultTimeout = 30 * time.Second

	// testConnectionTimeout bounds a connection test. Tests never retry,
	// so the bound is fixed rather than configurable.
	testConnectionTimeout = 10 * time.Second
)

// Options configures an Invoker. Usage, Audit, and Metrics are optional;
// a nil collaborator disables that concern.
type Options struct {
	Store   registry.Store
	Direct  *transport.DirectRegistry
	Retry   RetryConfig
	Logger  *slog.Logger
	Usage   UsageRecorder
	Audit   AuditLogger
	Metrics *MetricsCollector
}

// Invoker executes tool invocations end to end: resolve, authorize,
// connect, call with timeout and retry, and report the outcome.
type Invoker struct {
	resolver *registry.Resolver
	store    registry.Store
	direct   *transport.DirectRegistry
	retry    RetryConfig
	logger   *slog.Logger
	usage    UsageRecorder
	audit    AuditLogger
	metrics  *MetricsCollector

	// newAdapter is swapped out in tests.
	newAdapter func(desc *registry.ServerDescriptor, direct *transport.DirectRegistry, logger *slog.Logger) (transport.Adapter, error)
}

// New creates an Invoker.
func New(opts Options) *Invoker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Invoker{
		resolver:   registry.NewResolver(opts.Store),
		store:      opts.Store,
		direct:     opts.Direct,
		retry:      opts.Retry,
		logger:     opts.Logger,
		usage:      opts.Usage,
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		newAdapter: transport.ForDescriptor,
	}
}

// Invoke executes one tool invocation and always returns a Result; any
// internal panic is converted into a generic internal failure rather than
// crashing the caller.
func (i *Invoker) Invoke(ctx context.Context, req Request) (result Result) {
	requestID := uuid.NewString()
	logger := log.WithRequestID(i.logger, requestID).With(
		slog.String(log.ServerKey, req.ServerName),
		slog.String(log.ToolKey, req.ToolName),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("invocation panicked", slog.Any("panic", r))
			result = failure(tberrors.New(tberrors.ErrorTypeInternal, "internal error during invocation"))
		}
	}()

	desc, err := i.resolveServer(ctx, req, logger)
	if err != nil {
		return failure(err)
	}

	adapter, err := i.newAdapter(desc, i.direct, logger)
	if err != nil {
		return failure(err)
	}

	timeout := effectiveTimeout(req, desc)
	logger.Info("invoking tool",
		slog.String(log.TransportKey, string(desc.Transport)),
		log.Duration("timeout", timeout.Milliseconds()))

	retrier := NewRetrier(i.retry, logger)
	value, attempts, elapsed, err := retrier.Execute(ctx, timeout, func(ctx context.Context) (interface{}, error) {
		return adapter.CallTool(ctx, req.ToolName, req.Parameters)
	})

	if i.metrics != nil {
		for n := 1; n < attempts; n++ {
			i.metrics.RecordRetry(req.ServerName)
		}
	}

	if err != nil {
		logger.Warn("invocation failed", log.Error(err), log.Duration(log.DurationKey, elapsed.Milliseconds()))
		i.recordOutcome(ctx, req, desc, "error", elapsed, err)
		result = failure(sanitizeError(err))
		result.ExecutionTimeMs = elapsed.Milliseconds()
		return result
	}

	payload, _ := value.(*transport.Payload)
	logger.Info("invocation succeeded", log.Duration(log.DurationKey, elapsed.Milliseconds()))
	i.recordOutcome(ctx, req, desc, "success", elapsed, nil)
	i.recordModelUsage(ctx, req, desc, payload, logger)

	return Result{
		Success:         true,
		Value:           payload,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
}

// TestConnection verifies that a server is reachable: the same gates as an
// invocation, then a single connect-and-list round trip. No retries.
func (i *Invoker) TestConnection(ctx context.Context, serverName string, caller *identity.Caller) ConnectionTestResult {
	req := Request{ServerName: serverName, Caller: caller}
	desc, err := i.resolveServer(ctx, req, i.logger.With(slog.String(log.ServerKey, serverName)))
	if err != nil {
		return ConnectionTestResult{Success: false, Status: string(registry.StatusError), Err: err.Error()}
	}

	logger := log.WithServer(i.logger, serverName, string(desc.Transport))
	adapter, err := i.newAdapter(desc, i.direct, logger)
	if err != nil {
		return ConnectionTestResult{Success: false, Status: string(registry.StatusError), Err: err.Error()}
	}

	value, err := runWithTimeout(ctx, testConnectionTimeout, func(ctx context.Context) (interface{}, error) {
		return adapter.ListTools(ctx)
	})
	if err != nil {
		logger.Warn("connection test failed", log.Error(err))
		i.updateStatus(ctx, req, desc, registry.StatusUpdate{
			Status:    registry.StatusError,
			LastError: err.Error(),
		})
		return ConnectionTestResult{Success: false, Status: string(registry.StatusError), Err: err.Error()}
	}

	tools, _ := value.([]registry.ToolDefinition)
	i.updateStatus(ctx, req, desc, registry.StatusUpdate{
		Status:        registry.StatusConnected,
		LastConnected: time.Now(),
		Tools:         tools,
	})
	return ConnectionTestResult{Success: true, Status: string(registry.StatusConnected), Tools: tools}
}

// resolveServer runs the pre-connection gates: existence, enabled state,
// parameter validation, and entitlement for the model backend. Everything
// here fails before any process is spawned or socket opened.
func (i *Invoker) resolveServer(ctx context.Context, req Request, logger *slog.Logger) (*registry.ServerDescriptor, error) {
	subject := ""
	if req.Caller != nil {
		subject = req.Caller.Subject
	}

	desc, err := i.resolver.Resolve(ctx, req.ServerName, subject)
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, tberrors.Newf(tberrors.ErrorTypeNotFound, "server not found: %s", req.ServerName)
	}

	if desc.Disabled {
		return nil, tberrors.Newf(tberrors.ErrorTypeDisabled, "server disabled: %s", req.ServerName)
	}

	if err := registry.Validate(desc); err != nil {
		return nil, tberrors.Wrap(tberrors.ErrorTypeConfig, "invalid server configuration", err)
	}

	if desc.IsModelBackend() && !req.Caller.EntitledToModelBackend() {
		logger.Warn("model backend access denied")
		i.auditEvent(ctx, "authorization", "warning", "model backend access denied", map[string]interface{}{
			"server":  req.ServerName,
			"subject": subject,
		})
		return nil, tberrors.New(tberrors.ErrorTypeAuth, "model access requires an eligible subscription")
	}

	return desc, nil
}

// sanitizeError keeps internal failure detail (panic values, stack hints)
// out of caller-visible results. The full error was already logged.
func sanitizeError(err error) error {
	var tbErr *tberrors.Error
	if errors.As(err, &tbErr) && tbErr.Type == tberrors.ErrorTypeInternal {
		return tberrors.New(tberrors.ErrorTypeInternal, "internal error during invocation")
	}
	return err
}

// effectiveTimeout applies the precedence: request override, descriptor,
// default.
func effectiveTimeout(req Request, desc *registry.ServerDescriptor) time.Duration {
	if req.TimeoutOverride > 0 {
		return req.TimeoutOverride
	}
	if desc.Timeout > 0 {
		return desc.Timeout
	}
	return defaultTimeout
}

// recordOutcome reports one finished invocation to metrics, the status
// store, and the audit log. All reporting is best-effort.
func (i *Invoker) recordOutcome(ctx context.Context, req Request, desc *registry.ServerDescriptor, outcome string, elapsed time.Duration, callErr error) {
	if i.metrics != nil {
		i.metrics.RecordInvocation(req.ServerName, req.ToolName, outcome, elapsed)
	}

	update := registry.StatusUpdate{Status: registry.StatusConnected, LastConnected: time.Now()}
	if callErr != nil {
		update = registry.StatusUpdate{Status: registry.StatusError, LastError: callErr.Error()}
	}
	i.updateStatus(ctx, req, desc, update)

	details := map[string]interface{}{
		"server":      req.ServerName,
		"tool":        req.ToolName,
		"duration_ms": elapsed.Milliseconds(),
	}
	if req.Caller != nil {
		details["subject"] = req.Caller.Subject
	}
	if callErr != nil {
		details["error"] = callErr.Error()
		i.auditEvent(ctx, "invocation", "error", "tool invocation failed", details)
		return
	}
	i.auditEvent(ctx, "invocation", "info", "tool invocation succeeded", details)
}

// recordModelUsage reports token consumption to billing after a model
// backend call. Recording failures never affect the invocation result.
func (i *Invoker) recordModelUsage(ctx context.Context, req Request, desc *registry.ServerDescriptor, payload *transport.Payload, logger *slog.Logger) {
	if i.usage == nil || !desc.IsModelBackend() || payload == nil {
		return
	}

	structured, ok := payload.Structured.(map[string]interface{})
	if !ok {
		return
	}
	modelID, _ := structured["model"].(string)
	inputTokens, _ := structured["input_tokens"].(int)
	outputTokens, _ := structured["output_tokens"].(int)

	if err := i.usage.RecordUsage(ctx, req.Caller, modelID, inputTokens, outputTokens); err != nil {
		logger.Warn("failed to record token usage", log.Error(err))
	}
}

// updateStatus persists a status transition for user-defined servers.
// Built-ins carry no persistent status. Failures are logged and swallowed.
func (i *Invoker) updateStatus(ctx context.Context, req Request, desc *registry.ServerDescriptor, update registry.StatusUpdate) {
	if i.store == nil || req.Caller == nil || registry.BuiltinServer(desc.Name) != nil {
		return
	}
	if err := i.store.UpdateServerStatus(ctx, desc.Name, req.Caller.Subject, update); err != nil {
		i.logger.Warn("failed to update server status",
			slog.String(log.ServerKey, desc.Name),
			log.Error(err))
	}
}

// auditEvent writes one audit record. Failures are logged and swallowed.
func (i *Invoker) auditEvent(ctx context.Context, category, severity, message string, details map[string]interface{}) {
	if i.audit == nil {
		return
	}
	if err := i.audit.LogEvent(ctx, category, severity, message, details); err != nil {
		i.logger.Warn("failed to write audit event", log.Error(err))
	}
}
