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

// Package commands implements the toolbridge CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"toolbridge/internal/audit"
	"toolbridge/internal/bedrock"
	"toolbridge/internal/billing"
	"toolbridge/internal/builtin"
	"toolbridge/internal/config"
	"toolbridge/internal/identity"
	"toolbridge/internal/invoke"
	"toolbridge/internal/log"
	"toolbridge/internal/transport"
)

var (
	configPath  string
	bearerToken string
)

// NewRootCommand builds the toolbridge command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "toolbridge",
		Short: "Invoke tools on MCP servers and managed model backends",
		Long: `toolbridge is a tool-invocation client. It resolves a named tool
server (a local stdio subprocess, a remote stream endpoint, or a built-in),
executes a tool call with timeout and retry handling, and reports the result.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.toolbridge/config.yaml)")
	root.PersistentFlags().StringVar(&bearerToken, "token", "", "bearer token identifying the caller (default: $TOOLBRIDGE_TOKEN)")

	root.AddCommand(newInvokeCommand())
	root.AddCommand(newTestCommand())
	root.AddCommand(newServersCommand())

	return root
}

// app wires the configuration, identity, built-in handlers, and invoker
// together for one CLI run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *config.FileStore
	invoker *invoke.Invoker
	usage   *billing.Tracker
	audit   *audit.SQLiteSink
	caller  *identity.Caller
}

// newApp builds the application from the config file and flags.
func newApp(ctx context.Context) (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger := log.New(cfg.Log.LoggerConfig())

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  config.NewFileStore(cfg.Servers),
		usage:  billing.NewTracker(),
	}

	token := bearerToken
	if token == "" {
		token = os.Getenv("TOOLBRIDGE_TOKEN")
	}
	if token != "" {
		caller, err := identity.FromBearerToken(token)
		if err != nil {
			return nil, fmt.Errorf("invalid bearer token: %w", err)
		}
		a.caller = caller
		logger.Debug("caller authenticated",
			slog.String("subject", caller.Subject),
			slog.String("tier", string(caller.Tier)),
			slog.String("token", log.SanitizeToken(token)))
	}

	direct := transport.NewDirectRegistry()

	ollama, err := builtin.NewOllamaClient(cfg.Ollama.BaseURL, logger)
	if err != nil {
		return nil, err
	}
	ollama.Register(direct)

	fetcher, err := builtin.NewFetcher(logger)
	if err != nil {
		return nil, err
	}
	fetcher.Register(direct)

	backend, err := bedrock.New(ctx, cfg.Bedrock, runtimeTokenSource(cfg.Bedrock), logger)
	if err != nil {
		return nil, err
	}
	backend.Register(direct)

	var auditSink *audit.SQLiteSink
	if cfg.Audit.Path != "" {
		auditSink, err = audit.NewSQLiteSink(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		a.audit = auditSink
	}

	opts := invoke.Options{
		Store:   a.store,
		Direct:  direct,
		Retry:   cfg.Retry,
		Logger:  logger,
		Usage:   a.usage,
		Metrics: invoke.NewMetricsCollector(),
	}
	if auditSink != nil {
		opts.Audit = auditSink
	}
	a.invoker = invoke.New(opts)

	return a, nil
}

// close releases resources held for the run.
func (a *app) close() {
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("failed to close audit sink", log.Error(err))
		}
	}
}

// runtimeTokenSource supplies the bearer token for a dedicated runtime
// endpoint from the environment. Nil when no endpoint is configured.
func runtimeTokenSource(cfg bedrock.Config) bedrock.TokenSource {
	if cfg.RuntimeEndpoint == "" {
		return nil
	}
	return func(ctx context.Context) (string, time.Time, error) {
		token := os.Getenv("TOOLBRIDGE_RUNTIME_TOKEN")
		if token == "" {
			return "", time.Time{}, fmt.Errorf("TOOLBRIDGE_RUNTIME_TOKEN is not set")
		}
		// The environment cannot report expiry; assume an hour and let
		// the cache refresh early.
		return token, time.Now().Add(time.Hour), nil
	}
}
