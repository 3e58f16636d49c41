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

// Package config loads the client configuration: logging, retry policy,
// model backend settings, and the user's tool server definitions.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"toolbridge/internal/bedrock"
	"toolbridge/internal/invoke"
	"toolbridge/internal/log"
	"toolbridge/internal/registry"
)

// ServerEntry is one configured tool server. Owner scopes the server to a
// caller subject; an empty owner makes it visible to every caller, which
// is the single-user local default.
type ServerEntry struct {
	registry.ServerDescriptor `yaml:",inline"`

	Owner string `yaml:"owner,omitempty"`
}

// LogConfig is the yaml-facing logging section. Converted to the logging
// package's Config at startup.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	Format string `yaml:"format,omitempty"`
}

// LoggerConfig builds the logging configuration, with environment
// variables taking precedence over the file.
func (c LogConfig) LoggerConfig() *log.Config {
	cfg := log.FromEnv()
	if os.Getenv("TOOLBRIDGE_LOG_LEVEL") == "" && os.Getenv("LOG_LEVEL") == "" && c.Level != "" {
		cfg.Level = c.Level
	}
	if os.Getenv("LOG_FORMAT") == "" && c.Format != "" {
		cfg.Format = log.Format(c.Format)
	}
	return cfg
}

// OllamaConfig configures the local inference daemon built-in.
type OllamaConfig struct {
	// BaseURL is the daemon endpoint. Defaults to http://localhost:11434.
	BaseURL string `yaml:"base_url,omitempty"`
}

// AuditConfig configures the audit event sink.
type AuditConfig struct {
	// Path is the SQLite database file. Empty disables the audit sink.
	Path string `yaml:"path,omitempty"`
}

// Config is the complete client configuration.
type Config struct {
	Log     LogConfig          `yaml:"log"`
	Retry   invoke.RetryConfig `yaml:"retry"`
	Bedrock bedrock.Config     `yaml:"bedrock"`
	Ollama  OllamaConfig       `yaml:"ollama"`
	Audit   AuditConfig        `yaml:"audit"`
	Servers []ServerEntry      `yaml:"servers,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Log:   LogConfig{Level: "info", Format: string(log.FormatJSON)},
		Retry: invoke.DefaultRetryConfig(),
	}
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "toolbridge.yaml"
	}
	return filepath.Join(home, ".toolbridge", "config.yaml")
}

// Load reads configuration from path. A missing file yields the defaults;
// a malformed or invalid file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Secrets belong in the environment, not the file.
	for i := range c.Servers {
		for k, v := range c.Servers[i].Env {
			c.Servers[i].Env[k] = os.ExpandEnv(v)
		}
	}
	return nil
}

// applyDefaults fills zero values so a minimal config file still works.
func (c *Config) applyDefaults() {
	if c.Retry.Multiplier == 0 {
		c.Retry = invoke.DefaultRetryConfig()
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = string(log.FormatJSON)
	}
}

// loadFromEnv applies environment overrides.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("TOOLBRIDGE_OLLAMA_URL"); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv("TOOLBRIDGE_BEDROCK_ENDPOINT"); v != "" {
		c.Bedrock.RuntimeEndpoint = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" && c.Bedrock.Region == "" {
		c.Bedrock.Region = v
	}
	if v := os.Getenv("TOOLBRIDGE_AUDIT_DB"); v != "" {
		c.Audit.Path = v
	}
}

// Validate checks server definitions for conflicts and missing connection
// parameters.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for i := range c.Servers {
		desc := &c.Servers[i].ServerDescriptor
		if desc.Name == "" {
			return fmt.Errorf("server %d: missing name", i)
		}
		key := c.Servers[i].Owner + "/" + desc.Name
		if seen[key] {
			return fmt.Errorf("duplicate server name %q", desc.Name)
		}
		seen[key] = true

		if registry.BuiltinServer(desc.Name) != nil {
			return fmt.Errorf("server name %q is reserved for a built-in server", desc.Name)
		}
		if err := registry.Validate(desc); err != nil {
			return err
		}
	}
	return nil
}
