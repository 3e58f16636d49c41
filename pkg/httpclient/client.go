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

// Package httpclient builds the HTTP clients used to reach built-in tool
// endpoints and the managed runtime. Retry is deliberately absent here:
// the invocation retry executor owns the attempt loop, and stacking a
// transport-level retry under it would multiply attempts.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Config holds HTTP client settings.
type Config struct {
	// Timeout bounds the full request, including body read.
	Timeout time.Duration

	// UserAgent is set on every outgoing request.
	UserAgent string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		UserAgent: "toolbridge/1.0",
	}
}

// New creates an HTTP client with TLS 1.2+, connection pooling, and
// User-Agent injection.
func New(cfg Config) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("httpclient: timeout must be positive")
	}

	base := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &http.Client{
		Transport: &userAgentTransport{next: base, userAgent: cfg.UserAgent},
		Timeout:   cfg.Timeout,
	}, nil
}

// userAgentTransport sets the User-Agent header on requests that lack one.
type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(req)
}
