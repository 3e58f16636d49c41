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

package errors

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// retryableFragments are message substrings that mark an untyped error as
// transient. Adapters wrap their own failures, but errors surfaced by the
// MCP SDK or the OS arrive as plain strings.
var retryableFragments = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"connection",
	"no such host",
	"dns",
	"network",
	"broken pipe",
	"unexpected eof",
}

// Classify labels an error retryable or not. It is the sole gate the retry
// executor consults between attempts.
//
// Typed errors classify by their ErrorType and status code (5xx and 429
// retry). Untyped errors fall back to message inspection: transient network
// conditions retry, everything else does not.
func Classify(err error) bool {
	if err == nil {
		return false
	}

	// A context deadline at this level is the attempt timing out.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var classified *Error
	if errors.As(err, &classified) {
		if classified.StatusCode >= 500 || classified.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return classified.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}
