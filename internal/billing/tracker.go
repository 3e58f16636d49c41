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

// Package billing tracks model token consumption per caller. Records feed
// downstream billing; over-counting a failed record is worse than
// under-counting, so duplicate request IDs are dropped.
package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"toolbridge/internal/identity"
)

// UsageRecord is one model invocation's token consumption.
type UsageRecord struct {
	// RequestID uniquely identifies the invocation.
	RequestID string

	// Subject is the billed caller.
	Subject string

	// Model is the model ID that served the request.
	Model string

	// Timestamp is when the usage was recorded.
	Timestamp time.Time

	// InputTokens and OutputTokens are the billed token counts.
	InputTokens  int
	OutputTokens int
}

// UsageAggregate contains summed usage statistics.
type UsageAggregate struct {
	TotalRequests     int
	TotalInputTokens  int
	TotalOutputTokens int
}

// Tracker is an in-memory usage recorder. A production deployment swaps
// in a recorder backed by the billing service; the interface is the same.
type Tracker struct {
	mu      sync.RWMutex
	records []UsageRecord
	seen    map[string]bool
}

// NewTracker creates an empty usage tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]bool)}
}

// RecordUsage records token consumption for one model invocation.
func (t *Tracker) RecordUsage(ctx context.Context, caller *identity.Caller, modelID string, inputTokens, outputTokens int) error {
	subject := ""
	if caller != nil {
		subject = caller.Subject
	}
	t.Track(UsageRecord{
		RequestID:    uuid.NewString(),
		Subject:      subject,
		Model:        modelID,
		Timestamp:    time.Now(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	})
	return nil
}

// Track appends a usage record. Records repeating an already-seen request
// ID are ignored.
func (t *Tracker) Track(record UsageRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if record.RequestID != "" {
		if t.seen[record.RequestID] {
			return
		}
		t.seen[record.RequestID] = true
	}
	t.records = append(t.records, record)
}

// Records returns a copy of all usage records.
func (t *Tracker) Records() []UsageRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records := make([]UsageRecord, len(t.records))
	copy(records, t.records)
	return records
}

// AggregateBySubject sums usage per caller.
func (t *Tracker) AggregateBySubject() map[string]UsageAggregate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	aggregates := make(map[string]UsageAggregate)
	for _, record := range t.records {
		agg := aggregates[record.Subject]
		agg.TotalRequests++
		agg.TotalInputTokens += record.InputTokens
		agg.TotalOutputTokens += record.OutputTokens
		aggregates[record.Subject] = agg
	}
	return aggregates
}

// AggregateByModel sums usage per model.
func (t *Tracker) AggregateByModel() map[string]UsageAggregate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	aggregates := make(map[string]UsageAggregate)
	for _, record := range t.records {
		agg := aggregates[record.Model]
		agg.TotalRequests++
		agg.TotalInputTokens += record.InputTokens
		agg.TotalOutputTokens += record.OutputTokens
		aggregates[record.Model] = agg
	}
	return aggregates
}
