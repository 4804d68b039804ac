// Copyright 2025 Flexstats, Inc.
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

package memory

import (
	"fmt"
	"sync/atomic"
)

// Tracker is used to track memory consumed by histogram clones.
// It contains an optional limit and tracks the consumption of every
// allocation charged against it. A Tracker with bytesLimit <= 0 never
// reports the limit as exceeded.
//
// Consume and BytesConsumed are safe for concurrent use; the remaining
// operations are not.
type Tracker struct {
	label         string
	bytesConsumed int64
	bytesLimit    int64
}

// NewTracker creates a Tracker. "label" names the tracker in diagnostics,
// "bytesLimit <= 0" means no limit.
func NewTracker(label string, bytesLimit int64) *Tracker {
	return &Tracker{label: label, bytesLimit: bytesLimit}
}

// Label returns the label of the tracker.
func (t *Tracker) Label() string {
	return t.label
}

// SetBytesLimit sets the bytes limit of the tracker.
func (t *Tracker) SetBytesLimit(bytesLimit int64) {
	t.bytesLimit = bytesLimit
}

// GetBytesLimit returns the bytes limit of the tracker.
func (t *Tracker) GetBytesLimit() int64 {
	return t.bytesLimit
}

// Consume charges bytes against the tracker. A negative value releases
// previously consumed bytes.
func (t *Tracker) Consume(bytes int64) {
	atomic.AddInt64(&t.bytesConsumed, bytes)
}

// BytesConsumed returns the consumed memory usage value in bytes.
func (t *Tracker) BytesConsumed() int64 {
	return atomic.LoadInt64(&t.bytesConsumed)
}

// Exceeded reports whether the consumed bytes exceed the limit.
func (t *Tracker) Exceeded() bool {
	return t.bytesLimit > 0 && t.BytesConsumed() > t.bytesLimit
}

// String returns the tracker for debug usage.
func (t *Tracker) String() string {
	return fmt.Sprintf("%s: consumed %d, limit %d", t.label, t.BytesConsumed(), t.bytesLimit)
}
