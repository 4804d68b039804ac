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

package statistics

import (
	"fmt"

	"github.com/pingcap/errors"
)

// Error kinds of histogram deserialization and selectivity estimation.
// Deserialization errors short-circuit and are reported to the caller's
// ErrorContext; selectivity errors are returned to the caller, which falls
// back to a static heuristic without aborting the query.
var (
	// ErrMissingAttribute is returned when a required attribute is absent from
	// the serialized histogram.
	ErrMissingAttribute = errors.New("missing attribute")
	// ErrWrongJSONType is returned when a JSON node has an unexpected type.
	ErrWrongJSONType = errors.New("wrong JSON type")
	// ErrWrongBucketArity is returned when a serialized bucket array has an
	// unexpected number of members.
	ErrWrongBucketArity = errors.New("wrong bucket arity")
	// ErrOutOfMemory is returned when an allocation quota is exhausted.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrUnsupportedPath is returned when a JSON path expression cannot be
	// encoded into a canonical key path.
	ErrUnsupportedPath = errors.New("unsupported JSON path")
	// ErrUnsupportedFunction is returned when the function context around a
	// predicate is not a recognized JSON extraction.
	ErrUnsupportedFunction = errors.New("unsupported function")
	// ErrInvalidFrequency is returned when a frequency value is outside [0, 1].
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrInvalidTotalFrequency is returned when the frequencies of a
	// sub-histogram do not add up consistently.
	ErrInvalidTotalFrequency = errors.New("invalid total frequency")
	// ErrTypeMismatch is returned when a value type contradicts the bucket's
	// declared value type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnsupportedConfiguration is returned for histogram shapes that are
	// declared but not supported, such as equi-height over strings.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
)

// ErrorContext collects diagnostics emitted while deserializing a histogram.
// The host engine renders the collected reports to the user issuing the
// statistics load. A nil ErrorContext discards all reports.
type ErrorContext struct {
	reports []string
}

// ReportMissingAttribute records a missing top-level attribute.
func (ctx *ErrorContext) ReportMissingAttribute(name string) {
	if ctx == nil {
		return
	}
	ctx.reports = append(ctx.reports, fmt.Sprintf("missing attribute %q", name))
}

// ReportNode records a malformed node together with the failure.
func (ctx *ErrorContext) ReportNode(node string, err error) {
	if ctx == nil {
		return
	}
	ctx.reports = append(ctx.reports, fmt.Sprintf("%s: %s", node, err))
}

// Reports returns the collected diagnostics in the order they were recorded.
func (ctx *ErrorContext) Reports() []string {
	if ctx == nil {
		return nil
	}
	return ctx.reports
}
