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
	"github.com/pingcap/errors"

	"github.com/flexstats/jsonflex/types"
	"github.com/flexstats/jsonflex/util/collate"
)

// SubHistogramKind discriminates the two sub-histogram shapes.
type SubHistogramKind byte

// Sub-histogram kinds.
const (
	// SubSingleton is a discrete-value histogram: every entry records one
	// value and its frequency.
	SubSingleton SubHistogramKind = iota
	// SubEquiHeight is a range histogram: every entry covers the value range
	// up to its upper bound.
	SubEquiHeight
)

// String implements fmt.Stringer interface.
func (k SubHistogramKind) String() string {
	if k == SubEquiHeight {
		return "equi-height"
	}
	return "singleton"
}

// SubBucket is one entry of a sub-histogram. For a singleton, Value is the
// value itself and NDV is unused. For an equi-height, Value is the inclusive
// upper bound of the range and NDV the number of distinct values in it.
// Frequency is in both cases a fraction of the parent bucket's frequency.
type SubBucket struct {
	Value     types.Primitive
	Frequency float64
	NDV       int64
}

// SubHistogram is a nested histogram over the values found along one key
// path. Deserialization guarantees that every bucket value has the parent
// KeyPathBucket's value type, so lookups dispatch on the parent tag alone.
type SubHistogram struct {
	Kind    SubHistogramKind
	Buckets []SubBucket
	// RestFrequency is the mean frequency of values not listed in a
	// singleton whose NDV exceeded the bucket budget. Nil when every value is
	// listed.
	RestFrequency *float64
}

func (sub *SubHistogram) restFrequency() float64 {
	if sub.RestFrequency == nil {
		return 0
	}
	return *sub.RestFrequency
}

func (sub *SubHistogram) clone() *SubHistogram {
	nsub := &SubHistogram{Kind: sub.Kind, Buckets: make([]SubBucket, len(sub.Buckets))}
	for i := range sub.Buckets {
		nsub.Buckets[i] = sub.Buckets[i]
		nsub.Buckets[i].Value = sub.Buckets[i].Value.Clone()
	}
	if sub.RestFrequency != nil {
		v := *sub.RestFrequency
		nsub.RestFrequency = &v
	}
	return nsub
}

// MemoryUsage returns the approximate number of bytes consumed by the
// sub-histogram.
func (sub *SubHistogram) MemoryUsage() int64 {
	sum := int64(48)
	for i := range sub.Buckets {
		sum += sub.Buckets[i].Value.MemoryUsage() + 16
	}
	return sum
}

// lookup consults the sub-histogram with a comparand that already passed the
// parent bucket's range pre-filter, scaling all estimates by base.
func (sub *SubHistogram) lookup(v types.Primitive, base float64, coll collate.Collator) (lookupResult, error) {
	if sub.Kind == SubEquiHeight {
		return sub.equiHeightLookup(v, base, coll)
	}
	return sub.singletonLookup(v, base, coll)
}

func (sub *SubHistogram) singletonLookup(v types.Primitive, base float64, coll collate.Collator) (lookupResult, error) {
	cum := 0.0
	for i := range sub.Buckets {
		e := &sub.Buckets[i]
		c, err := v.Compare(e.Value, coll)
		if err != nil {
			return lookupResult{}, errors.Trace(err)
		}
		if c == 0 {
			return lookupResult{
				eq:   base * e.Frequency,
				lt:   base * cum,
				gt:   base * (1 - cum - e.Frequency),
				base: base,
			}, nil
		}
		if c < 0 {
			// v falls in the gap before this entry; only unlisted values can
			// match it exactly.
			return lookupResult{
				eq:   base * sub.restFrequency(),
				lt:   base * cum,
				gt:   base * (1 - cum),
				base: base,
			}, nil
		}
		cum += e.Frequency
	}
	return lookupResult{eq: base * sub.restFrequency(), lt: base, gt: 0, base: base}, nil
}

func (sub *SubHistogram) equiHeightLookup(v types.Primitive, base float64, coll collate.Collator) (lookupResult, error) {
	cum := 0.0
	for i := range sub.Buckets {
		e := &sub.Buckets[i]
		c, err := v.Compare(e.Value, coll)
		if err != nil {
			return lookupResult{}, errors.Trace(err)
		}
		if c <= 0 {
			eq := 0.0
			if e.NDV > 0 {
				eq = base * e.Frequency / float64(e.NDV)
			}
			// lt counts the ranges before the matched one, gt the ranges
			// after it; rows inside the matched range only surface through eq.
			return lookupResult{eq: eq, lt: base * cum, gt: base * (1 - cum - e.Frequency), base: base}, nil
		}
		cum += e.Frequency
	}
	// The range pre-filter guarantees v <= max_val, and the last upper bound
	// must equal max_val; running off the end means the histogram is
	// inconsistent.
	return lookupResult{}, errors.Annotatef(ErrInvalidTotalFrequency,
		"equi-height lookup for %s ran past the last bucket", v)
}
