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
	"math"

	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/twmb/murmur3"
	"go.uber.org/zap"

	"github.com/flexstats/jsonflex/config"
	"github.com/flexstats/jsonflex/types"
	"github.com/flexstats/jsonflex/util/collate"
	"github.com/flexstats/jsonflex/util/logutil"
	"github.com/flexstats/jsonflex/util/memory"
)

// Canonical key path vocabulary. A key path is a sequence of steps joined by
// keySep; every non-terminal step carries a structural marker and the
// terminal step may carry a value type marker.
const (
	typeSep = "_"
	keySep  = "."

	suffixObj  = typeSep + "obj"
	suffixArr  = typeSep + "arr"
	suffixNum  = typeSep + "num"
	suffixBool = typeSep + "bool"
	suffixStr  = typeSep + "str"
)

// HistogramTypeJSONFlex is the value of the "histogram-type" attribute in the
// serialized form.
const HistogramTypeJSONFlex = "json-flex"

// JSONFlex estimates the selectivity of predicates over values extracted from
// a JSON column. It holds one KeyPathBucket per canonical key path; each
// bucket may nest a sub-histogram over the values found along that path.
//
// A JSONFlex is built by FromJSON and is immutable afterwards; all
// selectivity operations are read-only and safe to call from the single query
// thread that owns the histogram.
type JSONFlex struct {
	DBName  string
	TblName string
	ColName string

	// DataType is the column type the histogram was built over, "json" or "string".
	DataType string
	// NullValues is the fraction of rows where the whole column is SQL NULL.
	NullValues float64
	// LastUpdated is the serialized build timestamp, kept verbatim.
	LastUpdated string
	// NumBucketsSpecified is the bucket budget the histogram was built with.
	NumBucketsSpecified int64
	// CollationID identifies the collation used for string comparison.
	CollationID int
	// SamplingRate is the sampling rate the histogram was built with.
	SamplingRate float64

	// MinFrequency is the smallest bucket frequency seen during
	// deserialization, 1.0 when there are no buckets. It bounds the estimate
	// for paths the histogram has never seen.
	MinFrequency float64

	Buckets []KeyPathBucket

	collator collate.Collator
	// index maps the murmur3 hash of a key path's collation key to the bucket
	// positions carrying that hash. Lookups fall back to a linear scan when
	// the index is absent. Buckets keeps the authoritative order.
	index map[uint64][]int
}

// KeyPathBucket carries the statistics of a single canonical key path.
type KeyPathBucket struct {
	KeyPath string
	// Frequency is the fraction of rows where this path resolves.
	Frequency float64
	// NullValues is the fraction of those rows where the path resolves to
	// JSON null.
	NullValues float64
	// ValueType is the domain of leaf values at this path.
	ValueType types.PrimitiveKind
	// MinVal and MaxVal are the inclusive value range; both present or both
	// absent, and both of ValueType.
	MinVal *types.Primitive
	MaxVal *types.Primitive
	// NDV is the number of distinct non-null values along this path.
	NDV *int64
	// Sub is the nested histogram over the values at this path.
	Sub *SubHistogram
}

// base returns the maximum contribution this bucket makes to any predicate:
// the fraction of rows where the path resolves to a non-null value.
func (b *KeyPathBucket) base() float64 {
	return b.Frequency * (1 - b.NullValues)
}

// MemoryUsage returns the approximate number of bytes consumed by the bucket.
func (b *KeyPathBucket) MemoryUsage() int64 {
	sum := int64(len(b.KeyPath)) + 64
	if b.MinVal != nil {
		sum += b.MinVal.MemoryUsage()
	}
	if b.MaxVal != nil {
		sum += b.MaxVal.MemoryUsage()
	}
	if b.Sub != nil {
		sum += b.Sub.MemoryUsage()
	}
	return sum
}

// Create creates an empty JSONFlex histogram for the given column. The
// returned histogram answers every query from MinFrequency until it is
// populated by FromJSON.
func Create(db, tbl, col string) *JSONFlex {
	hg := &JSONFlex{
		DBName:       db,
		TblName:      tbl,
		ColName:      col,
		DataType:     "json",
		SamplingRate: 1.0,
		MinFrequency: 1.0,
	}
	hg.SetCollation(collate.CollationBin)
	return hg
}

// SetCollation sets the collation used for key path and string value
// comparison. It must not be called after the index is built.
func (hg *JSONFlex) SetCollation(id int) {
	hg.CollationID = id
	hg.collator = collate.GetCollatorByID(id)
}

// CollationName returns the name of the histogram's collation.
func (hg *JSONFlex) CollationName() string {
	return collate.CollationID2Name(hg.CollationID)
}

// NumBuckets returns the number of key path buckets.
func (hg *JSONFlex) NumBuckets() int {
	return len(hg.Buckets)
}

// NumDistinctValues returns the estimated number of distinct values, which
// for this histogram type equals the number of buckets.
func (hg *JSONFlex) NumDistinctValues() int {
	return hg.NumBuckets()
}

// MemoryUsage returns the approximate number of bytes consumed by the histogram.
func (hg *JSONFlex) MemoryUsage() int64 {
	sum := int64(128) + int64(len(hg.DBName)+len(hg.TblName)+len(hg.ColName)+len(hg.LastUpdated))
	for i := range hg.Buckets {
		sum += hg.Buckets[i].MemoryUsage()
	}
	return sum
}

// Clone makes a deep copy of the histogram, charging the copy against
// tracker. It returns nil when the tracker's quota would be exceeded; the
// caller must treat a nil clone as "no statistics available".
func (hg *JSONFlex) Clone(tracker *memory.Tracker) *JSONFlex {
	mockOOM := false
	failpoint.Inject("mockCloneOOM", func() {
		mockOOM = true
	})
	if mockOOM {
		return nil
	}

	usage := hg.MemoryUsage()
	if tracker != nil {
		tracker.Consume(usage)
		if tracker.Exceeded() {
			logutil.BgLogger().Warn("json-flex histogram clone exceeds memory quota",
				zap.String("column", hg.ColName),
				zap.Int64("usage", usage),
				zap.Int64("quota", tracker.GetBytesLimit()))
			tracker.Consume(-usage)
			return nil
		}
	}

	nhg := *hg
	nhg.index = nil
	nhg.Buckets = make([]KeyPathBucket, len(hg.Buckets))
	for i := range hg.Buckets {
		nhg.Buckets[i] = hg.Buckets[i].clone()
	}
	nhg.buildIndex()
	return &nhg
}

func (b *KeyPathBucket) clone() KeyPathBucket {
	nb := *b
	if b.MinVal != nil {
		v := b.MinVal.Clone()
		nb.MinVal = &v
	}
	if b.MaxVal != nil {
		v := b.MaxVal.Clone()
		nb.MaxVal = &v
	}
	if b.NDV != nil {
		v := *b.NDV
		nb.NDV = &v
	}
	if b.Sub != nil {
		nb.Sub = b.Sub.clone()
	}
	return nb
}

// buildIndex builds the hash index over the bucket key paths.
func (hg *JSONFlex) buildIndex() {
	hg.index = make(map[uint64][]int, len(hg.Buckets))
	for i := range hg.Buckets {
		h := murmur3.Sum64(hg.collator.Key(hg.Buckets[i].KeyPath))
		hg.index[h] = append(hg.index[h], i)
	}
}

// findBucket returns the bucket whose key path equals path under the
// histogram's collation, or nil.
func (hg *JSONFlex) findBucket(path string) *KeyPathBucket {
	if hg.index != nil {
		for _, i := range hg.index[murmur3.Sum64(hg.collator.Key(path))] {
			if hg.collator.Compare(hg.Buckets[i].KeyPath, path) == 0 {
				return &hg.Buckets[i]
			}
		}
		return nil
	}
	for i := range hg.Buckets {
		if hg.collator.Compare(hg.Buckets[i].KeyPath, path) == 0 {
			return &hg.Buckets[i]
		}
	}
	return nil
}

// lookupResult carries the three estimates a bucket lookup produces. All of
// them are fractions of the table, independently meaningful; they are not
// required to sum to anything. base is the looked-up bucket's base frequency,
// kept for the operator algebra (NEQ, IN, BETWEEN clipping).
type lookupResult struct {
	eq   float64
	lt   float64
	gt   float64
	base float64
}

// lookupTyped consults bucket b with the typed comparand v and returns the
// equal / less-than / greater-than estimates.
func (hg *JSONFlex) lookupTyped(b *KeyPathBucket, v types.Primitive) (lookupResult, error) {
	base := b.base()
	conf := config.GetGlobalConfig().Selectivity

	// Promote the comparand into the bucket's numeric domain: integers widen
	// against float buckets, integral floats truncate against int buckets.
	switch {
	case b.ValueType == types.KindFloat && v.Kind() == types.KindInt:
		v = types.NewFloatPrimitive(float64(v.GetInt64()))
	case b.ValueType == types.KindInt && v.Kind() == types.KindFloat && v.IsIntegral():
		v = types.NewIntPrimitive(int64(v.GetFloat64()))
	}

	cmpMin, cmpMax := 1, -1
	if b.MinVal != nil && b.MaxVal != nil {
		var err error
		cmpMin, err = v.Compare(*b.MinVal, hg.collator)
		if err != nil {
			return lookupResult{}, errors.Trace(err)
		}
		if cmpMin < 0 {
			return lookupResult{eq: 0, lt: 0, gt: base, base: base}, nil
		}
		cmpMax, err = v.Compare(*b.MaxVal, hg.collator)
		if err != nil {
			return lookupResult{}, errors.Trace(err)
		}
		if cmpMax > 0 {
			return lookupResult{eq: 0, lt: base, gt: 0, base: base}, nil
		}
	}

	if b.ValueType == types.KindBool {
		return hg.lookupBool(b, v, base)
	}

	if b.Sub != nil {
		r, err := b.Sub.lookup(v, base, hg.collator)
		if err != nil {
			return lookupResult{}, errors.Trace(err)
		}
		return r, nil
	}

	// No sub-histogram: heuristic estimates, sharpened at the range bounds.
	eq := base * conf.DefaultEqualFraction
	if b.NDV != nil && *b.NDV > 0 {
		eq = base / float64(*b.NDV)
	}
	lt := base * conf.DefaultRangeFraction
	gt := base * conf.DefaultRangeFraction
	atMin := b.MinVal != nil && cmpMin == 0
	atMax := b.MaxVal != nil && cmpMax == 0
	if atMin {
		lt = 0
		if !atMax {
			gt = base - eq
		}
	}
	if atMax {
		gt = 0
		if !atMin {
			lt = base - eq
		}
	}
	return lookupResult{eq: eq, lt: lt, gt: gt, base: base}, nil
}

// lookupBool handles boolean buckets. They never use equi-height
// sub-histograms, and order predicates on them estimate to zero.
func (hg *JSONFlex) lookupBool(b *KeyPathBucket, v types.Primitive, base float64) (lookupResult, error) {
	conf := config.GetGlobalConfig().Selectivity
	if b.Sub != nil {
		for i := range b.Sub.Buckets {
			e := &b.Sub.Buckets[i]
			c, err := v.Compare(e.Value, hg.collator)
			if err != nil {
				return lookupResult{}, errors.Trace(err)
			}
			if c == 0 {
				return lookupResult{eq: base * e.Frequency, base: base}, nil
			}
		}
		return lookupResult{eq: base * b.Sub.restFrequency(), base: base}, nil
	}
	eq := base * conf.DefaultEqualFraction
	if b.NDV != nil && *b.NDV > 0 {
		eq = base / float64(*b.NDV)
	}
	return lookupResult{eq: eq, base: base}, nil
}

// lookupUntyped estimates a lookup whose comparand type is unknown: the
// unsuffixed bucket if one exists, otherwise the aggregate of the three
// type-suffixed siblings of path. The second return value is false when no
// bucket matched at all.
func (hg *JSONFlex) lookupUntyped(path string) (lookupResult, bool) {
	conf := config.GetGlobalConfig().Selectivity
	if b := hg.findBucket(path); b != nil {
		base := b.base()
		eq := base * conf.DefaultEqualFraction
		if b.NDV != nil && *b.NDV > 0 {
			eq = base / float64(*b.NDV)
		}
		return lookupResult{
			eq:   eq,
			lt:   base * conf.DefaultRangeFraction,
			gt:   base * conf.DefaultRangeFraction,
			base: base,
		}, true
	}

	var baseSum float64
	var ndvSum int64
	found := false
	for _, sfx := range []string{suffixNum, suffixBool, suffixStr} {
		if b := hg.findBucket(path + sfx); b != nil {
			found = true
			baseSum += b.base()
			if b.NDV != nil {
				ndvSum += *b.NDV
			}
		}
	}
	if !found {
		return lookupResult{}, false
	}
	eq := baseSum * conf.DefaultEqualFraction
	if ndvSum > 0 {
		eq = baseSum / float64(ndvSum)
	}
	return lookupResult{
		eq:   eq,
		lt:   baseSum * conf.DefaultRangeFraction,
		gt:   baseSum * conf.DefaultRangeFraction,
		base: baseSum,
	}, true
}

// pathStats aggregates the existence statistics of a path over the
// unsuffixed bucket and its three type-suffixed siblings. freq is the
// fraction of rows where the path resolves, notNull the fraction where it
// resolves to a non-null value.
func (hg *JSONFlex) pathStats(path string) (freq, notNull float64, found bool) {
	for _, cand := range []string{path, path + suffixNum, path + suffixBool, path + suffixStr} {
		if b := hg.findBucket(cand); b != nil {
			found = true
			freq += b.Frequency
			notNull += b.base()
		}
	}
	return math.Min(freq, 1), math.Min(notNull, 1), found
}
