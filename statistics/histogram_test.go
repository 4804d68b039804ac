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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flexstats/jsonflex/types"
	"github.com/flexstats/jsonflex/util/memory"
)

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }

func intPrimPtr(v int64) *types.Primitive {
	p := types.NewIntPrimitive(v)
	return &p
}

func strPrimPtr(v, collation string) *types.Primitive {
	p := types.NewStringPrimitive(v, collation)
	return &p
}

func newTestHistogram(buckets ...KeyPathBucket) *JSONFlex {
	hg := Create("test", "t", "j")
	hg.Buckets = buckets
	hg.buildIndex()
	return hg
}

// singletonIntBucket is the "objs_arr.0_num" example bucket: frequency 0.4,
// no nulls, values 0 and 1 each holding a tenth of the bucket.
func singletonIntBucket() KeyPathBucket {
	return KeyPathBucket{
		KeyPath:    "objs_arr.0_num",
		Frequency:  0.4,
		NullValues: 0.0,
		ValueType:  types.KindInt,
		Sub: &SubHistogram{
			Kind: SubSingleton,
			Buckets: []SubBucket{
				{Value: types.NewIntPrimitive(0), Frequency: 0.1},
				{Value: types.NewIntPrimitive(1), Frequency: 0.1},
			},
		},
	}
}

func TestFindBucket(t *testing.T) {
	hg := newTestHistogram(
		KeyPathBucket{KeyPath: "a_num", Frequency: 0.5},
		KeyPathBucket{KeyPath: "a_obj.b_str", Frequency: 0.2},
	)
	require.NotNil(t, hg.findBucket("a_num"))
	require.NotNil(t, hg.findBucket("a_obj.b_str"))
	require.Nil(t, hg.findBucket("a_str"))

	// The linear fallback must agree with the indexed lookup.
	hg.index = nil
	require.NotNil(t, hg.findBucket("a_num"))
	require.Nil(t, hg.findBucket("a_str"))
}

func TestFindBucketCollation(t *testing.T) {
	hg := newTestHistogram(KeyPathBucket{KeyPath: "Name_str", Frequency: 0.5})
	hg.SetCollation(45) // utf8mb4_general_ci
	hg.buildIndex()
	require.NotNil(t, hg.findBucket("name_str"))
	require.NotNil(t, hg.findBucket("NAME_STR"))
	require.Nil(t, hg.findBucket("other_str"))
}

func TestSingletonLookup(t *testing.T) {
	hg := newTestHistogram(singletonIntBucket())
	b := hg.findBucket("objs_arr.0_num")

	r, err := hg.lookupTyped(b, types.NewIntPrimitive(1))
	require.NoError(t, err)
	require.InDelta(t, 0.4*0.1, r.eq, 1e-9)
	require.InDelta(t, 0.4*0.1, r.lt, 1e-9)
	require.InDelta(t, 0.4*0.8, r.gt, 1e-9)

	r, err = hg.lookupTyped(b, types.NewIntPrimitive(0))
	require.NoError(t, err)
	require.InDelta(t, 0.04, r.eq, 1e-9)
	require.InDelta(t, 0.0, r.lt, 1e-9)
	require.InDelta(t, 0.4*0.9, r.gt, 1e-9)

	// Past the last listed value without range metadata.
	r, err = hg.lookupTyped(b, types.NewIntPrimitive(7))
	require.NoError(t, err)
	require.InDelta(t, 0.0, r.eq, 1e-9)
	require.InDelta(t, 0.4, r.lt, 1e-9)
	require.InDelta(t, 0.0, r.gt, 1e-9)
}

func TestSingletonLookupRestFrequency(t *testing.T) {
	b := KeyPathBucket{
		KeyPath:   "objs_arr.0_num",
		Frequency: 0.4,
		ValueType: types.KindInt,
		Sub: &SubHistogram{
			Kind: SubSingleton,
			Buckets: []SubBucket{
				{Value: types.NewIntPrimitive(0), Frequency: 0.1},
				{Value: types.NewIntPrimitive(5), Frequency: 0.1},
			},
			RestFrequency: float64Ptr(0.05),
		},
	}
	hg := newTestHistogram(b)
	bucket := hg.findBucket("objs_arr.0_num")

	// A value in the gap between listed values takes the rest frequency.
	r, err := hg.lookupTyped(bucket, types.NewIntPrimitive(3))
	require.NoError(t, err)
	require.InDelta(t, 0.4*0.05, r.eq, 1e-9)
	require.InDelta(t, 0.4*0.1, r.lt, 1e-9)
	require.InDelta(t, 0.4*0.9, r.gt, 1e-9)

	// Past the end the rest frequency still answers eq.
	r, err = hg.lookupTyped(bucket, types.NewIntPrimitive(9))
	require.NoError(t, err)
	require.InDelta(t, 0.4*0.05, r.eq, 1e-9)
	require.InDelta(t, 0.4, r.lt, 1e-9)
	require.InDelta(t, 0.0, r.gt, 1e-9)
}

func TestRangePreFilter(t *testing.T) {
	b := singletonIntBucket()
	b.MinVal = intPrimPtr(0)
	b.MaxVal = intPrimPtr(3)
	b.NDV = int64Ptr(4)
	hg := newTestHistogram(b)
	bucket := hg.findBucket("objs_arr.0_num")

	r, err := hg.lookupTyped(bucket, types.NewIntPrimitive(-1))
	require.NoError(t, err)
	require.InDelta(t, 0.0, r.eq, 1e-9)
	require.InDelta(t, 0.0, r.lt, 1e-9)
	require.InDelta(t, 0.4, r.gt, 1e-9)

	r, err = hg.lookupTyped(bucket, types.NewIntPrimitive(4))
	require.NoError(t, err)
	require.InDelta(t, 0.0, r.eq, 1e-9)
	require.InDelta(t, 0.4, r.lt, 1e-9)
	require.InDelta(t, 0.0, r.gt, 1e-9)
}

func TestNoSubLookup(t *testing.T) {
	b := KeyPathBucket{
		KeyPath:    "val_num",
		Frequency:  0.4,
		NullValues: 0.0,
		ValueType:  types.KindInt,
		MinVal:     intPrimPtr(0),
		MaxVal:     intPrimPtr(3),
		NDV:        int64Ptr(4),
	}
	hg := newTestHistogram(b)
	bucket := hg.findBucket("val_num")

	r, err := hg.lookupTyped(bucket, types.NewIntPrimitive(2))
	require.NoError(t, err)
	require.InDelta(t, 0.4/4, r.eq, 1e-9)
	require.InDelta(t, 0.4*0.3, r.lt, 1e-9)
	require.InDelta(t, 0.4*0.3, r.gt, 1e-9)

	// Comparand at min: lt is exactly zero and gt takes the rest.
	r, err = hg.lookupTyped(bucket, types.NewIntPrimitive(0))
	require.NoError(t, err)
	require.InDelta(t, 0.1, r.eq, 1e-9)
	require.InDelta(t, 0.0, r.lt, 1e-9)
	require.InDelta(t, 0.4-0.1, r.gt, 1e-9)

	// Comparand at max: symmetric.
	r, err = hg.lookupTyped(bucket, types.NewIntPrimitive(3))
	require.NoError(t, err)
	require.InDelta(t, 0.0, r.gt, 1e-9)
	require.InDelta(t, 0.4-0.1, r.lt, 1e-9)
}

func TestNoSubLookupWithoutNDV(t *testing.T) {
	b := KeyPathBucket{
		KeyPath:    "val_num",
		Frequency:  0.5,
		NullValues: 0.2,
		ValueType:  types.KindInt,
	}
	hg := newTestHistogram(b)
	bucket := hg.findBucket("val_num")

	base := 0.5 * 0.8
	r, err := hg.lookupTyped(bucket, types.NewIntPrimitive(2))
	require.NoError(t, err)
	require.InDelta(t, base*0.1, r.eq, 1e-9)
	require.InDelta(t, base*0.3, r.lt, 1e-9)
	require.InDelta(t, base*0.3, r.gt, 1e-9)
}

func TestStringBucketLookup(t *testing.T) {
	b := KeyPathBucket{
		KeyPath:    "aakey_str",
		Frequency:  0.131,
		NullValues: 0.0,
		ValueType:  types.KindString,
		MinVal:     strPrimPtr("bb", "binary"),
		MaxVal:     strPrimPtr("bb", "binary"),
		NDV:        int64Ptr(1),
	}
	hg := newTestHistogram(b)
	bucket := hg.findBucket("aakey_str")

	r, err := hg.lookupTyped(bucket, types.NewStringPrimitive("bb", "binary"))
	require.NoError(t, err)
	require.InDelta(t, 0.131, r.eq, 1e-9)

	r, err = hg.lookupTyped(bucket, types.NewStringPrimitive("ccc", "binary"))
	require.NoError(t, err)
	require.InDelta(t, 0.0, r.eq, 1e-9)
	require.InDelta(t, 0.131, r.lt, 1e-9)

	r, err = hg.lookupTyped(bucket, types.NewStringPrimitive("aa", "binary"))
	require.NoError(t, err)
	require.InDelta(t, 0.0, r.eq, 1e-9)
	require.InDelta(t, 0.131, r.gt, 1e-9)
}

func TestEquiHeightLookup(t *testing.T) {
	b := KeyPathBucket{
		KeyPath:    "score_num",
		Frequency:  0.8,
		NullValues: 0.0,
		ValueType:  types.KindInt,
		MinVal:     intPrimPtr(0),
		MaxVal:     intPrimPtr(100),
		NDV:        int64Ptr(40),
		Sub: &SubHistogram{
			Kind: SubEquiHeight,
			Buckets: []SubBucket{
				{Value: types.NewIntPrimitive(10), Frequency: 0.25, NDV: 10},
				{Value: types.NewIntPrimitive(50), Frequency: 0.25, NDV: 10},
				{Value: types.NewIntPrimitive(80), Frequency: 0.25, NDV: 10},
				{Value: types.NewIntPrimitive(100), Frequency: 0.25, NDV: 10},
			},
		},
	}
	hg := newTestHistogram(b)
	bucket := hg.findBucket("score_num")

	r, err := hg.lookupTyped(bucket, types.NewIntPrimitive(30))
	require.NoError(t, err)
	require.InDelta(t, 0.8*0.25/10, r.eq, 1e-9)
	require.InDelta(t, 0.8*0.25, r.lt, 1e-9)
	require.InDelta(t, 0.8*0.5, r.gt, 1e-9)

	// Comparand at max falls into the final range and gt vanishes.
	r, err = hg.lookupTyped(bucket, types.NewIntPrimitive(100))
	require.NoError(t, err)
	require.InDelta(t, 0.8*0.75, r.lt, 1e-9)
	require.InDelta(t, 0.0, r.gt, 1e-9)

	// Comparand at min falls into the first range and lt vanishes.
	r, err = hg.lookupTyped(bucket, types.NewIntPrimitive(0))
	require.NoError(t, err)
	require.InDelta(t, 0.0, r.lt, 1e-9)
	require.InDelta(t, 0.8*0.75, r.gt, 1e-9)
}

func TestEquiHeightInconsistent(t *testing.T) {
	b := KeyPathBucket{
		KeyPath:    "score_num",
		Frequency:  0.8,
		ValueType:  types.KindInt,
		MinVal:     intPrimPtr(0),
		MaxVal:     intPrimPtr(100),
		NDV:        int64Ptr(10),
		Sub: &SubHistogram{
			Kind: SubEquiHeight,
			Buckets: []SubBucket{
				{Value: types.NewIntPrimitive(10), Frequency: 1.0, NDV: 10},
			},
		},
	}
	hg := newTestHistogram(b)
	bucket := hg.findBucket("score_num")

	// 50 <= max_val but is beyond the last upper bound: the histogram is
	// inconsistent and the lookup reports it.
	_, err := hg.lookupTyped(bucket, types.NewIntPrimitive(50))
	require.Error(t, err)
}

func TestBoolBucketLookup(t *testing.T) {
	b := KeyPathBucket{
		KeyPath:    "active_bool",
		Frequency:  0.6,
		NullValues: 0.0,
		ValueType:  types.KindBool,
		Sub: &SubHistogram{
			Kind: SubSingleton,
			Buckets: []SubBucket{
				{Value: types.NewBoolPrimitive(false), Frequency: 0.7},
				{Value: types.NewBoolPrimitive(true), Frequency: 0.3},
			},
		},
	}
	hg := newTestHistogram(b)
	bucket := hg.findBucket("active_bool")

	r, err := hg.lookupTyped(bucket, types.NewBoolPrimitive(true))
	require.NoError(t, err)
	require.InDelta(t, 0.6*0.3, r.eq, 1e-9)
	require.Zero(t, r.lt)
	require.Zero(t, r.gt)

	r, err = hg.lookupTyped(bucket, types.NewBoolPrimitive(false))
	require.NoError(t, err)
	require.InDelta(t, 0.6*0.7, r.eq, 1e-9)
	require.Zero(t, r.lt)
	require.Zero(t, r.gt)
}

func TestNumericPromotion(t *testing.T) {
	// Integer comparand against a float bucket.
	fb := KeyPathBucket{
		KeyPath:   "f_num",
		Frequency: 0.4,
		ValueType: types.KindFloat,
		Sub: &SubHistogram{
			Kind: SubSingleton,
			Buckets: []SubBucket{
				{Value: types.NewFloatPrimitive(1.0), Frequency: 0.5},
				{Value: types.NewFloatPrimitive(2.5), Frequency: 0.5},
			},
		},
	}
	hg := newTestHistogram(fb)
	r, err := hg.lookupTyped(hg.findBucket("f_num"), types.NewIntPrimitive(1))
	require.NoError(t, err)
	require.InDelta(t, 0.4*0.5, r.eq, 1e-9)

	// Integral float comparand against an int bucket.
	hg = newTestHistogram(singletonIntBucket())
	r, err = hg.lookupTyped(hg.findBucket("objs_arr.0_num"), types.NewFloatPrimitive(1.0))
	require.NoError(t, err)
	require.InDelta(t, 0.4*0.1, r.eq, 1e-9)

	// Non-integral float comparand against an int bucket compares numerically
	// and matches nothing exactly.
	r, err = hg.lookupTyped(hg.findBucket("objs_arr.0_num"), types.NewFloatPrimitive(0.5))
	require.NoError(t, err)
	require.InDelta(t, 0.0, r.eq, 1e-9)
	require.InDelta(t, 0.4*0.1, r.lt, 1e-9)
	require.InDelta(t, 0.4*0.9, r.gt, 1e-9)
}

func TestLessThanMonotone(t *testing.T) {
	b := singletonIntBucket()
	b.Sub.Buckets = []SubBucket{
		{Value: types.NewIntPrimitive(0), Frequency: 0.2},
		{Value: types.NewIntPrimitive(3), Frequency: 0.3},
		{Value: types.NewIntPrimitive(7), Frequency: 0.4},
	}
	hg := newTestHistogram(b)
	bucket := hg.findBucket("objs_arr.0_num")

	prevLT, prevGT := -1.0, 2.0
	for v := int64(-2); v <= 10; v++ {
		r, err := hg.lookupTyped(bucket, types.NewIntPrimitive(v))
		require.NoError(t, err)
		require.GreaterOrEqual(t, r.lt+1e-12, prevLT)
		require.LessOrEqual(t, r.gt-1e-12, prevGT)
		prevLT, prevGT = r.lt, r.gt
	}
}

func TestPathStats(t *testing.T) {
	hg := newTestHistogram(
		KeyPathBucket{KeyPath: "user_obj.age_num", Frequency: 0.5, NullValues: 0.2},
		KeyPathBucket{KeyPath: "user_obj.age_str", Frequency: 0.2, NullValues: 0.0},
	)
	freq, notNull, found := hg.pathStats("user_obj.age")
	require.True(t, found)
	require.InDelta(t, 0.7, freq, 1e-9)
	require.InDelta(t, 0.5*0.8+0.2, notNull, 1e-9)

	_, _, found = hg.pathStats("user_obj.name")
	require.False(t, found)
}

func TestLookupUntyped(t *testing.T) {
	hg := newTestHistogram(
		KeyPathBucket{KeyPath: "v_num", Frequency: 0.4, NDV: int64Ptr(4)},
		KeyPathBucket{KeyPath: "v_str", Frequency: 0.2, NDV: int64Ptr(4)},
	)
	r, found := hg.lookupUntyped("v")
	require.True(t, found)
	require.InDelta(t, 0.6, r.base, 1e-9)
	require.InDelta(t, 0.6/8, r.eq, 1e-9)
	require.InDelta(t, 0.6*0.3, r.lt, 1e-9)
	require.InDelta(t, 0.6*0.3, r.gt, 1e-9)

	_, found = hg.lookupUntyped("w")
	require.False(t, found)

	// An unsuffixed bucket takes precedence over the siblings.
	hg = newTestHistogram(KeyPathBucket{KeyPath: "v", Frequency: 0.3, NDV: int64Ptr(3)})
	r, found = hg.lookupUntyped("v")
	require.True(t, found)
	require.InDelta(t, 0.1, r.eq, 1e-9)
}

func TestCloneDeepCopy(t *testing.T) {
	b := singletonIntBucket()
	b.MinVal = intPrimPtr(0)
	b.MaxVal = intPrimPtr(3)
	b.NDV = int64Ptr(4)
	hg := newTestHistogram(b)
	hg.MinFrequency = 0.4

	clone := hg.Clone(nil)
	require.NotNil(t, clone)
	require.Equal(t, hg.NumBuckets(), clone.NumBuckets())
	require.Equal(t, hg.MinFrequency, clone.MinFrequency)

	// Mutating the clone must not touch the original.
	clone.Buckets[0].Sub.Buckets[0].Frequency = 0.9
	*clone.Buckets[0].NDV = 17
	require.InDelta(t, 0.1, hg.Buckets[0].Sub.Buckets[0].Frequency, 1e-9)
	require.Equal(t, int64(4), *hg.Buckets[0].NDV)
}

func TestCloneQuotaExceeded(t *testing.T) {
	hg := newTestHistogram(singletonIntBucket())

	tracker := memory.NewTracker("clone", 1)
	require.Nil(t, hg.Clone(tracker))
	// The failed clone releases what it consumed.
	require.Equal(t, int64(0), tracker.BytesConsumed())

	tracker = memory.NewTracker("clone", 1<<20)
	clone := hg.Clone(tracker)
	require.NotNil(t, clone)
	require.Equal(t, hg.MemoryUsage(), tracker.BytesConsumed())
}

func TestMemoryUsage(t *testing.T) {
	hg := newTestHistogram()
	small := hg.MemoryUsage()
	hg = newTestHistogram(singletonIntBucket())
	require.Greater(t, hg.MemoryUsage(), small)
}
