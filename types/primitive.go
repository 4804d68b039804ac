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

package types

import (
	"fmt"
	"math"
	"strconv"

	"github.com/pingcap/errors"

	"github.com/flexstats/jsonflex/util/collate"
	"github.com/flexstats/jsonflex/util/hack"
)

// PrimitiveKind is the discriminator of a Primitive value.
type PrimitiveKind byte

// Primitive kinds.
const (
	KindUnknown PrimitiveKind = iota
	KindInt
	KindFloat
	KindBool
	KindString
)

// String implements fmt.Stringer interface.
func (k PrimitiveKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	}
	return "unknown"
}

// IsNumeric reports whether the kind is Int or Float.
func (k PrimitiveKind) IsNumeric() bool {
	return k == KindInt || k == KindFloat
}

// Primitive is a tagged scalar extracted from a JSON document: an integer,
// a double, a boolean or a collation-aware string. The zero value has
// KindUnknown. The integer payload word doubles as the storage for floats
// (via math.Float64bits) and booleans.
type Primitive struct {
	k         PrimitiveKind
	i         int64
	b         []byte
	collation string
}

// NewIntPrimitive creates a Primitive holding an int64.
func NewIntPrimitive(v int64) Primitive {
	return Primitive{k: KindInt, i: v}
}

// NewFloatPrimitive creates a Primitive holding a float64.
func NewFloatPrimitive(v float64) Primitive {
	return Primitive{k: KindFloat, i: int64(math.Float64bits(v))}
}

// NewBoolPrimitive creates a Primitive holding a bool.
func NewBoolPrimitive(v bool) Primitive {
	var i int64
	if v {
		i = 1
	}
	return Primitive{k: KindBool, i: i}
}

// NewStringPrimitive creates a Primitive holding a string compared under the
// given collation.
func NewStringPrimitive(v string, collation string) Primitive {
	return Primitive{k: KindString, b: hack.Slice(v), collation: collation}
}

// NewBytesPrimitive creates a string Primitive from a raw byte buffer.
func NewBytesPrimitive(b []byte, collation string) Primitive {
	return Primitive{k: KindString, b: b, collation: collation}
}

// Kind returns the discriminator of the value.
func (p Primitive) Kind() PrimitiveKind {
	return p.k
}

// GetInt64 returns the int64 payload. It can only be called when Kind is KindInt.
func (p Primitive) GetInt64() int64 {
	return p.i
}

// GetFloat64 returns the float64 payload. It can only be called when Kind is KindFloat.
func (p Primitive) GetFloat64() float64 {
	return math.Float64frombits(uint64(p.i))
}

// GetBool returns the bool payload. It can only be called when Kind is KindBool.
func (p Primitive) GetBool() bool {
	return p.i != 0
}

// GetString returns the string payload without copying.
func (p Primitive) GetString() string {
	return hack.String(p.b)
}

// GetBytes returns the raw byte buffer of a string Primitive.
func (p Primitive) GetBytes() []byte {
	return p.b
}

// Collation returns the collation of a string Primitive.
func (p Primitive) Collation() string {
	return p.collation
}

// ToFloat64 converts a numeric Primitive to float64.
func (p Primitive) ToFloat64() float64 {
	if p.k == KindInt {
		return float64(p.i)
	}
	return p.GetFloat64()
}

// IsIntegral reports whether a float Primitive holds an integral value that
// fits in an int64.
func (p Primitive) IsIntegral() bool {
	if p.k != KindFloat {
		return p.k == KindInt
	}
	f := p.GetFloat64()
	return f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64
}

// Clone returns a deep copy of the Primitive.
func (p Primitive) Clone() Primitive {
	np := p
	if p.b != nil {
		np.b = make([]byte, len(p.b))
		copy(np.b, p.b)
	}
	return np
}

// MemoryUsage returns the number of bytes consumed by the Primitive.
func (p Primitive) MemoryUsage() int64 {
	return int64(len(p.b)) + int64(len(p.collation)) + 16
}

// Compare compares the Primitive with another one, resolving string order
// through coll. Int and Float compare numerically against each other; any
// other kind combination is an error.
func (p Primitive) Compare(other Primitive, coll collate.Collator) (int, error) {
	switch {
	case p.k == KindInt && other.k == KindInt:
		return cmpInt64(p.i, other.i), nil
	case p.k.IsNumeric() && other.k.IsNumeric():
		return cmpFloat64(p.ToFloat64(), other.ToFloat64()), nil
	case p.k == KindBool && other.k == KindBool:
		return cmpInt64(p.i, other.i), nil
	case p.k == KindString && other.k == KindString:
		return coll.Compare(p.GetString(), other.GetString()), nil
	}
	return 0, errors.Errorf("cannot compare %s with %s", p.k, other.k)
}

// String implements fmt.Stringer interface, for logging and diagnostics only.
func (p Primitive) String() string {
	switch p.k {
	case KindInt:
		return strconv.FormatInt(p.i, 10)
	case KindFloat:
		return strconv.FormatFloat(p.GetFloat64(), 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(p.GetBool())
	case KindString:
		return fmt.Sprintf("%q", p.GetString())
	}
	return "<unknown>"
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
