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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flexstats/jsonflex/util/collate"
)

func TestPrimitiveAccessors(t *testing.T) {
	p := NewIntPrimitive(42)
	require.Equal(t, KindInt, p.Kind())
	require.Equal(t, int64(42), p.GetInt64())
	require.Equal(t, 42.0, p.ToFloat64())

	p = NewFloatPrimitive(3.25)
	require.Equal(t, KindFloat, p.Kind())
	require.Equal(t, 3.25, p.GetFloat64())
	require.False(t, p.IsIntegral())

	p = NewFloatPrimitive(4.0)
	require.True(t, p.IsIntegral())

	p = NewBoolPrimitive(true)
	require.Equal(t, KindBool, p.Kind())
	require.True(t, p.GetBool())

	p = NewStringPrimitive("abc", "utf8mb4_bin")
	require.Equal(t, KindString, p.Kind())
	require.Equal(t, "abc", p.GetString())
	require.Equal(t, "utf8mb4_bin", p.Collation())
}

func TestPrimitiveCompare(t *testing.T) {
	bin := collate.GetCollator("binary")
	ci := collate.GetCollator("utf8mb4_general_ci")

	cmp, err := NewIntPrimitive(1).Compare(NewIntPrimitive(2), bin)
	require.NoError(t, err)
	require.Equal(t, -1, cmp)

	cmp, err = NewIntPrimitive(2).Compare(NewFloatPrimitive(1.5), bin)
	require.NoError(t, err)
	require.Equal(t, 1, cmp)

	cmp, err = NewFloatPrimitive(2.0).Compare(NewIntPrimitive(2), bin)
	require.NoError(t, err)
	require.Equal(t, 0, cmp)

	cmp, err = NewBoolPrimitive(false).Compare(NewBoolPrimitive(true), bin)
	require.NoError(t, err)
	require.Equal(t, -1, cmp)

	cmp, err = NewStringPrimitive("ABC", "utf8mb4_general_ci").Compare(NewStringPrimitive("abc", "utf8mb4_general_ci"), ci)
	require.NoError(t, err)
	require.Equal(t, 0, cmp)

	_, err = NewIntPrimitive(1).Compare(NewStringPrimitive("1", "binary"), bin)
	require.Error(t, err)
	_, err = NewBoolPrimitive(true).Compare(NewIntPrimitive(1), bin)
	require.Error(t, err)
}

func TestPrimitiveClone(t *testing.T) {
	p := NewStringPrimitive("hello", "binary")
	c := p.Clone()
	require.Equal(t, p.GetString(), c.GetString())
	c.GetBytes()[0] = 'H'
	require.Equal(t, "hello", p.GetString())
	require.Equal(t, "Hello", c.GetString())
}

func TestPrimitiveString(t *testing.T) {
	require.Equal(t, "42", NewIntPrimitive(42).String())
	require.Equal(t, "1.5", NewFloatPrimitive(1.5).String())
	require.Equal(t, "true", NewBoolPrimitive(true).String())
	require.Equal(t, `"x"`, NewStringPrimitive("x", "binary").String())
	require.Equal(t, "<unknown>", Primitive{}.String())
}
