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

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"

	"github.com/flexstats/jsonflex/types"
)

func TestEncodeKeyPath(t *testing.T) {
	tests := []struct {
		path        string
		kind        types.PrimitiveKind
		typeCertain bool
		want        string
	}{
		{"$.a", types.KindInt, true, "a_num"},
		{"$.a", types.KindFloat, true, "a_num"},
		{"$.a", types.KindBool, true, "a_bool"},
		{"$.a", types.KindString, true, "a_str"},
		{"$.a", types.KindString, false, "a"},
		{"$.a", types.KindUnknown, true, "a"},
		{"$.a.b", types.KindInt, true, "a_obj.b_num"},
		{"$.a[3]", types.KindInt, true, "a_arr.3_num"},
		{"$[0]", types.KindInt, true, "0_num"},
		{"$[0].a", types.KindString, true, "0_obj.a_str"},
		{"$.a[0][1]", types.KindInt, true, "a_arr.0_arr.1_num"},
		{"$.docs[0].datetime", types.KindFloat, true, "docs_arr.0_obj.datetime_num"},
		{
			"$.docs[0].history.edits[5].datetime", types.KindString, true,
			"docs_arr.0_obj.history_obj.edits_arr.5_obj.datetime_str",
		},
		{
			"$.docs[0].history.edits[5].datetime", types.KindFloat, true,
			"docs_arr.0_obj.history_obj.edits_arr.5_obj.datetime_num",
		},
	}
	for _, tt := range tests {
		got, err := EncodeKeyPath([]byte(tt.path), tt.kind, tt.typeCertain)
		require.NoErrorf(t, err, "path %s", tt.path)
		require.Equalf(t, tt.want, got, "path %s", tt.path)
	}
}

func TestEncodeKeyPathErrors(t *testing.T) {
	paths := []string{
		"",             // empty
		"$",            // too short
		".a",           // no leading $
		"a.b",          // no leading $
		"$.",           // no terminal step
		"$..a",         // empty member
		"$.a..b",       // empty member
		"$.a[",         // unclosed bracket
		"$.a[12",       // unclosed bracket
		"$.a[]",        // empty index
		"$.a[x]",       // non-numeric index
		"$.a[*]",       // wildcard index
		"$.*",          // wildcard member
		"$**.a",        // recursive descent
		"$.a]",         // unmatched bracket
		"$.\"a b\"",    // quoted member
		"$.a[0]x",      // trailing garbage after index
		"$.a.[0]",      // separator before bracket
	}
	for _, path := range paths {
		_, err := EncodeKeyPath([]byte(path), types.KindInt, true)
		require.Errorf(t, err, "path %q", path)
		require.Truef(t, errors.ErrorEqual(errors.Cause(err), ErrUnsupportedPath), "path %q: %v", path, err)
	}
}

func TestKeyPathTypeSuffix(t *testing.T) {
	require.Equal(t, suffixNum, keyPathTypeSuffix("docs_arr.0_obj.datetime_num"))
	require.Equal(t, suffixBool, keyPathTypeSuffix("flag_bool"))
	require.Equal(t, suffixStr, keyPathTypeSuffix("a_obj.b_str"))
	require.Equal(t, "", keyPathTypeSuffix("a_obj.b"))
	require.Equal(t, "", keyPathTypeSuffix("a_obj.b_arr"))
}

func TestSuffixMatchesKind(t *testing.T) {
	require.True(t, suffixMatchesKind(suffixNum, types.KindInt))
	require.True(t, suffixMatchesKind(suffixNum, types.KindFloat))
	require.False(t, suffixMatchesKind(suffixNum, types.KindString))
	require.True(t, suffixMatchesKind(suffixBool, types.KindBool))
	require.False(t, suffixMatchesKind(suffixBool, types.KindInt))
	require.True(t, suffixMatchesKind(suffixStr, types.KindString))
	require.True(t, suffixMatchesKind("", types.KindBool))
}
