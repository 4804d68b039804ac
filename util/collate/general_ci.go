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

package collate

import (
	"unicode"
	"unicode/utf8"

	"github.com/flexstats/jsonflex/util/hack"
)

type generalCICollator struct {
}

// convertRuneGeneralCI maps a rune to its case-insensitive sort weight. Runes outside
// the BMP all share the replacement weight, matching the general_ci behavior
// of treating supplementary characters as equal.
func convertRuneGeneralCI(r rune) uint16 {
	if r > 0xFFFF {
		return 0xFFFD
	}
	return uint16(unicode.ToUpper(r))
}

// Compare implements Collator interface.
func (*generalCICollator) Compare(a, b string) int {
	a = truncateTailingSpace(a)
	b = truncateTailingSpace(b)
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		r1, r1Len := utf8.DecodeRune(hack.Slice(a[ai:]))
		r2, r2Len := utf8.DecodeRune(hack.Slice(b[bi:]))
		ai += r1Len
		bi += r2Len
		cmp := int(convertRuneGeneralCI(r1)) - int(convertRuneGeneralCI(r2))
		if cmp != 0 {
			return sign(cmp)
		}
	}
	return sign((len(a) - ai) - (len(b) - bi))
}

// Key implements Collator interface.
func (*generalCICollator) Key(str string) []byte {
	str = truncateTailingSpace(str)
	buf := make([]byte, 0, len(str)*2)
	i := 0
	for i < len(str) {
		r, rLen := utf8.DecodeRune(hack.Slice(str[i:]))
		i += rLen
		u16 := convertRuneGeneralCI(r)
		buf = append(buf, byte(u16>>8), byte(u16))
	}
	return buf
}
