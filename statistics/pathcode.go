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
	"strings"

	"github.com/pingcap/errors"

	"github.com/flexstats/jsonflex/types"
)

// EncodeKeyPath rewrites a JSON path expression into the canonical key path
// the histogram is keyed by. Every step except the last is emitted with a
// structural marker telling how the next step accesses it ("_obj" for an
// object member, "_arr" for an array index); the terminal step carries a
// value type marker when the function context guarantees the leaf type
// ("_num" for Int and Float, "_bool", "_str").
//
// The encoder is a single left-to-right scan. It deliberately rejects
// everything beyond plain member and index steps: wildcards, recursive
// descent, quoted members and range filters are not statable as a single key
// path and fail with ErrUnsupportedPath.
func EncodeKeyPath(pathExpr []byte, cmpKind types.PrimitiveKind, typeCertain bool) (string, error) {
	if len(pathExpr) < 2 || pathExpr[0] != '$' {
		return "", errors.Annotatef(ErrUnsupportedPath, "path %q", pathExpr)
	}

	var sb strings.Builder
	sb.Grow(len(pathExpr) + 8)
	var cur []byte
	emit := func(marker string) {
		sb.Write(cur)
		sb.WriteString(marker)
		sb.WriteString(keySep)
		cur = cur[:0]
	}

	i := 1
	afterIndex := false
	for i < len(pathExpr) {
		c := pathExpr[i]
		switch c {
		case '.':
			if len(cur) > 0 {
				emit(suffixObj)
			} else if i != 1 {
				return "", errors.Annotatef(ErrUnsupportedPath, "empty member in path %q", pathExpr)
			}
			afterIndex = false
			i++
		case '[':
			if len(cur) > 0 {
				emit(suffixArr)
			} else if i != 1 {
				return "", errors.Annotatef(ErrUnsupportedPath, "misplaced '[' in path %q", pathExpr)
			}
			j := i + 1
			for j < len(pathExpr) && pathExpr[j] != ']' {
				j++
			}
			if j == len(pathExpr) {
				return "", errors.Annotatef(ErrUnsupportedPath, "unclosed '[' in path %q", pathExpr)
			}
			idx := pathExpr[i+1 : j]
			if len(idx) == 0 {
				return "", errors.Annotatef(ErrUnsupportedPath, "empty index in path %q", pathExpr)
			}
			for _, d := range idx {
				if d < '0' || d > '9' {
					return "", errors.Annotatef(ErrUnsupportedPath, "non-numeric index in path %q", pathExpr)
				}
			}
			cur = append(cur, idx...)
			afterIndex = true
			i = j + 1
		case ']':
			return "", errors.Annotatef(ErrUnsupportedPath, "unmatched ']' in path %q", pathExpr)
		case '*', '"', '\'', ' ':
			return "", errors.Annotatef(ErrUnsupportedPath, "unsupported step syntax in path %q", pathExpr)
		default:
			if afterIndex {
				return "", errors.Annotatef(ErrUnsupportedPath, "malformed step after index in path %q", pathExpr)
			}
			cur = append(cur, c)
			i++
		}
	}
	if len(cur) == 0 {
		return "", errors.Annotatef(ErrUnsupportedPath, "path %q has no terminal step", pathExpr)
	}

	sb.Write(cur)
	if typeCertain {
		switch cmpKind {
		case types.KindInt, types.KindFloat:
			sb.WriteString(suffixNum)
		case types.KindBool:
			sb.WriteString(suffixBool)
		case types.KindString:
			sb.WriteString(suffixStr)
		}
	}
	return sb.String(), nil
}

// keyPathTypeSuffix returns the value type marker of a canonical key path's
// terminal step ("_num", "_bool" or "_str"), or "" when it carries none.
func keyPathTypeSuffix(path string) string {
	term := path
	if i := strings.LastIndex(path, keySep); i >= 0 {
		term = path[i+len(keySep):]
	}
	for _, sfx := range []string{suffixNum, suffixBool, suffixStr} {
		if strings.HasSuffix(term, sfx) {
			return sfx
		}
	}
	return ""
}

// suffixMatchesKind reports whether a value of the given kind may live in a
// bucket whose key path carries the given type marker. An empty marker
// accepts every kind.
func suffixMatchesKind(sfx string, kind types.PrimitiveKind) bool {
	switch sfx {
	case suffixNum:
		return kind.IsNumeric()
	case suffixBool:
		return kind == types.KindBool
	case suffixStr:
		return kind == types.KindString
	}
	return true
}
