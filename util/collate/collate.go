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
	"strings"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Collator provides functionality for comparing strings for a given collation order.
type Collator interface {
	// Compare returns an integer comparing the two strings. The result will be 0 if a == b,
	// -1 if a < b, and +1 if a > b.
	Compare(a, b string) int
	// Key returns the collation key for str, such that bytes.Compare on two keys
	// agrees with Compare on the original strings.
	Key(str string) []byte
}

const (
	// CollationBin is the collation id of binary.
	CollationBin = 63
	// CollationUTF8MB4Bin is the collation id of utf8mb4_bin.
	CollationUTF8MB4Bin = 46
	// CollationUTF8MB4GeneralCI is the collation id of utf8mb4_general_ci.
	CollationUTF8MB4GeneralCI = 45
	// CollationUTF8Bin is the collation id of utf8_bin.
	CollationUTF8Bin = 83
	// CollationUTF8GeneralCI is the collation id of utf8_general_ci.
	CollationUTF8GeneralCI = 33
)

var (
	collatorMap   map[string]Collator
	collatorIDMap map[int]Collator
	idNameMap     map[int]string
	nameIDMap     map[string]int
)

func init() {
	binColl := &binCollator{}
	binPadding := &binPaddingCollator{}
	generalCI := &generalCICollator{}

	collatorMap = map[string]Collator{
		"binary":              binColl,
		"utf8mb4_bin":         binPadding,
		"utf8_bin":            binPadding,
		"utf8mb4_general_ci":  generalCI,
		"utf8_general_ci":     generalCI,
		"utf8mb4_unicode_ci":  generalCI,
		"utf8mb4_0900_ai_ci":  generalCI,
		"utf8mb4_0900_bin":    binColl,
		"latin1_bin":          binPadding,
		"latin1_swedish_ci":   generalCI,
		"ascii_bin":           binPadding,
		"ascii_general_ci":    generalCI,
	}

	idNameMap = map[int]string{
		CollationBin:              "binary",
		CollationUTF8MB4Bin:       "utf8mb4_bin",
		CollationUTF8MB4GeneralCI: "utf8mb4_general_ci",
		CollationUTF8Bin:          "utf8_bin",
		CollationUTF8GeneralCI:    "utf8_general_ci",
		224:                       "utf8mb4_unicode_ci",
		255:                       "utf8mb4_0900_ai_ci",
		309:                       "utf8mb4_0900_bin",
		47:                        "latin1_bin",
		8:                         "latin1_swedish_ci",
		65:                        "ascii_bin",
		11:                        "ascii_general_ci",
	}

	collatorIDMap = make(map[int]Collator, len(idNameMap))
	nameIDMap = make(map[string]int, len(idNameMap))
	for id, name := range idNameMap {
		collatorIDMap[id] = collatorMap[name]
		nameIDMap[name] = id
	}
}

// GetCollator gets the collator according to the collation name. Unknown names
// fall back to the binary collator.
func GetCollator(collation string) Collator {
	coll, ok := collatorMap[strings.ToLower(collation)]
	if !ok {
		log.Warn("unknown collation, use binary collator instead", zap.String("collation", collation))
		return collatorMap["binary"]
	}
	return coll
}

// GetCollatorByID gets the collator according to the collation id. Unknown ids
// fall back to the binary collator.
func GetCollatorByID(id int) Collator {
	coll, ok := collatorIDMap[id]
	if !ok {
		log.Warn("unknown collation id, use binary collator instead", zap.Int("id", id))
		return collatorMap["binary"]
	}
	return coll
}

// CollationID2Name returns the collation name by the given id.
// It returns "binary" if the id is not found.
func CollationID2Name(id int) string {
	name, ok := idNameMap[id]
	if !ok {
		return "binary"
	}
	return name
}

// CollationName2ID returns the collation id by the given name.
// It returns CollationBin if the name is not found.
func CollationName2ID(name string) int {
	if id, ok := nameIDMap[strings.ToLower(name)]; ok {
		return id
	}
	return CollationBin
}

func sign(i int) int {
	if i < 0 {
		return -1
	} else if i > 0 {
		return 1
	}
	return 0
}

// truncateTailingSpace removes trailing spaces, which do not participate in
// ordering for PAD SPACE collations.
func truncateTailingSpace(str string) string {
	byteLen := len(str)
	i := byteLen - 1
	for ; i >= 0; i-- {
		if str[i] != ' ' {
			break
		}
	}
	return str[:i+1]
}
