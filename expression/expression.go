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

package expression

import (
	"fmt"
	"strings"

	"github.com/flexstats/jsonflex/types"
)

// Function names of the JSON extraction functions recognized by the
// selectivity engine. They mirror the lower-case function names produced by
// the SQL parser.
const (
	JSONExtract = "json_extract"
	JSONUnquote = "json_unquote"
	JSONValue   = "json_value"
)

// Expression is the interface of the optimizer-level expression nodes handed
// to the histogram. The SQL parser and the full expression framework live in
// the host engine; only the small node set a JSON predicate can contain is
// modeled here.
type Expression interface {
	fmt.Stringer
	exprNode()
}

// Column stands for a column reference.
type Column struct {
	ID   int64
	Name string
}

func (*Column) exprNode() {}

// String implements fmt.Stringer interface.
func (col *Column) String() string {
	return col.Name
}

// Constant stands for a literal constant.
type Constant struct {
	Value types.Primitive
}

func (*Constant) exprNode() {}

// String implements fmt.Stringer interface.
func (c *Constant) String() string {
	return c.Value.String()
}

// NewConstant wraps a Primitive into a Constant node.
func NewConstant(v types.Primitive) *Constant {
	return &Constant{Value: v}
}

// ScalarFunction is a function call with a name and arguments.
type ScalarFunction struct {
	FuncName string
	Args     []Expression
}

func (*ScalarFunction) exprNode() {}

// String implements fmt.Stringer interface.
func (sf *ScalarFunction) String() string {
	args := make([]string, 0, len(sf.Args))
	for _, arg := range sf.Args {
		args = append(args, arg.String())
	}
	return fmt.Sprintf("%s(%s)", sf.FuncName, strings.Join(args, ", "))
}

// NewFunction builds a ScalarFunction node.
func NewFunction(name string, args ...Expression) *ScalarFunction {
	return &ScalarFunction{FuncName: strings.ToLower(name), Args: args}
}
