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

// jsonflex-explain loads a serialized json-flex histogram and prints the
// selectivity estimate of a predicate, the way the optimizer would consult it.
//
// Usage:
//
//	jsonflex-explain -histogram stats.json -func json_unquote -path '$.user.age' -op lt -value 30
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/flexstats/jsonflex/config"
	"github.com/flexstats/jsonflex/expression"
	"github.com/flexstats/jsonflex/statistics"
	"github.com/flexstats/jsonflex/types"
	"github.com/flexstats/jsonflex/util/logutil"
)

var (
	histogramFile = flag.String("histogram", "", "path of the serialized histogram JSON")
	configFile    = flag.String("config", "", "optional TOML config file with selectivity tunables")
	funcName      = flag.String("func", expression.JSONUnquote, "extraction function: json_extract, json_unquote or json_value")
	pathExpr      = flag.String("path", "", "JSON path expression, e.g. '$.user.age'")
	opName        = flag.String("op", "eq", "operator: eq, neq, lt, le, gt, ge, between, not-between, in, not-in, is-null, is-not-null")
	values        = flag.String("value", "", "comma-separated comparand list; int, float, true/false or quoted string")
)

var operators = map[string]statistics.Operator{
	"eq":          statistics.OpEQ,
	"neq":         statistics.OpNEQ,
	"lt":          statistics.OpLT,
	"le":          statistics.OpLE,
	"gt":          statistics.OpGT,
	"ge":          statistics.OpGE,
	"between":     statistics.OpBetween,
	"not-between": statistics.OpNotBetween,
	"in":          statistics.OpIn,
	"not-in":      statistics.OpNotIn,
	"is-null":     statistics.OpIsNull,
	"is-not-null": statistics.OpIsNotNull,
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, errors.ErrorStack(err))
		os.Exit(1)
	}
}

func run() error {
	conf := config.GetGlobalConfig()
	if *configFile != "" {
		conf = config.NewConfig()
		if err := conf.Load(*configFile); err != nil {
			return errors.Trace(err)
		}
		config.StoreGlobalConfig(conf)
	}
	if err := logutil.InitLogger(&conf.Log); err != nil {
		return errors.Trace(err)
	}

	if *histogramFile == "" || *pathExpr == "" {
		flag.Usage()
		return errors.New("-histogram and -path are required")
	}
	op, ok := operators[strings.ToLower(*opName)]
	if !ok {
		return errors.Errorf("unknown operator %q", *opName)
	}

	data, err := os.ReadFile(*histogramFile)
	if err != nil {
		return errors.Trace(err)
	}
	hg := statistics.Create("", "", *histogramFile)
	ectx := &statistics.ErrorContext{}
	if err := hg.FromJSON(data, ectx); err != nil {
		for _, report := range ectx.Reports() {
			logutil.BgLogger().Error("histogram validation", zap.String("report", report))
		}
		return errors.Trace(err)
	}

	fn := buildFunc(*funcName, *pathExpr, hg.CollationName())
	comparands, err := parseComparands(*values, op, hg.CollationName())
	if err != nil {
		return errors.Trace(err)
	}

	sel, err := hg.Selectivity(fn, op, comparands)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Printf("selectivity(%s %s %s) = %.6f\n", fn, op, *values, sel)
	if ndv, ok := hg.NDV(fn); ok {
		fmt.Printf("ndv = %d\n", ndv)
	}
	return nil
}

func buildFunc(name, path, collation string) *expression.ScalarFunction {
	col := &expression.Column{Name: "j"}
	pathArg := expression.NewConstant(types.NewStringPrimitive(path, collation))
	if strings.ToLower(name) == expression.JSONUnquote {
		return expression.NewFunction(expression.JSONUnquote,
			expression.NewFunction(expression.JSONExtract, col, pathArg))
	}
	return expression.NewFunction(name, col, pathArg)
}

func parseComparands(list string, op statistics.Operator, collation string) ([]expression.Expression, error) {
	if op == statistics.OpIsNull || op == statistics.OpIsNotNull {
		return nil, nil
	}
	if list == "" {
		return nil, errors.New("-value is required for this operator")
	}
	parts := strings.Split(list, ",")
	out := make([]expression.Expression, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		out = append(out, expression.NewConstant(parseValue(part, collation)))
	}
	return out, nil
}

func parseValue(s, collation string) types.Primitive {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return types.NewStringPrimitive(s[1:len(s)-1], collation)
	}
	if s == "true" || s == "false" {
		return types.NewBoolPrimitive(s == "true")
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return types.NewIntPrimitive(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.NewFloatPrimitive(f)
	}
	return types.NewStringPrimitive(s, collation)
}
