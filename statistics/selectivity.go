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
	"go.uber.org/zap"

	"github.com/flexstats/jsonflex/config"
	"github.com/flexstats/jsonflex/expression"
	"github.com/flexstats/jsonflex/types"
	"github.com/flexstats/jsonflex/util/logutil"
)

// Operator is the comparison operator of a predicate.
type Operator int

// Operators the selectivity engine understands. LE collapses to the LT
// estimator and GE to the GT estimator.
const (
	OpEQ Operator = iota
	OpNEQ
	OpLT
	OpLE
	OpGT
	OpGE
	OpBetween
	OpNotBetween
	OpIn
	OpNotIn
	OpIsNull
	OpIsNotNull
)

// String implements fmt.Stringer interface.
func (op Operator) String() string {
	switch op {
	case OpEQ:
		return "="
	case OpNEQ:
		return "!="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpBetween:
		return "between"
	case OpNotBetween:
		return "not between"
	case OpIn:
		return "in"
	case OpNotIn:
		return "not in"
	case OpIsNull:
		return "is null"
	case OpIsNotNull:
		return "is not null"
	}
	return "unknown"
}

// funcShape is the recognized JSON extraction context of a predicate.
type funcShape struct {
	pathExpr []byte
	// typeCertain is set when the function strips JSON quoting, guaranteeing
	// the leaf type matches the comparand.
	typeCertain bool
	// isJSONValue changes the IS NULL semantics: JSON_VALUE returns SQL NULL
	// both for a missing path and for a JSON null, while a bare extraction
	// returns SQL NULL for a missing path only.
	isJSONValue bool
}

// extractFuncShape recognizes the supported function contexts:
// JSON_UNQUOTE(JSON_EXTRACT(col, path)), JSON_EXTRACT(col, path) and
// JSON_VALUE(col, path).
func extractFuncShape(fn *expression.ScalarFunction) (funcShape, error) {
	if fn == nil {
		return funcShape{}, errors.Trace(ErrUnsupportedFunction)
	}
	var shape funcShape
	inner := fn
	switch fn.FuncName {
	case expression.JSONUnquote:
		if len(fn.Args) != 1 {
			return funcShape{}, errors.Annotatef(ErrUnsupportedFunction,
				"%s expects 1 argument, got %d", fn.FuncName, len(fn.Args))
		}
		innerFn, ok := fn.Args[0].(*expression.ScalarFunction)
		if !ok {
			return funcShape{}, errors.Annotatef(ErrUnsupportedFunction,
				"%s over a non-extraction argument", fn.FuncName)
		}
		if innerFn.FuncName != expression.JSONExtract && innerFn.FuncName != expression.JSONValue {
			return funcShape{}, errors.Annotatef(ErrUnsupportedFunction, "%s(%s())", fn.FuncName, innerFn.FuncName)
		}
		shape.typeCertain = true
		shape.isJSONValue = innerFn.FuncName == expression.JSONValue
		inner = innerFn
	case expression.JSONExtract:
		shape.typeCertain = false
	case expression.JSONValue:
		shape.typeCertain = true
		shape.isJSONValue = true
	default:
		return funcShape{}, errors.Annotatef(ErrUnsupportedFunction, "%s", fn.FuncName)
	}

	if len(inner.Args) != 2 {
		return funcShape{}, errors.Annotatef(ErrUnsupportedFunction,
			"%s expects 2 arguments, got %d", inner.FuncName, len(inner.Args))
	}
	pathConst, ok := inner.Args[1].(*expression.Constant)
	if !ok || pathConst.Value.Kind() != types.KindString {
		return funcShape{}, errors.Annotatef(ErrUnsupportedPath,
			"non-constant path argument of %s", inner.FuncName)
	}
	shape.pathExpr = pathConst.Value.GetBytes()
	return shape, nil
}

// Selectivity estimates the fraction of rows satisfying the predicate
// "fn(col, path) op comparands". The result is clamped to [0, 1]. On error
// the caller is expected to fall back to its own static heuristic.
func (hg *JSONFlex) Selectivity(fn *expression.ScalarFunction, op Operator, comparands []expression.Expression) (float64, error) {
	shape, err := extractFuncShape(fn)
	if err != nil {
		return 0, errors.Trace(err)
	}

	var sel float64
	switch op {
	case OpIsNull, OpIsNotNull:
		sel, err = hg.nullSelectivity(shape, op)
	case OpEQ, OpNEQ, OpLT, OpLE, OpGT, OpGE:
		if len(comparands) != 1 {
			return 0, errors.Annotatef(ErrUnsupportedFunction,
				"operator %s expects 1 comparand, got %d", op, len(comparands))
		}
		sel, err = hg.compareSelectivity(shape, op, comparands[0])
	case OpBetween, OpNotBetween:
		if len(comparands) != 2 {
			return 0, errors.Annotatef(ErrUnsupportedFunction,
				"operator %s expects 2 comparands, got %d", op, len(comparands))
		}
		sel, err = hg.betweenSelectivity(shape, op, comparands[0], comparands[1])
	case OpIn, OpNotIn:
		if len(comparands) == 0 {
			return 0, errors.Annotatef(ErrUnsupportedFunction, "operator %s expects comparands", op)
		}
		sel, err = hg.inSelectivity(shape, op, comparands)
	default:
		return 0, errors.Annotatef(ErrUnsupportedFunction, "operator %s", op)
	}
	if err != nil {
		return 0, errors.Trace(err)
	}
	return math.Min(math.Max(sel, 0), 1), nil
}

// lookupComparand routes one comparand to the typed or untyped lookup. The
// typed path requires a constant comparand in a type-certain context; found
// is false when no bucket matched.
func (hg *JSONFlex) lookupComparand(shape funcShape, cmp expression.Expression) (r lookupResult, found bool, err error) {
	c, isConst := cmp.(*expression.Constant)
	if isConst && shape.typeCertain && c.Value.Kind() != types.KindUnknown {
		path, err := EncodeKeyPath(shape.pathExpr, c.Value.Kind(), true)
		if err != nil {
			return lookupResult{}, false, errors.Trace(err)
		}
		b := hg.findBucket(path)
		if b == nil {
			logutil.BgLogger().Debug("no bucket for key path", zap.String("keyPath", path))
			return lookupResult{}, false, nil
		}
		r, err = hg.lookupTyped(b, c.Value)
		if err != nil {
			return lookupResult{}, false, errors.Trace(err)
		}
		return r, true, nil
	}

	path, err := EncodeKeyPath(shape.pathExpr, types.KindUnknown, false)
	if err != nil {
		return lookupResult{}, false, errors.Trace(err)
	}
	r, found = hg.lookupUntyped(path)
	return r, found, nil
}

func (hg *JSONFlex) compareSelectivity(shape funcShape, op Operator, cmp expression.Expression) (float64, error) {
	conf := config.GetGlobalConfig().Selectivity
	r, found, err := hg.lookupComparand(shape, cmp)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if !found {
		if op == OpEQ || op == OpNEQ {
			return hg.MinFrequency * conf.UnknownEqualFactor, nil
		}
		return hg.MinFrequency * conf.UnknownRangeFactor, nil
	}
	switch op {
	case OpEQ:
		return r.eq, nil
	case OpNEQ:
		return math.Max(r.base-r.eq, 0), nil
	case OpLT, OpLE:
		return r.lt, nil
	default:
		return r.gt, nil
	}
}

func (hg *JSONFlex) betweenSelectivity(shape funcShape, op Operator, low, high expression.Expression) (float64, error) {
	lowConst, lowOK := low.(*expression.Constant)
	highConst, highOK := high.(*expression.Constant)
	if lowOK && highOK {
		if cmp, err := lowConst.Value.Compare(highConst.Value, hg.collator); err == nil && cmp > 0 {
			return 0, errors.Errorf("BETWEEN bounds out of order: %s > %s", lowConst.Value, highConst.Value)
		}
	}

	rLow, foundLow, err := hg.lookupComparand(shape, low)
	if err != nil {
		return 0, errors.Trace(err)
	}
	rHigh, foundHigh, err := hg.lookupComparand(shape, high)
	if err != nil {
		return 0, errors.Trace(err)
	}
	conf := config.GetGlobalConfig().Selectivity
	if !foundLow && !foundHigh {
		return hg.MinFrequency * conf.UnknownRangeFactor, nil
	}

	base := math.Max(rLow.base, rHigh.base)
	between := 1 - rLow.lt - rHigh.gt
	between = math.Min(math.Max(between, 0), base)
	if op == OpBetween {
		return between, nil
	}
	return math.Max(base-between, 0), nil
}

func (hg *JSONFlex) inSelectivity(shape funcShape, op Operator, comparands []expression.Expression) (float64, error) {
	conf := config.GetGlobalConfig().Selectivity
	var eqSum, maxBase float64
	anyFound := false
	for _, cmp := range comparands {
		r, found, err := hg.lookupComparand(shape, cmp)
		if err != nil {
			return 0, errors.Trace(err)
		}
		if !found {
			continue
		}
		anyFound = true
		eqSum += r.eq
		maxBase = math.Max(maxBase, r.base)
	}
	if !anyFound {
		return hg.MinFrequency * conf.UnknownEqualFactor, nil
	}
	in := math.Min(maxBase, eqSum)
	if op == OpIn {
		return in, nil
	}
	return math.Max(maxBase-in, 0), nil
}

func (hg *JSONFlex) nullSelectivity(shape funcShape, op Operator) (float64, error) {
	path, err := EncodeKeyPath(shape.pathExpr, types.KindUnknown, false)
	if err != nil {
		return 0, errors.Trace(err)
	}
	conf := config.GetGlobalConfig().Selectivity
	freq, notNull, found := hg.pathStats(path)
	if !found {
		if op == OpIsNull {
			return hg.MinFrequency * conf.NullFactor, nil
		}
		return hg.MinFrequency * conf.NotNullFactor, nil
	}
	if shape.isJSONValue {
		// JSON_VALUE is SQL NULL when the path is missing or resolves to a
		// JSON null.
		if op == OpIsNull {
			return 1 - notNull, nil
		}
		return notNull, nil
	}
	// A bare extraction is SQL NULL only when the path is missing.
	if op == OpIsNull {
		return 1 - freq, nil
	}
	return freq, nil
}

// NDV estimates the number of distinct values reachable through the function
// context, summed over the type-suffixed siblings of the path. The second
// return value is false when no bucket along the path records an NDV.
func (hg *JSONFlex) NDV(fn *expression.ScalarFunction) (int64, bool) {
	shape, err := extractFuncShape(fn)
	if err != nil {
		return 0, false
	}
	path, err := EncodeKeyPath(shape.pathExpr, types.KindUnknown, false)
	if err != nil {
		return 0, false
	}
	var sum int64
	found := false
	for _, sfx := range []string{suffixNum, suffixBool, suffixStr} {
		if b := hg.findBucket(path + sfx); b != nil && b.NDV != nil {
			sum += *b.NDV
			found = true
		}
	}
	return sum, found
}
