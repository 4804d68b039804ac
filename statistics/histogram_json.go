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
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/flexstats/jsonflex/types"
	"github.com/flexstats/jsonflex/util/hack"
	"github.com/flexstats/jsonflex/util/logutil"
)

// frequencies within this tolerance of each other are considered equal.
const freqTolerance = 1e-6

type histogramJSON struct {
	HistogramType       string  `json:"histogram-type"`
	DataType            string  `json:"data-type"`
	NullValues          float64 `json:"null-values"`
	LastUpdated         string  `json:"last-updated"`
	NumBucketsSpecified int64   `json:"number-of-buckets-specified"`
	CollationID         int     `json:"collation-id"`
	SamplingRate        float64 `json:"sampling-rate"`
	Buckets             []any   `json:"buckets"`
}

type subHistogramJSON struct {
	Type          string   `json:"type"`
	Buckets       []any    `json:"buckets"`
	RestFrequency *float64 `json:"rest_frequency,omitempty"`
}

// ToJSON serializes the histogram. The bucket array preserves the order of
// hg.Buckets, so a FromJSON of the output reproduces the histogram
// structurally.
func (hg *JSONFlex) ToJSON() ([]byte, error) {
	out := histogramJSON{
		HistogramType:       HistogramTypeJSONFlex,
		DataType:            hg.DataType,
		NullValues:          hg.NullValues,
		LastUpdated:         hg.LastUpdated,
		NumBucketsSpecified: hg.NumBucketsSpecified,
		CollationID:         hg.CollationID,
		SamplingRate:        hg.SamplingRate,
		Buckets:             make([]any, 0, len(hg.Buckets)),
	}
	for i := range hg.Buckets {
		jb, err := bucketToJSON(&hg.Buckets[i])
		if err != nil {
			return nil, errors.Annotatef(err, "bucket %d", i)
		}
		out.Buckets = append(out.Buckets, jb)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

func bucketToJSON(b *KeyPathBucket) ([]any, error) {
	arr := []any{
		base64.StdEncoding.EncodeToString(hack.Slice(b.KeyPath)),
		b.Frequency,
		b.NullValues,
	}
	if b.MinVal == nil {
		return arr, nil
	}
	minJSON, err := primitiveToJSON(*b.MinVal)
	if err != nil {
		return nil, err
	}
	maxJSON, err := primitiveToJSON(*b.MaxVal)
	if err != nil {
		return nil, err
	}
	arr = append(arr, minJSON, maxJSON)
	if b.NDV == nil {
		return arr, nil
	}
	arr = append(arr, *b.NDV)
	if b.Sub == nil {
		return arr, nil
	}
	sub := subHistogramJSON{
		Type:          b.Sub.Kind.String(),
		Buckets:       make([]any, 0, len(b.Sub.Buckets)),
		RestFrequency: b.Sub.RestFrequency,
	}
	for i := range b.Sub.Buckets {
		e := &b.Sub.Buckets[i]
		val, err := primitiveToJSON(e.Value)
		if err != nil {
			return nil, err
		}
		if b.Sub.Kind == SubEquiHeight {
			sub.Buckets = append(sub.Buckets, []any{val, e.Frequency, e.NDV})
		} else {
			sub.Buckets = append(sub.Buckets, []any{val, e.Frequency})
		}
	}
	return append(arr, sub), nil
}

// primitiveToJSON renders a Primitive as its serialized JSON form: numbers
// for Int and Float, booleans for Bool, base64 opaque strings for String.
// Floats always render with a fractional or exponent part so the reader can
// tell them apart from ints.
func primitiveToJSON(p types.Primitive) (any, error) {
	switch p.Kind() {
	case types.KindInt:
		return p.GetInt64(), nil
	case types.KindFloat:
		s := strconv.FormatFloat(p.GetFloat64(), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return json.Number(s), nil
	case types.KindBool:
		return p.GetBool(), nil
	case types.KindString:
		return base64.StdEncoding.EncodeToString(p.GetBytes()), nil
	}
	return nil, errors.Annotatef(ErrWrongJSONType, "cannot serialize %s value", p.Kind())
}

// FromJSON populates the histogram from its serialized form. Validation
// failures are recorded in ectx (which may be nil) and returned; the
// histogram must not be used after a failed load.
func (hg *JSONFlex) FromJSON(data []byte, ectx *ErrorContext) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		ectx.ReportNode("histogram", err)
		return errors.Annotatef(ErrWrongJSONType, "histogram is not a JSON object: %v", err)
	}
	if err := hg.fromJSONObject(obj, ectx); err != nil {
		logutil.BgLogger().Warn("failed to load json-flex histogram",
			zap.String("column", hg.ColName), zap.Error(err))
		return errors.Trace(err)
	}
	return nil
}

func (hg *JSONFlex) fromJSONObject(obj map[string]any, ectx *ErrorContext) error {
	histType, err := attrString(obj, "histogram-type", ectx)
	if err != nil {
		return err
	}
	if histType != HistogramTypeJSONFlex {
		ectx.ReportNode("histogram-type", ErrWrongJSONType)
		return errors.Annotatef(ErrWrongJSONType, "histogram-type %q", histType)
	}

	hg.DataType, err = attrString(obj, "data-type", ectx)
	if err != nil {
		return err
	}
	if hg.DataType != "json" && hg.DataType != "string" {
		ectx.ReportNode("data-type", ErrWrongJSONType)
		return errors.Annotatef(ErrWrongJSONType, "data-type %q", hg.DataType)
	}

	hg.NullValues, err = attrFloat(obj, "null-values", ectx)
	if err != nil {
		return err
	}
	if hg.NullValues < 0 || hg.NullValues > 1 {
		ectx.ReportNode("null-values", ErrInvalidFrequency)
		return errors.Annotatef(ErrInvalidFrequency, "null-values %v", hg.NullValues)
	}

	hg.LastUpdated, err = attrString(obj, "last-updated", ectx)
	if err != nil {
		return err
	}
	hg.NumBucketsSpecified, err = attrInt(obj, "number-of-buckets-specified", ectx)
	if err != nil {
		return err
	}
	collationID, err := attrInt(obj, "collation-id", ectx)
	if err != nil {
		return err
	}
	hg.SetCollation(int(collationID))
	hg.SamplingRate, err = attrFloat(obj, "sampling-rate", ectx)
	if err != nil {
		return err
	}
	if hg.SamplingRate < 0 || hg.SamplingRate > 1 {
		ectx.ReportNode("sampling-rate", ErrInvalidFrequency)
		return errors.Annotatef(ErrInvalidFrequency, "sampling-rate %v", hg.SamplingRate)
	}

	rawBuckets, ok := obj["buckets"]
	if !ok {
		ectx.ReportMissingAttribute("buckets")
		return errors.Annotatef(ErrMissingAttribute, "buckets")
	}
	bucketArr, ok := rawBuckets.([]any)
	if !ok {
		ectx.ReportNode("buckets", ErrWrongJSONType)
		return errors.Annotatef(ErrWrongJSONType, "buckets is not an array")
	}

	hg.MinFrequency = 1.0
	hg.Buckets = make([]KeyPathBucket, 0, len(bucketArr))
	for i, raw := range bucketArr {
		node := fmt.Sprintf("buckets[%d]", i)
		b, err := hg.bucketFromJSON(raw, node, ectx)
		if err != nil {
			return err
		}
		hg.MinFrequency = math.Min(hg.MinFrequency, b.Frequency)
		hg.Buckets = append(hg.Buckets, b)
	}
	hg.buildIndex()
	return nil
}

func (hg *JSONFlex) bucketFromJSON(raw any, node string, ectx *ErrorContext) (KeyPathBucket, error) {
	var b KeyPathBucket
	arr, ok := raw.([]any)
	if !ok {
		ectx.ReportNode(node, ErrWrongJSONType)
		return b, errors.Annotatef(ErrWrongJSONType, "%s is not an array", node)
	}
	switch len(arr) {
	case 3, 5, 6, 7:
	default:
		ectx.ReportNode(node, ErrWrongBucketArity)
		return b, errors.Annotatef(ErrWrongBucketArity, "%s has %d members", node, len(arr))
	}

	keyPathB64, ok := arr[0].(string)
	if !ok {
		ectx.ReportNode(node, ErrWrongJSONType)
		return b, errors.Annotatef(ErrWrongJSONType, "%s key path is not a string", node)
	}
	keyPathRaw, err := base64.StdEncoding.DecodeString(keyPathB64)
	if err != nil {
		ectx.ReportNode(node, err)
		return b, errors.Annotatef(ErrWrongJSONType, "%s key path is not base64: %v", node, err)
	}
	b.KeyPath = string(keyPathRaw)

	b.Frequency, err = jsonFloat(arr[1], node+".frequency", ectx)
	if err != nil {
		return b, err
	}
	b.NullValues, err = jsonFloat(arr[2], node+".null_values", ectx)
	if err != nil {
		return b, err
	}
	if b.Frequency < 0 || b.Frequency > 1 || b.NullValues < 0 || b.NullValues > 1 ||
		b.Frequency+b.NullValues > 1+freqTolerance {
		ectx.ReportNode(node, ErrInvalidFrequency)
		return b, errors.Annotatef(ErrInvalidFrequency, "%s frequency %v, null_values %v",
			node, b.Frequency, b.NullValues)
	}

	sfx := keyPathTypeSuffix(b.KeyPath)
	b.ValueType = suffixKind(sfx)

	if len(arr) < 5 {
		return b, nil
	}
	minVal, err := hg.primitiveFromJSON(arr[3], node+".min_val", ectx)
	if err != nil {
		return b, err
	}
	maxVal, err := hg.primitiveFromJSON(arr[4], node+".max_val", ectx)
	if err != nil {
		return b, err
	}
	minVal, maxVal, err = unifyNumericKinds(minVal, maxVal)
	if err != nil {
		ectx.ReportNode(node, err)
		return b, errors.Annotatef(ErrTypeMismatch, "%s min/max: %v", node, err)
	}
	if !suffixMatchesKind(sfx, minVal.Kind()) {
		ectx.ReportNode(node, ErrTypeMismatch)
		return b, errors.Annotatef(ErrTypeMismatch, "%s %s value in a %q bucket", node, minVal.Kind(), sfx)
	}
	b.ValueType = minVal.Kind()
	if cmp, cerr := minVal.Compare(maxVal, hg.collator); cerr != nil || cmp > 0 {
		ectx.ReportNode(node, ErrTypeMismatch)
		return b, errors.Annotatef(ErrTypeMismatch, "%s min_val exceeds max_val", node)
	}
	b.MinVal = &minVal
	b.MaxVal = &maxVal

	if len(arr) < 6 {
		return b, nil
	}
	ndv, err := jsonInt(arr[5], node+".ndv", ectx)
	if err != nil {
		return b, err
	}
	if ndv < 1 {
		ectx.ReportNode(node, ErrWrongJSONType)
		return b, errors.Annotatef(ErrWrongJSONType, "%s ndv %d", node, ndv)
	}
	if ndv == 1 {
		if cmp, cerr := minVal.Compare(maxVal, hg.collator); cerr != nil || cmp != 0 {
			ectx.ReportNode(node, ErrTypeMismatch)
			return b, errors.Annotatef(ErrTypeMismatch, "%s ndv is 1 but min_val differs from max_val", node)
		}
	}
	b.NDV = &ndv

	if len(arr) < 7 {
		return b, nil
	}
	sub, err := hg.subHistogramFromJSON(arr[6], b.ValueType, node+".sub_histogram", ectx)
	if err != nil {
		return b, err
	}
	if ndv < int64(len(sub.Buckets)) {
		ectx.ReportNode(node, ErrWrongJSONType)
		return b, errors.Annotatef(ErrWrongJSONType, "%s ndv %d smaller than sub-histogram size %d",
			node, ndv, len(sub.Buckets))
	}
	b.Sub = sub
	return b, nil
}

func (hg *JSONFlex) subHistogramFromJSON(raw any, valueType types.PrimitiveKind, node string, ectx *ErrorContext) (*SubHistogram, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		ectx.ReportNode(node, ErrWrongJSONType)
		return nil, errors.Annotatef(ErrWrongJSONType, "%s is not an object", node)
	}
	typeStr, err := attrString(obj, "type", ectx)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", node)
	}
	sub := &SubHistogram{}
	switch typeStr {
	case "singleton":
		sub.Kind = SubSingleton
	case "equi-height":
		sub.Kind = SubEquiHeight
	default:
		ectx.ReportNode(node, ErrWrongJSONType)
		return nil, errors.Annotatef(ErrWrongJSONType, "%s type %q", node, typeStr)
	}
	if sub.Kind == SubEquiHeight && (valueType == types.KindString || valueType == types.KindBool) {
		ectx.ReportNode(node, ErrUnsupportedConfiguration)
		return nil, errors.Annotatef(ErrUnsupportedConfiguration,
			"%s equi-height over %s values", node, valueType)
	}

	rawBuckets, ok := obj["buckets"]
	if !ok {
		ectx.ReportMissingAttribute("buckets")
		return nil, errors.Annotatef(ErrMissingAttribute, "%s.buckets", node)
	}
	arr, ok := rawBuckets.([]any)
	if !ok {
		ectx.ReportNode(node, ErrWrongJSONType)
		return nil, errors.Annotatef(ErrWrongJSONType, "%s.buckets is not an array", node)
	}

	entryLen := 2
	if sub.Kind == SubEquiHeight {
		entryLen = 3
	}
	sum := 0.0
	sub.Buckets = make([]SubBucket, 0, len(arr))
	for i, rawEntry := range arr {
		entryNode := fmt.Sprintf("%s.buckets[%d]", node, i)
		entry, ok := rawEntry.([]any)
		if !ok || len(entry) != entryLen {
			ectx.ReportNode(entryNode, ErrWrongBucketArity)
			return nil, errors.Annotatef(ErrWrongBucketArity, "%s", entryNode)
		}
		val, err := hg.primitiveFromJSON(entry[0], entryNode, ectx)
		if err != nil {
			return nil, err
		}
		if val.Kind() == types.KindInt && valueType == types.KindFloat {
			val = types.NewFloatPrimitive(float64(val.GetInt64()))
		}
		if val.Kind() != valueType {
			ectx.ReportNode(entryNode, ErrTypeMismatch)
			return nil, errors.Annotatef(ErrTypeMismatch, "%s %s value in a %s bucket",
				entryNode, val.Kind(), valueType)
		}
		freq, err := jsonFloat(entry[1], entryNode+".frequency", ectx)
		if err != nil {
			return nil, err
		}
		if freq < 0 || freq > 1 {
			ectx.ReportNode(entryNode, ErrInvalidFrequency)
			return nil, errors.Annotatef(ErrInvalidFrequency, "%s frequency %v", entryNode, freq)
		}
		sb := SubBucket{Value: val, Frequency: freq}
		if sub.Kind == SubEquiHeight {
			sb.NDV, err = jsonInt(entry[2], entryNode+".ndv", ectx)
			if err != nil {
				return nil, err
			}
			if sb.NDV < 1 {
				ectx.ReportNode(entryNode, ErrWrongJSONType)
				return nil, errors.Annotatef(ErrWrongJSONType, "%s ndv %d", entryNode, sb.NDV)
			}
		}
		if i > 0 {
			cmp, cerr := sub.Buckets[i-1].Value.Compare(val, hg.collator)
			if cerr != nil || cmp >= 0 {
				ectx.ReportNode(entryNode, ErrWrongJSONType)
				return nil, errors.Annotatef(ErrWrongJSONType, "%s values are not sorted", entryNode)
			}
		}
		sum += freq
		sub.Buckets = append(sub.Buckets, sb)
	}

	if sum > 1+freqTolerance {
		ectx.ReportNode(node, ErrInvalidTotalFrequency)
		return nil, errors.Annotatef(ErrInvalidTotalFrequency, "%s frequencies sum to %v", node, sum)
	}
	if sub.Kind == SubEquiHeight && math.Abs(sum-1) > freqTolerance {
		ectx.ReportNode(node, ErrInvalidTotalFrequency)
		return nil, errors.Annotatef(ErrInvalidTotalFrequency,
			"%s equi-height frequencies sum to %v, want 1", node, sum)
	}

	if rawRest, ok := obj["rest_frequency"]; ok {
		rest, err := jsonFloat(rawRest, node+".rest_frequency", ectx)
		if err != nil {
			return nil, err
		}
		if sub.Kind == SubEquiHeight {
			ectx.ReportNode(node, ErrWrongJSONType)
			return nil, errors.Annotatef(ErrWrongJSONType, "%s rest_frequency on an equi-height", node)
		}
		if sum >= 1-freqTolerance {
			ectx.ReportNode(node, ErrInvalidTotalFrequency)
			return nil, errors.Annotatef(ErrInvalidTotalFrequency,
				"%s rest_frequency with frequencies already summing to 1", node)
		}
		if rest < 0 || rest > 1 {
			ectx.ReportNode(node, ErrInvalidFrequency)
			return nil, errors.Annotatef(ErrInvalidFrequency, "%s rest_frequency %v", node, rest)
		}
		sub.RestFrequency = &rest
	}
	return sub, nil
}

// primitiveFromJSON decodes a serialized scalar: JSON numbers become Int or
// Float depending on their spelling, booleans become Bool, and strings hold
// base64-encoded opaque bytes compared under the histogram's collation.
func (hg *JSONFlex) primitiveFromJSON(raw any, node string, ectx *ErrorContext) (types.Primitive, error) {
	switch v := raw.(type) {
	case json.Number:
		s := v.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := v.Int64(); err == nil {
				return types.NewIntPrimitive(i), nil
			}
		}
		f, err := v.Float64()
		if err != nil {
			ectx.ReportNode(node, err)
			return types.Primitive{}, errors.Annotatef(ErrWrongJSONType, "%s: %v", node, err)
		}
		return types.NewFloatPrimitive(f), nil
	case bool:
		return types.NewBoolPrimitive(v), nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			ectx.ReportNode(node, err)
			return types.Primitive{}, errors.Annotatef(ErrWrongJSONType, "%s is not base64: %v", node, err)
		}
		return types.NewBytesPrimitive(decoded, hg.CollationName()), nil
	}
	ectx.ReportNode(node, ErrWrongJSONType)
	return types.Primitive{}, errors.Annotatef(ErrWrongJSONType, "%s has unsupported type %T", node, raw)
}

// unifyNumericKinds widens an Int/Float pair to Float so min and max share a
// kind. Non-numeric pairs must already share their kind.
func unifyNumericKinds(a, b types.Primitive) (types.Primitive, types.Primitive, error) {
	if a.Kind() == b.Kind() {
		return a, b, nil
	}
	if a.Kind().IsNumeric() && b.Kind().IsNumeric() {
		if a.Kind() == types.KindInt {
			a = types.NewFloatPrimitive(float64(a.GetInt64()))
		}
		if b.Kind() == types.KindInt {
			b = types.NewFloatPrimitive(float64(b.GetInt64()))
		}
		return a, b, nil
	}
	return a, b, errors.Errorf("%s paired with %s", a.Kind(), b.Kind())
}

// suffixKind maps a key path type marker to the value kind a bucket without
// range metadata assumes. "_num" defaults to Float; numeric comparands
// promote into it either way.
func suffixKind(sfx string) types.PrimitiveKind {
	switch sfx {
	case suffixNum:
		return types.KindFloat
	case suffixBool:
		return types.KindBool
	case suffixStr:
		return types.KindString
	}
	return types.KindUnknown
}

func attrString(obj map[string]any, name string, ectx *ErrorContext) (string, error) {
	raw, ok := obj[name]
	if !ok {
		ectx.ReportMissingAttribute(name)
		return "", errors.Annotatef(ErrMissingAttribute, "%s", name)
	}
	s, ok := raw.(string)
	if !ok {
		ectx.ReportNode(name, ErrWrongJSONType)
		return "", errors.Annotatef(ErrWrongJSONType, "%s is not a string", name)
	}
	return s, nil
}

func attrFloat(obj map[string]any, name string, ectx *ErrorContext) (float64, error) {
	raw, ok := obj[name]
	if !ok {
		ectx.ReportMissingAttribute(name)
		return 0, errors.Annotatef(ErrMissingAttribute, "%s", name)
	}
	return jsonFloat(raw, name, ectx)
}

func attrInt(obj map[string]any, name string, ectx *ErrorContext) (int64, error) {
	raw, ok := obj[name]
	if !ok {
		ectx.ReportMissingAttribute(name)
		return 0, errors.Annotatef(ErrMissingAttribute, "%s", name)
	}
	return jsonInt(raw, name, ectx)
}

func jsonFloat(raw any, node string, ectx *ErrorContext) (float64, error) {
	num, ok := raw.(json.Number)
	if !ok {
		ectx.ReportNode(node, ErrWrongJSONType)
		return 0, errors.Annotatef(ErrWrongJSONType, "%s is not a number", node)
	}
	f, err := num.Float64()
	if err != nil {
		ectx.ReportNode(node, err)
		return 0, errors.Annotatef(ErrWrongJSONType, "%s: %v", node, err)
	}
	return f, nil
}

func jsonInt(raw any, node string, ectx *ErrorContext) (int64, error) {
	num, ok := raw.(json.Number)
	if !ok {
		ectx.ReportNode(node, ErrWrongJSONType)
		return 0, errors.Annotatef(ErrWrongJSONType, "%s is not a number", node)
	}
	i, err := num.Int64()
	if err != nil {
		ectx.ReportNode(node, err)
		return 0, errors.Annotatef(ErrWrongJSONType, "%s is not an integer: %v", node, err)
	}
	return i, nil
}
