// Copyright 2021 FerretDB Inc.
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

package operators

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/embeddocs/docstore/internal/types"
)

var typeOps = map[string]opFunc{
	"$type":       evalType,
	"$isNumber":   evalIsNumber,
	"$toBool":     unaryConvert("$toBool", toBool),
	"$toInt":      unaryConvert("$toInt", toInt32),
	"$toLong":     unaryConvert("$toLong", toInt64),
	"$toDouble":   unaryConvert("$toDouble", toDouble),
	"$toDecimal":  unaryConvert("$toDecimal", toDouble),
	"$toDate":     unaryConvert("$toDate", toDate),
	"$toObjectId": unaryConvert("$toObjectId", toObjectID),
	"$convert":    evalConvert,
}

func evalType(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$type", "exactly 1", len(args))
	}

	if types.IsMissing(args[0]) {
		return "missing", nil
	}

	return types.TypeName(args[0]), nil
}

func evalIsNumber(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$isNumber", "exactly 1", len(args))
	}

	return isNumber(args[0]), nil
}

// unaryConvert wraps a single-value coercion function f as an opFunc,
// propagating Null/Missing per spec.md §4.2's default null-propagation rule.
func unaryConvert(name string, f func(string, any) (any, error)) opFunc {
	return func(raw any, ctx *Context) (any, error) {
		args, err := evalArgs(raw, ctx)
		if err != nil {
			return nil, err
		}

		if len(args) != 1 {
			return nil, wrongArgCount(name, "exactly 1", len(args))
		}

		if isNullish(args[0]) {
			return types.Null, nil
		}

		return f(name, args[0])
	}
}

func toBool(_ string, v any) (any, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case int32:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return true, nil
	}
}

func toInt32(name string, v any) (any, error) {
	i, err := toInt64(name, v)
	if err != nil {
		return nil, err
	}

	return int32(i.(int64)), nil
}

func toInt64(name string, v any) (any, error) {
	switch v := v.(type) {
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}

		return int64(0), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s could not convert string '%s' to number", name, v)
		}

		return i, nil
	default:
		return nil, fmt.Errorf("%s is not supported by %s", types.TypeName(v), name)
	}
}

func toDouble(name string, v any) (any, error) {
	switch v := v.(type) {
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return float64(1), nil
		}

		return float64(0), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%s could not convert string '%s' to number", name, v)
		}

		return f, nil
	default:
		return nil, fmt.Errorf("%s is not supported by %s", types.TypeName(v), name)
	}
}

// dateLayouts are the ISO-8601-ish layouts $toDate accepts when given a
// string, tried in order, matching the reference server's permissive parser.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

func toDate(name string, v any) (any, error) {
	switch v := v.(type) {
	case types.DateTime:
		return v, nil
	case types.ObjectID:
		return types.NewDateTimeFromTime(v.Timestamp()), nil
	case int64:
		return types.NewDateTimeFromTime(time.UnixMilli(v)), nil
	case int32:
		return types.NewDateTimeFromTime(time.UnixMilli(int64(v))), nil
	case float64:
		return types.NewDateTimeFromTime(time.UnixMilli(int64(v))), nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return types.NewDateTimeFromTime(t), nil
			}
		}

		return nil, fmt.Errorf("%s could not convert string '%s' to a date", name, v)
	default:
		return nil, fmt.Errorf("%s is not supported by %s", types.TypeName(v), name)
	}
}

func toObjectID(name string, v any) (any, error) {
	switch v := v.(type) {
	case types.ObjectID:
		return v, nil
	case string:
		id, err := types.ObjectIDFromHex(v)
		if err != nil {
			return nil, fmt.Errorf("%s is not a valid ObjectId for %s", v, name)
		}

		return id, nil
	default:
		return nil, fmt.Errorf("%s is not supported by %s", types.TypeName(v), name)
	}
}

// evalConvert implements $convert: {input, to, onError, onNull}, dispatching
// to the same per-target coercions as the dedicated $toXxx operators and
// falling back to onError/onNull when those would otherwise fail.
func evalConvert(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$convert requires an object as an argument")
	}

	inputE, err := requireField(d, "input", "$convert")
	if err != nil {
		return nil, err
	}

	input, err := ctx.Eval(inputE)
	if err != nil {
		return nil, err
	}

	toE, err := requireField(d, "to", "$convert")
	if err != nil {
		return nil, err
	}

	to, err := ctx.Eval(toE)
	if err != nil {
		return nil, err
	}

	toName, ok := to.(string)
	if !ok {
		return nil, fmt.Errorf("$convert's 'to' argument must evaluate to a string")
	}

	onError, onErrorErr := d.Get("onError")
	onNull, onNullErr := d.Get("onNull")

	if isNullish(input) {
		if onNullErr == nil {
			return ctx.Eval(onNull)
		}

		return types.Null, nil
	}

	var out any

	var convErr error

	switch toName {
	case "bool":
		out, convErr = toBool("$convert", input)
	case "int":
		out, convErr = toInt32("$convert", input)
	case "long":
		out, convErr = toInt64("$convert", input)
	case "double", "decimal":
		out, convErr = toDouble("$convert", input)
	case "string":
		out, convErr = ToString(input)
	case "date":
		out, convErr = toDate("$convert", input)
	case "objectId":
		out, convErr = toObjectID("$convert", input)
	default:
		convErr = fmt.Errorf("$convert's 'to' argument is not a recognized type: %s", toName)
	}

	if convErr != nil {
		if onErrorErr == nil {
			return ctx.Eval(onError)
		}

		return nil, convErr
	}

	return out, nil
}
