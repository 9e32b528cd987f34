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

	"github.com/embeddocs/docstore/internal/types"
)

var arrayOps = map[string]opFunc{
	"$size":            evalSize,
	"$arrayElemAt":     evalArrayElemAt,
	"$slice":           evalSliceOp,
	"$concatArrays":    evalConcatArrays,
	"$filter":          evalFilter,
	"$map":             evalMap,
	"$reduce":          evalReduce,
	"$in":               evalIn,
	"$first":           evalFirst,
	"$last":            evalLast,
	"$indexOfArray":    evalIndexOfArray,
	"$isArray":         evalIsArray,
	"$range":           evalRange,
	"$reverseArray":    evalReverseArray,
	"$arrayToObject":   evalArrayToObject,
	"$objectToArray":   evalObjectToArray,
	"$zip":             evalZip,
	"$sortArray":       evalSortArray,
	"$setUnion":        evalSetUnion,
	"$setIntersection": evalSetIntersection,
	"$setDifference":   evalSetDifference,
	"$setEquals":       evalSetEquals,
	"$setIsSubset":     evalSetIsSubset,
	"$allElementsTrue": evalAllElementsTrue,
	"$anyElementTrue":  evalAnyElementTrue,
}

func asArray(op string, v any) (*types.Array, error) {
	a, ok := v.(*types.Array)
	if !ok {
		return nil, fmt.Errorf("%s requires an array, found: %s", op, types.TypeName(v))
	}

	return a, nil
}

func evalSize(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$size", "exactly 1", len(args))
	}

	a, err := asArray("$size", args[0])
	if err != nil {
		return nil, err
	}

	return int32(a.Len()), nil
}

func evalArrayElemAt(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$arrayElemAt", "exactly 2", len(args))
	}

	if isNullish(args[0]) {
		return types.Null, nil
	}

	a, err := asArray("$arrayElemAt", args[0])
	if err != nil {
		return nil, err
	}

	idx := int(toFloat(args[1]))

	v, err := a.GetByIndexOffset(idx)
	if err != nil {
		return types.Missing, nil
	}

	return v, nil
}

// evalSliceOp implements the $slice expression operator (distinct from the
// $push update modifier's $slice): [array, n] or [array, position, n].
func evalSliceOp(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) < 2 || len(args) > 3 {
		return nil, wrongArgCount("$slice", "2 or 3", len(args))
	}

	a, err := asArray("$slice", args[0])
	if err != nil {
		return nil, err
	}

	elems := a.Slice()
	n := len(elems)

	var start, count int

	if len(args) == 2 {
		count = int(toFloat(args[1]))

		if count >= 0 {
			start = 0
		} else {
			start = n + count
			if start < 0 {
				start = 0
			}

			count = -count
		}
	} else {
		start = int(toFloat(args[1]))
		if start < 0 {
			start = n + start
			if start < 0 {
				start = 0
			}
		}

		if start > n {
			start = n
		}

		count = int(toFloat(args[2]))
	}

	end := start + count
	if end > n || count < 0 {
		end = n
	}

	if start > end {
		start = end
	}

	out := types.MakeArray(end - start)
	out.Append(elems[start:end]...)

	return out, nil
}

func evalConcatArrays(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	out := types.MakeArray(0)

	for _, a := range args {
		if isNullish(a) {
			return types.Null, nil
		}

		arr, err := asArray("$concatArrays", a)
		if err != nil {
			return nil, err
		}

		out.Append(arr.Slice()...)
	}

	return out, nil
}

// loopInput pulls the {input, as, ...} shape shared by $filter/$map/$reduce,
// defaulting "as" to "this" for $filter/$map per the reference server.
func loopInput(d *types.Document, ctx *Context, asName string) (*types.Array, string, error) {
	inputV, err := requireField(d, "input", "$map")
	if err != nil {
		return nil, "", err
	}

	input, err := ctx.Eval(inputV)
	if err != nil {
		return nil, "", err
	}

	if isNullish(input) {
		return nil, "", nil
	}

	arr, err := asArray("$map", input)
	if err != nil {
		return nil, "", err
	}

	name := asName

	if d.Has("as") {
		v, _ := d.Get("as")
		if s, ok := v.(string); ok {
			name = s
		}
	}

	return arr, name, nil
}

func evalFilter(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$filter only supports an object as its argument")
	}

	arr, name, err := loopInput(d, ctx, "this")
	if err != nil {
		return nil, err
	}

	if arr == nil {
		return types.Null, nil
	}

	condE, err := requireField(d, "cond", "$filter")
	if err != nil {
		return nil, err
	}

	limit := -1

	if d.Has("limit") {
		lv, _ := d.Get("limit")

		l, err := ctx.Eval(lv)
		if err != nil {
			return nil, err
		}

		limit = int(toFloat(l))
	}

	out := types.MakeArray(0)

	for _, v := range arr.Slice() {
		if limit >= 0 && out.Len() >= limit {
			break
		}

		sub := ctx.Child(map[string]any{name: v})

		keep, err := sub.Eval(condE)
		if err != nil {
			return nil, err
		}

		if Truthy(keep) {
			out.Append(v)
		}
	}

	return out, nil
}

func evalMap(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$map only supports an object as its argument")
	}

	arr, name, err := loopInput(d, ctx, "this")
	if err != nil {
		return nil, err
	}

	if arr == nil {
		return types.Null, nil
	}

	inE, err := requireField(d, "in", "$map")
	if err != nil {
		return nil, err
	}

	out := types.MakeArray(arr.Len())

	for _, v := range arr.Slice() {
		sub := ctx.Child(map[string]any{name: v})

		r, err := sub.Eval(inE)
		if err != nil {
			return nil, err
		}

		out.Append(r)
	}

	return out, nil
}

func evalReduce(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$reduce requires an object as an argument")
	}

	inputV, err := requireField(d, "input", "$reduce")
	if err != nil {
		return nil, err
	}

	input, err := ctx.Eval(inputV)
	if err != nil {
		return nil, err
	}

	if isNullish(input) {
		return types.Null, nil
	}

	arr, err := asArray("$reduce", input)
	if err != nil {
		return nil, err
	}

	initV, err := requireField(d, "initialValue", "$reduce")
	if err != nil {
		return nil, err
	}

	acc, err := ctx.Eval(initV)
	if err != nil {
		return nil, err
	}

	inE, err := requireField(d, "in", "$reduce")
	if err != nil {
		return nil, err
	}

	for _, v := range arr.Slice() {
		sub := ctx.Child(map[string]any{"value": acc, "this": v})

		acc, err = sub.Eval(inE)
		if err != nil {
			return nil, err
		}
	}

	return acc, nil
}

func evalIn(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$in", "exactly 2", len(args))
	}

	a, err := asArray("$in", args[1])
	if err != nil {
		return nil, err
	}

	return a.Contains(args[0]), nil
}

func evalFirst(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$first", "exactly 1", len(args))
	}

	if isNullish(args[0]) {
		return types.Null, nil
	}

	a, err := asArray("$first", args[0])
	if err != nil {
		return nil, err
	}

	if a.Len() == 0 {
		return types.Missing, nil
	}

	v, _ := a.Get(0)

	return v, nil
}

func evalLast(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$last", "exactly 1", len(args))
	}

	if isNullish(args[0]) {
		return types.Null, nil
	}

	a, err := asArray("$last", args[0])
	if err != nil {
		return nil, err
	}

	if a.Len() == 0 {
		return types.Missing, nil
	}

	v, _ := a.Get(a.Len() - 1)

	return v, nil
}

func evalIndexOfArray(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) < 2 || len(args) > 4 {
		return nil, wrongArgCount("$indexOfArray", "between 2 and 4", len(args))
	}

	if isNullish(args[0]) {
		return types.Null, nil
	}

	a, err := asArray("$indexOfArray", args[0])
	if err != nil {
		return nil, err
	}

	start := 0
	if len(args) >= 3 {
		start = int(toFloat(args[2]))
	}

	end := a.Len()
	if len(args) == 4 {
		end = int(toFloat(args[3]))
	}

	elems := a.Slice()

	for i := start; i < end && i < len(elems); i++ {
		if types.Compare(elems[i], args[1]) == types.Equal {
			return int32(i), nil
		}
	}

	return int32(-1), nil
}

func evalIsArray(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$isArray", "exactly 1", len(args))
	}

	_, ok := args[0].(*types.Array)

	return ok, nil
}

func evalRange(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) < 2 || len(args) > 3 {
		return nil, wrongArgCount("$range", "2 or 3", len(args))
	}

	start := int(toFloat(args[0]))
	end := int(toFloat(args[1]))
	step := 1

	if len(args) == 3 {
		step = int(toFloat(args[2]))
	}

	if step == 0 {
		return nil, fmt.Errorf("$range requires a non-zero step value")
	}

	out := types.MakeArray(0)

	if step > 0 {
		for i := start; i < end; i += step {
			out.Append(int32(i))
		}
	} else {
		for i := start; i > end; i += step {
			out.Append(int32(i))
		}
	}

	return out, nil
}

func evalReverseArray(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$reverseArray", "exactly 1", len(args))
	}

	if isNullish(args[0]) {
		return types.Null, nil
	}

	a, err := asArray("$reverseArray", args[0])
	if err != nil {
		return nil, err
	}

	elems := a.Slice()
	out := types.MakeArray(len(elems))

	for i := len(elems) - 1; i >= 0; i-- {
		out.Append(elems[i])
	}

	return out, nil
}

func evalArrayToObject(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$arrayToObject", "exactly 1", len(args))
	}

	a, err := asArray("$arrayToObject", args[0])
	if err != nil {
		return nil, err
	}

	out := types.MakeDocument(a.Len())

	for _, elem := range a.Slice() {
		switch e := elem.(type) {
		case *types.Array:
			if e.Len() != 2 {
				return nil, fmt.Errorf("$arrayToObject requires array inputs to have exactly 2 elements")
			}

			k, _ := e.Get(0)
			v, _ := e.Get(1)

			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("$arrayToObject requires string keys")
			}

			out.Set(ks, v)
		case *types.Document:
			k, err := e.Get("k")
			if err != nil {
				return nil, fmt.Errorf("$arrayToObject requires an object with 'k' and 'v' fields")
			}

			v, err := e.Get("v")
			if err != nil {
				return nil, fmt.Errorf("$arrayToObject requires an object with 'k' and 'v' fields")
			}

			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("$arrayToObject requires string keys")
			}

			out.Set(ks, v)
		default:
			return nil, fmt.Errorf("$arrayToObject requires array or document elements")
		}
	}

	return out, nil
}

func evalObjectToArray(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$objectToArray", "exactly 1", len(args))
	}

	d, ok := args[0].(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$objectToArray requires a document input, found: %s", types.TypeName(args[0]))
	}

	out := types.MakeArray(d.Len())

	for _, k := range d.Keys() {
		v, _ := d.Get(k)

		pair := types.MakeDocument(2)
		pair.Set("k", k)
		pair.Set("v", v)
		out.Append(pair)
	}

	return out, nil
}

func evalZip(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$zip requires an object as an argument")
	}

	inputsV, err := requireField(d, "inputs", "$zip")
	if err != nil {
		return nil, err
	}

	inputsE, err := ctx.Eval(inputsV)
	if err != nil {
		return nil, err
	}

	inputsArr, err := asArray("$zip", inputsE)
	if err != nil {
		return nil, err
	}

	var arrays []*types.Array

	maxLen := 0

	for _, v := range inputsArr.Slice() {
		a, err := asArray("$zip", v)
		if err != nil {
			return nil, err
		}

		arrays = append(arrays, a)

		if a.Len() > maxLen {
			maxLen = a.Len()
		}
	}

	useLongest := false

	if d.Has("useLongestLength") {
		v, _ := d.Get("useLongestLength")
		if b, ok := v.(bool); ok {
			useLongest = b
		}
	}

	minLen := maxLen

	for _, a := range arrays {
		if a.Len() < minLen {
			minLen = a.Len()
		}
	}

	n := minLen
	if useLongest {
		n = maxLen
	}

	out := types.MakeArray(n)

	for i := 0; i < n; i++ {
		row := types.MakeArray(len(arrays))

		for _, a := range arrays {
			if i < a.Len() {
				v, _ := a.Get(i)
				row.Append(v)
			} else {
				row.Append(types.Null)
			}
		}

		out.Append(row)
	}

	return out, nil
}
