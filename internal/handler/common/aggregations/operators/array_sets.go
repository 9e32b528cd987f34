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

	"github.com/embeddocs/docstore/internal/handler/common"
	"github.com/embeddocs/docstore/internal/types"
)

// evalSortArray implements $sortArray: {input, sortBy}, where sortBy is
// either a number (ascending/descending primitive sort) or a document of
// key:direction pairs (sort of documents by field, like $sort).
func evalSortArray(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$sortArray requires an object as an argument")
	}

	inputV, err := requireField(d, "input", "$sortArray")
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

	arr, err := asArray("$sortArray", input)
	if err != nil {
		return nil, err
	}

	sortByV, err := requireField(d, "sortBy", "$sortArray")
	if err != nil {
		return nil, err
	}

	cp := arr.DeepCopy()

	switch sb := sortByV.(type) {
	case int32, int64, float64:
		order := types.Ascending
		if toFloat(sb) < 0 {
			order = types.Descending
		}

		common.SortArray(cp, order)
	case *types.Document:
		if err := common.SortArrayByKeys(cp, sb); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("$sortArray's 'sortBy' must be a number or an object")
	}

	return cp, nil
}

func setElements(name string, v any) ([]any, error) {
	a, err := asArray(name, v)
	if err != nil {
		return nil, err
	}

	return a.Slice(), nil
}

func dedupSet(elems []any) []any {
	var out []any

	for _, e := range elems {
		found := false

		for _, o := range out {
			if types.Identical(e, o) {
				found = true
				break
			}
		}

		if !found {
			out = append(out, e)
		}
	}

	return out
}

func containsIdentical(set []any, v any) bool {
	for _, e := range set {
		if types.Identical(e, v) {
			return true
		}
	}

	return false
}

func evalSetUnion(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	var all []any

	for _, a := range args {
		elems, err := setElements("$setUnion", a)
		if err != nil {
			return nil, err
		}

		all = append(all, elems...)
	}

	out := types.MakeArray(0)
	out.Append(dedupSet(all)...)

	return out, nil
}

func evalSetIntersection(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) == 0 {
		return types.MakeArray(0), nil
	}

	first, err := setElements("$setIntersection", args[0])
	if err != nil {
		return nil, err
	}

	result := dedupSet(first)

	for _, a := range args[1:] {
		elems, err := setElements("$setIntersection", a)
		if err != nil {
			return nil, err
		}

		var next []any

		for _, e := range result {
			if containsIdentical(elems, e) {
				next = append(next, e)
			}
		}

		result = next
	}

	out := types.MakeArray(0)
	out.Append(result...)

	return out, nil
}

func evalSetDifference(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$setDifference", "exactly 2", len(args))
	}

	a, err := setElements("$setDifference", args[0])
	if err != nil {
		return nil, err
	}

	b, err := setElements("$setDifference", args[1])
	if err != nil {
		return nil, err
	}

	var result []any

	for _, e := range dedupSet(a) {
		if !containsIdentical(b, e) {
			result = append(result, e)
		}
	}

	out := types.MakeArray(0)
	out.Append(result...)

	return out, nil
}

func evalSetEquals(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) < 2 {
		return nil, wrongArgCount("$setEquals", "at least 2", len(args))
	}

	first, err := setElements("$setEquals", args[0])
	if err != nil {
		return nil, err
	}

	firstSet := dedupSet(first)

	for _, a := range args[1:] {
		elems, err := setElements("$setEquals", a)
		if err != nil {
			return nil, err
		}

		set := dedupSet(elems)

		if len(set) != len(firstSet) {
			return false, nil
		}

		for _, e := range firstSet {
			if !containsIdentical(set, e) {
				return false, nil
			}
		}
	}

	return true, nil
}

func evalSetIsSubset(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$setIsSubset", "exactly 2", len(args))
	}

	a, err := setElements("$setIsSubset", args[0])
	if err != nil {
		return nil, err
	}

	b, err := setElements("$setIsSubset", args[1])
	if err != nil {
		return nil, err
	}

	for _, e := range dedupSet(a) {
		if !containsIdentical(b, e) {
			return false, nil
		}
	}

	return true, nil
}

func evalAllElementsTrue(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$allElementsTrue", "exactly 1", len(args))
	}

	a, err := asArray("$allElementsTrue", args[0])
	if err != nil {
		return nil, err
	}

	for _, e := range a.Slice() {
		if !Truthy(e) {
			return false, nil
		}
	}

	return true, nil
}

func evalAnyElementTrue(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$anyElementTrue", "exactly 1", len(args))
	}

	a, err := asArray("$anyElementTrue", args[0])
	if err != nil {
		return nil, err
	}

	for _, e := range a.Slice() {
		if Truthy(e) {
			return true, nil
		}
	}

	return false, nil
}
