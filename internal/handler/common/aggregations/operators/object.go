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

var objectOps = map[string]opFunc{
	"$getField":     evalGetField,
	"$setField":     evalSetField,
	"$mergeObjects": evalMergeObjects,
}

// evalGetField implements $getField: either a bare field-name string (the
// shorthand form) or {field, input}, used to read fields whose names start
// with '$' or contain '.', which a plain "$field" path cannot address.
func evalGetField(raw any, ctx *Context) (any, error) {
	var field string

	input := any(ctx.Current)

	switch r := raw.(type) {
	case string:
		field = r
	case *types.Document:
		fieldV, err := requireField(r, "field", "$getField")
		if err != nil {
			return nil, err
		}

		fieldStr, ok := fieldV.(string)
		if !ok {
			return nil, fmt.Errorf("$getField requires 'field' to evaluate to a string")
		}

		field = fieldStr

		if inputE, err := r.Get("input"); err == nil {
			v, err := ctx.Eval(inputE)
			if err != nil {
				return nil, err
			}

			input = v
		}
	default:
		return nil, fmt.Errorf("$getField requires a string or an object as its argument")
	}

	if isNullish(input) {
		return types.Null, nil
	}

	doc, ok := input.(*types.Document)
	if !ok {
		return types.Missing, nil
	}

	v, err := doc.Get(field)
	if err != nil {
		return types.Missing, nil
	}

	return v, nil
}

// evalSetField implements $setField: {field, input, value}, the write-side
// counterpart of $getField. A value of $$REMOVE deletes the field instead
// of setting it, mirroring $project's "set to $$REMOVE" convention.
func evalSetField(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$setField requires an object as an argument")
	}

	fieldV, err := requireField(d, "field", "$setField")
	if err != nil {
		return nil, err
	}

	field, ok := fieldV.(string)
	if !ok {
		return nil, fmt.Errorf("$setField requires 'field' to evaluate to a string")
	}

	inputE, err := requireField(d, "input", "$setField")
	if err != nil {
		return nil, err
	}

	input, err := ctx.Eval(inputE)
	if err != nil {
		return nil, err
	}

	if isNullish(input) {
		return types.Null, nil
	}

	doc, ok := input.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$setField requires 'input' to evaluate to an object")
	}

	valueE, err := requireField(d, "value", "$setField")
	if err != nil {
		return nil, err
	}

	value, err := ctx.Eval(valueE)
	if err != nil {
		return nil, err
	}

	out := doc.DeepCopy()

	if v, isVar := valueE.(string); isVar && v == "$$REMOVE" {
		out.Remove(field)
		return out, nil
	}

	if types.IsMissing(value) {
		out.Remove(field)
		return out, nil
	}

	out.Set(field, value)

	return out, nil
}

// evalMergeObjects implements $mergeObjects, folding each argument document
// into the accumulator left to right so later documents' fields win,
// matching spec.md §4.2's "last writer wins" merge rule. Null/Missing
// arguments are skipped rather than treated as an error.
func evalMergeObjects(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	out := types.MakeDocument(0)

	for _, a := range args {
		if isNullish(a) {
			continue
		}

		d, ok := a.(*types.Document)
		if !ok {
			return nil, fmt.Errorf("$mergeObjects requires object arguments, found: %s", types.TypeName(a))
		}

		for _, k := range d.Keys() {
			v, _ := d.Get(k)
			out.Set(k, v)
		}
	}

	return out, nil
}
