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

var conditionalOps = map[string]opFunc{
	"$cond":   evalCond,
	"$ifNull": evalIfNull,
	"$switch": evalSwitch,
	"$let":    evalLet,
}

// evalCond implements $cond, accepting both the array form [if, then, else]
// and the document form {if, then, else}; only the taken branch is evaluated.
func evalCond(raw any, ctx *Context) (any, error) {
	var ifE, thenE, elseE any

	switch r := raw.(type) {
	case *types.Array:
		if r.Len() != 3 {
			return nil, wrongArgCount("$cond", "exactly 3", r.Len())
		}

		ifE, _ = r.Get(0)
		thenE, _ = r.Get(1)
		elseE, _ = r.Get(2)
	case *types.Document:
		var err error

		if ifE, err = requireField(r, "if", "$cond"); err != nil {
			return nil, err
		}

		if thenE, err = requireField(r, "then", "$cond"); err != nil {
			return nil, err
		}

		if elseE, err = requireField(r, "else", "$cond"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("$cond requires an array of 3 expressions, or an object with 'if', 'then', and 'else' fields")
	}

	cond, err := ctx.Eval(ifE)
	if err != nil {
		return nil, err
	}

	if Truthy(cond) {
		return ctx.Eval(thenE)
	}

	return ctx.Eval(elseE)
}

func requireField(d *types.Document, key, op string) (any, error) {
	v, err := d.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%s requires '%s' to be specified", op, key)
	}

	return v, nil
}

// evalIfNull returns the first operand that evaluates to neither Null nor
// Missing, evaluating operands left to right and stopping as soon as one
// qualifies (so a later operand with a side-effecting error is never reached).
func evalIfNull(raw any, ctx *Context) (any, error) {
	elems := rawElements(raw)
	if len(elems) < 2 {
		return nil, wrongArgCount("$ifNull", "at least 2", len(elems))
	}

	for _, e := range elems[:len(elems)-1] {
		v, err := ctx.Eval(e)
		if err != nil {
			return nil, err
		}

		if !isNullish(v) {
			return v, nil
		}
	}

	return ctx.Eval(elems[len(elems)-1])
}

// evalSwitch implements $switch: {branches: [{case, then}, ...], default}.
func evalSwitch(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$switch requires an object as an argument")
	}

	branchesV, err := d.Get("branches")
	if err != nil {
		return nil, fmt.Errorf("$switch requires at least one branch")
	}

	branches, ok := branchesV.(*types.Array)
	if !ok {
		return nil, fmt.Errorf("$switch expects an array for 'branches'")
	}

	for _, b := range branches.Slice() {
		branch, ok := b.(*types.Document)
		if !ok {
			return nil, fmt.Errorf("$switch requires each branch to be an object")
		}

		caseE, err := requireField(branch, "case", "$switch")
		if err != nil {
			return nil, err
		}

		thenE, err := requireField(branch, "then", "$switch")
		if err != nil {
			return nil, err
		}

		cond, err := ctx.Eval(caseE)
		if err != nil {
			return nil, err
		}

		if Truthy(cond) {
			return ctx.Eval(thenE)
		}
	}

	if defE, err := d.Get("default"); err == nil {
		return ctx.Eval(defE)
	}

	return nil, fmt.Errorf("$switch could not find a matching branch for an input, and no default was specified")
}

// evalLet implements $let: {vars: {name: expr, ...}, in: expr}. Each var is
// evaluated eagerly in the outer scope (spec.md §4.2), then `in` is
// evaluated in a child scope where those names are bound, shadowing any
// same-named outer binding.
func evalLet(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$let only supports an object as its argument")
	}

	varsV, err := requireField(d, "vars", "$let")
	if err != nil {
		return nil, err
	}

	varsDoc, ok := varsV.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$let's 'vars' field must be an object")
	}

	inE, err := requireField(d, "in", "$let")
	if err != nil {
		return nil, err
	}

	bound := make(map[string]any, varsDoc.Len())

	for _, k := range varsDoc.Keys() {
		v, _ := varsDoc.Get(k)

		ev, err := ctx.Eval(v)
		if err != nil {
			return nil, err
		}

		bound[k] = ev
	}

	return ctx.Child(bound).Eval(inE)
}
