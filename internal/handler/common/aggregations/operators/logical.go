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

import "github.com/embeddocs/docstore/internal/types"

var logicalOps = map[string]opFunc{
	"$and": evalAnd,
	"$or":  evalOr,
	"$not": evalNot,
}

// rawElements returns raw's operands as an unevaluated slice, so $and/$or
// can short-circuit without evaluating every branch.
func rawElements(raw any) []any {
	if arr, ok := raw.(*types.Array); ok {
		return arr.Slice()
	}

	return []any{raw}
}

func evalAnd(raw any, ctx *Context) (any, error) {
	for _, e := range rawElements(raw) {
		v, err := ctx.Eval(e)
		if err != nil {
			return nil, err
		}

		if !Truthy(v) {
			return false, nil
		}
	}

	return true, nil
}

func evalOr(raw any, ctx *Context) (any, error) {
	for _, e := range rawElements(raw) {
		v, err := ctx.Eval(e)
		if err != nil {
			return nil, err
		}

		if Truthy(v) {
			return true, nil
		}
	}

	return false, nil
}

func evalNot(raw any, ctx *Context) (any, error) {
	elems := rawElements(raw)
	if len(elems) != 1 {
		return nil, wrongArgCount("$not", "exactly 1", len(elems))
	}

	v, err := ctx.Eval(elems[0])
	if err != nil {
		return nil, err
	}

	return !Truthy(v), nil
}
