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

var comparisonOps = map[string]opFunc{
	"$eq":  comparisonOp(func(r types.CompareResult) bool { return r == types.Equal }),
	"$ne":  comparisonOp(func(r types.CompareResult) bool { return r != types.Equal }),
	"$gt":  comparisonOp(func(r types.CompareResult) bool { return r == types.Greater }),
	"$gte": comparisonOp(func(r types.CompareResult) bool { return r == types.Greater || r == types.Equal }),
	"$lt":  comparisonOp(func(r types.CompareResult) bool { return r == types.Less }),
	"$lte": comparisonOp(func(r types.CompareResult) bool { return r == types.Less || r == types.Equal }),
	"$cmp": evalCmp,
}

// comparisonOp builds $eq/$ne/$gt/$gte/$lt/$lte: these compare under the
// BSON total order directly, with no Null/Missing propagation (spec.md
// §4.2: "$eq and friends distinguish only by the full BSON ordering").
func comparisonOp(pred func(types.CompareResult) bool) opFunc {
	return func(raw any, ctx *Context) (any, error) {
		args, err := evalArgs(raw, ctx)
		if err != nil {
			return nil, err
		}

		if len(args) != 2 {
			return nil, wrongArgCount("$cmp", "exactly 2", len(args))
		}

		return pred(types.Compare(args[0], args[1])), nil
	}
}

// evalCmp implements $cmp, which does propagate Null on a Null/Missing
// operand (spec.md §4.2's explicit carve-out from the $eq-family rule).
func evalCmp(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$cmp", "exactly 2", len(args))
	}

	if isNullish(args[0]) || isNullish(args[1]) {
		return types.Null, nil
	}

	switch types.Compare(args[0], args[1]) {
	case types.Less:
		return int32(-1), nil
	case types.Greater:
		return int32(1), nil
	default:
		return int32(0), nil
	}
}
