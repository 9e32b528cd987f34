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

package aggregations

import (
	"fmt"
	"strings"

	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/types"
)

// Expression is a compiled "$field.path" or "$$variable" reference, the
// string-argument half of the three-way field-path/operator-document/
// literal dispatch $group accumulators (spec.md §4.7) and other stages use
// when a parameter accepts a bare aggregation expression.
//
// vars, when non-nil, binds additional $$variable names (e.g. $let-scoped
// names threaded down from an enclosing stage) visible to this expression;
// most callers have none and pass nil.
type Expression struct {
	raw  string
	vars *types.Document
}

// NewExpression compiles expr, which must be a field path ("$a.b") or
// variable reference ("$$ROOT", "$$CURRENT", ...) string.
func NewExpression(expr string, vars *types.Document) (*Expression, error) {
	if !strings.HasPrefix(expr, "$") {
		return nil, fmt.Errorf("aggregations.NewExpression: %q is not a field path or variable expression", expr)
	}

	return &Expression{raw: expr, vars: vars}, nil
}

// Evaluate resolves the expression against doc. It returns an error if the
// path resolves to a missing field rather than propagating Missing; each
// accumulator then decides how to treat that document ($sum/$avg skip it,
// $first/$last yield Null).
func (e *Expression) Evaluate(doc *types.Document) (any, error) {
	ctx := operators.NewContext(doc)

	if e.vars != nil {
		bound := make(map[string]any, e.vars.Len())

		for _, k := range e.vars.Keys() {
			v, _ := e.vars.Get(k)
			bound[k] = v
		}

		ctx = ctx.Child(bound)
	}

	v, err := ctx.Eval(e.raw)
	if err != nil {
		return nil, err
	}

	if types.IsMissing(v) {
		return nil, fmt.Errorf("aggregations: field path %q not found", e.raw)
	}

	return v, nil
}

// AvgNumbers implements $avg's reduction: the arithmetic mean of every
// numeric value in numbers, ignoring non-numeric ones; an empty or
// all-non-numeric input returns Null, matching the reference server's
// "$avg of nothing is null" rule.
func AvgNumbers(numbers ...any) any {
	var sum float64

	var count int

	for _, n := range numbers {
		switch v := n.(type) {
		case int32:
			sum += float64(v)
			count++
		case int64:
			sum += float64(v)
			count++
		case float64:
			sum += v
			count++
		}
	}

	if count == 0 {
		return types.Null
	}

	return sum / float64(count)
}

// SumNumbers implements $sum's reduction: BSON-promoting addition over
// every numeric value in numbers, skipping non-numeric ones (rather than
// erroring, per $sum's documented "non-numeric values are ignored" rule).
// An all-non-numeric input sums to int32(0), same as an empty group.
func SumNumbers(numbers ...any) any {
	var result any = int32(0)

	for _, n := range numbers {
		switch n.(type) {
		case int32, int64, float64:
			result = addPromoting(result, n)
		}
	}

	return result
}

// addPromoting adds a and b with BSON numeric promotion: float64 is
// contagious, otherwise int64 is used once an int32 sum would overflow.
func addPromoting(a, b any) any {
	af, aIsFloat := a.(float64)
	bf, bIsFloat := b.(float64)

	if aIsFloat || bIsFloat {
		if !aIsFloat {
			af = toFloatLocal(a)
		}

		if !bIsFloat {
			bf = toFloatLocal(b)
		}

		return af + bf
	}

	ai := toInt64Local(a)
	bi := toInt64Local(b)

	sum := ai + bi

	if _, ok := a.(int64); ok {
		return sum
	}

	if _, ok := b.(int64); ok {
		return sum
	}

	if sum > int64(^uint32(0)>>1) || sum < -int64(^uint32(0)>>1)-1 {
		return sum
	}

	return int32(sum)
}

func toFloatLocal(v any) float64 {
	switch v := v.(type) {
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return 0
	}
}

func toInt64Local(v any) int64 {
	switch v := v.(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}
