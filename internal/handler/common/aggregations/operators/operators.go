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
	"github.com/embeddocs/docstore/internal/util/metrics"
)

// Operator is an aggregation expression operator, bound to its (still
// unevaluated) arguments, ready to be evaluated against a document.
//
// Process takes only the top-level document rather than a full Context
// because it is the entry point used by $group accumulators (spec.md §4.7)
// evaluating a unary expression once per input document: there is no outer
// $let scope to thread through at that point.
type Operator interface {
	Process(doc *types.Document) (any, error)
}

// OperatorErrorCode classifies an OperatorError for callers (accumulator
// constructors) that need to distinguish "not an operator at all" from a
// genuine user-facing error.
type OperatorErrorCode int

// OperatorErrorCode values.
const (
	// ErrNotExpression indicates the document isn't a single-operator expression document at all.
	ErrNotExpression OperatorErrorCode = iota

	// ErrTooManyFields indicates an expression document had more than one field.
	ErrTooManyFields

	// ErrInvalidExpression indicates an unrecognized operator name.
	ErrInvalidExpression

	// ErrWrongArgsCount indicates that an operator was given the wrong number of arguments.
	ErrWrongArgsCount
)

// OperatorError is a user-facing error produced while compiling or
// evaluating an expression operator.
type OperatorError struct {
	code OperatorErrorCode
	msg  string
}

// newOperatorError builds an OperatorError.
func newOperatorError(code OperatorErrorCode, msg string) error {
	return OperatorError{code: code, msg: msg}
}

// Error implements the error interface.
func (e OperatorError) Error() string {
	return e.msg
}

// Code returns the error's classification.
func (e OperatorError) Code() OperatorErrorCode {
	return e.code
}

// opFunc evaluates an operator's raw (unevaluated) argument against ctx.
//
// Most operators evaluate their arguments eagerly as a flat list (see
// evalArgs); control-flow operators ($cond, $let, $map, $filter, $reduce,
// $switch, $ifNull, $and, $or) instead receive raw and decide evaluation
// order themselves, to implement short-circuiting and variable scoping.
type opFunc func(raw any, ctx *Context) (any, error)

// registry maps every known operator name to its implementation. It is
// assembled from the per-category maps defined across this package's other
// files (arithmeticOps, comparisonOps, ...); Go initializes package-level
// vars in dependency order regardless of file order, so this is safe.
var registry = mergeOps(
	arithmeticOps,
	comparisonOps,
	logicalOps,
	conditionalOps,
	stringOps,
	arrayOps,
	objectOps,
	typeOps,
	dateOps,
	trigOps,
)

func mergeOps(maps ...map[string]opFunc) map[string]opFunc {
	out := make(map[string]opFunc)

	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}

	return out
}

// IsOperator reports whether doc is shaped like an expression operator
// document: exactly one field, whose key is a known operator name (or the
// $literal escape hatch).
func IsOperator(doc *types.Document) bool {
	if doc.Len() != 1 {
		return false
	}

	key := doc.Keys()[0]
	if key == "$literal" {
		return true
	}

	_, ok := registry[key]

	return ok
}

// NewOperator compiles doc into an Operator, the document-argument half of
// the three-way "document operator / field-path string / literal" switch
// used throughout the $group accumulators (spec.md §4.7) and the rest of
// the expression evaluator.
func NewOperator(doc *types.Document) (Operator, error) {
	if doc.Len() != 1 {
		return nil, newOperatorError(ErrTooManyFields, "An object representing an expression must have exactly one field")
	}

	key := doc.Keys()[0]
	if key == "$literal" {
		v, _ := doc.Get(key)
		return &literalOperator{v: v}, nil
	}

	if _, ok := registry[key]; !ok {
		return nil, newOperatorError(ErrInvalidExpression, fmt.Sprintf("Unrecognized expression '%s'", key))
	}

	raw, _ := doc.Get(key)

	return &genericOperator{name: key, raw: raw}, nil
}

// genericOperator adapts evalOperator to the Operator interface.
type genericOperator struct {
	name string
	raw  any
}

// Process implements Operator.
func (g *genericOperator) Process(doc *types.Document) (any, error) {
	return evalOperator(g.name, g.raw, NewContext(doc))
}

type literalOperator struct{ v any }

// Process implements Operator.
func (l *literalOperator) Process(*types.Document) (any, error) {
	return l.v, nil
}

// evalOperator looks up name in the registry and applies it to raw under ctx.
func evalOperator(name string, raw any, ctx *Context) (any, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, newOperatorError(ErrInvalidExpression, fmt.Sprintf("Unrecognized expression '%s'", name))
	}

	metrics.Default.IncOperator("expression", name)

	return fn(raw, ctx)
}

// Eval evaluates an arbitrary expression (field path, variable, literal, or
// operator document) against doc, the entry point used by the match
// compiler's $expr and the projection/group/sort stages that accept a bare
// aggregation expression rather than a $group-style accumulator argument.
func Eval(expr any, doc *types.Document) (any, error) {
	return NewContext(doc).Eval(expr)
}

// evalArgs evaluates raw as an operator's argument list: an *types.Array is
// evaluated element-wise; any other shape (including Missing) is treated as
// a single-element argument list, which is what lets `{$abs: "$x"}` and
// `{$abs: ["$x"]}` both work.
func evalArgs(raw any, ctx *Context) ([]any, error) {
	if arr, ok := raw.(*types.Array); ok {
		out := make([]any, 0, arr.Len())

		for _, v := range arr.Slice() {
			r, err := ctx.Eval(v)
			if err != nil {
				return nil, err
			}

			out = append(out, r)
		}

		return out, nil
	}

	v, err := ctx.Eval(raw)
	if err != nil {
		return nil, err
	}

	return []any{v}, nil
}

// wrongArgCount builds the standard "wrong number of arguments" error.
func wrongArgCount(op string, want string, got int) error {
	return newOperatorError(
		ErrWrongArgsCount,
		fmt.Sprintf("Expression %s takes %s arguments, found %d", op, want, got),
	)
}

func isNullish(v any) bool {
	if types.IsMissing(v) {
		return true
	}

	_, ok := v.(types.NullType)

	return ok
}

func isNumber(v any) bool {
	switch v.(type) {
	case int32, int64, float64:
		return true
	}

	return false
}

func toFloat(v any) float64 {
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
