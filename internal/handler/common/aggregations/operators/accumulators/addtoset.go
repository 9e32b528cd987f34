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

package accumulators

import (
	"errors"

	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// addToSet represents the $addToSet accumulator: like $push, but skips a
// value that is types.Identical to one already collected, and never
// collects Missing.
type addToSet struct {
	expression *aggregations.Expression
	operator   operators.Operator
	literal    any
	hasLiteral bool
}

// newAddToSet creates a new $addToSet accumulator.
func newAddToSet(args ...any) (Accumulator, error) {
	if len(args) != 1 {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrStageGroupUnaryOperator,
			"The $addToSet accumulator is a unary operator",
			"$addToSet (accumulator)",
		)
	}

	a := new(addToSet)

	switch arg := args[0].(type) {
	case *types.Document:
		if !operators.IsOperator(arg) {
			a.literal = arg
			a.hasLiteral = true
			break
		}

		op, err := operators.NewOperator(arg)
		if err != nil {
			var opErr operators.OperatorError
			if !errors.As(err, &opErr) {
				return nil, lazyerrors.Error(err)
			}

			return nil, opErr
		}

		a.operator = op
	case string:
		expr, err := aggregations.NewExpression(arg, nil)
		if err != nil {
			a.literal = arg
			a.hasLiteral = true
			break
		}

		a.expression = expr
	default:
		a.literal = arg
		a.hasLiteral = true
	}

	return a, nil
}

// Accumulate implements Accumulator interface.
func (a *addToSet) Accumulate(iter types.DocumentsIterator) (any, error) {
	out := types.MakeArray(0)

	for {
		_, doc, err := iter.Next()

		if errors.Is(err, iterator.ErrIteratorDone) {
			break
		}

		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		var value any

		switch {
		case a.operator != nil:
			v, err := a.operator.Process(doc)
			if err != nil {
				return nil, err
			}

			value = v
		case a.expression != nil:
			v, err := a.expression.Evaluate(doc)
			if err != nil {
				continue
			}

			value = v
		case a.hasLiteral:
			value = a.literal
		}

		if types.IsMissing(value) {
			continue
		}

		dup := false

		for _, e := range out.Slice() {
			if types.Identical(e, value) {
				dup = true
				break
			}
		}

		if dup {
			continue
		}

		out.Append(value)
	}

	return out, nil
}

// check interfaces
var (
	_ Accumulator = (*addToSet)(nil)
)
