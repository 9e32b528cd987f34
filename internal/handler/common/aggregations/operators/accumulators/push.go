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

// push represents the $push accumulator: collects every document's
// evaluated expression into an array, in input order, including Null
// results (unlike $addToSet, $push never deduplicates). A field path that
// is missing from a document contributes Null; an operator expression that
// evaluates to Missing contributes nothing.
type push struct {
	expression *aggregations.Expression
	operator   operators.Operator
	literal    any
	hasLiteral bool
}

// newPush creates a new $push accumulator.
func newPush(args ...any) (Accumulator, error) {
	if len(args) != 1 {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrStageGroupUnaryOperator,
			"The $push accumulator is a unary operator",
			"$push (accumulator)",
		)
	}

	p := new(push)

	switch arg := args[0].(type) {
	case *types.Document:
		if !operators.IsOperator(arg) {
			p.literal = arg
			p.hasLiteral = true
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

		p.operator = op
	case string:
		expr, err := aggregations.NewExpression(arg, nil)
		if err != nil {
			p.literal = arg
			p.hasLiteral = true
			break
		}

		p.expression = expr
	default:
		p.literal = arg
		p.hasLiteral = true
	}

	return p, nil
}

// Accumulate implements Accumulator interface.
func (p *push) Accumulate(iter types.DocumentsIterator) (any, error) {
	out := types.MakeArray(0)

	for {
		_, doc, err := iter.Next()

		if errors.Is(err, iterator.ErrIteratorDone) {
			break
		}

		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		var value any = types.Null

		switch {
		case p.operator != nil:
			v, err := p.operator.Process(doc)
			if err != nil {
				return nil, err
			}

			value = v
		case p.expression != nil:
			v, err := p.expression.Evaluate(doc)
			if err == nil {
				value = v
			}
		case p.hasLiteral:
			value = p.literal
		}

		if types.IsMissing(value) {
			continue
		}

		out.Append(value)
	}

	return out, nil
}

// check interfaces
var (
	_ Accumulator = (*push)(nil)
)
