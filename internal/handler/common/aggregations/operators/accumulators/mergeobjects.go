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

// mergeObjects represents the $mergeObjects accumulator: folds every
// document's evaluated expression (expected to be an object) into a single
// result, later documents' fields overwriting earlier ones.
type mergeObjects struct {
	expression *aggregations.Expression
	operator   operators.Operator
	literal    any
	hasLiteral bool
}

// newMergeObjects creates a new $mergeObjects accumulator.
func newMergeObjects(args ...any) (Accumulator, error) {
	if len(args) != 1 {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrStageGroupUnaryOperator,
			"The $mergeObjects accumulator is a unary operator",
			"$mergeObjects (accumulator)",
		)
	}

	m := new(mergeObjects)

	switch arg := args[0].(type) {
	case *types.Document:
		if !operators.IsOperator(arg) {
			m.literal = arg
			m.hasLiteral = true
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

		m.operator = op
	case string:
		expr, err := aggregations.NewExpression(arg, nil)
		if err != nil {
			m.literal = arg
			m.hasLiteral = true
			break
		}

		m.expression = expr
	default:
		m.literal = arg
		m.hasLiteral = true
	}

	return m, nil
}

// Accumulate implements Accumulator interface.
func (m *mergeObjects) Accumulate(iter types.DocumentsIterator) (any, error) {
	out := types.MakeDocument(0)

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
		case m.operator != nil:
			v, err := m.operator.Process(doc)
			if err != nil {
				return nil, err
			}

			value = v
		case m.expression != nil:
			v, err := m.expression.Evaluate(doc)
			if err != nil {
				continue
			}

			value = v
		case m.hasLiteral:
			value = m.literal
		}

		sub, ok := value.(*types.Document)
		if !ok {
			continue
		}

		for _, k := range sub.Keys() {
			v, _ := sub.Get(k)
			out.Set(k, v)
		}
	}

	return out, nil
}

// check interfaces
var (
	_ Accumulator = (*mergeObjects)(nil)
)
