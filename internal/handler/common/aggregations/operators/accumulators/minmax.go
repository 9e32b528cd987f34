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

// minmax implements both $min and $max: they differ only in which side of
// types.CompareOrder a new candidate must fall on to replace the running
// extreme, so one type backs both accumulators.
type minmax struct {
	name       string
	expression *aggregations.Expression
	operator   operators.Operator
	literal    any
	hasLiteral bool
	wantLess   bool // true for $min, false for $max
}

func newExtremum(name string, wantLess bool, args ...any) (Accumulator, error) {
	if len(args) != 1 {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrStageGroupUnaryOperator,
			"The "+name+" accumulator is a unary operator",
			name+" (accumulator)",
		)
	}

	m := &minmax{name: name, wantLess: wantLess}

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

func newMin(args ...any) (Accumulator, error) { return newExtremum("$min", true, args...) }
func newMax(args ...any) (Accumulator, error) { return newExtremum("$max", false, args...) }

// Accumulate implements Accumulator interface.
func (m *minmax) Accumulate(iter types.DocumentsIterator) (any, error) {
	var best any

	var seen bool

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
				// $min/$max skip documents where the field is missing.
				continue
			}

			value = v
		case m.hasLiteral:
			value = m.literal
		}

		if types.IsMissing(value) {
			continue
		}

		if !seen {
			best = value
			seen = true

			continue
		}

		cmp := types.CompareOrder(value, best, types.Ascending)

		if (m.wantLess && cmp == types.Less) || (!m.wantLess && cmp == types.Greater) {
			best = value
		}
	}

	if !seen {
		return types.Null, nil
	}

	return best, nil
}

// check interfaces
var (
	_ Accumulator = (*minmax)(nil)
)
