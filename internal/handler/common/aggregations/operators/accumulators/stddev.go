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
	"math"

	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// stdDev implements both $stdDevPop and $stdDevSamp, using Welford's
// online algorithm so the whole group need not be held in memory to
// compute the variance.
type stdDev struct {
	expression *aggregations.Expression
	operator   operators.Operator
	sample     bool // true for $stdDevSamp, false for $stdDevPop
}

func newStdDev(name string, sample bool, args ...any) (Accumulator, error) {
	if len(args) != 1 {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrStageGroupUnaryOperator,
			"The "+name+" accumulator is a unary operator",
			name+" (accumulator)",
		)
	}

	s := &stdDev{sample: sample}

	switch arg := args[0].(type) {
	case *types.Document:
		if operators.IsOperator(arg) {
			op, err := operators.NewOperator(arg)
			if err != nil {
				var opErr operators.OperatorError
				if !errors.As(err, &opErr) {
					return nil, lazyerrors.Error(err)
				}

				return nil, opErr
			}

			s.operator = op
		}
	case string:
		expr, err := aggregations.NewExpression(arg, nil)
		if err == nil {
			s.expression = expr
		}
	}

	return s, nil
}

func newStdDevPop(args ...any) (Accumulator, error)  { return newStdDev("$stdDevPop", false, args...) }
func newStdDevSamp(args ...any) (Accumulator, error) { return newStdDev("$stdDevSamp", true, args...) }

// Accumulate implements Accumulator interface.
func (s *stdDev) Accumulate(iter types.DocumentsIterator) (any, error) {
	var n int

	var mean, m2 float64

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
		case s.operator != nil:
			v, err := s.operator.Process(doc)
			if err != nil {
				return nil, err
			}

			value = v
		case s.expression != nil:
			v, err := s.expression.Evaluate(doc)
			if err != nil {
				continue
			}

			value = v
		default:
			continue
		}

		x, ok := numericValue(value)
		if !ok {
			continue
		}

		n++
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}

	if n == 0 || (s.sample && n < 2) {
		return types.Null, nil
	}

	divisor := float64(n)
	if s.sample {
		divisor = float64(n - 1)
	}

	return math.Sqrt(m2 / divisor), nil
}

func numericValue(v any) (float64, bool) {
	switch v := v.(type) {
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// check interfaces
var (
	_ Accumulator = (*stdDev)(nil)
)
