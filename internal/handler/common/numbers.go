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

package common

import (
	"fmt"
	"math"

	"github.com/embeddocs/docstore/internal/handler/handlerparams"
)

// addNumbers adds a (typically an update operator's operand) to b
// (typically the document's current field value), preserving the widest
// of the two BSON numeric types the way the reference server's $inc does:
// int32+int32 promotes to int32 unless it overflows, in which case it
// promotes to int64; any operand being a float64 makes the result float64.
func addNumbers(a, b any) (any, error) {
	if !isNumber(a) {
		return nil, handlerparams.ErrUnexpectedLeftOpType
	}

	if !isNumber(b) {
		return nil, handlerparams.ErrUnexpectedRightOpType
	}

	if _, ok := a.(float64); ok {
		return toFloat(a) + toFloat(b), nil
	}

	if _, ok := b.(float64); ok {
		return toFloat(a) + toFloat(b), nil
	}

	if ai, aok := a.(int32); aok {
		if bi, bok := b.(int32); bok {
			sum := int64(ai) + int64(bi)
			if sum > math.MaxInt32 || sum < math.MinInt32 {
				return sum, nil
			}

			return int32(sum), nil
		}
	}

	ai, bi := toInt64(a), toInt64(b)

	sum, overflow := addInt64Overflows(ai, bi)
	if overflow {
		if ai > 0 && bi > 0 {
			return nil, handlerparams.ErrLongExceededPositive
		}

		return nil, handlerparams.ErrLongExceededNegative
	}

	return sum, nil
}

// multiplyNumbers multiplies a by b with the same type-promotion rules as addNumbers.
func multiplyNumbers(a, b any) (any, error) {
	if !isNumber(a) {
		return nil, handlerparams.ErrUnexpectedLeftOpType
	}

	if !isNumber(b) {
		return nil, handlerparams.ErrUnexpectedRightOpType
	}

	if _, ok := a.(float64); ok {
		return toFloat(a) * toFloat(b), nil
	}

	if _, ok := b.(float64); ok {
		return toFloat(a) * toFloat(b), nil
	}

	if ai, aok := a.(int32); aok {
		if bi, bok := b.(int32); bok {
			product := int64(ai) * int64(bi)
			if product > math.MaxInt32 || product < math.MinInt32 {
				return product, nil
			}

			return int32(product), nil
		}
	}

	ai, bi := toInt64(a), toInt64(b)

	product, overflow := mulInt64Overflows(ai, bi)
	if overflow {
		if (ai > 0) == (bi > 0) {
			return nil, handlerparams.ErrLongExceededPositive
		}

		return nil, handlerparams.ErrLongExceededNegative
	}

	return product, nil
}

// performBitLogic applies the named bitwise operator (and/or/xor) between
// value and docValue, both of which must be int32 or int64 (the $bit
// modifier does not accept floats).
func performBitLogic(op string, value, docValue any) (any, error) {
	if !isInteger(value) {
		return nil, handlerparams.ErrUnexpectedLeftOpType
	}

	if !isInteger(docValue) {
		return nil, handlerparams.ErrUnexpectedRightOpType
	}

	if v64, ok := value.(int64); ok {
		return applyBitOp(op, v64, toInt64(docValue))
	}

	if d64, ok := docValue.(int64); ok {
		return applyBitOp(op, toInt64(value), d64)
	}

	result, err := applyBitOp(op, int64(value.(int32)), int64(docValue.(int32)))
	if err != nil {
		return nil, err
	}

	return int32(result.(int64)), nil
}

func applyBitOp(op string, a, b int64) (any, error) {
	switch op {
	case "and":
		return a & b, nil
	case "or":
		return a | b, nil
	case "xor":
		return a ^ b, nil
	default:
		return nil, fmt.Errorf("common.performBitLogic: unknown operator %q", op)
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int32, int64, float64:
		return true
	default:
		return false
	}
}

func isInteger(v any) bool {
	switch v.(type) {
	case int32, int64:
		return true
	default:
		return false
	}
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
		panic("common.toFloat: not a number")
	}
}

func toInt64(v any) int64 {
	switch v := v.(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	default:
		panic("common.toInt64: not an integer")
	}
}

func addInt64Overflows(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, true
	}

	return sum, false
}

func mulInt64Overflows(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}

	product := a * b
	if product/b != a {
		return 0, true
	}

	return product, false
}
