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

package handlerparams

import (
	"errors"
	"math"

	"github.com/embeddocs/docstore/internal/types"
)

// Errors returned by GetWholeNumberParam.
var (
	// ErrUnexpectedType indicates that the value is not a number at all.
	ErrUnexpectedType = errors.New("handlerparams: value is not a number")

	// ErrNotWholeNumber indicates that a float value has a fractional part.
	ErrNotWholeNumber = errors.New("handlerparams: float value is not a whole number")

	// ErrLongExceededPositive indicates that a value is larger than math.MaxInt64.
	ErrLongExceededPositive = errors.New("handlerparams: value exceeds maximum int64")

	// ErrLongExceededNegative indicates that a value is smaller than math.MinInt64.
	ErrLongExceededNegative = errors.New("handlerparams: value exceeds minimum int64")

	// ErrIntExceeded indicates that a value doesn't fit into int32.
	ErrIntExceeded = errors.New("handlerparams: value exceeds int32 range")

	// ErrUnexpectedLeftOpType indicates that the left operand of an
	// arithmetic update operator ($inc, $mul) is not numeric.
	ErrUnexpectedLeftOpType = errors.New("handlerparams: left operand is not a number")

	// ErrUnexpectedRightOpType indicates that the right operand (the
	// existing document value) of an arithmetic update operator is not numeric.
	ErrUnexpectedRightOpType = errors.New("handlerparams: right operand is not a number")
)

// GetWholeNumberParam coerces v to an int64, accepting int32, int64, and
// float64 values that carry no fractional part (as used by sort order,
// $skip, $limit, and other parameters that accept a "numeric" BSON value
// but require it to represent a whole number).
func GetWholeNumberParam(v any) (int64, error) {
	switch v := v.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, ErrUnexpectedType
		}

		if v != math.Trunc(v) {
			return 0, ErrNotWholeNumber
		}

		if v > float64(math.MaxInt64) {
			return 0, ErrLongExceededPositive
		}

		if v < float64(math.MinInt64) {
			return 0, ErrLongExceededNegative
		}

		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, ErrUnexpectedType
	}
}

// AliasFromType returns the reference server's human-readable type alias
// for v (e.g. "double", "object", "long"), the same vocabulary as
// types.TypeName, used to name the offending type in error messages such
// as "has the field 'x' of non-numeric type double".
func AliasFromType(v any) string {
	if v == nil {
		return "null"
	}

	return types.TypeName(v)
}
