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
	"math"

	"github.com/embeddocs/docstore/internal/types"
)

var trigOps = map[string]opFunc{
	"$sin":              unaryNumericErr("$sin", boundedTrig("$sin", math.Sin, nil)),
	"$cos":              unaryNumericErr("$cos", boundedTrig("$cos", math.Cos, nil)),
	"$tan":              unaryNumericErr("$tan", boundedTrig("$tan", math.Tan, nil)),
	"$asin":             unaryNumericErr("$asin", boundedTrig("$asin", math.Asin, inUnitRange)),
	"$acos":             unaryNumericErr("$acos", boundedTrig("$acos", math.Acos, inUnitRange)),
	"$atan":             unaryNumericErr("$atan", boundedTrig("$atan", math.Atan, nil)),
	"$atan2":            evalAtan2,
	"$sinh":             unaryNumericErr("$sinh", boundedTrig("$sinh", math.Sinh, nil)),
	"$cosh":             unaryNumericErr("$cosh", boundedTrig("$cosh", math.Cosh, nil)),
	"$tanh":             unaryNumericErr("$tanh", boundedTrig("$tanh", math.Tanh, nil)),
	"$asinh":            unaryNumericErr("$asinh", boundedTrig("$asinh", math.Asinh, nil)),
	"$acosh":            unaryNumericErr("$acosh", boundedTrig("$acosh", math.Acosh, atLeastOne)),
	"$atanh":            unaryNumericErr("$atanh", boundedTrig("$atanh", math.Atanh, inUnitRange)),
	"$degreesToRadians": unaryNumeric("$degreesToRadians", func(v float64) float64 { return v * math.Pi / 180 }),
	"$radiansToDegrees": unaryNumeric("$radiansToDegrees", func(v float64) float64 { return v * 180 / math.Pi }),
}

// inUnitRange rejects operands outside [-1, 1], the domain of $asin/$acos/$atanh.
func inUnitRange(v float64) error {
	if v < -1 || v > 1 {
		return fmt.Errorf("cannot apply function to value outside of [-1, 1] range")
	}

	return nil
}

// atLeastOne rejects operands below 1, the domain of $acosh.
func atLeastOne(v float64) error {
	if v < 1 {
		return fmt.Errorf("cannot apply function to value less than 1")
	}

	return nil
}

// boundedTrig wraps a math trig function with an optional domain guard,
// returning the spec.md §4.2 domain-violation error instead of a silent
// NaN when the guard rejects the operand.
func boundedTrig(name string, f func(float64) float64, guard func(float64) error) func(float64) (any, error) {
	return func(v float64) (any, error) {
		if guard != nil {
			if err := guard(v); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}

		return f(v), nil
	}
}

func evalAtan2(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$atan2", "exactly 2", len(args))
	}

	if isNullish(args[0]) || isNullish(args[1]) {
		return types.Null, nil
	}

	if !isNumber(args[0]) || !isNumber(args[1]) {
		return nil, fmt.Errorf("$atan2 only supports numeric types")
	}

	return math.Atan2(toFloat(args[0]), toFloat(args[1])), nil
}
