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
	"math/rand"

	"github.com/embeddocs/docstore/internal/types"
)

var arithmeticOps = map[string]opFunc{
	"$add":      evalAdd,
	"$subtract": evalSubtract,
	"$multiply": evalMultiply,
	"$divide":   evalDivide,
	"$mod":      evalMod,
	"$abs":      unaryNumeric("$abs", math.Abs),
	"$ceil":     unaryNumeric("$ceil", math.Ceil),
	"$floor":    unaryNumeric("$floor", math.Floor),
	"$trunc":    evalTrunc,
	"$round":    evalRound,
	"$pow":      evalPow,
	"$sqrt":     unaryNumericErr("$sqrt", evalSqrt),
	"$exp":      unaryNumeric("$exp", math.Exp),
	"$ln":       unaryNumericErr("$ln", evalLn),
	"$log":      evalLog,
	"$log10":    unaryNumericErr("$log10", evalLog10),
	"$rand":     evalRand,
}

// numericOrNull errors if v is not numeric, but propagates Null for
// Null/Missing operands per spec.md §4.2's default null-propagation rule.
func numericOrNull(op string, v any) (any, bool, error) {
	if isNullish(v) {
		return types.Null, true, nil
	}

	if !isNumber(v) {
		return nil, false, fmt.Errorf("%s only supports numeric types, not %s", op, types.TypeName(v))
	}

	return v, false, nil
}

func evalAdd(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	result := any(int32(0))

	for _, a := range args {
		v, isNull, err := numericOrNull("$add", a)
		if err != nil {
			return nil, err
		}

		if isNull {
			return types.Null, nil
		}

		result = addNum(result, v)
	}

	return result, nil
}

func evalSubtract(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$subtract", "exactly 2", len(args))
	}

	a, isNull, err := numericOrNull("$subtract", args[0])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	b, isNull, err := numericOrNull("$subtract", args[1])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	return subNum(a, b), nil
}

func evalMultiply(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	result := any(int32(1))

	for _, a := range args {
		v, isNull, err := numericOrNull("$multiply", a)
		if err != nil {
			return nil, err
		}

		if isNull {
			return types.Null, nil
		}

		result = mulNum(result, v)
	}

	return result, nil
}

// evalDivide implements $divide; spec.md §4.2 records division by zero as
// an unresolved discrepancy between MongoDB versions and fixes the choice
// at Null (tentative — see DESIGN.md Open Question decisions).
func evalDivide(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$divide", "exactly 2", len(args))
	}

	a, isNull, err := numericOrNull("$divide", args[0])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	b, isNull, err := numericOrNull("$divide", args[1])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	if toFloat(b) == 0 {
		return types.Null, nil
	}

	return toFloat(a) / toFloat(b), nil
}

// evalMod implements $mod: the result takes the sign of the dividend
// (spec.md §8 scenario 2), and dividing by zero is a hard error, not Null.
func evalMod(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$mod", "exactly 2", len(args))
	}

	a, isNull, err := numericOrNull("$mod", args[0])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	b, isNull, err := numericOrNull("$mod", args[1])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	if _, aFloat := a.(float64); !aFloat {
		if _, bFloat := b.(float64); !bFloat {
			bi := toInt64Arith(b)
			if bi == 0 {
				return nil, fmt.Errorf("can't $mod by zero")
			}

			return normalizeInt(toInt64Arith(a) % bi), nil
		}
	}

	bf := toFloat(b)
	if bf == 0 {
		return nil, fmt.Errorf("can't $mod by zero")
	}

	return math.Mod(toFloat(a), bf), nil
}

func evalPow(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$pow", "exactly 2", len(args))
	}

	a, isNull, err := numericOrNull("$pow", args[0])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	b, isNull, err := numericOrNull("$pow", args[1])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	return math.Pow(toFloat(a), toFloat(b)), nil
}

func evalSqrt(v float64) (any, error) {
	if v < 0 {
		return nil, fmt.Errorf("$sqrt's argument must be greater than or equal to 0")
	}

	return math.Sqrt(v), nil
}

func evalLn(v float64) (any, error) {
	if v <= 0 {
		return nil, fmt.Errorf("$ln's argument must be a positive number")
	}

	return math.Log(v), nil
}

func evalLog10(v float64) (any, error) {
	if v <= 0 {
		return nil, fmt.Errorf("$log10's argument must be a positive number")
	}

	return math.Log10(v), nil
}

func evalLog(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$log", "exactly 2", len(args))
	}

	a, isNull, err := numericOrNull("$log", args[0])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	b, isNull, err := numericOrNull("$log", args[1])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	av, bv := toFloat(a), toFloat(b)
	if av <= 0 || bv <= 0 {
		return nil, fmt.Errorf("$log's argument must be a positive number")
	}

	return math.Log(av) / math.Log(bv), nil
}

// evalRound implements $round (banker's rounding at the given decimal
// place — spec.md §8 scenario 1 and §9's round-trip law); $trunc uses
// evalTrunc.
func evalRound(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) == 0 || len(args) > 2 {
		return nil, wrongArgCount("$round", "1 or 2", len(args))
	}

	a, isNull, err := numericOrNull("$round", args[0])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	place := int64(0)

	if len(args) == 2 {
		p, isNull, err := numericOrNull("$round", args[1])
		if err != nil {
			return nil, err
		}

		if isNull {
			return types.Null, nil
		}

		place = int64(toFloat(p))
	}

	switch a.(type) {
	case int32, int64:
		if place >= 0 {
			return a, nil
		}
	}

	r := BankersRound(toFloat(a), place)

	switch a.(type) {
	case int32:
		return int32(r), nil
	case int64:
		return int64(r), nil
	default:
		return r, nil
	}
}

func evalTrunc(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) == 0 || len(args) > 2 {
		return nil, wrongArgCount("$trunc", "1 or 2", len(args))
	}

	a, isNull, err := numericOrNull("$trunc", args[0])
	if err != nil {
		return nil, err
	}

	if isNull {
		return types.Null, nil
	}

	place := int64(0)

	if len(args) == 2 {
		p, isNull, err := numericOrNull("$trunc", args[1])
		if err != nil {
			return nil, err
		}

		if isNull {
			return types.Null, nil
		}

		place = int64(toFloat(p))
	}

	switch a.(type) {
	case int32, int64:
		if place >= 0 {
			return a, nil
		}
	}

	r := TruncateToZero(toFloat(a), place)

	switch a.(type) {
	case int32:
		return int32(r), nil
	case int64:
		return int64(r), nil
	default:
		return r, nil
	}
}

// TruncateToZero truncates v toward zero at place decimal digits, unlike
// BankersRound which rounds to nearest (spec.md §4.2's $trunc/$round split).
func TruncateToZero(v float64, place int64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}

	shift := math.Pow(10, float64(place))

	return math.Trunc(v*shift) / shift
}

// BankersRound rounds v to place decimal digits using round-half-to-even,
// matching the reference server's $round semantics exactly (spec.md §4.2).
func BankersRound(v float64, place int64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}

	shift := math.Pow(10, float64(place))
	shifted := v * shift

	floor := math.Floor(shifted)
	diff := shifted - floor

	var rounded float64

	switch {
	case diff < 0.5:
		rounded = floor
	case diff > 0.5:
		rounded = floor + 1
	default:
		// Exactly halfway: round to even.
		if math.Mod(floor, 2) == 0 {
			rounded = floor
		} else {
			rounded = floor + 1
		}
	}

	return rounded / shift
}

func evalRand(raw any, ctx *Context) (any, error) {
	return rand.Float64(), nil //nolint:gosec // $rand is not used for cryptographic purposes
}

// unaryNumeric wraps a pure float64->float64 math function into an opFunc,
// for operators with no error domain ($abs, $ceil, $floor, $exp).
func unaryNumeric(name string, f func(float64) float64) opFunc {
	return func(raw any, ctx *Context) (any, error) {
		args, err := evalArgs(raw, ctx)
		if err != nil {
			return nil, err
		}

		if len(args) != 1 {
			return nil, wrongArgCount(name, "exactly 1", len(args))
		}

		v, isNull, err := numericOrNull(name, args[0])
		if err != nil {
			return nil, err
		}

		if isNull {
			return types.Null, nil
		}

		r := f(toFloat(v))

		switch v.(type) {
		case int32:
			return int32(r), nil
		case int64:
			return int64(r), nil
		default:
			return r, nil
		}
	}
}

// unaryNumericErr is like unaryNumeric but for domain-restricted operators
// ($sqrt, $ln, $log10) that can fail.
func unaryNumericErr(name string, f func(float64) (any, error)) opFunc {
	return func(raw any, ctx *Context) (any, error) {
		args, err := evalArgs(raw, ctx)
		if err != nil {
			return nil, err
		}

		if len(args) != 1 {
			return nil, wrongArgCount(name, "exactly 1", len(args))
		}

		v, isNull, err := numericOrNull(name, args[0])
		if err != nil {
			return nil, err
		}

		if isNull {
			return types.Null, nil
		}

		return f(toFloat(v))
	}
}

// addNum, subNum, mulNum implement BSON numeric promotion: float64 is
// contagious, otherwise int64 overflow promotes to float64, otherwise
// int32 overflow promotes to int64.
func addNum(a, b any) any {
	if af, ok := a.(float64); ok {
		return af + toFloat(b)
	}

	if bf, ok := b.(float64); ok {
		return toFloat(a) + bf
	}

	ai, bi := toInt64Arith(a), toInt64Arith(b)
	sum := ai + bi

	if (sum > ai) != (bi > 0) {
		return toFloat(a) + toFloat(b)
	}

	return normalizeInt(sum)
}

func subNum(a, b any) any {
	if af, ok := a.(float64); ok {
		return af - toFloat(b)
	}

	if bf, ok := b.(float64); ok {
		return toFloat(a) - bf
	}

	return normalizeInt(toInt64Arith(a) - toInt64Arith(b))
}

func mulNum(a, b any) any {
	if af, ok := a.(float64); ok {
		return af * toFloat(b)
	}

	if bf, ok := b.(float64); ok {
		return toFloat(a) * bf
	}

	ai, bi := toInt64Arith(a), toInt64Arith(b)

	if ai != 0 && bi != 0 {
		p := ai * bi
		if p/bi != ai {
			return toFloat(a) * toFloat(b)
		}

		return normalizeInt(p)
	}

	return normalizeInt(ai * bi)
}

func toInt64Arith(v any) int64 {
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

// normalizeInt narrows i back to int32 when it fits, matching the reference
// server's habit of returning the narrowest integer type that holds the
// result.
func normalizeInt(i int64) any {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return int32(i)
	}

	return i
}
