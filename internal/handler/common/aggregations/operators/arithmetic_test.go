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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/must"
)

// evalExpr builds {$op: args} and evaluates it against an empty document,
// the shape every $-operator test in this file needs.
func evalExpr(t *testing.T, op string, args ...any) (any, error) {
	t.Helper()

	var arg any

	switch len(args) {
	case 0:
		arg = must.NotFail(types.NewArray())
	case 1:
		arg = args[0]
	default:
		arg = must.NotFail(types.NewArray(args...))
	}

	expr := must.NotFail(types.NewDocument(op, arg))
	doc := must.NotFail(types.NewDocument())

	return Eval(expr, doc)
}

func TestTruncVsRound(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name    string
		op      string
		v       float64
		place   int64
		want    float64
	}{
		{name: "trunc positive", op: "$trunc", v: 2.9, place: 0, want: 2},
		{name: "trunc negative", op: "$trunc", v: -2.9, place: 0, want: -2},
		{name: "trunc place", op: "$trunc", v: 3.14159, place: 2, want: 3.14},
		{name: "round half to even down", op: "$round", v: 2.5, place: 0, want: 2},
		{name: "round half to even up", op: "$round", v: 3.5, place: 0, want: 4},
		{name: "round negative half to even", op: "$round", v: -2.5, place: 0, want: -2},
	} {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := evalExpr(t, tc.op, tc.v, tc.place)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTruncIntegerUnaffected(t *testing.T) {
	t.Parallel()

	// An integer operand at a non-negative place is returned unchanged,
	// matching $trunc's int32/int64 fast path.
	got, err := evalExpr(t, "$trunc", int32(7), int32(0))
	require.NoError(t, err)
	assert.Equal(t, int32(7), got)
}

func TestTruncNullPropagation(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$trunc", types.Null)
	require.NoError(t, err)
	assert.Equal(t, types.Null, got)
}

func TestModSignFollowsDividend(t *testing.T) {
	t.Parallel()

	// spec.md §8 scenario 2: $mod's result takes the sign of the dividend.
	got, err := evalExpr(t, "$mod", int32(-7), int32(3))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), got)

	got, err = evalExpr(t, "$mod", int32(7), int32(-3))
	require.NoError(t, err)
	assert.Equal(t, int32(1), got)
}

func TestModByZeroIsError(t *testing.T) {
	t.Parallel()

	_, err := evalExpr(t, "$mod", int32(7), int32(0))
	require.Error(t, err)
}

func TestDivideByZeroIsNull(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$divide", int32(7), int32(0))
	require.NoError(t, err)
	assert.Equal(t, types.Null, got)
}

func TestAddIntegerOverflowPromotesToInt64(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$add", int32(2147483647), int32(1))
	require.NoError(t, err)

	// int32 + int32 overflowing int32 promotes to int64, not float64.
	assert.Equal(t, int64(2147483648), got)
}

func TestMultiplyNarrowsBackToInt32(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$multiply", int32(2), int32(3))
	require.NoError(t, err)
	assert.Equal(t, int32(6), got)
}

func TestSqrtNegativeIsError(t *testing.T) {
	t.Parallel()

	_, err := evalExpr(t, "$sqrt", int32(-1))
	require.Error(t, err)
}

func TestAbsCeilFloor(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$abs", int32(-5))
	require.NoError(t, err)
	assert.Equal(t, int32(5), got)

	got, err = evalExpr(t, "$ceil", 2.1)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	got, err = evalExpr(t, "$floor", 2.9)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestArithmeticWrongArgCount(t *testing.T) {
	t.Parallel()

	_, err := evalExpr(t, "$subtract", int32(1))
	require.Error(t, err)

	_, err = evalExpr(t, "$pow", int32(1), int32(2), int32(3))
	require.Error(t, err)
}
