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
)

func TestComparisonOps(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		op   string
		a, b any
		want bool
	}{
		{op: "$eq", a: int32(1), b: int32(1), want: true},
		{op: "$eq", a: int32(1), b: int32(2), want: false},
		{op: "$ne", a: int32(1), b: int32(2), want: true},
		{op: "$gt", a: int32(2), b: int32(1), want: true},
		{op: "$gte", a: int32(1), b: int32(1), want: true},
		{op: "$lt", a: int32(1), b: int32(2), want: true},
		{op: "$lte", a: int32(1), b: int32(1), want: true},
		// BSON total order crosses types, unlike $eq's usual same-type notion.
		{op: "$lt", a: int32(1), b: "a", want: true},
	} {
		tc := tc

		t.Run(tc.op, func(t *testing.T) {
			t.Parallel()

			got, err := evalExpr(t, tc.op, tc.a, tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCmpPropagatesNull(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$cmp", types.Null, int32(1))
	require.NoError(t, err)
	assert.Equal(t, types.Null, got)
}

func TestCmpOrdering(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$cmp", int32(1), int32(2))
	require.NoError(t, err)
	assert.Equal(t, int32(-1), got)

	got, err = evalExpr(t, "$cmp", int32(2), int32(2))
	require.NoError(t, err)
	assert.Equal(t, int32(0), got)

	got, err = evalExpr(t, "$cmp", int32(3), int32(2))
	require.NoError(t, err)
	assert.Equal(t, int32(1), got)
}

func TestEqDoesNotPropagateNull(t *testing.T) {
	t.Parallel()

	// Unlike $cmp, $eq/$ne compare Null as an ordinary BSON value.
	got, err := evalExpr(t, "$eq", types.Null, types.Null)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}
