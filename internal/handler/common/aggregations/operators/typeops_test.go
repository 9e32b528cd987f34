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

func TestTypeName(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		v    any
		want string
	}{
		{v: int32(1), want: "int"},
		{v: "s", want: "string"},
		{v: true, want: "bool"},
		{v: types.Missing, want: "missing"},
	} {
		tc := tc

		t.Run(tc.want, func(t *testing.T) {
			t.Parallel()

			got, err := evalExpr(t, "$type", tc.v)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsNumber(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$isNumber", int32(1))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = evalExpr(t, "$isNumber", "1")
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestToBoolCoercion(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$toBool", int32(0))
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = evalExpr(t, "$toBool", "anything")
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestToIntFromDouble(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$toInt", 3.9)
	require.NoError(t, err)
	assert.Equal(t, int32(3), got)
}

func TestConvertNullPropagation(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$toInt", types.Null)
	require.NoError(t, err)
	assert.Equal(t, types.Null, got)
}
