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

func TestAndOrShortCircuit(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())

	// $and stops at the first falsy operand; a later $mod-by-zero operand
	// would error if evaluated, so the absence of an error proves the
	// short circuit.
	bad := must.NotFail(types.NewDocument("$mod", must.NotFail(types.NewArray(int32(1), int32(0)))))

	expr := must.NotFail(types.NewDocument("$and", must.NotFail(types.NewArray(false, bad))))
	got, err := Eval(expr, doc)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	expr = must.NotFail(types.NewDocument("$or", must.NotFail(types.NewArray(true, bad))))
	got, err = Eval(expr, doc)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestAndOrTruthy(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$and", int32(1), "x")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = evalExpr(t, "$and", int32(1), int32(0))
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = evalExpr(t, "$or", int32(0), false)
	require.NoError(t, err)
	assert.Equal(t, false, got)
}

func TestNot(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$not", true)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = evalExpr(t, "$not", int32(0))
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestNotWrongArgCount(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())
	expr := must.NotFail(types.NewDocument("$not", must.NotFail(types.NewArray(true, false))))

	_, err := Eval(expr, doc)
	require.Error(t, err)
}
