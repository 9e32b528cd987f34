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

func TestSizeAndArrayElemAt(t *testing.T) {
	t.Parallel()

	arr := must.NotFail(types.NewArray(int32(1), int32(2), int32(3)))

	got, err := evalExpr(t, "$size", arr)
	require.NoError(t, err)
	assert.Equal(t, int32(3), got)

	got, err = evalExpr(t, "$arrayElemAt", arr, int32(-1))
	require.NoError(t, err)
	assert.Equal(t, int32(3), got)
}

func TestMapAppliesExpressionPerElement(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())
	arr := must.NotFail(types.NewArray(int32(1), int32(2), int32(3)))

	expr := must.NotFail(types.NewDocument(
		"$map", must.NotFail(types.NewDocument(
			"input", arr,
			"in", must.NotFail(types.NewDocument("$multiply", must.NotFail(types.NewArray("$$this", int32(10))))),
		)),
	))

	got, err := Eval(expr, doc)
	require.NoError(t, err)

	out, ok := got.(*types.Array)
	require.True(t, ok)
	assert.Equal(t, int32(10), must.NotFail(out.Get(0)))
	assert.Equal(t, int32(20), must.NotFail(out.Get(1)))
	assert.Equal(t, int32(30), must.NotFail(out.Get(2)))
}

func TestFilterKeepsOnlyMatching(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())
	arr := must.NotFail(types.NewArray(int32(1), int32(2), int32(3), int32(4)))

	cond := must.NotFail(types.NewDocument(
		"$eq", must.NotFail(types.NewArray(
			must.NotFail(types.NewDocument("$mod", must.NotFail(types.NewArray("$$this", int32(2))))),
			int32(0),
		)),
	))

	expr := must.NotFail(types.NewDocument(
		"$filter", must.NotFail(types.NewDocument(
			"input", arr,
			"cond", cond,
		)),
	))

	got, err := Eval(expr, doc)
	require.NoError(t, err)

	out, ok := got.(*types.Array)
	require.True(t, ok)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, int32(2), must.NotFail(out.Get(0)))
	assert.Equal(t, int32(4), must.NotFail(out.Get(1)))
}

func TestReduceAccumulates(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())
	arr := must.NotFail(types.NewArray(int32(1), int32(2), int32(3)))

	expr := must.NotFail(types.NewDocument(
		"$reduce", must.NotFail(types.NewDocument(
			"input", arr,
			"initialValue", int32(0),
			"in", must.NotFail(types.NewDocument("$add", must.NotFail(types.NewArray("$$value", "$$this")))),
		)),
	))

	got, err := Eval(expr, doc)
	require.NoError(t, err)
	assert.Equal(t, int32(6), got)
}

func TestMapOnNullInputIsNull(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())

	expr := must.NotFail(types.NewDocument(
		"$map", must.NotFail(types.NewDocument(
			"input", types.Null,
			"in", "$$this",
		)),
	))

	got, err := Eval(expr, doc)
	require.NoError(t, err)
	assert.Equal(t, types.Null, got)
}
