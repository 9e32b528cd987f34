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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/must"
)

func TestValidateOperatorKeys(t *testing.T) {
	t.Parallel()

	for i, tc := range []struct {
		paths []string
		ok    bool
	}{
		{paths: []string{"v.foo.bar", "v.bar.foo"}, ok: true},
		{paths: []string{"v.foo", "v.foo.bar"}},
		{paths: []string{"v.foo", "v"}},
		{paths: []string{"v", "v"}},
		{paths: []string{"v", "foo"}, ok: true},
	} {
		tc := tc

		t.Run(fmt.Sprint(i), func(t *testing.T) {
			t.Parallel()

			doc := must.NotFail(types.NewDocument())
			for _, p := range tc.paths {
				doc.Set(p, int32(1))
			}

			err := validateOperatorKeys("update", doc)
			if tc.ok {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
		})
	}
}

func TestResolveUpdatePaths(t *testing.T) {
	t.Parallel()

	t.Run("NoToken", func(t *testing.T) {
		t.Parallel()

		doc := must.NotFail(types.NewDocument("a", int32(1)))

		paths, err := resolveUpdatePaths(doc, "a.b", nil)
		require.NoError(t, err)
		require.Len(t, paths, 1)
		require.Equal(t, "a.b", paths[0].String())
	})

	t.Run("BarePositionalWithoutMatch", func(t *testing.T) {
		t.Parallel()

		doc := must.NotFail(types.NewDocument("a", must.NotFail(types.NewArray(int32(1), int32(2)))))

		_, err := resolveUpdatePaths(doc, "a.$", nil)
		require.Error(t, err)
	})

	t.Run("BarePositionalWithMatch", func(t *testing.T) {
		t.Parallel()

		doc := must.NotFail(types.NewDocument("a", must.NotFail(types.NewArray(int32(1), int32(2)))))

		ctx, err := NewPositionalContext("1", true, nil)
		require.NoError(t, err)

		paths, err := resolveUpdatePaths(doc, "a.$", ctx)
		require.NoError(t, err)
		require.Len(t, paths, 1)
		require.Equal(t, "a.1", paths[0].String())
	})

	t.Run("AllPositional", func(t *testing.T) {
		t.Parallel()

		arr := must.NotFail(types.NewArray(int32(1), int32(2), int32(3)))
		doc := must.NotFail(types.NewDocument("a", arr))

		paths, err := resolveUpdatePaths(doc, "a.$[]", nil)
		require.NoError(t, err)
		require.Len(t, paths, 3)
		require.Equal(t, "a.0", paths[0].String())
		require.Equal(t, "a.2", paths[2].String())
	})

	t.Run("ArrayFilterIdentifier", func(t *testing.T) {
		t.Parallel()

		elem1 := must.NotFail(types.NewDocument("score", int32(50)))
		elem2 := must.NotFail(types.NewDocument("score", int32(90)))
		arr := must.NotFail(types.NewArray(elem1, elem2))
		doc := must.NotFail(types.NewDocument("grades", arr))

		filter := must.NotFail(types.NewDocument("x.score", must.NotFail(types.NewDocument("$gt", int32(80)))))
		arrayFilters := must.NotFail(types.NewArray(filter))

		ctx, err := NewPositionalContext("", false, arrayFilters)
		require.NoError(t, err)

		paths, err := resolveUpdatePaths(doc, "grades.$[x].score", ctx)
		require.NoError(t, err)
		require.Len(t, paths, 1)
		require.Equal(t, "grades.1.score", paths[0].String())
	})

	t.Run("UnknownIdentifier", func(t *testing.T) {
		t.Parallel()

		arr := must.NotFail(types.NewArray(int32(1)))
		doc := must.NotFail(types.NewDocument("a", arr))

		_, err := resolveUpdatePaths(doc, "a.$[missing]", nil)
		require.Error(t, err)
	})
}

func TestProcessIncFieldExpression(t *testing.T) {
	t.Parallel()

	t.Run("ExistingField", func(t *testing.T) {
		t.Parallel()

		doc := must.NotFail(types.NewDocument("v", int32(10), "_id", int32(1)))
		update := must.NotFail(types.NewDocument("v", int32(5)))

		changed, err := processIncFieldExpression("update", doc, update, nil)
		require.NoError(t, err)
		require.True(t, changed)

		v := must.NotFail(doc.Get("v"))
		require.Equal(t, int32(15), v)
	})

	t.Run("MissingFieldInitializes", func(t *testing.T) {
		t.Parallel()

		doc := must.NotFail(types.NewDocument("_id", int32(1)))
		update := must.NotFail(types.NewDocument("v", int32(5)))

		changed, err := processIncFieldExpression("update", doc, update, nil)
		require.NoError(t, err)
		require.True(t, changed)

		v := must.NotFail(doc.Get("v"))
		require.Equal(t, int32(5), v)
	})

	t.Run("NonNumericRejected", func(t *testing.T) {
		t.Parallel()

		doc := must.NotFail(types.NewDocument("v", "not a number", "_id", int32(1)))
		update := must.NotFail(types.NewDocument("v", int32(5)))

		_, err := processIncFieldExpression("update", doc, update, nil)
		require.Error(t, err)
	})
}

func TestProcessMulFieldExpressionMissingInitializesToZero(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument("_id", int32(1)))
	update := must.NotFail(types.NewDocument("v", int32(5)))

	changed, err := processMulFieldExpression("update", doc, update, nil)
	require.NoError(t, err)
	require.True(t, changed)

	v := must.NotFail(doc.Get("v"))
	require.Equal(t, int32(0), v)
}

func TestProcessPushArrayUpdateExpression(t *testing.T) {
	t.Parallel()

	t.Run("Simple", func(t *testing.T) {
		t.Parallel()

		doc := must.NotFail(types.NewDocument("a", must.NotFail(types.NewArray(int32(1)))))

		changed, err := processPushArrayUpdateExpression("update", doc, "a", int32(2), nil)
		require.NoError(t, err)
		require.True(t, changed)

		arr := must.NotFail(doc.Get("a")).(*types.Array)
		require.Equal(t, 2, arr.Len())
		require.Equal(t, int32(2), must.NotFail(arr.Get(1)))
	})

	t.Run("EachPositionSliceSort", func(t *testing.T) {
		t.Parallel()

		doc := must.NotFail(types.NewDocument("a", must.NotFail(types.NewArray(int32(10), int32(20)))))

		pushVal := must.NotFail(types.NewDocument(
			"$each", must.NotFail(types.NewArray(int32(5), int32(15))),
			"$sort", int32(1),
			"$slice", int32(3),
		))

		changed, err := processPushArrayUpdateExpression("update", doc, "a", pushVal, nil)
		require.NoError(t, err)
		require.True(t, changed)

		arr := must.NotFail(doc.Get("a")).(*types.Array)
		require.Equal(t, 3, arr.Len())
		require.Equal(t, int32(5), must.NotFail(arr.Get(0)))
		require.Equal(t, int32(10), must.NotFail(arr.Get(1)))
		require.Equal(t, int32(15), must.NotFail(arr.Get(2)))
	})
}

func TestProcessPullArrayUpdateExpression(t *testing.T) {
	t.Parallel()

	t.Run("ScalarEquality", func(t *testing.T) {
		t.Parallel()

		doc := must.NotFail(types.NewDocument("a", must.NotFail(types.NewArray(int32(1), int32(2), int32(1)))))

		changed, err := processPullArrayUpdateExpression("update", doc, "a", int32(1), nil)
		require.NoError(t, err)
		require.True(t, changed)

		arr := must.NotFail(doc.Get("a")).(*types.Array)
		require.Equal(t, 1, arr.Len())
		require.Equal(t, int32(2), must.NotFail(arr.Get(0)))
	})

	t.Run("QueryPredicate", func(t *testing.T) {
		t.Parallel()

		doc := must.NotFail(types.NewDocument("a", must.NotFail(types.NewArray(int32(1), int32(5), int32(10)))))

		cond := must.NotFail(types.NewDocument("$gte", int32(5)))

		changed, err := processPullArrayUpdateExpression("update", doc, "a", cond, nil)
		require.NoError(t, err)
		require.True(t, changed)

		arr := must.NotFail(doc.Get("a")).(*types.Array)
		require.Equal(t, 1, arr.Len())
		require.Equal(t, int32(1), must.NotFail(arr.Get(0)))
	})
}

func TestSetByPathThroughArray(t *testing.T) {
	t.Parallel()

	elem := must.NotFail(types.NewDocument("b", int32(1)))
	arr := must.NotFail(types.NewArray(elem))
	doc := must.NotFail(types.NewDocument("a", arr))

	path, err := types.NewPathFromString("a.0.b")
	require.NoError(t, err)

	err = doc.SetByPath(path, int32(42))
	require.NoError(t, err)

	v, err := doc.GetByPath(path)
	require.NoError(t, err)
	require.Equal(t, int32(42), v)
}

func TestProcessSetFieldExpressionWithPositional(t *testing.T) {
	t.Parallel()

	arr := must.NotFail(types.NewArray(
		must.NotFail(types.NewDocument("score", int32(1))),
		must.NotFail(types.NewDocument("score", int32(2))),
	))
	doc := must.NotFail(types.NewDocument("grades", arr))

	ctx, err := NewPositionalContext("1", true, nil)
	require.NoError(t, err)

	setDoc := must.NotFail(types.NewDocument("grades.$.score", int32(99)))

	changed, err := processSetFieldExpression("update", doc, setDoc, false, ctx)
	require.NoError(t, err)
	require.True(t, changed)

	gradesArr := must.NotFail(doc.Get("grades")).(*types.Array)
	updated := must.NotFail(gradesArr.Get(1)).(*types.Document)
	require.Equal(t, int32(99), must.NotFail(updated.Get("score")))
}

func TestBuildPositionalContextArrayFiltersDuplicateIdentifier(t *testing.T) {
	t.Parallel()

	f1 := must.NotFail(types.NewDocument("x.score", int32(1)))
	f2 := must.NotFail(types.NewDocument("x.grade", int32(2)))
	arrayFilters := must.NotFail(types.NewArray(f1, f2))

	_, err := NewPositionalContext("", false, arrayFilters)
	require.Error(t, err)

	var cmdErr *handlererrors.CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, handlererrors.ErrBadValue, cmdErr.Code())
}
