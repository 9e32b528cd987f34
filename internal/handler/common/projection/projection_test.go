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

package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/must"
)

func TestCompileRejectsMixedInclusionExclusion(t *testing.T) {
	t.Parallel()

	spec := must.NotFail(types.NewDocument("a", int32(1), "b", int32(0)))

	_, err := Compile(spec)
	require.Error(t, err)
}

func TestCompileAllowsIDExclusionWithInclusion(t *testing.T) {
	t.Parallel()

	spec := must.NotFail(types.NewDocument("a", int32(1), "_id", int32(0)))

	p, err := Compile(spec)
	require.NoError(t, err)

	doc := must.NotFail(types.NewDocument("_id", int32(1), "a", "x", "b", "y"))

	out, err := p.Apply(doc)
	require.NoError(t, err)

	assert.False(t, out.Has("_id"))
	assert.True(t, out.Has("a"))
	assert.False(t, out.Has("b"))
}

func TestExclusionProjection(t *testing.T) {
	t.Parallel()

	spec := must.NotFail(types.NewDocument("a", int32(0)))

	p, err := Compile(spec)
	require.NoError(t, err)

	doc := must.NotFail(types.NewDocument("_id", int32(1), "a", "x", "b", "y"))

	out, err := p.Apply(doc)
	require.NoError(t, err)

	assert.True(t, out.Has("_id"))
	assert.False(t, out.Has("a"))
	assert.True(t, out.Has("b"))
}

func TestComputedProjectionEvaluatesExpression(t *testing.T) {
	t.Parallel()

	spec := must.NotFail(types.NewDocument(
		"total", must.NotFail(types.NewDocument("$add", must.NotFail(types.NewArray("$a", "$b")))),
	))

	p, err := Compile(spec)
	require.NoError(t, err)

	doc := must.NotFail(types.NewDocument("_id", int32(1), "a", int32(2), "b", int32(3)))

	out, err := p.Apply(doc)
	require.NoError(t, err)

	total, err := out.Get("total")
	require.NoError(t, err)
	assert.Equal(t, int32(5), total)
}

func TestWithTextScoreProjectsMeta(t *testing.T) {
	t.Parallel()

	spec := must.NotFail(types.NewDocument(
		"score", must.NotFail(types.NewDocument("$meta", "textScore")),
	))

	p, err := Compile(spec)
	require.NoError(t, err)

	p.WithTextScore(2.5)

	doc := must.NotFail(types.NewDocument("_id", int32(1), "a", "x"))

	out, err := p.Apply(doc)
	require.NoError(t, err)

	score, err := out.Get("score")
	require.NoError(t, err)
	assert.Equal(t, 2.5, score)
}

func TestMetaTextScoreAbsentWithoutWithTextScore(t *testing.T) {
	t.Parallel()

	spec := must.NotFail(types.NewDocument(
		"score", must.NotFail(types.NewDocument("$meta", "textScore")),
	))

	p, err := Compile(spec)
	require.NoError(t, err)

	doc := must.NotFail(types.NewDocument("_id", int32(1), "a", "x"))

	out, err := p.Apply(doc)
	require.NoError(t, err)

	assert.False(t, out.Has("score"))
}
