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

func TestCondArrayForm(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())

	expr := must.NotFail(types.NewDocument(
		"$cond", must.NotFail(types.NewArray(true, "yes", "no")),
	))

	got, err := Eval(expr, doc)
	require.NoError(t, err)
	assert.Equal(t, "yes", got)
}

func TestCondDocumentForm(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())

	expr := must.NotFail(types.NewDocument(
		"$cond", must.NotFail(types.NewDocument(
			"if", false,
			"then", "yes",
			"else", "no",
		)),
	))

	got, err := Eval(expr, doc)
	require.NoError(t, err)
	assert.Equal(t, "no", got)
}

func TestIfNullStopsAtFirstNonNull(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())

	expr := must.NotFail(types.NewDocument(
		"$ifNull", must.NotFail(types.NewArray(types.Null, "fallback", "unused")),
	))

	got, err := Eval(expr, doc)
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)
}

func TestSwitchFallsThroughToDefault(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())

	branch := must.NotFail(types.NewDocument("case", false, "then", "nope"))
	expr := must.NotFail(types.NewDocument(
		"$switch", must.NotFail(types.NewDocument(
			"branches", must.NotFail(types.NewArray(branch)),
			"default", "fallback",
		)),
	))

	got, err := Eval(expr, doc)
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)
}

func TestSwitchNoMatchNoDefaultErrors(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())

	branch := must.NotFail(types.NewDocument("case", false, "then", "nope"))
	expr := must.NotFail(types.NewDocument(
		"$switch", must.NotFail(types.NewDocument(
			"branches", must.NotFail(types.NewArray(branch)),
		)),
	))

	_, err := Eval(expr, doc)
	require.Error(t, err)
}

func TestLetBindsVariable(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())

	expr := must.NotFail(types.NewDocument(
		"$let", must.NotFail(types.NewDocument(
			"vars", must.NotFail(types.NewDocument("x", int32(5))),
			"in", "$$x",
		)),
	))

	got, err := Eval(expr, doc)
	require.NoError(t, err)
	assert.Equal(t, int32(5), got)
}
