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

package accumulators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/must"
)

// accumulate builds a {$op: arg} accumulator document, compiles it, and
// runs it against docs.
func accumulate(t *testing.T, op string, arg any, docs []*types.Document) (any, error) {
	t.Helper()

	accDoc := must.NotFail(types.NewDocument(op, arg))

	acc, err := NewAccumulator("field", accDoc)
	require.NoError(t, err)

	return acc.Accumulate(aggregations.NewSliceIterator(docs))
}

func TestNewAccumulatorRejectsEmptyOrMultiField(t *testing.T) {
	t.Parallel()

	_, err := NewAccumulator("field", must.NotFail(types.NewDocument()))
	require.Error(t, err)

	_, err = NewAccumulator("field", must.NotFail(types.NewDocument("$sum", int32(1), "$avg", int32(1))))
	require.Error(t, err)

	_, err = NewAccumulator("field", must.NotFail(types.NewDocument("$unknownAcc", int32(1))))
	require.Error(t, err)
}

func TestSumFieldExpression(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument("amount", int32(1))),
		must.NotFail(types.NewDocument("amount", int32(2))),
		must.NotFail(types.NewDocument("amount", int32(3))),
	}

	got, err := accumulate(t, "$sum", "$amount", docs)
	require.NoError(t, err)
	assert.Equal(t, int32(6), got)
}

func TestSumLiteralCountsDocuments(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument("a", int32(1))),
		must.NotFail(types.NewDocument("a", int32(2))),
	}

	got, err := accumulate(t, "$sum", int32(1), docs)
	require.NoError(t, err)
	assert.Equal(t, int32(2), got)
}

func TestAvgSkipsMissingFields(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument("score", int32(10))),
		must.NotFail(types.NewDocument("other", int32(1))),
		must.NotFail(types.NewDocument("score", int32(20))),
	}

	got, err := accumulate(t, "$avg", "$score", docs)
	require.NoError(t, err)
	assert.Equal(t, float64(15), got)
}

func TestFirstAndLastPickEndpoints(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument("v", int32(1))),
		must.NotFail(types.NewDocument("v", int32(2))),
		must.NotFail(types.NewDocument("v", int32(3))),
	}

	first, err := accumulate(t, "$first", "$v", docs)
	require.NoError(t, err)
	assert.Equal(t, int32(1), first)

	last, err := accumulate(t, "$last", "$v", docs)
	require.NoError(t, err)
	assert.Equal(t, int32(3), last)
}

func TestLastOnEmptyGroupIsNull(t *testing.T) {
	t.Parallel()

	got, err := accumulate(t, "$last", "$v", nil)
	require.NoError(t, err)
	assert.Equal(t, types.Null, got)
}

func TestMinMaxSkipMissingAndTrackExtremes(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument("v", int32(5))),
		must.NotFail(types.NewDocument("other", int32(1))),
		must.NotFail(types.NewDocument("v", int32(1))),
		must.NotFail(types.NewDocument("v", int32(9))),
	}

	min, err := accumulate(t, "$min", "$v", docs)
	require.NoError(t, err)
	assert.Equal(t, int32(1), min)

	max, err := accumulate(t, "$max", "$v", docs)
	require.NoError(t, err)
	assert.Equal(t, int32(9), max)
}

func TestPushKeepsDuplicatesAddToSetDoesNot(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument("tag", "a")),
		must.NotFail(types.NewDocument("tag", "b")),
		must.NotFail(types.NewDocument("tag", "a")),
	}

	pushed, err := accumulate(t, "$push", "$tag", docs)
	require.NoError(t, err)
	assert.Equal(t, 3, pushed.(*types.Array).Len())

	set, err := accumulate(t, "$addToSet", "$tag", docs)
	require.NoError(t, err)
	assert.Equal(t, 2, set.(*types.Array).Len())
}

func TestMergeObjectsLaterFieldsWin(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument("o", must.NotFail(types.NewDocument("a", int32(1), "b", int32(1))))),
		must.NotFail(types.NewDocument("o", must.NotFail(types.NewDocument("b", int32(2))))),
	}

	got, err := accumulate(t, "$mergeObjects", "$o", docs)
	require.NoError(t, err)

	out := got.(*types.Document)
	assert.Equal(t, int32(1), must.NotFail(out.Get("a")))
	assert.Equal(t, int32(2), must.NotFail(out.Get("b")))
}

func TestStdDevPopKnownValue(t *testing.T) {
	t.Parallel()

	// Population {2, 4, 4, 4, 5, 5, 7, 9} has stddev 2.
	docs := []*types.Document{}
	for _, v := range []int32{2, 4, 4, 4, 5, 5, 7, 9} {
		docs = append(docs, must.NotFail(types.NewDocument("v", v)))
	}

	got, err := accumulate(t, "$stdDevPop", "$v", docs)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, got.(float64), 0.0001)
}

func TestStdDevSampRequiresTwoSamples(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{must.NotFail(types.NewDocument("v", int32(5)))}

	got, err := accumulate(t, "$stdDevSamp", "$v", docs)
	require.NoError(t, err)
	assert.Equal(t, types.Null, got)
}

func TestCountAccumulatorIgnoresArgument(t *testing.T) {
	t.Parallel()

	docs := []*types.Document{
		must.NotFail(types.NewDocument()),
		must.NotFail(types.NewDocument()),
		must.NotFail(types.NewDocument()),
	}

	got, err := accumulate(t, "$count", must.NotFail(types.NewDocument()), docs)
	require.NoError(t, err)
	assert.Equal(t, int32(3), got)
}
