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

package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddocs/docstore/internal/backends"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/must"
)

// fakeCollection is a minimal backends.Collection double: Query returns its
// fixed docs, ListIndexes returns no indexes, and every other method panics
// since the stages under test never call them.
type fakeCollection struct {
	docs []*types.Document
}

func (c *fakeCollection) Query(context.Context, *backends.QueryParams) (*backends.QueryResult, error) {
	return &backends.QueryResult{Iter: aggregations.NewSliceIterator(c.docs)}, nil
}

func (c *fakeCollection) ListIndexes(context.Context, *backends.ListIndexesParams) (*backends.ListIndexesResult, error) {
	return &backends.ListIndexesResult{}, nil
}

func (c *fakeCollection) InsertAll(context.Context, *backends.InsertAllParams) (*backends.InsertAllResult, error) {
	panic("not used by these tests")
}

func (c *fakeCollection) UpdateAll(context.Context, *backends.UpdateAllParams) (*backends.UpdateAllResult, error) {
	panic("not used by these tests")
}

func (c *fakeCollection) DeleteAll(context.Context, *backends.DeleteAllParams) (*backends.DeleteAllResult, error) {
	panic("not used by these tests")
}

func (c *fakeCollection) Explain(context.Context, *backends.ExplainParams) (*backends.ExplainResult, error) {
	panic("not used by these tests")
}

func (c *fakeCollection) Stats(context.Context, *backends.CollectionStatsParams) (*backends.CollectionStatsResult, error) {
	panic("not used by these tests")
}

func (c *fakeCollection) Compact(context.Context, *backends.CompactParams) (*backends.CompactResult, error) {
	panic("not used by these tests")
}

func (c *fakeCollection) CreateIndexes(context.Context, *backends.CreateIndexesParams) (*backends.CreateIndexesResult, error) {
	panic("not used by these tests")
}

func (c *fakeCollection) DropIndexes(context.Context, *backends.DropIndexesParams) (*backends.DropIndexesResult, error) {
	panic("not used by these tests")
}

// fakeDatabase is a backends.Database double serving a fixed set of named
// collections.
type fakeDatabase struct {
	collections map[string]*fakeCollection
}

func (d *fakeDatabase) Collection(name string) backends.Collection {
	return d.collections[name]
}

func (d *fakeDatabase) ListCollections(context.Context, *backends.ListCollectionsParams) (*backends.ListCollectionsResult, error) { //nolint:lll // for readability
	panic("not used by these tests")
}

func (d *fakeDatabase) CreateCollection(context.Context, *backends.CreateCollectionParams) error {
	panic("not used by these tests")
}

func (d *fakeDatabase) DropCollection(context.Context, *backends.DropCollectionParams) error {
	panic("not used by these tests")
}

var (
	_ backends.Collection = (*fakeCollection)(nil)
	_ backends.Database   = (*fakeDatabase)(nil)
)

func processStage(t *testing.T, ctx context.Context, s aggregations.Stage, in []*types.Document) []*types.Document {
	t.Helper()

	closer := iterator.NewMultiCloser()
	defer closer.Close()

	out, err := s.Process(ctx, aggregations.NewSliceIterator(in), closer)
	require.NoError(t, err)

	docs, err := iterator.ConsumeValues(out)
	require.NoError(t, err)

	return docs
}

func TestFacetFansOutAndPreservesNames(t *testing.T) {
	t.Parallel()

	pipelineA := must.NotFail(types.NewArray(
		must.NotFail(types.NewDocument("$limit", int64(1))),
	))
	pipelineB := must.NotFail(types.NewArray(
		must.NotFail(types.NewDocument("$skip", int64(1))),
	))

	stage := must.NotFail(types.NewDocument(
		"$facet", must.NotFail(types.NewDocument("firstOnly", pipelineA, "rest", pipelineB)),
	))

	s, err := newFacet(stage)
	require.NoError(t, err)

	in := []*types.Document{
		must.NotFail(types.NewDocument("_id", int32(1))),
		must.NotFail(types.NewDocument("_id", int32(2))),
		must.NotFail(types.NewDocument("_id", int32(3))),
	}

	out := processStage(t, context.Background(), s, in)
	require.Len(t, out, 1)

	firstOnly, err := out[0].Get("firstOnly")
	require.NoError(t, err)
	assert.Equal(t, 1, firstOnly.(*types.Array).Len())

	rest, err := out[0].Get("rest")
	require.NoError(t, err)
	assert.Equal(t, 2, rest.(*types.Array).Len())
}

func TestLookupEqualityForm(t *testing.T) {
	t.Parallel()

	db := &fakeDatabase{collections: map[string]*fakeCollection{
		"orders": {docs: []*types.Document{
			must.NotFail(types.NewDocument("_id", int32(100), "customerID", int32(1))),
			must.NotFail(types.NewDocument("_id", int32(101), "customerID", int32(2))),
		}},
	}}

	stage := must.NotFail(types.NewDocument(
		"$lookup", must.NotFail(types.NewDocument(
			"from", "orders",
			"localField", "_id",
			"foreignField", "customerID",
			"as", "orders",
		)),
	))

	s, err := newLookup(stage)
	require.NoError(t, err)

	ctx := aggregations.ContextWithDatabase(context.Background(), db)

	in := []*types.Document{must.NotFail(types.NewDocument("_id", int32(1)))}

	out := processStage(t, ctx, s, in)
	require.Len(t, out, 1)

	orders, err := out[0].Get("orders")
	require.NoError(t, err)
	require.Equal(t, 1, orders.(*types.Array).Len())

	matched := must.NotFail(orders.(*types.Array).Get(0)).(*types.Document)
	assert.Equal(t, int32(100), must.NotFail(matched.Get("_id")))
}

func TestLookupPipelineFormUsesLetVars(t *testing.T) {
	t.Parallel()

	db := &fakeDatabase{collections: map[string]*fakeCollection{
		"orders": {docs: []*types.Document{
			must.NotFail(types.NewDocument("_id", int32(100), "customerID", int32(1))),
			must.NotFail(types.NewDocument("_id", int32(101), "customerID", int32(2))),
		}},
	}}

	pipeline := must.NotFail(types.NewArray(
		must.NotFail(types.NewDocument(
			"$match", must.NotFail(types.NewDocument(
				"$expr", must.NotFail(types.NewDocument(
					"$eq", must.NotFail(types.NewArray("$customerID", "$$cid")),
				)),
			)),
		)),
	))

	stage := must.NotFail(types.NewDocument(
		"$lookup", must.NotFail(types.NewDocument(
			"from", "orders",
			"let", must.NotFail(types.NewDocument("cid", "$_id")),
			"pipeline", pipeline,
			"as", "orders",
		)),
	))

	s, err := newLookup(stage)
	require.NoError(t, err)

	ctx := aggregations.ContextWithDatabase(context.Background(), db)

	in := []*types.Document{must.NotFail(types.NewDocument("_id", int32(2)))}

	out := processStage(t, ctx, s, in)
	require.Len(t, out, 1)

	orders, err := out[0].Get("orders")
	require.NoError(t, err)
	require.Equal(t, 1, orders.(*types.Array).Len())

	matched := must.NotFail(orders.(*types.Array).Get(0)).(*types.Document)
	assert.Equal(t, int32(101), must.NotFail(matched.Get("_id")))
}

func TestGraphLookupTraversesByDepth(t *testing.T) {
	t.Parallel()

	db := &fakeDatabase{collections: map[string]*fakeCollection{
		"employees": {docs: []*types.Document{
			must.NotFail(types.NewDocument("_id", int32(1), "name", "ceo")),
			must.NotFail(types.NewDocument("_id", int32(2), "name", "vp", "reportsTo", int32(1))),
			must.NotFail(types.NewDocument("_id", int32(3), "name", "manager", "reportsTo", int32(2))),
		}},
	}}

	stage := must.NotFail(types.NewDocument(
		"$graphLookup", must.NotFail(types.NewDocument(
			"from", "employees",
			"startWith", "$_id",
			"connectFromField", "reportsTo",
			"connectToField", "_id",
			"as", "chain",
		)),
	))

	s, err := newGraphLookup(stage)
	require.NoError(t, err)

	ctx := aggregations.ContextWithDatabase(context.Background(), db)

	in := []*types.Document{must.NotFail(types.NewDocument("_id", int32(3)))}

	out := processStage(t, ctx, s, in)
	require.Len(t, out, 1)

	chain, err := out[0].Get("chain")
	require.NoError(t, err)
	assert.Equal(t, 2, chain.(*types.Array).Len())
}

func TestVisitedKeyDistinguishesScalarAndCompoundIDs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, aggregations.CanonicalKey(int32(1)), visitedKey(int32(1)))

	compound := must.NotFail(types.NewDocument("a", int32(1), "b", int32(2)))
	key := visitedKey(compound)

	assert.NotEqual(t, aggregations.CanonicalKey(compound), key)
	assert.Equal(t, key, visitedKey(must.NotFail(types.NewDocument("a", int32(1), "b", int32(2)))))
}

func TestTextMustBeFirstPipelineStage(t *testing.T) {
	t.Parallel()

	textMatch := must.NotFail(types.NewDocument(
		"$match", must.NotFail(types.NewDocument(
			"$text", must.NotFail(types.NewDocument("$search", "fox")),
		)),
	))

	pipeline := must.NotFail(types.NewArray(
		must.NotFail(types.NewDocument("$limit", int64(1))),
		textMatch,
	))

	_, err := NewStages(pipeline)
	require.Error(t, err)

	pipeline2 := must.NotFail(types.NewArray(textMatch, must.NotFail(types.NewDocument("$limit", int64(1)))))

	_, err = NewStages(pipeline2)
	require.NoError(t, err)
}

func TestDeclinedStageFailsFast(t *testing.T) {
	t.Parallel()

	stage := must.NotFail(types.NewDocument("$densify", must.NotFail(types.NewDocument())))

	_, err := NewStage(stage)
	require.Error(t, err)
}
