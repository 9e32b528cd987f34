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

	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/must"
)

func TestSetWindowFieldsPartitionTotal(t *testing.T) {
	t.Parallel()

	stage := must.NotFail(types.NewDocument(
		"$setWindowFields", must.NotFail(types.NewDocument(
			"partitionBy", "$team",
			"output", must.NotFail(types.NewDocument(
				"teamTotal", must.NotFail(types.NewDocument("$sum", "$score")),
			)),
		)),
	))

	s, err := newSetWindowFields(stage)
	require.NoError(t, err)

	in := []*types.Document{
		must.NotFail(types.NewDocument("_id", int32(1), "team", "a", "score", int32(10))),
		must.NotFail(types.NewDocument("_id", int32(2), "team", "b", "score", int32(5))),
		must.NotFail(types.NewDocument("_id", int32(3), "team", "a", "score", int32(20))),
	}

	out := processStage(t, context.Background(), s, in)
	require.Len(t, out, 3)

	assert.Equal(t, int32(30), must.NotFail(out[0].Get("teamTotal")))
	assert.Equal(t, int32(5), must.NotFail(out[1].Get("teamTotal")))
	assert.Equal(t, int32(30), must.NotFail(out[2].Get("teamTotal")))

	// original document order is preserved.
	assert.Equal(t, int32(1), must.NotFail(out[0].Get("_id")))
	assert.Equal(t, int32(2), must.NotFail(out[1].Get("_id")))
	assert.Equal(t, int32(3), must.NotFail(out[2].Get("_id")))
}

func TestSetWindowFieldsNoPartitionByIsOnePartition(t *testing.T) {
	t.Parallel()

	stage := must.NotFail(types.NewDocument(
		"$setWindowFields", must.NotFail(types.NewDocument(
			"output", must.NotFail(types.NewDocument(
				"total", must.NotFail(types.NewDocument("$sum", "$v")),
			)),
		)),
	))

	s, err := newSetWindowFields(stage)
	require.NoError(t, err)

	in := []*types.Document{
		must.NotFail(types.NewDocument("v", int32(1))),
		must.NotFail(types.NewDocument("v", int32(2))),
		must.NotFail(types.NewDocument("v", int32(3))),
	}

	out := processStage(t, context.Background(), s, in)
	require.Len(t, out, 3)

	for _, doc := range out {
		assert.Equal(t, int32(6), must.NotFail(doc.Get("total")))
	}
}
