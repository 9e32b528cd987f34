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

	"github.com/embeddocs/docstore/internal/handler/common"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators/accumulators"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// group represents $group stage.
type group struct {
	idExpr       any
	accumulators map[string]accumulators.Accumulator
	fieldOrder   []string
}

// newGroup creates a new $group stage.
func newGroup(stage *types.Document) (aggregations.Stage, error) {
	spec, err := common.GetRequiredParam[*types.Document](stage, "$group")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrTypeMismatch,
			"a group's fields must be specified in an object",
			"$group (stage)",
		)
	}

	idExpr, err := spec.Get("_id")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrStageGroupID, "a group specification must include an _id")
	}

	g := &group{idExpr: idExpr, accumulators: map[string]accumulators.Accumulator{}}

	for _, field := range spec.Keys() {
		if field == "_id" {
			continue
		}

		fieldSpec, _ := spec.Get(field)

		accDoc, ok := fieldSpec.(*types.Document)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsgWithArgument(
				handlererrors.ErrStageGroupInvalidAccumulator,
				"a group's field '"+field+"' must be defined as an expression inside an object",
				"$group (stage)",
			)
		}

		acc, err := accumulators.NewAccumulator(field, accDoc)
		if err != nil {
			return nil, err
		}

		g.accumulators[field] = acc
		g.fieldOrder = append(g.fieldOrder, field)
	}

	return g, nil
}

// Process implements Stage interface.
func (g *group) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	docs, err := iterator.ConsumeValues(iter)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	p := aggregations.NewPartitioner()
	idValues := map[string]any{}

	for _, doc := range docs {
		idVal, err := operators.NewContext(doc).Eval(g.idExpr)
		if err != nil {
			return nil, err
		}

		key := aggregations.CanonicalKey(idVal)

		if _, ok := idValues[key]; !ok {
			idValues[key] = idVal
		}

		p.Add(key, doc)
	}

	results := make([]*types.Document, 0, len(p.Keys()))

	for _, key := range p.Keys() {
		groupDocs := p.Partition(key)

		out := types.MakeDocument(len(g.fieldOrder) + 1)
		out.Set("_id", idValues[key])

		for _, field := range g.fieldOrder {
			val, err := g.accumulators[field].Accumulate(aggregations.NewSliceIterator(groupDocs))
			if err != nil {
				return nil, err
			}

			out.Set(field, val)
		}

		results = append(results, out)
	}

	return aggregations.NewSliceIterator(results), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*group)(nil)
)
