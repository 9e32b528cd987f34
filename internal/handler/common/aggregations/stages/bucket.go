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

// bucket represents $bucket stage: documents are sorted into buckets defined
// by an explicit, ascending boundaries array (spec.md §4.6 supplement).
type bucket struct {
	groupByExpr  any
	boundaries   []any
	hasDefault   bool
	defaultVal   any
	accumulators map[string]accumulators.Accumulator
	fieldOrder   []string
}

// newBucket creates a new $bucket stage.
func newBucket(stage *types.Document) (aggregations.Stage, error) {
	spec, err := common.GetRequiredParam[*types.Document](stage, "$bucket")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrTypeMismatch,
			"a $bucket specification must be an object",
			"$bucket (stage)",
		)
	}

	groupByExpr, err := spec.Get("groupBy")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$bucket requires 'groupBy' to be specified")
	}

	boundariesVal, err := spec.Get("boundaries")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$bucket requires 'boundaries' to be specified")
	}

	boundariesArr, ok := boundariesVal.(*types.Array)
	if !ok || boundariesArr.Len() < 2 {
		return nil, handlererrors.NewCommandErrorMsg(
			handlererrors.ErrBadValue,
			"$bucket 'boundaries' must be an array of at least 2 values",
		)
	}

	b := &bucket{groupByExpr: groupByExpr, accumulators: map[string]accumulators.Accumulator{}}

	for i := 0; i < boundariesArr.Len(); i++ {
		v, err := boundariesArr.Get(i)
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		b.boundaries = append(b.boundaries, v)
	}

	if def, err := spec.Get("default"); err == nil {
		b.hasDefault = true
		b.defaultVal = def
	}

	outputDoc, _ := spec.Get("output")
	outputSpec, _ := outputDoc.(*types.Document)

	if outputSpec == nil {
		outputSpec = must(types.NewDocument("count", must(types.NewDocument("$sum", int32(1)))))
	}

	for _, field := range outputSpec.Keys() {
		fieldSpec, _ := outputSpec.Get(field)

		accDoc, ok := fieldSpec.(*types.Document)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsgWithArgument(
				handlererrors.ErrStageGroupInvalidAccumulator,
				"a $bucket output field '"+field+"' must be defined as an expression inside an object",
				"$bucket (stage)",
			)
		}

		acc, err := accumulators.NewAccumulator(field, accDoc)
		if err != nil {
			return nil, err
		}

		b.accumulators[field] = acc
		b.fieldOrder = append(b.fieldOrder, field)
	}

	return b, nil
}

func must(d *types.Document, err error) *types.Document {
	if err != nil {
		panic(err)
	}

	return d
}

// bucketIndex returns the index of the boundary interval v falls into, or -1
// if v is outside [boundaries[0], boundaries[last]).
func (b *bucket) bucketIndex(v any) int {
	for i := 0; i < len(b.boundaries)-1; i++ {
		lo, hi := b.boundaries[i], b.boundaries[i+1]

		if types.Compare(v, lo) != types.Less && types.Compare(v, hi) == types.Less {
			return i
		}
	}

	return -1
}

// Process implements Stage interface.
func (b *bucket) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	docs, err := iterator.ConsumeValues(iter)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	p := aggregations.NewPartitioner()

	var order []string

	for _, doc := range docs {
		v, err := operators.NewContext(doc).Eval(b.groupByExpr)
		if err != nil {
			return nil, err
		}

		idx := b.bucketIndex(v)

		var key string

		switch {
		case idx >= 0:
			key = aggregations.CanonicalKey(b.boundaries[idx])
		case b.hasDefault:
			key = aggregations.CanonicalKey(b.defaultVal)
		default:
			return nil, handlererrors.NewCommandErrorMsg(
				handlererrors.ErrBadValue,
				"$bucket could not find a matching branch for an input, and no default was specified",
			)
		}

		if !contains(order, key) {
			order = append(order, key)
		}

		p.Add(key, doc)
	}

	results := make([]*types.Document, 0, len(order))

	for _, key := range order {
		groupDocs := p.Partition(key)

		out := types.MakeDocument(len(b.fieldOrder) + 1)
		out.Set("_id", idForKey(b, key))

		for _, field := range b.fieldOrder {
			val, err := b.accumulators[field].Accumulate(aggregations.NewSliceIterator(groupDocs))
			if err != nil {
				return nil, err
			}

			out.Set(field, val)
		}

		results = append(results, out)
	}

	return aggregations.NewSliceIterator(results), nil
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}

	return false
}

// idForKey resolves the canonical key back to its original boundary or
// default value for the output document's _id.
func idForKey(b *bucket, key string) any {
	for _, boundary := range b.boundaries {
		if aggregations.CanonicalKey(boundary) == key {
			return boundary
		}
	}

	if b.hasDefault && aggregations.CanonicalKey(b.defaultVal) == key {
		return b.defaultVal
	}

	return nil
}

// check interfaces
var (
	_ aggregations.Stage = (*bucket)(nil)
)
