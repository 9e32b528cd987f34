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
	"sort"

	"github.com/embeddocs/docstore/internal/handler/common"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators/accumulators"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/handler/handlerparams"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// bucketAuto represents $bucketAuto stage: documents are divided into a
// requested number of roughly equi-populated buckets, boundaries chosen from
// the observed groupBy values (spec.md §4.6 supplement).
type bucketAuto struct {
	groupByExpr  any
	buckets      int
	accumulators map[string]accumulators.Accumulator
	fieldOrder   []string
}

// newBucketAuto creates a new $bucketAuto stage.
func newBucketAuto(stage *types.Document) (aggregations.Stage, error) {
	spec, err := common.GetRequiredParam[*types.Document](stage, "$bucketAuto")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrTypeMismatch,
			"a $bucketAuto specification must be an object",
			"$bucketAuto (stage)",
		)
	}

	groupByExpr, err := spec.Get("groupBy")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$bucketAuto requires 'groupBy' to be specified")
	}

	bucketsVal, err := spec.Get("buckets")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$bucketAuto requires 'buckets' to be specified")
	}

	n, err := handlerparams.GetWholeNumberParam(bucketsVal)
	if err != nil || n <= 0 {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$bucketAuto 'buckets' must be a positive integer")
	}

	ba := &bucketAuto{groupByExpr: groupByExpr, buckets: int(n), accumulators: map[string]accumulators.Accumulator{}}

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
				"a $bucketAuto output field '"+field+"' must be defined as an expression inside an object",
				"$bucketAuto (stage)",
			)
		}

		acc, err := accumulators.NewAccumulator(field, accDoc)
		if err != nil {
			return nil, err
		}

		ba.accumulators[field] = acc
		ba.fieldOrder = append(ba.fieldOrder, field)
	}

	return ba, nil
}

// Process implements Stage interface.
func (ba *bucketAuto) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	docs, err := iterator.ConsumeValues(iter)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	type keyed struct {
		val any
		doc *types.Document
	}

	vals := make([]keyed, 0, len(docs))

	for _, doc := range docs {
		v, err := operators.NewContext(doc).Eval(ba.groupByExpr)
		if err != nil {
			return nil, err
		}

		vals = append(vals, keyed{val: v, doc: doc})
	}

	sort.SliceStable(vals, func(i, j int) bool {
		return types.Compare(vals[i].val, vals[j].val) == types.Less
	})

	n := ba.buckets
	if n > len(vals) {
		n = len(vals)
	}

	if n == 0 {
		return aggregations.NewSliceIterator(nil), nil
	}

	base := len(vals) / n
	extra := len(vals) % n

	results := make([]*types.Document, 0, n)
	pos := 0

	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}

		group := vals[pos : pos+size]
		pos += size

		minVal := group[0].val
		maxVal := group[len(group)-1].val

		idDoc := types.MakeDocument(2)
		idDoc.Set("min", minVal)
		idDoc.Set("max", maxVal)

		groupDocs := make([]*types.Document, len(group))
		for i, g := range group {
			groupDocs[i] = g.doc
		}

		out := types.MakeDocument(len(ba.fieldOrder) + 1)
		out.Set("_id", idDoc)

		for _, field := range ba.fieldOrder {
			val, err := ba.accumulators[field].Accumulate(aggregations.NewSliceIterator(groupDocs))
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
	_ aggregations.Stage = (*bucketAuto)(nil)
)
