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

// setWindowFields represents $setWindowFields: documents are partitioned by
// partitionBy (reusing $group's Partitioner), sorted within each partition
// by sortBy, and every named output accumulator is run once over its whole
// partition and stamped onto every document in it.
//
// Only whole-partition windows are supported (no "documents"/"range"
// sliding-window bounds): each output field behaves as if its window were
// {documents: ["unbounded", "unbounded"]}, which covers $sum/$avg/$min/
// $max/$count/$push/$addToSet-style partition aggregates but not a
// $rank/$denseRank/$documentNumber positional window function or a bounded
// sliding window. sortBy is honored for ordering the output, not for
// restricting an accumulator's input range.
type setWindowFields struct {
	partitionByExpr any
	sortBy          *types.Document
	outputs         map[string]*types.Document // field -> accumulator spec, e.g. {$sum: "$amount"}
	fieldOrder      []string
}

// newSetWindowFields creates a new $setWindowFields stage.
func newSetWindowFields(stage *types.Document) (aggregations.Stage, error) {
	spec, err := common.GetRequiredParam[*types.Document](stage, "$setWindowFields")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrTypeMismatch,
			"$setWindowFields specification must be an object",
			"$setWindowFields (stage)",
		)
	}

	s := &setWindowFields{outputs: map[string]*types.Document{}}

	if v, err := spec.Get("partitionBy"); err == nil {
		s.partitionByExpr = v
	}

	if v, err := spec.Get("sortBy"); err == nil {
		if d, ok := v.(*types.Document); ok {
			s.sortBy = d
		}
	}

	output, err := common.GetRequiredParam[*types.Document](spec, "output")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(
			handlererrors.ErrBadValue,
			"$setWindowFields requires an 'output' object",
		)
	}

	for _, field := range output.Keys() {
		v, _ := output.Get(field)

		accDoc, ok := v.(*types.Document)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsgWithArgument(
				handlererrors.ErrBadValue,
				"$setWindowFields's output field '"+field+"' must be an accumulator object",
				"$setWindowFields (stage)",
			)
		}

		s.outputs[field] = accDoc
		s.fieldOrder = append(s.fieldOrder, field)
	}

	return s, nil
}

// Process implements Stage interface.
func (s *setWindowFields) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	docs, err := iterator.ConsumeValues(iter)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	p := aggregations.NewPartitioner()
	idValues := map[string]any{}

	for _, doc := range docs {
		var key string

		if s.partitionByExpr != nil {
			v, err := operators.NewContext(doc).Eval(s.partitionByExpr)
			if err != nil {
				return nil, err
			}

			key = aggregations.CanonicalKey(v)
			idValues[key] = v
		}

		p.Add(key, doc)
	}

	results := make(map[*types.Document]*types.Document, len(docs))

	for _, key := range p.Keys() {
		partition := p.Partition(key)

		if s.sortBy != nil {
			if err := common.SortDocuments(partition, s.sortBy); err != nil {
				return nil, err
			}
		}

		for _, field := range s.fieldOrder {
			acc, err := accumulators.NewAccumulator(field, s.outputs[field])
			if err != nil {
				return nil, err
			}

			value, err := acc.Accumulate(aggregations.NewSliceIterator(partition))
			if err != nil {
				return nil, err
			}

			for _, doc := range partition {
				out, ok := results[doc]
				if !ok {
					out = doc.DeepCopy()
					results[doc] = out
				}

				out.Set(field, value)
			}
		}
	}

	out := make([]*types.Document, len(docs))

	for i, doc := range docs {
		if r, ok := results[doc]; ok {
			out[i] = r
		} else {
			out[i] = doc
		}
	}

	return aggregations.NewSliceIterator(out), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*setWindowFields)(nil)
)
