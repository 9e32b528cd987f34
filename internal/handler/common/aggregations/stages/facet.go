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

	"golang.org/x/sync/errgroup"

	"github.com/embeddocs/docstore/internal/handler/common"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// facet represents $facet stage: the same materialized input is fanned out
// to every named sub-pipeline (spec.md §4.6 table).
type facet struct {
	names     []string
	subStages map[string][]aggregations.Stage
}

// newFacet creates a new $facet stage.
func newFacet(stage *types.Document) (aggregations.Stage, error) {
	spec, err := common.GetRequiredParam[*types.Document](stage, "$facet")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrTypeMismatch,
			"a facet specification must be an object",
			"$facet (stage)",
		)
	}

	f := &facet{subStages: map[string][]aggregations.Stage{}}

	for _, name := range spec.Keys() {
		v, _ := spec.Get(name)

		pipeline, ok := v.(*types.Array)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsgWithArgument(
				handlererrors.ErrTypeMismatch,
				"the facet '"+name+"' field must be a pipeline array",
				"$facet (stage)",
			)
		}

		sub, err := NewStages(pipeline)
		if err != nil {
			return nil, err
		}

		f.names = append(f.names, name)
		f.subStages[name] = sub
	}

	return f, nil
}

// Process implements Stage interface. Every named sub-pipeline runs against
// the same materialized input concurrently (spec.md §4.9), since they are
// mutually independent reads of it.
func (f *facet) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	docs, err := iterator.ConsumeValues(iter)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	arrays := make([]*types.Array, len(f.names))

	g, gctx := errgroup.WithContext(ctx)

	for i, name := range f.names {
		i, sub := i, f.subStages[name]

		g.Go(func() error {
			subCloser := iterator.NewMultiCloser()
			defer subCloser.Close()

			var subIter types.DocumentsIterator = aggregations.NewSliceIterator(docs)
			subCloser.Add(subIter)

			var err error

			for _, s := range sub {
				if subIter, err = s.Process(gctx, subIter, subCloser); err != nil {
					return err
				}
			}

			results, err := iterator.ConsumeValues(subIter)
			if err != nil {
				return lazyerrors.Error(err)
			}

			arr := types.MakeArray(len(results))
			for _, r := range results {
				arr.Append(r)
			}

			arrays[i] = arr

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := types.MakeDocument(len(f.names))
	for i, name := range f.names {
		out.Set(name, arrays[i])
	}

	return aggregations.NewSliceIterator([]*types.Document{out}), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*facet)(nil)
)
