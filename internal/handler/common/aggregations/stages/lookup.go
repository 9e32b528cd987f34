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

	"github.com/embeddocs/docstore/internal/backends"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// lookupConcurrency bounds how many input documents' sub-lookups run at
// once (spec.md §4.9's "bounded parallelism" for $lookup's per-document
// equality/sub-pipeline evaluation).
const lookupConcurrency = 8

// lookup represents $lookup stage, both the 4-field equality form and the
// let/pipeline sub-query form (spec.md §4.6 table).
type lookup struct {
	from         string
	localField   string
	foreignField string
	as           string
	let          *types.Document
	pipeline     *types.Array
}

// newLookup creates a new $lookup stage.
func newLookup(stage *types.Document) (aggregations.Stage, error) {
	spec, err := stage.Get("$lookup")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$lookup specification is missing")
	}

	specDoc, ok := spec.(*types.Document)
	if !ok {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$lookup specification must be an object")
	}

	l := &lookup{}

	l.from, err = stringField(specDoc, "from")
	if err != nil {
		return nil, err
	}

	l.as, err = stringField(specDoc, "as")
	if err != nil {
		return nil, err
	}

	if v, err := specDoc.Get("localField"); err == nil {
		l.localField, _ = v.(string)
	}

	if v, err := specDoc.Get("foreignField"); err == nil {
		l.foreignField, _ = v.(string)
	}

	if v, err := specDoc.Get("let"); err == nil {
		l.let, _ = v.(*types.Document)
	}

	if v, err := specDoc.Get("pipeline"); err == nil {
		l.pipeline, _ = v.(*types.Array)
	}

	return l, nil
}

func stringField(d *types.Document, key string) (string, error) {
	v, err := d.Get(key)
	if err != nil {
		return "", handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrBadValue,
			"$lookup requires '"+key+"' to be specified",
			"$lookup (stage)",
		)
	}

	s, ok := v.(string)
	if !ok {
		return "", handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrBadValue,
			"$lookup's '"+key+"' must be a string",
			"$lookup (stage)",
		)
	}

	return s, nil
}

// Process implements Stage interface. It materializes the input and fans
// the per-document lookup out across a bounded errgroup (spec.md §4.9),
// rather than streaming one document at a time, so the sub-lookups for
// independent input documents genuinely run concurrently.
func (l *lookup) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	db := aggregations.DatabaseFromContext(ctx)
	if db == nil {
		return nil, lazyerrors.Errorf("$lookup requires storage access")
	}

	foreign := db.Collection(l.from)

	docs, err := iterator.ConsumeValues(iter)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	results := make([]*types.Document, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)

	for i, doc := range docs {
		i, doc := i, doc

		g.Go(func() error {
			var matched []*types.Document
			var err error

			if l.pipeline != nil {
				matched, err = l.runPipeline(gctx, foreign, doc)
			} else {
				matched, err = l.runEquality(gctx, foreign, doc)
			}

			if err != nil {
				return err
			}

			out := doc.DeepCopy()
			arr := types.MakeArray(len(matched))

			for _, m := range matched {
				arr.Append(m)
			}

			out.Set(l.as, arr)
			results[i] = out

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return aggregations.NewSliceIterator(results), nil
}

// runEquality implements the 4-field equality form: match foreign documents
// whose foreignField equals the input document's localField value.
func (l *lookup) runEquality(ctx context.Context, foreign backends.Collection, doc *types.Document) ([]*types.Document, error) {
	path, err := types.NewPathFromString(l.localField)
	if err != nil {
		path = types.NewPathFromElements(l.localField)
	}

	localVal, lookupErr := doc.GetByPath(path)
	if lookupErr != nil {
		localVal = types.Null
	}

	res, err := foreign.Query(ctx, &backends.QueryParams{})
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	defer res.Iter.Close()

	all, err := iterator.ConsumeValues(res.Iter)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	foreignPath, err := types.NewPathFromString(l.foreignField)
	if err != nil {
		foreignPath = types.NewPathFromElements(l.foreignField)
	}

	var matched []*types.Document

	for _, fd := range all {
		fv, err := fd.GetByPath(foreignPath)
		if err != nil {
			fv = types.Null
		}

		if types.Compare(localVal, fv) == types.Equal {
			matched = append(matched, fd)
		}
	}

	return matched, nil
}

// runPipeline implements the let/sub-pipeline form: let variables are bound
// as "$$name" for the sub-pipeline's $match/$expr stages to reference.
func (l *lookup) runPipeline(ctx context.Context, foreign backends.Collection, doc *types.Document) ([]*types.Document, error) {
	letVars := map[string]any{}

	if l.let != nil {
		letCtx := operators.NewContext(doc)

		for _, k := range l.let.Keys() {
			expr, _ := l.let.Get(k)

			v, err := letCtx.Eval(expr)
			if err != nil {
				return nil, err
			}

			letVars[k] = v
		}
	}

	subStages, err := NewStages(l.pipeline)
	if err != nil {
		return nil, err
	}

	res, err := foreign.Query(ctx, &backends.QueryParams{})
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	subCloser := iterator.NewMultiCloser()
	defer subCloser.Close()

	var iter types.DocumentsIterator = res.Iter
	subCloser.Add(iter)

	subCtx := aggregations.ContextWithLetVars(ctx, letVars)

	if idxRes, err := foreign.ListIndexes(ctx, &backends.ListIndexesParams{}); err == nil {
		subCtx = aggregations.ContextWithTextIndexFields(subCtx, backends.TextIndexFields(idxRes.Indexes))
	}

	for _, s := range subStages {
		if iter, err = s.Process(subCtx, iter, subCloser); err != nil {
			return nil, err
		}
	}

	return iterator.ConsumeValues(iter)
}
