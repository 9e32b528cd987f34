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

	"github.com/embeddocs/docstore/internal/backends"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// out represents $out stage: the pipeline's output fully replaces the named
// target collection (spec.md §4.6 table, the "terminal" stage row).
type out struct {
	collection string
}

// newOut creates a new $out stage.
func newOut(stage *types.Document) (aggregations.Stage, error) {
	v, err := stage.Get("$out")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$out specification is missing")
	}

	switch t := v.(type) {
	case string:
		return &out{collection: t}, nil
	case *types.Document:
		coll, err := t.Get("coll")
		if err != nil {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$out requires a 'coll' field")
		}

		s, ok := coll.(string)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$out's 'coll' must be a string")
		}

		return &out{collection: s}, nil
	default:
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$out must be a string or an object")
	}
}

// Process implements Stage interface: it drains iter, replacing the target
// collection's contents wholesale, and re-emits the same documents so a
// pipeline run for inspection (rather than via a dedicated command) still
// observes the output.
func (o *out) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	db := aggregations.DatabaseFromContext(ctx)
	if db == nil {
		return nil, lazyerrors.Errorf("$out requires storage access")
	}

	docs, err := iterator.ConsumeValues(iter)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	target := db.Collection(o.collection)

	existing, err := target.Query(ctx, &backends.QueryParams{})
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	existingDocs, err := iterator.ConsumeValues(existing.Iter)
	existing.Iter.Close()

	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if len(existingDocs) > 0 {
		ids := make([]any, 0, len(existingDocs))

		for _, d := range existingDocs {
			id, idErr := d.Get("_id")
			if idErr == nil {
				ids = append(ids, id)
			}
		}

		if len(ids) > 0 {
			if _, err := target.DeleteAll(ctx, &backends.DeleteAllParams{IDs: ids}); err != nil {
				return nil, lazyerrors.Error(err)
			}
		}
	}

	if len(docs) > 0 {
		if _, err := target.InsertAll(ctx, &backends.InsertAllParams{Docs: docs}); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	return aggregations.NewSliceIterator(docs), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*out)(nil)
)

// merge represents $merge stage: like $out, but upserts into the target
// collection instead of replacing it wholesale.
type merge struct {
	collection string
}

// newMerge creates a new $merge stage.
func newMerge(stage *types.Document) (aggregations.Stage, error) {
	v, err := stage.Get("$merge")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$merge specification is missing")
	}

	switch t := v.(type) {
	case string:
		return &merge{collection: t}, nil
	case *types.Document:
		into, err := t.Get("into")
		if err != nil {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$merge requires an 'into' field")
		}

		s, ok := into.(string)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$merge's 'into' must be a string")
		}

		return &merge{collection: s}, nil
	default:
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$merge must be a string or an object")
	}
}

// Process implements Stage interface: documents are upserted into the target
// collection by _id — replaced if an existing document shares the _id,
// inserted otherwise.
func (m *merge) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	db := aggregations.DatabaseFromContext(ctx)
	if db == nil {
		return nil, lazyerrors.Errorf("$merge requires storage access")
	}

	docs, err := iterator.ConsumeValues(iter)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	target := db.Collection(m.collection)

	var toUpdate, toInsert []*types.Document

	for _, doc := range docs {
		id, idErr := doc.Get("_id")
		if idErr != nil {
			toInsert = append(toInsert, doc)
			continue
		}

		existing, err := target.Query(ctx, &backends.QueryParams{Filter: idFilter(id)})
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		found, err := iterator.ConsumeValues(existing.Iter)
		existing.Iter.Close()

		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		if len(found) > 0 {
			toUpdate = append(toUpdate, doc)
		} else {
			toInsert = append(toInsert, doc)
		}
	}

	if len(toUpdate) > 0 {
		if _, err := target.UpdateAll(ctx, &backends.UpdateAllParams{Docs: toUpdate}); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	if len(toInsert) > 0 {
		if _, err := target.InsertAll(ctx, &backends.InsertAllParams{Docs: toInsert}); err != nil {
			return nil, lazyerrors.Error(err)
		}
	}

	return aggregations.NewSliceIterator(docs), nil
}

// idFilter builds a {_id: id} equality filter document for locating an
// existing document to merge into.
func idFilter(id any) *types.Document {
	d := types.MakeDocument(1)
	d.Set("_id", id)

	return d
}

// check interfaces
var (
	_ aggregations.Stage = (*merge)(nil)
)
