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

	"github.com/google/uuid"

	"github.com/embeddocs/docstore/internal/backends"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/handler/common/matcher"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/handler/handlerparams"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// graphLookup represents $graphLookup stage: a recursive, breadth-first
// search over a foreign collection starting from startWith, following
// connectFromField -> connectToField edges, visited-set cycle-breaking, an
// optional maxDepth, and an optional restrictSearchWithMatch filter applied
// to candidate edges before traversal (spec.md §4.6 table).
type graphLookup struct {
	from                    string
	startWith               any
	connectFromField        string
	connectToField          string
	as                      string
	hasMaxDepth             bool
	maxDepth                int64
	depthField              string
	hasDepthField           bool
	restrictSearchWithMatch *types.Document
}

// newGraphLookup creates a new $graphLookup stage.
func newGraphLookup(stage *types.Document) (aggregations.Stage, error) {
	v, err := stage.Get("$graphLookup")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$graphLookup specification is missing")
	}

	spec, ok := v.(*types.Document)
	if !ok {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$graphLookup specification must be an object")
	}

	g := &graphLookup{}

	g.from, err = stringField(spec, "from")
	if err != nil {
		return nil, err
	}

	g.startWith, err = spec.Get("startWith")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$graphLookup requires 'startWith' to be specified")
	}

	g.connectFromField, err = stringField(spec, "connectFromField")
	if err != nil {
		return nil, err
	}

	g.connectToField, err = stringField(spec, "connectToField")
	if err != nil {
		return nil, err
	}

	g.as, err = stringField(spec, "as")
	if err != nil {
		return nil, err
	}

	if md, err := spec.Get("maxDepth"); err == nil {
		n, err := handlerparams.GetWholeNumberParam(md)
		if err != nil {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$graphLookup's 'maxDepth' must be a number")
		}

		g.hasMaxDepth = true
		g.maxDepth = n
	}

	if df, err := spec.Get("depthField"); err == nil {
		s, ok := df.(string)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$graphLookup's 'depthField' must be a string")
		}

		g.hasDepthField = true
		g.depthField = s
	}

	if rm, err := spec.Get("restrictSearchWithMatch"); err == nil {
		d, ok := rm.(*types.Document)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsg(
				handlererrors.ErrBadValue,
				"$graphLookup's 'restrictSearchWithMatch' must be an object",
			)
		}

		g.restrictSearchWithMatch = d
	}

	return g, nil
}

// visitedKey derives the recursion guard's map key for a foreign document's
// _id. A scalar _id is keyed by its own canonical string; a compound _id
// (an embedded document or array, legal per spec.md §3) is instead keyed by
// a deterministic uuid.v5 of that canonical string, so structurally equal
// but differently-ordered compound values can't accidentally collide or
// diverge depending on map key hashing of arbitrary strings.
func visitedKey(id any) string {
	switch id.(type) {
	case *types.Document, *types.Array:
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(aggregations.CanonicalKey(id))).String()
	default:
		return aggregations.CanonicalKey(id)
	}
}

// Process implements Stage interface.
func (g *graphLookup) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	db := aggregations.DatabaseFromContext(ctx)
	if db == nil {
		return nil, lazyerrors.Errorf("$graphLookup requires storage access")
	}

	foreign := db.Collection(g.from)

	res, err := foreign.Query(ctx, &backends.QueryParams{})
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	all, err := iterator.ConsumeValues(res.Iter)
	res.Iter.Close()

	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	foreignToPath, err := types.NewPathFromString(g.connectToField)
	if err != nil {
		foreignToPath = types.NewPathFromElements(g.connectToField)
	}

	foreignFromPath, err := types.NewPathFromString(g.connectFromField)
	if err != nil {
		foreignFromPath = types.NewPathFromElements(g.connectFromField)
	}

	return aggregations.NewMapIterator(iter, closer, func(doc *types.Document) ([]*types.Document, error) {
		startVal, err := operators.NewContext(doc).Eval(g.startWith)
		if err != nil {
			return nil, err
		}

		var frontier []any
		if arr, ok := startVal.(*types.Array); ok {
			frontier = arr.Slice()
		} else {
			frontier = []any{startVal}
		}

		visited := map[string]bool{}
		depths := map[string]int64{}

		var results []*types.Document

		for depth := int64(0); len(frontier) > 0 && (!g.hasMaxDepth || depth <= g.maxDepth); depth++ {
			var next []any

			for _, candidate := range frontier {
				for _, fd := range all {
					toVal, err := fd.GetByPath(foreignToPath)
					if err != nil {
						toVal = types.Null
					}

					if types.Compare(candidate, toVal) != types.Equal {
						continue
					}

					id, _ := fd.Get("_id")
					key := visitedKey(id)

					if visited[key] {
						continue
					}

					if g.restrictSearchWithMatch != nil {
						ok, err := matcher.Matches(fd, g.restrictSearchWithMatch)
						if err != nil {
							return nil, err
						}

						if !ok {
							continue
						}
					}

					visited[key] = true
					depths[key] = depth

					out := fd.DeepCopy()

					if g.hasDepthField {
						out.Set(g.depthField, depth)
					}

					results = append(results, out)

					fromVal, err := fd.GetByPath(foreignFromPath)
					if err == nil {
						if arr, ok := fromVal.(*types.Array); ok {
							next = append(next, arr.Slice()...)
						} else {
							next = append(next, fromVal)
						}
					}
				}
			}

			frontier = next
		}

		out := doc.DeepCopy()
		arr := types.MakeArray(len(results))

		for _, r := range results {
			arr.Append(r)
		}

		out.Set(g.as, arr)

		return []*types.Document{out}, nil
	}), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*graphLookup)(nil)
)
