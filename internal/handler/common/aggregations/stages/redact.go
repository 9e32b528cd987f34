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
	"fmt"

	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
)

// redact represents $redact stage: expr is re-evaluated against every
// sub-document, and the $$PRUNE/$$KEEP/$$DESCEND sentinel it returns decides
// whether that sub-document is dropped, kept whole, or recursed into
// (SPEC_FULL.md §4.6 supplement).
type redact struct {
	expr any
}

// newRedact creates a new $redact stage.
func newRedact(stage *types.Document) (aggregations.Stage, error) {
	expr, err := stage.Get("$redact")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$redact specification is missing")
	}

	return &redact{expr: expr}, nil
}

// Process implements Stage interface.
func (r *redact) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	return aggregations.NewMapIterator(iter, closer, func(doc *types.Document) ([]*types.Document, error) {
		rootCtx := operators.NewContext(doc)

		out, err := r.redactValue(rootCtx, doc)
		if err != nil {
			return nil, err
		}

		outDoc, ok := out.(*types.Document)
		if !ok {
			return nil, nil
		}

		return []*types.Document{outDoc}, nil
	}), nil
}

// redactValue applies expr to val (and, if DESCEND, to each of its
// sub-documents/array elements), returning the surviving value or nil if
// val was pruned entirely.
func (r *redact) redactValue(rootCtx *operators.Context, val any) (any, error) {
	switch v := val.(type) {
	case *types.Document:
		res, err := rootCtx.WithCurrent(v).Eval(r.expr)
		if err != nil {
			return nil, err
		}

		switch res {
		case operators.Prune:
			return nil, nil
		case operators.Keep:
			return v, nil
		case operators.Descend:
			out := types.MakeDocument(v.Len())

			for _, k := range v.Keys() {
				fv, _ := v.Get(k)

				rv, err := r.redactValue(rootCtx, fv)
				if err != nil {
					return nil, err
				}

				if rv == nil {
					continue
				}

				out.Set(k, rv)
			}

			return out, nil
		default:
			return nil, fmt.Errorf("operators: $redact expression must evaluate to $$PRUNE, $$KEEP, or $$DESCEND")
		}
	case *types.Array:
		out := types.MakeArray(v.Len())

		for _, elem := range v.Slice() {
			rv, err := r.redactValue(rootCtx, elem)
			if err != nil {
				return nil, err
			}

			if rv == nil {
				continue
			}

			out.Append(rv)
		}

		return out, nil
	default:
		return v, nil
	}
}

// check interfaces
var (
	_ aggregations.Stage = (*redact)(nil)
)
