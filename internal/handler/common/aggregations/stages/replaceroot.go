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

	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
)

// replaceRoot represents both $replaceRoot and $replaceWith: the former
// wraps its expression under a "newRoot" field, the latter takes it bare,
// but both replace the whole document with the expression's result.
type replaceRoot struct {
	expr any
	name string
}

// newReplaceRoot creates a new $replaceRoot stage.
func newReplaceRoot(stage *types.Document) (aggregations.Stage, error) {
	spec, err := stage.Get("$replaceRoot")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$replaceRoot specification is missing")
	}

	specDoc, ok := spec.(*types.Document)
	if !ok {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$replaceRoot specification must be an object")
	}

	expr, err := specDoc.Get("newRoot")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$replaceRoot requires a 'newRoot' field")
	}

	return &replaceRoot{expr: expr, name: "$replaceRoot"}, nil
}

// newReplaceWith creates a new $replaceWith stage.
func newReplaceWith(stage *types.Document) (aggregations.Stage, error) {
	expr, err := stage.Get("$replaceWith")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$replaceWith specification is missing")
	}

	return &replaceRoot{expr: expr, name: "$replaceWith"}, nil
}

// Process implements Stage interface.
func (s *replaceRoot) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	return aggregations.NewMapIterator(iter, closer, func(doc *types.Document) ([]*types.Document, error) {
		val, err := operators.NewContext(doc).Eval(s.expr)
		if err != nil {
			return nil, err
		}

		newRoot, ok := val.(*types.Document)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsgWithArgument(
				handlererrors.ErrBadValue,
				"'newRoot' expression must evaluate to an object",
				s.name,
			)
		}

		return []*types.Document{newRoot}, nil
	}), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*replaceRoot)(nil)
)
