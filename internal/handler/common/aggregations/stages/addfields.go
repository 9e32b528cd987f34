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

// addFields represents the $addFields/$set stages: they share identical
// semantics under different names (spec.md §4.6 table groups them together).
type addFields struct {
	spec *types.Document
}

// newAddFields creates a new $addFields or $set stage.
func newAddFields(stage *types.Document) (aggregations.Stage, error) {
	name := stage.Command()

	spec, err := stage.Get(name)
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrTypeMismatch,
			name+" specification stage must be an object",
			name+" (stage)",
		)
	}

	specDoc, ok := spec.(*types.Document)
	if !ok {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrTypeMismatch,
			name+" specification stage must be an object",
			name+" (stage)",
		)
	}

	return &addFields{spec: specDoc}, nil
}

// Process implements Stage interface.
func (s *addFields) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	return aggregations.NewMapIterator(iter, closer, func(doc *types.Document) ([]*types.Document, error) {
		out := doc.DeepCopy()
		evalCtx := operators.NewContext(doc)

		for _, key := range s.spec.Keys() {
			fieldSpec, _ := s.spec.Get(key)

			val, err := evalCtx.Eval(fieldSpec)
			if err != nil {
				return nil, err
			}

			path, err := types.NewPathFromString(key)
			if err != nil {
				path = types.NewPathFromElements(key)
			}

			if types.IsMissing(val) {
				out.RemoveByPath(path)
				continue
			}

			if err := out.SetByPath(path, val); err != nil {
				return nil, err
			}
		}

		return []*types.Document{out}, nil
	}), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*addFields)(nil)
)
