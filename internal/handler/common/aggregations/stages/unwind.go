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
	"strings"

	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
)

// unwind represents $unwind stage.
type unwind struct {
	path                      types.Path
	field                     string
	includeArrayIndex         string
	preserveNullAndEmptyArrays bool
}

// newUnwind creates a new $unwind stage.
func newUnwind(stage *types.Document) (aggregations.Stage, error) {
	v, err := stage.Get("$unwind")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrStageUnwindNoPath, "$unwind specification is missing")
	}

	u := &unwind{}

	var fieldSpec string

	switch val := v.(type) {
	case string:
		fieldSpec = val
	case *types.Document:
		pathV, err := val.Get("path")
		if err != nil {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrStageUnwindNoPath, "no path specified to $unwind stage")
		}

		fieldSpec, _ = pathV.(string)

		if idx, err := val.Get("includeArrayIndex"); err == nil {
			u.includeArrayIndex, _ = idx.(string)
		}

		if preserve, err := val.Get("preserveNullAndEmptyArrays"); err == nil {
			u.preserveNullAndEmptyArrays, _ = preserve.(bool)
		}
	default:
		return nil, handlererrors.NewCommandErrorMsg(
			handlererrors.ErrStageUnwindWrongType,
			"$unwind stage specification must be a string or an object",
		)
	}

	if !strings.HasPrefix(fieldSpec, "$") || len(fieldSpec) < 2 {
		return nil, handlererrors.NewCommandErrorMsg(
			handlererrors.ErrStageUnwindNoPath,
			"field path for $unwind must be prefixed with a '$'",
		)
	}

	u.field = fieldSpec[1:]

	path, err := types.NewPathFromString(u.field)
	if err != nil {
		path = types.NewPathFromElements(u.field)
	}

	u.path = path

	return u, nil
}

// Process implements Stage interface.
func (u *unwind) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	return aggregations.NewMapIterator(iter, closer, func(doc *types.Document) ([]*types.Document, error) {
		val, err := doc.GetByPath(u.path)

		var arr *types.Array

		if err == nil {
			arr, _ = val.(*types.Array)
		}

		_, isNull := val.(types.NullType)

		if err != nil || types.IsMissing(val) || isNull || (arr != nil && arr.Len() == 0) {
			if !u.preserveNullAndEmptyArrays {
				return nil, nil
			}

			out := doc.DeepCopy()
			out.RemoveByPath(u.path)

			return []*types.Document{out}, nil
		}

		if arr == nil {
			// Non-array, non-null fields unwind to themselves, one output document.
			return []*types.Document{doc.DeepCopy()}, nil
		}

		results := make([]*types.Document, 0, arr.Len())

		for i, elem := range arr.Slice() {
			out := doc.DeepCopy()

			if err := out.SetByPath(u.path, elem); err != nil {
				return nil, err
			}

			if u.includeArrayIndex != "" {
				idxPath, err := types.NewPathFromString(u.includeArrayIndex)
				if err != nil {
					idxPath = types.NewPathFromElements(u.includeArrayIndex)
				}

				if err := out.SetByPath(idxPath, int64(i)); err != nil {
					return nil, err
				}
			}

			results = append(results, out)
		}

		return results, nil
	}), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*unwind)(nil)
)
