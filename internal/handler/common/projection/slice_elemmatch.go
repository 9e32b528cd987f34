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

package projection

import (
	"github.com/embeddocs/docstore/internal/handler/common/matcher"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
)

// applySlice implements spec.md §4.5's {$slice: n | [skip, limit]}: positive
// n keeps the first n elements, negative n keeps the last |n| elements, and
// the two-element form skips then limits.
func applySlice(out *types.Document, doc *types.Document, path types.Path, arg any) error {
	val, err := doc.GetByPath(path)
	if err != nil {
		return nil
	}

	arr, ok := val.(*types.Array)
	if !ok {
		return nil
	}

	var skip, limit int

	switch a := arg.(type) {
	case *types.Array:
		if a.Len() != 2 {
			return handlererrors.NewCommandErrorMsg(handlererrors.ErrSliceFirstArg, "$slice array must have two elements")
		}

		skipV, _ := a.Get(0)
		limitV, _ := a.Get(1)

		skip = toIntArg(skipV)
		limit = toIntArg(limitV)

		if skip < 0 {
			start := arr.Len() + skip
			if start < 0 {
				start = 0
			}

			skip = start
		}
	default:
		n := toIntArg(arg)

		if n >= 0 {
			skip, limit = 0, n
		} else {
			start := arr.Len() + n
			if start < 0 {
				start = 0
			}

			skip, limit = start, -n
		}
	}

	if skip > arr.Len() {
		skip = arr.Len()
	}

	end := skip + limit
	if end > arr.Len() || limit < 0 {
		end = arr.Len()
	}

	sliced := types.MakeArray(end - skip)

	for i := skip; i < end; i++ {
		v, _ := arr.Get(i)
		sliced.Append(v)
	}

	return out.SetByPath(path, sliced)
}

// applyElemMatch implements spec.md §4.5's {$elemMatch: query}: projects the
// array field down to just its first element satisfying query.
func applyElemMatch(out *types.Document, doc *types.Document, path types.Path, arg any) error {
	val, err := doc.GetByPath(path)
	if err != nil {
		return nil
	}

	arr, ok := val.(*types.Array)
	if !ok {
		return nil
	}

	query, ok := arg.(*types.Document)
	if !ok {
		return handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$elemMatch requires a query document")
	}

	for _, elem := range arr.Slice() {
		elemDoc, ok := elem.(*types.Document)
		if !ok {
			continue
		}

		m, err := matcher.Matches(elemDoc, query)
		if err != nil {
			return err
		}

		if m {
			result := types.MakeArray(1)
			result.Append(elem)

			return out.SetByPath(path, result)
		}
	}

	return nil
}

func toIntArg(v any) int {
	switch v := v.(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
