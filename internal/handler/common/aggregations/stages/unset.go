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
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
)

// unset represents $unset stage.
type unset struct {
	paths []types.Path
}

// newUnset creates a new $unset stage, accepting either a single field path
// string or an array of them.
func newUnset(stage *types.Document) (aggregations.Stage, error) {
	v, err := stage.Get("$unset")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$unset specification is missing")
	}

	var fields []string

	switch val := v.(type) {
	case string:
		fields = []string{val}
	case *types.Array:
		for _, e := range val.Slice() {
			s, ok := e.(string)
			if !ok {
				return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$unset array elements must be strings")
			}

			fields = append(fields, s)
		}
	default:
		return nil, handlererrors.NewCommandErrorMsg(
			handlererrors.ErrBadValue,
			"$unset specification must be a string or an array of strings",
		)
	}

	u := &unset{}

	for _, f := range fields {
		path, err := types.NewPathFromString(f)
		if err != nil {
			path = types.NewPathFromElements(f)
		}

		u.paths = append(u.paths, path)
	}

	return u, nil
}

// Process implements Stage interface.
func (u *unset) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	return aggregations.NewMapIterator(iter, closer, func(doc *types.Document) ([]*types.Document, error) {
		out := doc.DeepCopy()

		for _, p := range u.paths {
			out.RemoveByPath(p)
		}

		return []*types.Document{out}, nil
	}), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*unset)(nil)
)
