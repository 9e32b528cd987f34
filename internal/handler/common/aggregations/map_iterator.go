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

package aggregations

import (
	"errors"

	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// MapFunc transforms one input document into zero or more output documents,
// the shape every per-document streaming stage ($project, $addFields,
// $unset, $replaceRoot, ...) needs.
type MapFunc func(doc *types.Document) ([]*types.Document, error)

// NewMapIterator wraps iter, applying f to every document it produces and
// flattening the (possibly empty, possibly multi-valued) results back into a
// single stream, in order.
func NewMapIterator(iter types.DocumentsIterator, closer *iterator.MultiCloser, f MapFunc) types.DocumentsIterator {
	closer.Add(iter)

	return &mapIterator{iter: iter, f: f}
}

type mapIterator struct {
	iter    types.DocumentsIterator
	f       MapFunc
	pending []*types.Document
}

// Next implements types.DocumentsIterator.
func (mi *mapIterator) Next() (struct{}, *types.Document, error) {
	for len(mi.pending) == 0 {
		_, doc, err := mi.iter.Next()
		if err != nil {
			if errors.Is(err, iterator.ErrIteratorDone) {
				return struct{}{}, nil, err
			}

			return struct{}{}, nil, lazyerrors.Error(err)
		}

		out, err := mi.f(doc)
		if err != nil {
			return struct{}{}, nil, err
		}

		mi.pending = out
	}

	doc := mi.pending[0]
	mi.pending = mi.pending[1:]

	return struct{}{}, doc, nil
}

// Close implements types.DocumentsIterator.
func (mi *mapIterator) Close() {
	mi.iter.Close()
}
