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
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
)

// NewSliceIterator wraps docs as a types.DocumentsIterator, the shape every
// "blocking" stage (spec.md §4.6: $sort, $group, $bucket, $facet, ...) needs
// once it has materialized its result.
func NewSliceIterator(docs []*types.Document) types.DocumentsIterator {
	return &sliceIterator{docs: docs}
}

type sliceIterator struct {
	docs []*types.Document
	pos  int
}

// Next implements types.DocumentsIterator.
func (si *sliceIterator) Next() (struct{}, *types.Document, error) {
	if si.pos >= len(si.docs) {
		return struct{}{}, nil, iterator.ErrIteratorDone
	}

	doc := si.docs[si.pos]
	si.pos++

	return struct{}{}, doc, nil
}

// Close implements types.DocumentsIterator.
func (si *sliceIterator) Close() {
	si.pos = len(si.docs)
}
