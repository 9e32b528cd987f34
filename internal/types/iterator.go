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

package types

import "github.com/embeddocs/docstore/internal/util/iterator"

// DocumentsIterator is the iterator type returned by the storage port and
// threaded through the aggregation pipeline: each Next yields a document's
// position (unused by callers, kept for iterator.Interface symmetry) and
// the *Document itself.
type DocumentsIterator = iterator.Interface[struct{}, *Document]

// DocumentIterator iterates over a Document's fields in insertion order.
type DocumentIterator struct {
	doc *Document
	i   int
}

func newDocumentIterator(doc *Document) *DocumentIterator {
	return &DocumentIterator{doc: doc}
}

// Next returns the next key/value pair, or iterator.ErrIteratorDone once exhausted.
func (di *DocumentIterator) Next() (string, any, error) {
	if di.doc == nil || di.i >= len(di.doc.keys) {
		return "", nil, iterator.ErrIteratorDone
	}

	k := di.doc.keys[di.i]
	v := di.doc.m[k]
	di.i++

	return k, v, nil
}

// Close implements iterator.Interface. A Document iterator owns no resources.
func (di *DocumentIterator) Close() {}

// ArrayIterator iterates over an Array's elements in order.
type ArrayIterator struct {
	arr *Array
	i   int
}

func newArrayIterator(arr *Array) *ArrayIterator {
	return &ArrayIterator{arr: arr}
}

// Next returns the next index/value pair, or iterator.ErrIteratorDone once exhausted.
func (ai *ArrayIterator) Next() (int, any, error) {
	if ai.arr == nil || ai.i >= len(ai.arr.s) {
		return 0, nil, iterator.ErrIteratorDone
	}

	idx := ai.i
	v := ai.arr.s[idx]
	ai.i++

	return idx, v, nil
}

// Close implements iterator.Interface. An Array iterator owns no resources.
func (ai *ArrayIterator) Close() {}
