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

package common

import (
	"fmt"

	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
)

// GetRequiredParam returns doc's value for key, asserted to type T.
//
// It is used throughout the aggregation stage constructors (e.g. $count,
// $limit) to pull a single required, typed argument out of a stage document.
func GetRequiredParam[T any](doc *types.Document, key string) (T, error) {
	var zero T

	v, err := doc.Get(key)
	if err != nil {
		return zero, fmt.Errorf("common.GetRequiredParam: key %q not found", key)
	}

	res, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("common.GetRequiredParam: key %q has type %T, expected %T", key, v, zero)
	}

	return res, nil
}

// GetOptionalParam returns doc's value for key asserted to type T, or def
// if the key is absent. It returns an error if the key is present but has
// the wrong type.
func GetOptionalParam[T any](doc *types.Document, key string, def T) (T, error) {
	if !doc.Has(key) {
		return def, nil
	}

	return GetRequiredParam[T](doc, key)
}

// AssertType asserts v to type T, returning an error that names the actual
// type otherwise.
func AssertType[T any](v any) (T, error) {
	res, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("common.AssertType: value has type %T, expected %T", v, zero)
	}

	return res, nil
}

// CountIterator wraps iter, producing a single output document whose only
// field, fieldName, holds the number of documents iter yields.
//
// This is the core of the $count stage: the first Next call drains iter
// and returns the total.
func CountIterator(iter types.DocumentsIterator, closer *iterator.MultiCloser, fieldName string) types.DocumentsIterator {
	closer.Add(iter)

	return &countIterator{iter: iter, field: fieldName}
}

type countIterator struct {
	iter  types.DocumentsIterator
	field string
	n     int32
	done  bool
}

// Next implements types.DocumentsIterator: it drains the whole underlying
// iterator on the first call and emits a single document with the count,
// matching $count's "blocks" classification (spec.md §4.6 table).
func (ci *countIterator) Next() (struct{}, *types.Document, error) {
	if ci.done {
		return struct{}{}, nil, iterator.ErrIteratorDone
	}

	for {
		_, _, err := ci.iter.Next()
		if err != nil {
			if err == iterator.ErrIteratorDone {
				break
			}

			return struct{}{}, nil, err
		}

		ci.n++
	}

	ci.done = true

	doc := types.MakeDocument(1)
	doc.Set(ci.field, ci.n)

	return struct{}{}, doc, nil
}

// Close implements types.DocumentsIterator.
func (ci *countIterator) Close() {
	ci.iter.Close()
}
