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
	"sort"
	"strconv"
	"strings"

	"github.com/embeddocs/docstore/internal/handler/common/matcher"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/handler/handlerparams"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
	"github.com/embeddocs/docstore/internal/util/must"
)

// processPopArrayUpdateExpression changes document according to $pop operator.
// If the document was changed it returns true.
func processPopArrayUpdateExpression(
	command string,
	doc *types.Document,
	key string,
	value any,
	posCtx *PositionalContext,
) (bool, error) {
	popValue, err := handlerparams.GetWholeNumberParam(value)
	if err != nil {
		return false, NewUpdateError(
			handlererrors.ErrFailedToParse,
			fmt.Sprintf(`Expected a number in: %s: "%v"`, key, value),
			command,
		)
	}

	if popValue != 1 && popValue != -1 {
		return false, NewUpdateError(
			handlererrors.ErrFailedToParse,
			fmt.Sprintf("$pop expects 1 or -1, found: %d", popValue),
			command,
		)
	}

	return applyToPaths(doc, key, posCtx, func(path types.Path) (bool, error) {
		oldValue, err := doc.GetByPath(path)
		if err != nil {
			// If any sub path exists in the doc, $pop returns ErrUnsuitableValueType.
			if err = checkUnsuitableValueError(command, doc, path.String(), path); err != nil {
				return false, err
			}

			return false, nil
		}

		array, ok := oldValue.(*types.Array)
		if !ok {
			return false, NewUpdateError(
				handlererrors.ErrTypeMismatch,
				fmt.Sprintf(
					"Path '%s' contains an element of non-array type '%s'", path, handlerparams.AliasFromType(oldValue),
				),
				command,
			)
		}

		if array.Len() == 0 {
			return false, nil
		}

		if popValue == -1 {
			array.RemoveByIndex(0)
		} else {
			array.RemoveByIndex(array.Len() - 1)
		}

		if err = doc.SetByPath(path, array); err != nil {
			return false, lazyerrors.Error(err)
		}

		return true, nil
	})
}

// checkUnsuitableValueError returns ErrUnsuitableValueType if path contains
// a non-document value. If no element exists on path, it returns nil.
// For example, if the path is "v.foo" and:
//   - doc is {v: 42}, it returns ErrUnsuitableValueType, v is used by unsuitable value type;
//   - doc is {c: 10}, it returns no error since the path does not exist.
func checkUnsuitableValueError(command string, doc *types.Document, fullPath string, path types.Path) error {
	// return no error if path is suffix or key.
	if path.Len() == 1 {
		return nil
	}

	prefix := path.Prefix()

	// check if part of the path exists in the document.
	if doc.Has(prefix) {
		val := must.NotFail(doc.Get(prefix))
		switch val := val.(type) {
		case *types.Document:
			// recursively check if document contains the remaining part.
			return checkUnsuitableValueError(command, val, fullPath, path.TrimPrefix())
		case *types.Array:
			return checkUnsuitableValueInArray(command, val, fullPath, prefix, path.TrimPrefix())
		default:
			// ErrUnsuitableValueType is returned if the document contains prefix.
			return NewUpdateError(
				handlererrors.ErrUnsuitableValueType,
				fmt.Sprintf(
					"Cannot use the part (%s) of (%s) to traverse the element ({%s: %v})",
					path.Slice()[1],
					fullPath,
					prefix,
					types.FormatAnyValue(val),
				),
				command,
			)
		}
	}

	// no part of the path exists in the doc.
	return nil
}

// checkUnsuitableValueInArray returns ErrUnsuitableValueType if path contains
// non traversable part. If no element exists on path, it returns nil.
// For example, if the path is "0.foo" and:
//   - array is [], it returns no error since index-0 does not exist.
//   - array is [{bar: 10}], it returns no error since the document at index-0 does not contain 'foo'.
//   - array is [42, 43], it returns ErrUnsuitableValueType, since element at index-0 is not a document.
func checkUnsuitableValueInArray(command string, array *types.Array, fullPath, parentKey string, path types.Path) error {
	prefix := path.Prefix()

	index, err := strconv.Atoi(prefix)
	if err != nil || index < 0 {
		return NewUpdateError(
			handlererrors.ErrUnsuitableValueType,
			fmt.Sprintf(
				"Cannot use the part (%s) of (%s) to traverse the element ({%s: %v})",
				prefix,
				fullPath,
				parentKey,
				types.FormatAnyValue(array),
			),
			command,
		)
	}

	// return no error if path just contain the index.
	if path.Len() == 1 {
		return nil
	}

	if elem, err := array.Get(index); err == nil {
		switch elem := elem.(type) {
		case *types.Document:
			return checkUnsuitableValueError(command, elem, fullPath, path.TrimPrefix())
		case *types.Array:
			return checkUnsuitableValueInArray(command, elem, fullPath, prefix, path.TrimPrefix())
		default:
			return NewUpdateError(
				handlererrors.ErrUnsuitableValueType,
				fmt.Sprintf(
					"Cannot use the part (%s) of (%s) to traverse the element ({%d: %v})",
					path.Slice()[1],
					fullPath,
					index,
					types.FormatAnyValue(elem),
				),
				command,
			)
		}
	}

	return nil
}

// processPushArrayUpdateExpression changes document according to $push array update operator,
// including its $each/$position/$slice/$sort modifiers.
// If the document was changed it returns true.
func processPushArrayUpdateExpression(
	command string,
	doc *types.Document,
	key string,
	pushVal any,
	posCtx *PositionalContext,
) (bool, error) {
	var each []any

	hasPosition, hasSlice, hasSort := false, false, false
	var position, sliceLimit int
	var sortSpec any

	if pushDoc, ok := pushVal.(*types.Document); ok && pushDoc.Has("$each") {
		eachRaw := must.NotFail(pushDoc.Get("$each"))

		eachArr, ok := eachRaw.(*types.Array)
		if !ok {
			return false, NewUpdateError(
				handlererrors.ErrBadValue,
				fmt.Sprintf(
					"The argument to $each in $push must be an array but it was of type: %s",
					handlerparams.AliasFromType(eachRaw),
				),
				command,
			)
		}

		each = eachArr.Slice()

		if pushDoc.Has("$position") {
			n, err := handlerparams.GetWholeNumberParam(must.NotFail(pushDoc.Get("$position")))
			if err != nil {
				return false, NewUpdateError(
					handlererrors.ErrBadValue,
					"The value for $position must be a positive integral number.",
					command,
				)
			}

			hasPosition, position = true, int(n)
		}

		if pushDoc.Has("$slice") {
			n, err := handlerparams.GetWholeNumberParam(must.NotFail(pushDoc.Get("$slice")))
			if err != nil {
				return false, NewUpdateError(handlererrors.ErrBadValue, "The value for $slice must be an integer value", command)
			}

			hasSlice, sliceLimit = true, int(n)
		}

		if pushDoc.Has("$sort") {
			sortSpec = must.NotFail(pushDoc.Get("$sort"))
			hasSort = true
		}
	} else {
		each = []any{pushVal}
	}

	return applyToPaths(doc, key, posCtx, func(path types.Path) (bool, error) {
		var current []any

		if doc.HasByPath(path) {
			value, err := doc.GetByPath(path)
			if err != nil {
				return false, err
			}

			array, ok := value.(*types.Array)
			if !ok {
				return false, NewUpdateError(
					handlererrors.ErrBadValue,
					fmt.Sprintf(
						"The field '%s' must be an array but is of type '%s' in document {_id: %s}",
						path, handlerparams.AliasFromType(value), types.FormatAnyValue(must.NotFail(doc.Get("_id"))),
					),
					command,
				)
			}

			current = array.Slice()
		}

		var result []any

		if hasPosition {
			idx := position
			if idx < 0 {
				idx += len(current)
			}

			if idx < 0 {
				idx = 0
			}

			if idx > len(current) {
				idx = len(current)
			}

			result = append(result, current[:idx]...)
			result = append(result, each...)
			result = append(result, current[idx:]...)
		} else {
			result = append(result, current...)
			result = append(result, each...)
		}

		if hasSort {
			if err := sortPushResult(result, sortSpec); err != nil {
				return false, err
			}
		}

		if hasSlice {
			result = sliceResult(result, sliceLimit)
		}

		newArray := types.MakeArray(len(result))
		newArray.Append(result...)

		if err := doc.SetByPath(path, newArray); err != nil {
			return false, lazyerrors.Error(err)
		}

		return true, nil
	})
}

// sortPushResult sorts elems in place per $push's $sort modifier: a number
// for primitive ascending/descending comparison, or a document for
// key-directed sort over document elements (reusing SortDocuments).
func sortPushResult(elems []any, spec any) error {
	if len(elems) == 0 {
		return nil
	}

	if specDoc, ok := spec.(*types.Document); ok {
		docs := make([]*types.Document, len(elems))

		for i, e := range elems {
			d, ok := e.(*types.Document)
			if !ok {
				return handlererrors.NewCommandErrorMsg(
					handlererrors.ErrBadValue,
					"$sort's document form requires array elements to be documents",
				)
			}

			docs[i] = d
		}

		if err := SortDocuments(docs, specDoc); err != nil {
			return err
		}

		for i, d := range docs {
			elems[i] = d
		}

		return nil
	}

	n, err := handlerparams.GetWholeNumberParam(spec)
	if err != nil {
		return handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$sort requires 1, -1, or a document")
	}

	order := types.Ascending
	if n < 0 {
		order = types.Descending
	}

	sort.SliceStable(elems, func(i, j int) bool {
		return types.CompareOrderForSort(elems[i], elems[j], order) == types.Less
	})

	return nil
}

// sliceResult applies $push's $slice modifier: positive n keeps the first n
// elements, negative n keeps the last |n| elements, 0 empties the result.
func sliceResult(elems []any, n int) []any {
	switch {
	case n == 0:
		return nil
	case n > 0:
		if n < len(elems) {
			return elems[:n]
		}

		return elems
	default:
		if -n < len(elems) {
			return elems[len(elems)+n:]
		}

		return elems
	}
}

// processAddToSetArrayUpdateExpression changes document according to $addToSet array update operator.
// If the document was changed it returns true.
func processAddToSetArrayUpdateExpression(
	command string,
	doc *types.Document,
	key string,
	setVal any,
	posCtx *PositionalContext,
) (bool, error) {
	var each *types.Array

	if addToSetDoc, ok := setVal.(*types.Document); ok {
		if addToSetDoc.Has("$each") {
			eachRaw := must.NotFail(addToSetDoc.Get("$each"))

			each, ok = eachRaw.(*types.Array)
			if !ok {
				return false, NewUpdateError(
					handlererrors.ErrTypeMismatch,
					fmt.Sprintf(
						"The argument to $each in $addToSet must be an array but it was of type %s",
						handlerparams.AliasFromType(eachRaw),
					),
					command,
				)
			}
		}
	}

	if each == nil {
		each = types.MakeArray(1)
		each.Append(setVal)
	}

	return applyToPaths(doc, key, posCtx, func(path types.Path) (bool, error) {
		// If the path does not exist, create a new array and set it.
		if !doc.HasByPath(path) {
			if err := doc.SetByPath(path, types.MakeArray(1)); err != nil {
				return false, NewUpdateError(
					handlererrors.ErrUnsuitableValueType,
					err.Error(),
					command,
				)
			}
		}

		value, err := doc.GetByPath(path)
		if err != nil {
			return false, err
		}

		array, ok := value.(*types.Array)
		if !ok {
			return false, NewUpdateError(
				handlererrors.ErrBadValue,
				fmt.Sprintf(
					"The field '%s' must be an array but is of type '%s' in document {_id: %s}",
					path, handlerparams.AliasFromType(value), types.FormatAnyValue(must.NotFail(doc.Get("_id"))),
				),
				command,
			)
		}

		var changed bool

		for i := range each.Len() {
			elem := must.NotFail(each.Get(i))

			if array.Contains(elem) {
				continue
			}

			changed = true

			array.Append(elem)
		}

		if err = doc.SetByPath(path, array); err != nil {
			return false, lazyerrors.Error(err)
		}

		return changed, nil
	})
}

// processPullAllArrayUpdateExpression changes document according to $pullAll array update operator.
// If the document was changed it returns true.
func processPullAllArrayUpdateExpression(
	command string,
	doc *types.Document,
	key string,
	pullVal any,
	posCtx *PositionalContext,
) (bool, error) {
	pullArray, ok := pullVal.(*types.Array)
	if !ok {
		return false, NewUpdateError(
			handlererrors.ErrBadValue,
			fmt.Sprintf(
				"The field '%s' must be an array but is of type '%s'",
				key, handlerparams.AliasFromType(pullVal),
			),
			command,
		)
	}

	return applyToPaths(doc, key, posCtx, func(path types.Path) (bool, error) {
		if !doc.HasByPath(path) {
			if err := checkUnsuitableValueError(command, doc, path.String(), path); err != nil {
				return false, err
			}

			return false, nil
		}

		value, err := doc.GetByPath(path)
		if err != nil {
			return false, lazyerrors.Error(err)
		}

		array, ok := value.(*types.Array)
		if !ok {
			return false, NewUpdateError(
				handlererrors.ErrBadValue,
				fmt.Sprintf(
					"The field '%s' must be an array but is of type '%s' in document {_id: %s}",
					path, handlerparams.AliasFromType(value), types.FormatAnyValue(must.NotFail(doc.Get("_id"))),
				),
				command,
			)
		}

		var changed bool

		for j := range pullArray.Len() {
			pullElem := must.NotFail(pullArray.Get(j))

			// we remove all instances of pullElem in array
			for i := array.Len() - 1; i >= 0; i-- {
				arrayElem := must.NotFail(array.Get(i))

				if types.Compare(arrayElem, pullElem) == types.Equal {
					array.RemoveByIndex(i)
					changed = true
				}
			}
		}

		if err = doc.SetByPath(path, array); err != nil {
			return false, lazyerrors.Error(err)
		}

		return changed, nil
	})
}

// processPullArrayUpdateExpression changes document according to $pull array update operator.
// If the document was changed it returns true.
func processPullArrayUpdateExpression(
	command string,
	doc *types.Document,
	key string,
	pullVal any,
	posCtx *PositionalContext,
) (bool, error) {
	return applyToPaths(doc, key, posCtx, func(path types.Path) (bool, error) {
		if !doc.HasByPath(path) {
			if err := checkUnsuitableValueError(command, doc, path.String(), path); err != nil {
				return false, err
			}

			return false, nil
		}

		value, err := doc.GetByPath(path)
		if err != nil {
			return false, lazyerrors.Error(err)
		}

		array, ok := value.(*types.Array)
		if !ok {
			return false, NewUpdateError(
				handlererrors.ErrBadValue,
				"Cannot apply $pull to a non-array value",
				command,
			)
		}

		var changed bool

		for i := array.Len() - 1; i >= 0; i-- {
			elem := must.NotFail(array.Get(i))

			matches, err := pullConditionMatches(elem, pullVal)
			if err != nil {
				return false, NewUpdateError(handlererrors.ErrBadValue, err.Error(), command)
			}

			if matches {
				array.RemoveByIndex(i)
				changed = true
			}
		}

		if err = doc.SetByPath(path, array); err != nil {
			return false, lazyerrors.Error(err)
		}

		return changed, nil
	})
}

// pullConditionMatches reports whether elem satisfies $pull's condition: a
// scalar or literal document is compared by deep equality, but a document
// containing one or more $-prefixed keys is applied as a query predicate
// against elem (scalar or document alike, via a synthetic single-field
// wrapper so matcher's query-operator evaluation can be reused).
func pullConditionMatches(elem, cond any) (bool, error) {
	condDoc, ok := cond.(*types.Document)
	if !ok || !hasQueryOperatorKey(condDoc) {
		return types.Compare(elem, cond) == types.Equal, nil
	}

	wrappedDoc := types.MakeDocument(1)
	wrappedDoc.Set("v", elem)

	wrappedFilter := types.MakeDocument(1)
	wrappedFilter.Set("v", cond)

	return matcher.Matches(wrappedDoc, wrappedFilter)
}

// hasQueryOperatorKey reports whether d has at least one $-prefixed top-level key.
func hasQueryOperatorKey(d *types.Document) bool {
	for _, k := range d.Keys() {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}

	return false
}
