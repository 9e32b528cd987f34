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
	"strconv"
	"strings"

	"github.com/embeddocs/docstore/internal/handler/common/matcher"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
)

// PositionalContext carries the information an update statement needs to
// resolve the $, $[], and $[ident] positional path tokens (spec.md §4.4,
// "Positional targets") while a modifier document is applied. A nil
// *PositionalContext is equivalent to one with no positional match and no
// array filters: an update path containing $ or $[ident] then fails with
// ErrBadPositionalOperator, while $[] needs no context and still resolves.
type PositionalContext struct {
	// HasPositional and PositionalIndex resolve a bare "$" token: the index
	// (as a path element, e.g. "2") of the array element the query matched,
	// as recorded by the match compiler's positional result (C3).
	HasPositional   bool
	PositionalIndex string

	// ArrayFilters maps each arrayFilters identifier to the predicate
	// document bound to it. An entry's keys are dotted paths rooted at the
	// identifier itself (e.g. {"x.score": {$gt: 80}} binds identifier "x"),
	// matching the reference server's arrayFilters shape.
	ArrayFilters map[string]*types.Document
}

// NewPositionalContext builds a PositionalContext from a $-query's recorded
// positional index (hasPositional is false if the query didn't touch an array) and an update
// statement's arrayFilters array (nil or empty if absent).
func NewPositionalContext(positionalIndex string, hasPositional bool, arrayFilters *types.Array) (*PositionalContext, error) {
	ctx := &PositionalContext{HasPositional: hasPositional, PositionalIndex: positionalIndex}

	if arrayFilters == nil || arrayFilters.Len() == 0 {
		return ctx, nil
	}

	ctx.ArrayFilters = make(map[string]*types.Document, arrayFilters.Len())

	for _, v := range arrayFilters.Slice() {
		filter, ok := v.(*types.Document)
		if !ok || filter.Len() == 0 {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "Each array filter must be a non-empty object")
		}

		ident := strings.SplitN(filter.Keys()[0], ".", 2)[0]

		if _, exists := ctx.ArrayFilters[ident]; exists {
			return nil, handlererrors.NewCommandErrorMsg(
				handlererrors.ErrBadValue,
				fmt.Sprintf("Found multiple array filters with the same top-level field name %s", ident),
			)
		}

		ctx.ArrayFilters[ident] = filter
	}

	return ctx, nil
}

// resolveUpdatePaths expands key's $, $[], and $[ident] tokens against doc
// into the concrete, array-index-resolved paths they address, left to right
// (nesting, e.g. "a.$[].b.$[inner].c", is applied one step at a time). A key
// with no such token resolves to itself unchanged.
func resolveUpdatePaths(doc *types.Document, key string, ctx *PositionalContext) ([]types.Path, error) {
	raw, err := types.NewPathFromString(key)
	if err != nil {
		return nil, err
	}

	elements := raw.Slice()

	hasToken := false

	for _, e := range elements {
		if e == "$" || e == "$[]" || isArrayFilterToken(e) {
			hasToken = true
			break
		}
	}

	if !hasToken {
		return []types.Path{raw}, nil
	}

	paths := []types.Path{types.NewPathFromElements()}

	for _, elem := range elements {
		var next []types.Path

		switch {
		case elem == "$":
			if ctx == nil || !ctx.HasPositional {
				return nil, handlererrors.NewWriteErrorMsg(
					handlererrors.ErrBadPositionalOperator,
					fmt.Sprintf("The positional operator did not find the match needed from the query in path '%s'", key),
				)
			}

			for _, p := range paths {
				next = append(next, appendPathElement(p, ctx.PositionalIndex))
			}

		case elem == "$[]":
			for _, p := range paths {
				arr, ok := arrayValueAt(doc, p)
				if !ok {
					return nil, handlererrors.NewWriteErrorMsg(
						handlererrors.ErrBadPositionalOperator,
						fmt.Sprintf("The path '%s' must refer to an array in the document", p),
					)
				}

				for i := range arr.Len() {
					next = append(next, appendPathElement(p, strconv.Itoa(i)))
				}
			}

		case isArrayFilterToken(elem):
			ident := elem[2 : len(elem)-1]

			var filter *types.Document
			if ctx != nil {
				filter = ctx.ArrayFilters[ident]
			}

			if filter == nil {
				return nil, handlererrors.NewWriteErrorMsg(
					handlererrors.ErrBadPositionalOperator,
					fmt.Sprintf("No array filter found for identifier '%s' in path '%s'", ident, key),
				)
			}

			for _, p := range paths {
				arr, ok := arrayValueAt(doc, p)
				if !ok {
					return nil, handlererrors.NewWriteErrorMsg(
						handlererrors.ErrBadPositionalOperator,
						fmt.Sprintf("The path '%s' must refer to an array in the document", p),
					)
				}

				for i := range arr.Len() {
					elemVal, elemErr := arr.Get(i)
					if elemErr != nil {
						continue
					}

					wrapped := types.MakeDocument(1)
					wrapped.Set(ident, elemVal)

					matched, err := matcher.Matches(wrapped, filter)
					if err != nil {
						return nil, err
					}

					if matched {
						next = append(next, appendPathElement(p, strconv.Itoa(i)))
					}
				}
			}

		default:
			for _, p := range paths {
				next = append(next, appendPathElement(p, elem))
			}
		}

		paths = next
	}

	return paths, nil
}

// isArrayFilterToken reports whether elem is a "$[ident]" positional token.
func isArrayFilterToken(elem string) bool {
	return strings.HasPrefix(elem, "$[") && strings.HasSuffix(elem, "]") && elem != "$[]"
}

// appendPathElement returns p with elem appended as its new last element.
func appendPathElement(p types.Path, elem string) types.Path {
	elements := append(append([]string{}, p.Slice()...), elem)
	return types.NewPathFromElements(elements...)
}

// arrayValueAt resolves p against doc and reports whether it names an array.
func arrayValueAt(doc *types.Document, p types.Path) (*types.Array, bool) {
	v, err := doc.GetByPath(p)
	if err != nil {
		return nil, false
	}

	arr, ok := v.(*types.Array)

	return arr, ok
}

// applyToPaths resolves key's positional tokens against doc and invokes fn
// once per concrete, resolved path, OR-ing together the changed results and
// stopping at the first error.
func applyToPaths(
	doc *types.Document,
	key string,
	ctx *PositionalContext,
	fn func(path types.Path) (bool, error),
) (bool, error) {
	paths, err := resolveUpdatePaths(doc, key, ctx)
	if err != nil {
		return false, err
	}

	var changed bool

	for _, path := range paths {
		c, err := fn(path)
		if err != nil {
			return false, err
		}

		changed = changed || c
	}

	return changed, nil
}
