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

import (
	"fmt"
	"strconv"
	"strings"
)

// Path represents a dotted field path such as "a.b.0.c" (spec.md §4.1's
// path addressing), split into its individual elements.
type Path struct {
	elements []string
}

// NewPathFromString splits a dotted path string into a Path. An empty
// string, or a path with an empty element (a leading/trailing/doubled
// dot), is an error.
func NewPathFromString(s string) (Path, error) {
	if s == "" {
		return Path{}, newPathError(ErrPathElementEmpty, "path cannot be empty")
	}

	elements := strings.Split(s, ".")
	for _, e := range elements {
		if e == "" {
			return Path{}, newPathError(ErrPathElementEmpty, fmt.Sprintf("invalid path %q: empty element", s))
		}
	}

	return Path{elements: elements}, nil
}

// NewPathFromElements builds a Path directly from its elements, skipping validation.
func NewPathFromElements(elements ...string) Path {
	return Path{elements: append([]string(nil), elements...)}
}

// String renders the path back to its dotted form.
func (p Path) String() string {
	return strings.Join(p.elements, ".")
}

// Len returns the number of elements in the path.
func (p Path) Len() int {
	return len(p.elements)
}

// Slice returns the path's elements. The caller must not modify the returned slice.
func (p Path) Slice() []string {
	return p.elements
}

// Prefix returns the path's first element.
func (p Path) Prefix() string {
	return p.elements[0]
}

// Suffix returns the path's last element.
func (p Path) Suffix() string {
	return p.elements[len(p.elements)-1]
}

// TrimPrefix returns the path with its first element removed.
func (p Path) TrimPrefix() Path {
	return Path{elements: p.elements[1:]}
}

// TrimSuffix returns the path with its last element removed.
func (p Path) TrimSuffix() Path {
	return Path{elements: p.elements[:len(p.elements)-1]}
}

// PathErrorCode classifies a path traversal/assignment failure.
type PathErrorCode int

const (
	// ErrPathElementEmpty is returned for a path with an empty element.
	ErrPathElementEmpty PathErrorCode = iota
	// ErrPathKeyNotFound is returned when an intermediate document field does not exist.
	ErrPathKeyNotFound
	// ErrPathIndexOutOfBound is returned when an array index element is out of bounds.
	ErrPathIndexOutOfBound
	// ErrPathIndexInvalid is returned when a path element used against an array isn't a valid index.
	ErrPathIndexInvalid
	// ErrPathConflictOverwrite is returned when writing along the path would
	// overwrite a scalar or array with a document field, or vice versa.
	ErrPathConflictOverwrite
	// ErrPathConflictCollision classifies two paths from the same update
	// document that would write through one another (spec.md §5's
	// conflicting-path rule), e.g. "a" and "a.b" in the same update. No
	// path helper returns it; that rule is checked with IsConflictPath.
	ErrPathConflictCollision
)

// PathError is returned by the Document/Array path helpers.
type PathError struct {
	code PathErrorCode
	msg  string
}

func newPathError(code PathErrorCode, msg string) *PathError {
	return &PathError{code: code, msg: msg}
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return e.msg
}

// Code returns the error's classification.
func (e *PathError) Code() PathErrorCode {
	return e.code
}

// IsPathError reports whether err is a *PathError with the given code.
func IsPathError(err error, code PathErrorCode) bool {
	pe, ok := err.(*PathError)
	return ok && pe.code == code
}

// GetByPath resolves path against d, returning Missing (with no error) if
// any element along the way is absent — traversal through a missing field
// is not itself an error, matching query/projection semantics where a
// non-existent path simply doesn't match or isn't projected.
func GetByPath(d any, path Path) (any, error) {
	cur := any(d)

	for _, elem := range path.Slice() {
		switch v := cur.(type) {
		case *Document:
			val, err := v.Get(elem)
			if err != nil {
				return Missing, nil
			}

			cur = val
		case *Array:
			idx, err := strconv.Atoi(elem)
			if err != nil {
				return Missing, nil
			}

			val, err := v.Get(idx)
			if err != nil {
				return Missing, nil
			}

			cur = val
		default:
			return Missing, nil
		}
	}

	return cur, nil
}

// HasByPath reports whether path resolves to a present (non-Missing) value in d.
func HasByPath(d any, path Path) bool {
	v, err := GetByPath(d, path)
	return err == nil && !IsMissing(v)
}

// FindValues resolves path against d the way the match compiler needs
// (spec.md §3 "Path addressing"): whenever traversal passes through an
// Array, every element of that array is explored independently for the
// remainder of the path, and all results are collected. A scalar-only path
// (no array encountered) yields exactly one value.
//
// This is the "array-aware" counterpart to GetByPath, which always takes
// the first matching position; FindValues is used by field predicates,
// $elemMatch, and $all, where the reference server matches if *any*
// resolved value satisfies the predicate.
func FindValues(d any, path Path) []any {
	return findValues(d, path.Slice())
}

func findValues(cur any, elements []string) []any {
	if len(elements) == 0 {
		return []any{cur}
	}

	elem := elements[0]
	rest := elements[1:]

	switch v := cur.(type) {
	case *Document:
		val, err := v.Get(elem)
		if err != nil {
			return []any{Missing}
		}

		return findValues(val, rest)
	case *Array:
		var out []any

		// A numeric segment addresses a specific element directly...
		if idx, err := strconv.Atoi(elem); err == nil {
			if val, err := v.Get(idx); err == nil {
				out = append(out, findValues(val, rest)...)
			}
		}

		// ...but every element is also explored, since a field predicate on
		// "a.b" against {a:[{b:1},{b:2}]} must see both b values.
		for _, val := range v.Slice() {
			if _, ok := val.(*Document); ok {
				out = append(out, findValues(val, elements)...)
			}
		}

		if len(out) == 0 {
			return []any{Missing}
		}

		return out
	default:
		return []any{Missing}
	}
}

// SetByPath sets value at path within doc, creating intermediate documents
// as needed. An intermediate step may also traverse an existing array by
// index (e.g. "a.0.b"); a non-numeric index is ErrPathIndexInvalid, an
// out-of-bounds index is ErrPathIndexOutOfBound, and a step through a
// scalar is ErrPathConflictOverwrite.
func SetByPath(doc *Document, path Path, value any) error {
	elements := path.Slice()

	var cur any = doc

	for i := 0; i < len(elements)-1; i++ {
		elem := elements[i]

		switch v := cur.(type) {
		case *Document:
			next, err := v.Get(elem)
			if err != nil {
				nd := MakeDocument(1)
				v.Set(elem, nd)
				cur = nd

				continue
			}

			switch next.(type) {
			case *Document, *Array:
				cur = next
			default:
				return newPathError(ErrPathConflictOverwrite,
					fmt.Sprintf("cannot create field %q in element %v", elements[i+1], elem))
			}

		case *Array:
			idx, err := strconv.Atoi(elem)
			if err != nil {
				return newPathError(ErrPathIndexInvalid, fmt.Sprintf("cannot use %q as an array index", elem))
			}

			next, err := v.Get(idx)
			if err != nil {
				return newPathError(ErrPathIndexOutOfBound, fmt.Sprintf("index %d is out of bounds", idx))
			}

			switch next.(type) {
			case *Document, *Array:
				cur = next
			default:
				return newPathError(ErrPathConflictOverwrite,
					fmt.Sprintf("cannot create field %q in element %v", elements[i+1], elem))
			}

		default:
			return newPathError(ErrPathConflictOverwrite, fmt.Sprintf("cannot traverse into scalar at %q", elem))
		}
	}

	last := elements[len(elements)-1]

	switch v := cur.(type) {
	case *Document:
		v.Set(last, value)
		return nil
	case *Array:
		idx, err := strconv.Atoi(last)
		if err != nil {
			return newPathError(ErrPathIndexInvalid, fmt.Sprintf("cannot use %q as an array index", last))
		}

		return v.Set(idx, value)
	default:
		return newPathError(ErrPathConflictOverwrite, "cannot set through a scalar value")
	}
}

// RemoveByPath removes the value at path within doc, returning it (or
// Missing if the path did not resolve to a present value).
func RemoveByPath(doc *Document, path Path) any {
	elements := path.Slice()

	cur := any(doc)

	for i := 0; i < len(elements)-1; i++ {
		switch v := cur.(type) {
		case *Document:
			next, err := v.Get(elements[i])
			if err != nil {
				return Missing
			}

			cur = next
		case *Array:
			idx, err := strconv.Atoi(elements[i])
			if err != nil {
				return Missing
			}

			next, err := v.Get(idx)
			if err != nil {
				return Missing
			}

			cur = next
		default:
			return Missing
		}
	}

	last := elements[len(elements)-1]

	switch v := cur.(type) {
	case *Document:
		if !v.Has(last) {
			return Missing
		}

		return v.Remove(last)
	case *Array:
		idx, err := strconv.Atoi(last)
		if err != nil {
			return Missing
		}

		return v.RemoveByIndex(idx)
	default:
		return Missing
	}
}

// IsConflictPath reports whether a and b are "conflicting" update paths:
// one is a strict prefix of the other (e.g. "a" and "a.b"), which the
// reference server rejects because writing both in the same update is
// ambiguous about which wins.
func IsConflictPath(a, b Path) bool {
	ae, be := a.Slice(), b.Slice()

	n := len(ae)
	if len(be) < n {
		n = len(be)
	}

	for i := 0; i < n; i++ {
		if ae[i] != be[i] {
			return false
		}
	}

	return len(ae) != len(be)
}

// GetByPath resolves path against d, returning Missing if any element along
// the way is absent.
func (d *Document) GetByPath(path Path) (any, error) {
	return GetByPath(d, path)
}

// HasByPath reports whether path resolves to a present value in d.
func (d *Document) HasByPath(path Path) bool {
	return HasByPath(d, path)
}

// SetByPath sets value at path within d, creating intermediate documents as needed.
func (d *Document) SetByPath(path Path, value any) error {
	return SetByPath(d, path, value)
}

// RemoveByPath removes and returns the value at path within d.
func (d *Document) RemoveByPath(path Path) any {
	return RemoveByPath(d, path)
}
