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
	"sort"
	"sync/atomic"
)

// Document represents a BSON document: an ordered mapping from string keys
// to Values. Insertion order is part of the data model (spec.md §3) and is
// preserved by every operation that copies a Document.
type Document struct {
	keys   []string
	m      map[string]any
	frozen atomic.Bool
}

// NewDocument creates a Document from alternating key/value pairs, in the
// order given. An odd number of arguments, a non-string key, or a duplicate
// key is an error.
func NewDocument(pairs ...any) (*Document, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("types.NewDocument: invalid number of arguments: %d", len(pairs))
	}

	doc := &Document{
		keys: make([]string, 0, len(pairs)/2),
		m:    make(map[string]any, len(pairs)/2),
	}

	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("types.NewDocument: invalid key type: %T", pairs[i])
		}

		if err := doc.add(key, pairs[i+1]); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// MakeDocument creates an empty Document with the given key capacity hint.
func MakeDocument(capacity int) *Document {
	if capacity == 0 {
		return new(Document)
	}

	return &Document{
		keys: make([]string, 0, capacity),
		m:    make(map[string]any, capacity),
	}
}

// ConvertDocument ensures d is non-nil, returning an empty Document for a nil one.
func ConvertDocument(d *Document) *Document {
	if d == nil {
		return MakeDocument(0)
	}

	return d
}

// add appends a new key; it is an error if the key already exists.
func (d *Document) add(key string, value any) error {
	if _, ok := d.m[key]; ok {
		return fmt.Errorf("types.Document.add: key %q already present", key)
	}

	if d.m == nil {
		d.m = make(map[string]any)
	}

	d.keys = append(d.keys, key)
	d.m[key] = value

	return nil
}

// Len returns the number of elements in the document. It is safe to call on a nil Document.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}

	return len(d.keys)
}

// Keys returns document's keys, in insertion order. The caller must not modify the returned slice.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}

	return d.keys
}

// Map returns this document as a map of keys to values. The caller must not modify the returned map.
func (d *Document) Map() map[string]any {
	if d == nil {
		return nil
	}

	return d.m
}

// Has returns true if the given key is present in the document.
func (d *Document) Has(key string) bool {
	if d == nil {
		return false
	}

	_, ok := d.m[key]

	return ok
}

// Get returns a value for the given key, or an error if it is not present.
func (d *Document) Get(key string) (any, error) {
	if d == nil {
		return nil, fmt.Errorf("types.Document.Get: key %q not found", key)
	}

	if v, ok := d.m[key]; ok {
		return v, nil
	}

	return nil, fmt.Errorf("types.Document.Get: key %q not found", key)
}

// GetOrDefault returns a value for the given key, or def if it is not present.
func (d *Document) GetOrDefault(key string, def any) any {
	if v, err := d.Get(key); err == nil {
		return v
	}

	return def
}

// Set sets the value for the given key, appending it if not already present
// (preserving first-seen position when overwriting).
func (d *Document) Set(key string, value any) {
	d.checkFrozen()

	if d.m == nil {
		d.m = make(map[string]any)
	}

	if _, ok := d.m[key]; !ok {
		d.keys = append(d.keys, key)
	}

	d.m[key] = value
}

// Remove removes the given key, returning its value, or nil if absent.
func (d *Document) Remove(key string) any {
	d.checkFrozen()

	v, ok := d.m[key]
	if !ok {
		return nil
	}

	delete(d.m, key)

	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}

	return v
}

// DeepCopy returns a deep copy of this Document, unfrozen.
func (d *Document) DeepCopy() *Document {
	if d == nil {
		return nil
	}

	return deepCopyDoc(d)
}

func deepCopyDoc(d *Document) *Document {
	cp := MakeDocument(d.Len())

	for _, k := range d.keys {
		cp.Set(k, deepCopyValue(d.m[k]))
	}

	return cp
}

func deepCopyValue(v any) any {
	switch v := v.(type) {
	case *Document:
		return deepCopyDoc(v)
	case *Array:
		return deepCopyArray(v)
	default:
		return v
	}
}

// Freeze marks the document (and all documents/arrays nested within it) as
// immutable. Mutating a frozen document panics. Used by the storage port
// contract so that documents handed to a backend can't be mutated by a
// concurrent caller afterwards.
func (d *Document) Freeze() {
	if d == nil || d.frozen.Load() {
		return
	}

	d.frozen.Store(true)

	for _, k := range d.keys {
		switch v := d.m[k].(type) {
		case *Document:
			v.Freeze()
		case *Array:
			v.Freeze()
		}
	}
}

// Frozen reports whether the document has been frozen.
func (d *Document) Frozen() bool {
	return d != nil && d.frozen.Load()
}

func (d *Document) checkFrozen() {
	if d.Frozen() {
		panic("types.Document: attempt to modify a frozen document")
	}
}

// SortFieldsByKey sorts the document's keys lexicographically in place.
// Several update modifiers (e.g. $set, $max) apply in key order so that
// results are deterministic regardless of the order keys were supplied in.
func (d *Document) SortFieldsByKey() {
	d.checkFrozen()
	sort.Strings(d.keys)
}

// FindDuplicateKey is a no-op for *Document (duplicate keys can't exist in
// this representation — see spec.md §3) kept for API parity with raw wire
// documents; it always reports ok=false.
func (d *Document) FindDuplicateKey() (string, bool) {
	return "", false
}

// Command returns the command name of a command document: by wire protocol
// convention, a command's name is always its first field (e.g. {find:
// "coll", filter: {...}} is the find command against "coll").
func (d *Document) Command() string {
	if d.Len() == 0 {
		return ""
	}

	return d.keys[0]
}

// Iterator returns an iterator over document's fields, in insertion order.
func (d *Document) Iterator() *DocumentIterator {
	return newDocumentIterator(d)
}
