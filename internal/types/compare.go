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
	"math"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// typeOrder assigns every BSON type its rank in the canonical comparison
// order (spec.md §4.1): MinKey < Null < Numbers < String < Document < Array
// < BinData < ObjectID < Bool < Date < Timestamp < Regex < MaxKey.
//
// Numbers (int32, int64, float64) share a single rank and compare by value,
// mixed-type comparisons included: 1 (int32) and 1.0 (float64) are
// ordering-equal even though they remain structurally distinct (see
// Identical).
func typeOrder(v any) int {
	switch v.(type) {
	case NullType, missingType:
		return 1
	case float64, int32, int64:
		return 2
	case string:
		return 3
	case *Document:
		return 4
	case *Array:
		return 5
	case *Binary:
		return 6
	case primitive.ObjectID:
		return 7
	case bool:
		return 8
	case primitive.DateTime:
		return 9
	case Timestamp:
		return 10
	case primitive.Regex:
		return 11
	default:
		return 0
	}
}

// Compare compares two Values under the BSON total order described in
// spec.md §4.1. It never panics. It returns Incomparable when a NaN is
// compared with any number (see compareNumbers), when a document or array
// contains such a pair, or when both values are of a type outside the
// order; everything else returns Less, Equal, or Greater because type rank
// decides values of different types.
func Compare(a, b any) CompareResult {
	ra, rb := typeOrder(a), typeOrder(b)
	if ra != rb {
		return compareOrder(ra, rb)
	}

	switch av := a.(type) {
	case NullType, missingType:
		return Equal
	case float64, int32, int64:
		return compareNumbers(av, b)
	case string:
		return compareOrdered(av, b.(string))
	case bool:
		bv := b.(bool)
		if av == bv {
			return Equal
		}

		if !av && bv {
			return Less
		}

		return Greater
	case primitive.DateTime:
		return compareOrdered(int64(av), int64(b.(primitive.DateTime)))
	case Timestamp:
		return compareTimestamp(av, b.(Timestamp))
	case primitive.ObjectID:
		bv := b.(primitive.ObjectID)
		for i := range av {
			if av[i] != bv[i] {
				if av[i] < bv[i] {
					return Less
				}

				return Greater
			}
		}

		return Equal
	case primitive.Regex:
		bv := b.(primitive.Regex)
		if av.Pattern == bv.Pattern && av.Options == bv.Options {
			return Equal
		}

		return compareOrdered(av.Pattern, bv.Pattern)
	case *Binary:
		return compareBinary(av, b.(*Binary))
	case *Document:
		return compareDocument(av, b.(*Document))
	case *Array:
		return compareArray(av, b.(*Array))
	default:
		return Incomparable
	}
}

func compareOrder(ra, rb int) CompareResult {
	if ra < rb {
		return Less
	}

	return Greater
}

func compareOrdered[T int32 | int64 | string](a, b T) CompareResult {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

// compareNumbers compares two numeric Values (possibly of different
// concrete Go types) by mathematical value, per spec.md §4.1's "Int vs
// Double: compare by value" rule. NaN never compares equal to anything,
// including itself, matching IEEE 754 and the reference server's behavior.
func compareNumbers(a, b any) CompareResult {
	af, aIsFloat := a.(float64)
	bf, bIsFloat := b.(float64)

	if aIsFloat && math.IsNaN(af) {
		return Incomparable
	}

	if bIsFloat && math.IsNaN(bf) {
		return Incomparable
	}

	if !aIsFloat && !bIsFloat {
		return compareOrdered(toInt64(a), toInt64(b))
	}

	x := toFloat64(a)
	y := toFloat64(b)

	switch {
	case x < y:
		return Less
	case x > y:
		return Greater
	default:
		return Equal
	}
}

func toInt64(v any) int64 {
	switch v := v.(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	default:
		panic("types.toInt64: not an integer")
	}
}

func toFloat64(v any) float64 {
	switch v := v.(type) {
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		panic("types.toFloat64: not a number")
	}
}

func compareTimestamp(a, b Timestamp) CompareResult {
	if a.T != b.T {
		return compareOrdered(a.T, b.T)
	}

	return compareOrdered(a.I, b.I)
}

func compareBinary(a, b *Binary) CompareResult {
	if len(a.B) != len(b.B) {
		return compareOrdered(len(a.B), len(b.B))
	}

	if a.Subtype != b.Subtype {
		return compareOrdered(int32(a.Subtype), int32(b.Subtype))
	}

	for i := range a.B {
		if a.B[i] != b.B[i] {
			return compareOrdered(int32(a.B[i]), int32(b.B[i]))
		}
	}

	return Equal
}

// compareDocument compares documents field by field in a's key order, per
// the reference server's document ordering: shorter documents whose fields
// all compare equal to a prefix of the longer one sort first.
func compareDocument(a, b *Document) CompareResult {
	ak, bk := a.Keys(), b.Keys()

	n := len(ak)
	if len(bk) < n {
		n = len(bk)
	}

	for i := 0; i < n; i++ {
		if ak[i] != bk[i] {
			return compareOrdered(ak[i], bk[i])
		}

		if r := Compare(a.m[ak[i]], b.m[bk[i]]); r != Equal {
			return r
		}
	}

	return compareOrdered(len(ak), len(bk))
}

// compareArray compares arrays element by element; a shorter array that is
// a prefix of a longer one sorts first.
func compareArray(a, b *Array) CompareResult {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}

	for i := 0; i < n; i++ {
		if r := Compare(a.s[i], b.s[i]); r != Equal {
			return r
		}
	}

	return compareOrdered(a.Len(), b.Len())
}

// CompareOrder compares a and b as if both were coerced to the given sort
// direction, used by the sort stage and $sort-accumulator comparisons: it
// is Compare with Less/Greater swapped for Descending.
func CompareOrder(a, b any, order SortType) CompareResult {
	r := Compare(a, b)

	if order == Descending {
		switch r {
		case Less:
			return Greater
		case Greater:
			return Less
		}
	}

	return r
}

// CompareOrderForSort is CompareOrder with the reference server's sort-time
// tie-break: Missing sorts as Null (a document lacking the sort key is
// treated as if the key were explicitly null), so that documents with and
// without the field interleave predictably instead of reporting
// Incomparable.
func CompareOrderForSort(a, b any, order SortType) CompareResult {
	if IsMissing(a) {
		a = Null
	}

	if IsMissing(b) {
		b = Null
	}

	return CompareOrder(a, b, order)
}

// Identical reports strict structural equality: unlike Compare, it
// distinguishes values that are merely ordering-equal (spec.md §4.1's
// "Ordering-equal but structurally different values (e.g., 1 vs 1.0) ...
// are structurally distinct"). It requires matching concrete numeric type,
// and for documents requires the same keys in the same order. It is used
// where the reference semantics call for exact identity rather than
// comparison order: $addToSet deduplication, and the update engine's
// "value unchanged" short-circuit that skips rewriting a field already
// equal to the value being set.
func Identical(a, b any) bool {
	switch av := a.(type) {
	case NullType:
		_, ok := b.(NullType)
		return ok
	case missingType:
		_, ok := b.(missingType)
		return ok
	case int32:
		bv, ok := b.(int32)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case primitive.DateTime:
		bv, ok := b.(primitive.DateTime)
		return ok && av == bv
	case Timestamp:
		bv, ok := b.(Timestamp)
		return ok && av == bv
	case primitive.ObjectID:
		bv, ok := b.(primitive.ObjectID)
		return ok && av == bv
	case primitive.Regex:
		bv, ok := b.(primitive.Regex)
		return ok && av.Pattern == bv.Pattern && av.Options == bv.Options
	case *Binary:
		bv, ok := b.(*Binary)
		if !ok || av.Subtype != bv.Subtype || len(av.B) != len(bv.B) {
			return false
		}

		for i := range av.B {
			if av.B[i] != bv.B[i] {
				return false
			}
		}

		return true
	case *Document:
		bv, ok := b.(*Document)
		if !ok || av.Len() != bv.Len() {
			return false
		}

		ak, bk := av.Keys(), bv.Keys()
		for i := range ak {
			if ak[i] != bk[i] || !Identical(av.m[ak[i]], bv.m[bk[i]]) {
				return false
			}
		}

		return true
	case *Array:
		bv, ok := b.(*Array)
		if !ok || av.Len() != bv.Len() {
			return false
		}

		for i := range av.s {
			if !Identical(av.s[i], bv.s[i]) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

// TypeName returns the reference server's lowercase-with-underscores type
// name for v, as produced by the $type expression operator and query form.
func TypeName(v any) string {
	switch v := v.(type) {
	case NullType, missingType:
		return "null"
	case float64:
		return "double"
	case string:
		return "string"
	case *Document:
		return "object"
	case *Array:
		return "array"
	case *Binary:
		return "binData"
	case primitive.ObjectID:
		return "objectId"
	case bool:
		return "bool"
	case primitive.DateTime:
		return "date"
	case int32:
		return "int"
	case Timestamp:
		return "timestamp"
	case int64:
		return "long"
	case primitive.Regex:
		return "regex"
	default:
		return "unknown"
	}
}
