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

// Package types defines the document value model shared by the match
// compiler, expression evaluator, update engine, projection engine, and
// aggregation pipeline: a tagged, recursive Value with a total BSON-style
// ordering, and path addressing over it.
//
// A Value is one of: NullType, the Missing marker, bool, int32, int64,
// float64, string, primitive.DateTime, primitive.ObjectID, primitive.Regex,
// Timestamp, *Binary, *Array, or *Document. Host-language nil is never a
// valid Value; absence of a field is represented by Missing, and a value
// that is explicitly null by Null (a NullType instance).
package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NullType represents BSON type Null in Go.
type NullType struct{}

// Null is the only valid value of type NullType.
var Null = NullType{}

// missingType represents the absence of a field, which BSON/MongoDB
// distinguishes from an explicit null in projections, $ifNull, $type, and
// the update engine's "set vs omit" decisions.
type missingType struct{}

// Missing is the sentinel returned by path traversal when an intermediate
// or leaf field does not exist. It is never stored inside a Document or
// Array; it only ever appears as a traversal/evaluation result.
var Missing = missingType{}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v any) bool {
	_, ok := v.(missingType)
	return ok
}

// CompareResult represents the result of a comparison.
type CompareResult int

const (
	// Equal indicates two values compared as equal under some ordering.
	Equal CompareResult = iota
	// Less indicates that the first value is smaller than the second.
	Less
	// Greater indicates that the first value is larger than the second.
	Greater
	// Incomparable is returned when no meaningful ordering between two values exists.
	Incomparable
)

// String implements fmt.Stringer.
func (r CompareResult) String() string {
	switch r {
	case Equal:
		return "Equal"
	case Less:
		return "Less"
	case Greater:
		return "Greater"
	case Incomparable:
		return "Incomparable"
	default:
		return "Invalid"
	}
}

// SortType represents sort order: ascending or descending.
type SortType int

const (
	// Ascending sort order.
	Ascending SortType = iota
	// Descending sort order.
	Descending
)

// ObjectID is an alias for the canonical 12-byte MongoDB object identifier.
//
// The reference driver already provides exactly the representation spec.md
// §6 asks for (24 lowercase hex characters, constructible only from that
// form), so the core reuses it instead of rolling its own.
type ObjectID = primitive.ObjectID

// NewObjectID generates a new, randomly seeded ObjectID.
func NewObjectID() ObjectID {
	return primitive.NewObjectID()
}

// ObjectIDFromHex parses the canonical 24-character hex form of an ObjectID.
func ObjectIDFromHex(s string) (ObjectID, error) {
	return primitive.ObjectIDFromHex(s)
}

// Regex represents the BSON regular expression type: a pattern plus flags,
// kept distinct from a compiled *regexp.Regexp because flags like case
// insensitivity and multiline must round-trip even for patterns this
// implementation's regex engine cannot itself compile.
type Regex = primitive.Regex

// DateTime represents the BSON Date type: a signed millisecond offset from
// the Unix epoch.
type DateTime = primitive.DateTime

// NewDateTimeFromTime converts a time.Time to a DateTime, truncating to
// millisecond precision the same way the reference server does.
func NewDateTimeFromTime(t time.Time) DateTime {
	return primitive.NewDateTimeFromTime(t)
}

// MaxDocumentLen is the maximum size, in bytes, of an encoded document this
// implementation accepts, matching the reference server's 16 MiB BSON
// document size limit (spec.md §4.8's storage port boundary).
const MaxDocumentLen = 16 * 1024 * 1024

// Binary represents the BSON BinData type.
type Binary struct {
	Subtype byte
	B       []byte
}
