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

// Package handlererrors defines the numeric error taxonomy (spec.md §7)
// used throughout the match compiler, update engine, projection engine,
// and aggregation pipeline to report user-facing command failures.
package handlererrors

// ErrorCode represents a wire protocol error code.
type ErrorCode int32

// Error codes, sourced from spec.md §7's table. Values match the reference
// server's numbering exactly so that a driver's error-code-based branching
// (e.g. retrying on 11000) continues to work unmodified.
const (
	// ErrInternalError indicates an internal error.
	ErrInternalError ErrorCode = 1

	// ErrBadValue indicates wrong input.
	ErrBadValue ErrorCode = 2

	// ErrNamespaceNotFound indicates that a collection is not found.
	ErrNamespaceNotFound ErrorCode = 26

	// ErrIndexNotFound indicates that an index is not found for the given collection.
	ErrIndexNotFound ErrorCode = 27

	// ErrPathNotViable indicates that a path cannot be created through an existing value.
	ErrPathNotViable ErrorCode = 28

	// ErrNamespaceExists indicates that the target namespace already exists.
	ErrNamespaceExists ErrorCode = 48

	// ErrCommandNotFound indicates unknown command.
	ErrCommandNotFound ErrorCode = 59

	// ErrInvalidNamespace indicates that the provided namespace is not valid.
	ErrInvalidNamespace ErrorCode = 73

	// ErrIndexOptionsConflict indicates that index options are not viable for the index it tries to create.
	ErrIndexOptionsConflict ErrorCode = 85

	// ErrIndexKeySpecsConflict indicates that an index is already defined with a different name.
	ErrIndexKeySpecsConflict ErrorCode = 86

	// ErrOperationFailed indicates that the operation failed.
	ErrOperationFailed ErrorCode = 96

	// ErrDocumentValidationFailure indicates that the document does not pass its own collection's validation.
	ErrDocumentValidationFailure ErrorCode = 121

	// ErrNotImplemented indicates that a flag or command is not implemented.
	ErrNotImplemented ErrorCode = 238

	// ErrDuplicateKeyInsert indicates duplicate key violation on inserting.
	ErrDuplicateKeyInsert ErrorCode = 11000

	// ErrDuplicateKeyUpdate indicates duplicate key violation on updating.
	ErrDuplicateKeyUpdate ErrorCode = 11000

	// ErrStageCountNonString indicates that the $count stage's argument is not a string.
	ErrStageCountNonString ErrorCode = 40156

	// ErrStageCountNonEmptyString indicates that the $count stage's argument is empty.
	ErrStageCountNonEmptyString ErrorCode = 40157

	// ErrStageCountBadPrefix indicates that the $count stage's field path begins with "$".
	ErrStageCountBadPrefix ErrorCode = 40158

	// ErrStageCountBadValue indicates that the $count stage's argument is not valid.
	ErrStageCountBadValue ErrorCode = 40159

	// ErrStageGroupInvalidAccumulator indicates that the $group accumulator is invalid.
	ErrStageGroupInvalidAccumulator ErrorCode = 40234

	// ErrStageGroupUnaryOperator indicates that the $group accumulator is not a unary expression.
	ErrStageGroupUnaryOperator ErrorCode = 15951

	// ErrStageGroupMultipleAccumulator indicates that a $group field has multiple accumulators.
	ErrStageGroupMultipleAccumulator ErrorCode = 40238

	// ErrStageGroupID indicates that a $group's _id field is invalid.
	ErrStageGroupID ErrorCode = 15948

	// ErrStageLimitInvalidArg indicates invalid argument for the $limit stage.
	ErrStageLimitInvalidArg ErrorCode = 15957

	// ErrStageSkipBadValue indicates invalid argument for the $skip stage.
	ErrStageSkipBadValue ErrorCode = 15956

	// ErrStageUnwindWrongType indicates that $unwind stage's argument has wrong type.
	ErrStageUnwindWrongType ErrorCode = 15981

	// ErrStageUnwindNoPath indicates that $unwind stage's field path is not set.
	ErrStageUnwindNoPath ErrorCode = 28812

	// ErrEmptyFieldPath indicates that the provided field path is empty.
	ErrEmptyFieldPath ErrorCode = 40352

	// ErrMissingField indicates that a required field in a document is missing.
	ErrMissingField ErrorCode = 40414

	// ErrFailedToParse indicates a query parsing error.
	ErrFailedToParse ErrorCode = 9

	// ErrTypeMismatch indicates that the expression result type is not as expected.
	ErrTypeMismatch ErrorCode = 14

	// ErrConflictingUpdateOperators indicates that $set, $inc, and other update
	// operators in the same update document conflict on the same field path.
	ErrConflictingUpdateOperators ErrorCode = 40

	// ErrDollarPrefixedFieldName indicates that a dollar-prefixed field was found
	// where a replacement document (not an update operator document) was expected.
	ErrDollarPrefixedFieldName ErrorCode = 52

	// ErrInvalidArg indicates invalid argument.
	ErrInvalidArg ErrorCode = 28667

	// ErrSliceFirstArg indicates wrong type of the first argument for the $slice operator.
	ErrSliceFirstArg ErrorCode = 28724

	// ErrNotImplementedOp indicates that an expression operator is not implemented.
	ErrNotImplementedOp ErrorCode = 168

	// ErrEmptyName indicates that a field path or accumulator name is empty.
	ErrEmptyName ErrorCode = 56

	// ErrImmutableField indicates that an update tried to modify an immutable field (e.g. "_id").
	ErrImmutableField ErrorCode = 66

	// ErrCannotCreateIndex indicates that an index cannot be created.
	ErrCannotCreateIndex ErrorCode = 67

	// ErrUnsuitableValueType indicates that the value is not suitable for the requested operation.
	ErrUnsuitableValueType ErrorCode = 9

	// ErrOperatorWrongLenOfArgs indicates that the expression operator was given
	// the wrong number of arguments.
	ErrOperatorWrongLenOfArgs ErrorCode = 16020

	// ErrRegexOptions indicates invalid $regex options.
	ErrRegexOptions ErrorCode = 51108

	// ErrRegexMissingParen indicates a malformed regular expression.
	ErrRegexMissingParen ErrorCode = 51091

	// ErrBadPositionalProjection indicates an invalid positional projection operator.
	ErrBadPositionalProjection ErrorCode = 31024

	// ErrElementMismatchPositionalProjection indicates that the positional
	// projection operator didn't find a matching array element.
	ErrElementMismatchPositionalProjection ErrorCode = 51246

	// ErrBadPositionalOperator indicates that an update path's $, $[], or
	// $[id] positional operator has no corresponding query element, array,
	// or arrayFilters entry to resolve against.
	ErrBadPositionalOperator ErrorCode = 51247

	// ErrSortBadValue indicates an invalid sort specification.
	ErrSortBadValue ErrorCode = 15974

	// ErrSortBadOrder indicates a sort order value other than 1, -1, or $meta.
	ErrSortBadOrder ErrorCode = 15975

	// ErrFieldPathInvalidName indicates that a field path (e.g. a $sort or
	// $group key) is not a valid dotted path, typically because it starts
	// with "$" or contains an empty element.
	ErrFieldPathInvalidName ErrorCode = 40353

	// ErrNoTextIndex indicates a $text query against a collection that has
	// no declared text index. Reuses IndexNotFound's code, as the reference
	// server does.
	ErrNoTextIndex ErrorCode = 27
)
