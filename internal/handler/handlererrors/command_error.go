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

package handlererrors

import "fmt"

// CommandError represents a command error, returned as the top-level error
// for a whole command (as opposed to a WriteError, which is attached to one
// write in a bulk write's results array).
type CommandError struct {
	err      error
	code     ErrorCode
	argument string
}

// NewCommandError creates a new CommandError wrapping err with the given code.
func NewCommandError(code ErrorCode, err error) error {
	return &CommandError{err: err, code: code}
}

// NewCommandErrorMsg creates a new CommandError with the given code and message.
func NewCommandErrorMsg(code ErrorCode, msg string) error {
	return NewCommandError(code, fmt.Errorf("%s", msg))
}

// NewCommandErrorMsgWithArgument is like NewCommandErrorMsg, but also
// records the command argument (field path, operator name, etc.) that
// triggered the error, used by callers that want to report it (e.g. in a
// findAndModify response).
func NewCommandErrorMsgWithArgument(code ErrorCode, msg, argument string) error {
	return &CommandError{err: fmt.Errorf("%s", msg), code: code, argument: argument}
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.err)
}

// Unwrap implements errors.Unwrap.
func (e *CommandError) Unwrap() error {
	return e.err
}

// Code returns the error's code.
func (e *CommandError) Code() ErrorCode {
	return e.code
}

// Err returns the wrapped error.
func (e *CommandError) Err() error {
	return e.err
}

// Argument returns the command argument associated with the error, if any.
func (e *CommandError) Argument() string {
	return e.argument
}

// String implements fmt.Stringer for ErrorCode, rendering it the way the
// reference server's error messages embed the symbolic name.
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}

	return fmt.Sprintf("ErrorCode(%d)", int32(c))
}

var errorCodeNames = map[ErrorCode]string{
	ErrInternalError:                        "InternalError",
	ErrBadValue:                             "BadValue",
	ErrNamespaceNotFound:                    "NamespaceNotFound",
	ErrIndexNotFound:                        "IndexNotFound",
	ErrPathNotViable:                        "PathNotViable",
	ErrNamespaceExists:                      "NamespaceExists",
	ErrCommandNotFound:                      "CommandNotFound",
	ErrInvalidNamespace:                     "InvalidNamespace",
	ErrIndexOptionsConflict:                 "IndexOptionsConflict",
	ErrIndexKeySpecsConflict:                "IndexKeySpecsConflict",
	ErrOperationFailed:                      "OperationFailed",
	ErrDocumentValidationFailure:            "DocumentValidationFailure",
	ErrNotImplemented:                       "NotImplemented",
	ErrDuplicateKeyInsert:                   "DuplicateKey",
	ErrStageCountNonString:                  "Location40156",
	ErrStageCountNonEmptyString:             "Location40157",
	ErrStageCountBadPrefix:                  "Location40158",
	ErrStageCountBadValue:                   "Location40159",
	ErrStageGroupInvalidAccumulator:         "Location40234",
	ErrStageGroupUnaryOperator:              "Location15951",
	ErrStageGroupMultipleAccumulator:        "Location40238",
	ErrStageGroupID:                         "Location15948",
	ErrStageLimitInvalidArg:                 "Location15957",
	ErrStageSkipBadValue:                    "Location15956",
	ErrStageUnwindWrongType:                 "Location15981",
	ErrStageUnwindNoPath:                    "Location28812",
	ErrEmptyFieldPath:                       "Location40352",
	ErrMissingField:                         "Location40414",
	ErrConflictingUpdateOperators:           "ConflictingUpdateOperators",
	ErrDollarPrefixedFieldName:              "DollarPrefixedFieldName",
	ErrInvalidArg:                           "Location28667",
	ErrSliceFirstArg:                        "Location28724",
	ErrEmptyName:                            "Location56",
	ErrImmutableField:                       "ImmutableField",
	ErrCannotCreateIndex:                    "CannotCreateIndex",
	ErrOperatorWrongLenOfArgs:               "Location16020",
	ErrRegexOptions:                         "Location51108",
	ErrRegexMissingParen:                    "Location51091",
	ErrBadPositionalProjection:              "Location31024",
	ErrElementMismatchPositionalProjection:  "Location51246",
	ErrSortBadValue:                         "Location15974",
	ErrSortBadOrder:                         "Location15975",
}
