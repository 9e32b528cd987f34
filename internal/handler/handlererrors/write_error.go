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

// WriteError represents a single write's error within a bulk write
// response (insert/update/delete commands report one WriteError per failed
// document rather than failing the whole command), as opposed to
// CommandError which fails the entire command.
type WriteError struct {
	err   error
	code  ErrorCode
	index int
}

// NewWriteError creates a new WriteError wrapping err with the given code.
func NewWriteError(code ErrorCode, err error) error {
	return &WriteError{err: err, code: code}
}

// NewWriteErrorMsg creates a new WriteError with the given code and message.
func NewWriteErrorMsg(code ErrorCode, msg string) error {
	return &WriteError{err: fmt.Errorf("%s", msg), code: code}
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.err)
}

// Unwrap implements errors.Unwrap.
func (e *WriteError) Unwrap() error {
	return e.err
}

// Code returns the error's code.
func (e *WriteError) Code() ErrorCode {
	return e.code
}

// Err returns the wrapped error.
func (e *WriteError) Err() error {
	return e.err
}

// Index returns the position of the failing write within its batch.
func (e *WriteError) Index() int {
	return e.index
}

// WithIndex returns a copy of the WriteError with its batch index set,
// used by the insert/update/delete executors when assembling the
// writeErrors array of a bulk command's response.
func (e *WriteError) WithIndex(index int) *WriteError {
	return &WriteError{err: e.err, code: e.code, index: index}
}
