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

// Package lazyerrors provides a way to wrap internal (non-user-facing) errors
// with the caller's file and line, without paying the cost of formatting a
// full stack trace unless the error is actually printed.
package lazyerrors

import (
	"fmt"
	"runtime"
)

// error wraps another error with caller information.
type error struct {
	err   error
	frame runtime.Frame
}

// Error implements the standard error interface.
func (e *error) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.frame.File, e.frame.Line, e.err)
}

// Unwrap returns the wrapped error.
func (e *error) Unwrap() error {
	return e.err
}

// callerFrame returns the frame of the caller skip frames above Error/Errorf.
func callerFrame(skip int) runtime.Frame {
	pc := make([]uintptr, 1)
	n := runtime.Callers(skip+2, pc)

	if n == 0 {
		return runtime.Frame{File: "unknown", Line: 0}
	}

	frame, _ := runtime.CallersFrames(pc).Next()

	return frame
}

// Error wraps err with the caller's file and line.
//
// It returns nil if err is nil.
func Error(err error) error {
	if err == nil {
		return nil
	}

	return &error{err: err, frame: callerFrame(1)}
}

// Errorf is similar to [fmt.Errorf], but it also records the caller's file and line.
func Errorf(format string, args ...any) error {
	return &error{err: fmt.Errorf(format, args...), frame: callerFrame(1)}
}

// check interfaces
var (
	_ error = (*error)(nil)
)
