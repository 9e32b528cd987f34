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

// Package logging provides the structured logger used throughout the core.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	global *zap.Logger
)

// initGlobal lazily creates a development logger so the package works even
// when the embedding application never calls SetGlobal.
func initGlobal() {
	once.Do(func() {
		l, err := zap.NewDevelopment()
		if err != nil {
			l = zap.NewNop()
		}

		global = l
	})
}

// SetGlobal replaces the package-wide base logger.
//
// Call it once during application startup before any WithName call.
func SetGlobal(l *zap.Logger) {
	once.Do(func() {})
	global = l
}

// WithName returns a named child of the global logger, in the spirit of the
// teacher's logging.WithName: every package-level component (a pipeline
// stage, a backend) gets its own named logger instead of
// sharing one undifferentiated sink.
func WithName(name string) *zap.Logger {
	initGlobal()

	return global.Named(name)
}
