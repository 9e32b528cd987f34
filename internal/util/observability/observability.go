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

// Package observability provides tracing helpers for the storage port and
// the pipeline executor, backed by OpenTelemetry.
package observability

import (
	"context"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the package-wide tracer; embedding applications configure the
// global OpenTelemetry TracerProvider, this package only needs a name.
var tracer = otel.Tracer("github.com/embeddocs/docstore")

// FuncCall starts a span named after the caller's function and returns a
// function that ends it. It is meant to be used as:
//
//	defer observability.FuncCall(ctx)()
//
// exactly once at the top of every backends.Collection contract method (the
// Database and Backend contract methods do not call it), so that
// collection-level storage-port calls are visible in traces regardless of
// which concrete backend implements them.
func FuncCall(ctx context.Context) func() {
	name := callerName()

	_, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))

	return func() { span.End() }
}

// callerName returns the short name (package.Func) of FuncCall's caller.
func callerName() string {
	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}

	full := fn.Name()
	if i := strings.LastIndex(full, "/"); i >= 0 {
		full = full[i+1:]
	}

	return full
}
