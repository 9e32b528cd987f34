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

package aggregations

import (
	"context"

	"github.com/embeddocs/docstore/internal/backends"
)

// dbContextKey is an unexported type to keep context values collision-free,
// following the standard library's context.WithValue guidance.
type dbContextKey struct{}

// ContextWithDatabase returns a context carrying db, so that stages needing
// storage access ($lookup, $graphLookup, $out, $merge, $geoNear) can reach it
// without widening the Stage.Process signature for every other stage.
func ContextWithDatabase(ctx context.Context, db backends.Database) context.Context {
	return context.WithValue(ctx, dbContextKey{}, db)
}

// DatabaseFromContext returns the database stored by ContextWithDatabase, or
// nil if none was attached (e.g. a pipeline run without storage access).
func DatabaseFromContext(ctx context.Context) backends.Database {
	db, _ := ctx.Value(dbContextKey{}).(backends.Database)
	return db
}

// letVarsContextKey is an unexported type to keep context values collision-free.
type letVarsContextKey struct{}

// ContextWithLetVars returns a context carrying a $lookup sub-pipeline's
// "let" bindings, so the $match stages within that sub-pipeline can resolve
// "$$name" references in their $expr subterms (spec.md §4.6's $lookup row).
func ContextWithLetVars(ctx context.Context, vars map[string]any) context.Context {
	return context.WithValue(ctx, letVarsContextKey{}, vars)
}

// LetVarsFromContext returns the bindings stored by ContextWithLetVars, or
// nil if none were attached.
func LetVarsFromContext(ctx context.Context) map[string]any {
	vars, _ := ctx.Value(letVarsContextKey{}).(map[string]any)
	return vars
}

// textIndexContextKey is an unexported type to keep context values collision-free.
type textIndexContextKey struct{}

// ContextWithTextIndexFields returns a context carrying the collection's
// declared text-index field names (backends.TextIndexFields), so a $match
// stage's $text term can be evaluated without widening Stage.Process for
// every other stage. A nil or empty fields means no text index is declared.
func ContextWithTextIndexFields(ctx context.Context, fields []string) context.Context {
	return context.WithValue(ctx, textIndexContextKey{}, fields)
}

// TextIndexFieldsFromContext returns the fields stored by
// ContextWithTextIndexFields, or nil if none were attached.
func TextIndexFieldsFromContext(ctx context.Context) []string {
	fields, _ := ctx.Value(textIndexContextKey{}).([]string)
	return fields
}
