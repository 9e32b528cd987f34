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

// Package aggregations implements the pipeline executor (spec.md §4.6): the
// Stage interface every pipeline stage satisfies, and the shared expression
// helpers ($group accumulators and $project/$sort/$match reach for) that
// would otherwise create an import cycle between the stages package and
// the operators package.
package aggregations

import (
	"context"

	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
)

// Stage is a single step of an aggregation pipeline.
//
// Process consumes iter (the previous stage's output, or the collection
// scan for the first stage) and returns a new iterator; most stages wrap
// iter lazily, but "blocking" stages (spec.md §4.6 table: $sort, $group,
// $count, $bucket, ...) drain it eagerly and return an iterator over a
// materialized result. closer collects every iterator opened along the
// chain so the pipeline's caller can release them all with one Close,
// regardless of how many stages were chained or where an error occurred.
type Stage interface {
	Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error)
}
