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

package stages

import (
	"context"

	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
)

// sortByCount represents $sortByCount stage: sugar for grouping by the given
// expression, counting each group, and sorting descending by count
// (SPEC_FULL.md §4.6 supplement).
type sortByCount struct {
	group *group
	sort  *sortStage
}

// newSortByCount creates a new $sortByCount stage.
func newSortByCount(stage *types.Document) (aggregations.Stage, error) {
	expr, err := stage.Get("$sortByCount")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$sortByCount specification is missing")
	}

	countDoc := types.MakeDocument(1)
	countDoc.Set("$sum", int32(1))

	groupFields := types.MakeDocument(2)
	groupFields.Set("_id", expr)
	groupFields.Set("count", countDoc)

	groupStageDoc := types.MakeDocument(1)
	groupStageDoc.Set("$group", groupFields)

	groupStage, err := newGroup(groupStageDoc)
	if err != nil {
		return nil, err
	}

	sortSpec := types.MakeDocument(1)
	sortSpec.Set("count", int32(-1))

	sortStageDoc := types.MakeDocument(1)
	sortStageDoc.Set("$sort", sortSpec)

	sortStg, err := newSort(sortStageDoc)
	if err != nil {
		return nil, err
	}

	return &sortByCount{group: groupStage.(*group), sort: sortStg.(*sortStage)}, nil
}

// Process implements Stage interface.
func (s *sortByCount) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	grouped, err := s.group.Process(ctx, iter, closer)
	if err != nil {
		return nil, err
	}

	return s.sort.Process(ctx, grouped, closer)
}

// check interfaces
var (
	_ aggregations.Stage = (*sortByCount)(nil)
)
