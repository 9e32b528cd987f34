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

	"github.com/embeddocs/docstore/internal/handler/common"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// sortStage represents $sort stage: a total, stable order over the fully
// materialized input (spec.md §4.6 classifies it as "Blocks").
type sortStage struct {
	spec *types.Document
}

// newSort creates a new $sort stage.
func newSort(stage *types.Document) (aggregations.Stage, error) {
	spec, err := common.GetRequiredParam[*types.Document](stage, "$sort")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrTypeMismatch,
			"the $sort key specification must be an object",
			"$sort (stage)",
		)
	}

	if _, err := common.ValidateSortDocument(spec); err != nil {
		return nil, err
	}

	return &sortStage{spec: spec}, nil
}

// Process implements Stage interface.
func (s *sortStage) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	docs, err := iterator.ConsumeValues(iter)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if err := common.SortDocuments(docs, s.spec); err != nil {
		return nil, err
	}

	return aggregations.NewSliceIterator(docs), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*sortStage)(nil)
)
