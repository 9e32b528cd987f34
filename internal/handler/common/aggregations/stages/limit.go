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
	"github.com/embeddocs/docstore/internal/handler/handlerparams"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
)

// limit represents $limit stage.
type limit struct {
	n int64
}

// newLimit creates a new $limit stage.
func newLimit(stage *types.Document) (aggregations.Stage, error) {
	v, err := stage.Get("$limit")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrStageLimitInvalidArg, "$limit specification is missing")
	}

	n, err := handlerparams.GetWholeNumberParam(v)
	if err != nil || n <= 0 {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrStageLimitInvalidArg,
			"the limit must be positive",
			"$limit (stage)",
		)
	}

	return &limit{n: n}, nil
}

// Process implements Stage interface.
func (l *limit) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	return &limitIterator{iter: iter, remaining: l.n}, nil
}

type limitIterator struct {
	iter      types.DocumentsIterator
	remaining int64
}

// Next implements types.DocumentsIterator.
func (li *limitIterator) Next() (struct{}, *types.Document, error) {
	if li.remaining <= 0 {
		return struct{}{}, nil, iterator.ErrIteratorDone
	}

	li.remaining--

	return li.iter.Next()
}

// Close implements types.DocumentsIterator.
func (li *limitIterator) Close() {
	li.iter.Close()
}

// check interfaces
var (
	_ aggregations.Stage = (*limit)(nil)
)
