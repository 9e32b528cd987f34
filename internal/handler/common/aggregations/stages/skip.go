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
	"errors"

	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/handler/handlerparams"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// skip represents $skip stage.
type skip struct {
	n int64
}

// newSkip creates a new $skip stage.
func newSkip(stage *types.Document) (aggregations.Stage, error) {
	v, err := stage.Get("$skip")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrStageSkipBadValue, "$skip specification is missing")
	}

	n, err := handlerparams.GetWholeNumberParam(v)
	if err != nil || n < 0 {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrStageSkipBadValue,
			"invalid argument to $skip stage: Expected a non-negative number",
			"$skip (stage)",
		)
	}

	return &skip{n: n}, nil
}

// Process implements Stage interface.
func (s *skip) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	return &skipIterator{iter: iter, remaining: s.n}, nil
}

type skipIterator struct {
	iter      types.DocumentsIterator
	remaining int64
}

// Next implements types.DocumentsIterator.
func (si *skipIterator) Next() (struct{}, *types.Document, error) {
	for si.remaining > 0 {
		_, _, err := si.iter.Next()
		if err != nil {
			if errors.Is(err, iterator.ErrIteratorDone) {
				return struct{}{}, nil, err
			}

			return struct{}{}, nil, lazyerrors.Error(err)
		}

		si.remaining--
	}

	return si.iter.Next()
}

// Close implements types.DocumentsIterator.
func (si *skipIterator) Close() {
	si.iter.Close()
}

// check interfaces
var (
	_ aggregations.Stage = (*skip)(nil)
)
