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

	"github.com/embeddocs/docstore/internal/handler/common"
	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/common/matcher"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// match represents $match stage.
type match struct {
	filter *types.Document
}

// newMatch creates a new $match stage.
func newMatch(stage *types.Document) (aggregations.Stage, error) {
	filter, err := common.GetRequiredParam[*types.Document](stage, "$match")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrTypeMismatch,
			"the match filter must be an expression in an object",
			"$match (stage)",
		)
	}

	return &match{filter: filter}, nil
}

// Process implements Stage interface.
func (m *match) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	closer.Add(iter)

	return &matchIterator{
		iter:       iter,
		filter:     m.filter,
		vars:       aggregations.LetVarsFromContext(ctx),
		textFields: aggregations.TextIndexFieldsFromContext(ctx),
	}, nil
}

type matchIterator struct {
	iter       types.DocumentsIterator
	filter     *types.Document
	vars       map[string]any
	textFields []string
}

// Next implements types.DocumentsIterator: it pulls from the underlying
// stream until a document satisfies the filter, or the stream is exhausted.
// A $text match that scores the document stamps it with matcher.TextScoreKey
// so a later $project stage's {$meta: "textScore"} can retrieve it.
func (mi *matchIterator) Next() (struct{}, *types.Document, error) {
	for {
		_, doc, err := mi.iter.Next()
		if err != nil {
			if errors.Is(err, iterator.ErrIteratorDone) {
				return struct{}{}, nil, err
			}

			return struct{}{}, nil, lazyerrors.Error(err)
		}

		res, err := matcher.MatchWithTextIndex(doc, mi.filter, mi.vars, mi.textFields)
		if err != nil {
			return struct{}{}, nil, err
		}

		if res.Matched {
			if res.HasTextScore {
				doc = doc.DeepCopy()
				doc.Set(matcher.TextScoreKey, res.TextScore)
			}

			return struct{}{}, doc, nil
		}
	}
}

// Close implements types.DocumentsIterator.
func (mi *matchIterator) Close() {
	mi.iter.Close()
}

// check interfaces
var (
	_ aggregations.Stage = (*match)(nil)
)
