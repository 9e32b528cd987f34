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
	"github.com/embeddocs/docstore/internal/handler/common/matcher"
	"github.com/embeddocs/docstore/internal/handler/common/projection"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
)

// project represents $project stage.
type project struct {
	p *projection.Projection
}

// newProject creates a new $project stage.
func newProject(stage *types.Document) (aggregations.Stage, error) {
	spec, err := common.GetRequiredParam[*types.Document](stage, "$project")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrTypeMismatch,
			"$project specification must be an object",
			"$project (stage)",
		)
	}

	p, err := projection.Compile(spec)
	if err != nil {
		return nil, err
	}

	return &project{p: p}, nil
}

// Process implements Stage interface.
func (s *project) Process(ctx context.Context, iter types.DocumentsIterator, closer *iterator.MultiCloser) (types.DocumentsIterator, error) { //nolint:lll // for readability
	return aggregations.NewMapIterator(iter, closer, func(doc *types.Document) ([]*types.Document, error) {
		if score, err := doc.Get(matcher.TextScoreKey); err == nil {
			if f, ok := score.(float64); ok {
				s.p.WithTextScore(f)

				doc = doc.DeepCopy()
				doc.Remove(matcher.TextScoreKey)
			}
		}

		out, err := s.p.Apply(doc)
		if err != nil {
			return nil, err
		}

		return []*types.Document{out}, nil
	}), nil
}

// check interfaces
var (
	_ aggregations.Stage = (*project)(nil)
)
