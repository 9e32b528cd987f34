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

package accumulators

import (
	"errors"

	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/iterator"
	"github.com/embeddocs/docstore/internal/util/lazyerrors"
)

// countAccumulator implements the {$count: {}} accumulator shorthand
// (distinct from the $count pipeline stage): the number of documents in
// the group, ignoring its (always empty) argument.
type countAccumulator struct{}

// newCountAccumulator creates a new $count accumulator.
func newCountAccumulator(args ...any) (Accumulator, error) {
	return countAccumulator{}, nil
}

// Accumulate implements Accumulator interface.
func (countAccumulator) Accumulate(iter types.DocumentsIterator) (any, error) {
	var n int32

	for {
		_, _, err := iter.Next()

		if errors.Is(err, iterator.ErrIteratorDone) {
			break
		}

		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		n++
	}

	return n, nil
}

// check interfaces
var (
	_ Accumulator = (countAccumulator{})
)
