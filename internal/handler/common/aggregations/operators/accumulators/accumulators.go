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

// Package accumulators implements the $group/$bucket/$bucketAuto
// accumulator operators (spec.md §4.7): $sum, $avg, $first, $last, $min,
// $max, $push, $addToSet, $mergeObjects, $stdDevPop, $stdDevSamp, and the
// $count accumulator shorthand ({$count: {}}).
package accumulators

import (
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
)

// Accumulator is a single $group field's reduction over the documents in
// one group, bound to its (still unevaluated) expression argument.
type Accumulator interface {
	// Accumulate drains iter (one group's documents) and returns the
	// accumulated field value.
	Accumulate(iter types.DocumentsIterator) (any, error)
}

// newAccumulatorFunc constructs an Accumulator from an accumulator
// expression's arguments, already unwrapped from their enclosing
// {$op: args} document the way the operators package's opFunc is.
type newAccumulatorFunc func(args ...any) (Accumulator, error)

// registry maps every known accumulator operator name to its constructor.
var registry = map[string]newAccumulatorFunc{
	"$sum":          newSum,
	"$avg":          newAvg,
	"$first":        newFirst,
	"$last":         newLast,
	"$min":          newMin,
	"$max":          newMax,
	"$push":         newPush,
	"$addToSet":     newAddToSet,
	"$mergeObjects": newMergeObjects,
	"$stdDevPop":    newStdDevPop,
	"$stdDevSamp":   newStdDevSamp,
	"$count":        newCountAccumulator,
}

// NewAccumulator compiles accumulatorDoc — a $group field's value, of the
// form {$op: expr} — into an Accumulator.
//
// accumulatorDoc with anything other than exactly one field, or with a
// field name not in the registry, is rejected the same way the expression
// operator registry rejects invalid operators.
func NewAccumulator(field string, accumulatorDoc *types.Document) (Accumulator, error) {
	if accumulatorDoc.Len() == 0 {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrStageGroupInvalidAccumulator,
			"The field '"+field+"' must be an accumulator object",
			"$group (stage)",
		)
	}

	if accumulatorDoc.Len() > 1 {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrStageGroupMultipleAccumulator,
			"The field '"+field+"' must specify one accumulator",
			"$group (stage)",
		)
	}

	key := accumulatorDoc.Keys()[0]

	constructor, ok := registry[key]
	if !ok {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrStageGroupInvalidAccumulator,
			"Unknown group operator '"+key+"'",
			"$group (stage)",
		)
	}

	arg, _ := accumulatorDoc.Get(key)

	if arr, ok := arg.(*types.Array); ok {
		args := make([]any, arr.Len())

		for i, v := range arr.Slice() {
			args[i] = v
		}

		return constructor(args...)
	}

	return constructor(arg)
}
