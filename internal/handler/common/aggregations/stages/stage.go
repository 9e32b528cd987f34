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

// Package stages implements the concrete pipeline stages (spec.md §4.6):
// one file per stage, each registered in NewStage's dispatch table.
package stages

import (
	"fmt"

	"github.com/embeddocs/docstore/internal/handler/common/aggregations"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/metrics"
)

// newStageFunc creates a new aggregations.Stage from a stage document's
// single value (the value under the stage's one `$op` key).
type newStageFunc func(stage *types.Document) (aggregations.Stage, error)

// registry maps a stage operator name to its constructor.
var registry = map[string]newStageFunc{
	"$addFields":       newAddFields,
	"$bucket":          newBucket,
	"$bucketAuto":      newBucketAuto,
	"$count":           newCount,
	"$facet":           newFacet,
	"$group":           newGroup,
	"$limit":           newLimit,
	"$lookup":          newLookup,
	"$graphLookup":     newGraphLookup,
	"$match":           newMatch,
	"$merge":           newMerge,
	"$out":             newOut,
	"$project":         newProject,
	"$redact":          newRedact,
	"$replaceRoot":     newReplaceRoot,
	"$replaceWith":     newReplaceWith,
	"$set":             newAddFields,
	"$setWindowFields": newSetWindowFields,
	"$skip":            newSkip,
	"$sort":            newSort,
	"$sortByCount":     newSortByCount,
	"$unset":           newUnset,
	"$unwind":          newUnwind,
}

// declinedStages are recognized but not implemented: spec.md §1 puts full
// index-backed $geoNear execution and $densify/$fill's gap-filling
// document synthesis out of scope, so a pipeline naming them fails fast
// rather than silently mis-executing. $setWindowFields is implemented
// (setwindowfields.go, whole-partition windows only) and is not declined.
var declinedStages = map[string]string{
	"$geoNear":           "$geoNear requires a declared geo index, not supported by this storage port",
	"$densify":           "$densify is not implemented",
	"$fill":              "$fill is not implemented",
	"$collStats":         "$collStats is not implemented",
	"$indexStats":        "$indexStats is not implemented",
	"$currentOp":         "$currentOp is not implemented",
	"$listLocalSessions": "$listLocalSessions is not implemented",
}

// NewStage creates a new aggregations.Stage from one pipeline element, a
// document with exactly one `$operator` key.
func NewStage(stage *types.Document) (aggregations.Stage, error) {
	if stage.Len() != 1 {
		return nil, handlererrors.NewCommandErrorMsg(
			handlererrors.ErrBadValue,
			"A pipeline stage specification object must contain exactly one field.",
		)
	}

	name := stage.Command()

	if reason, ok := declinedStages[name]; ok {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(handlererrors.ErrNotImplemented, reason, name)
	}

	newStage, ok := registry[name]
	if !ok {
		return nil, handlererrors.NewCommandErrorMsgWithArgument(
			handlererrors.ErrBadValue,
			fmt.Sprintf("Unrecognized pipeline stage name: '%s'", name),
			name,
		)
	}

	metrics.Default.IncStage(name)

	return newStage(stage)
}

// NewStages creates one aggregations.Stage per element of pipeline.
func NewStages(pipeline *types.Array) ([]aggregations.Stage, error) {
	result := make([]aggregations.Stage, 0, pipeline.Len())

	for i, v := range pipeline.Slice() {
		d, ok := v.(*types.Document)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsgWithArgument(
				handlererrors.ErrTypeMismatch,
				fmt.Sprintf("Each element of the 'pipeline' array must be an object, stage %d is not", i),
				"aggregate",
			)
		}

		if i > 0 && d.Command() == "$match" {
			if filter, err := d.Get("$match"); err == nil {
				if fd, ok := filter.(*types.Document); ok && filterHasText(fd) {
					return nil, handlererrors.NewCommandErrorMsg(
						handlererrors.ErrBadValue,
						"$text is only allowed as the first pipeline stage",
					)
				}
			}
		}

		s, err := NewStage(d)
		if err != nil {
			return nil, err
		}

		result = append(result, s)
	}

	return result, nil
}

// filterHasText reports whether filter contains a $text term, either at its
// top level or nested one level inside $and/$or/$nor, which is as deep as
// the reference server itself looks for this check (spec.md §4.6's $match
// row: "a $text-bearing $match must be the first stage").
func filterHasText(filter *types.Document) bool {
	for _, key := range filter.Keys() {
		if key == "$text" {
			return true
		}

		if key != "$and" && key != "$or" && key != "$nor" {
			continue
		}

		v, err := filter.Get(key)
		if err != nil {
			continue
		}

		arr, ok := v.(*types.Array)
		if !ok {
			continue
		}

		for _, sub := range arr.Slice() {
			if subDoc, ok := sub.(*types.Document); ok && filterHasText(subDoc) {
				return true
			}
		}
	}

	return false
}
