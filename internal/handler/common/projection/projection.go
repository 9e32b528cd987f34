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

// Package projection implements the projection engine (spec.md §4.5): turning
// a query's or $project stage's projection document into a document shaper.
package projection

import (
	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
)

// mode is the kind of projection a single spec document was compiled into.
type mode int

const (
	modeInclusion mode = iota
	modeExclusion
)

// Projection is a compiled projection specification, ready to apply to many
// documents without re-walking the spec document each time.
type Projection struct {
	mode    mode
	fields  []field
	textScore float64
	hasTextScore bool
}

// field is one top-level key of the projection spec, already classified.
type field struct {
	path types.Path
	kind fieldKind
	arg  any // for $slice, $elemMatch, $meta
}

type fieldKind int

const (
	kindInclude fieldKind = iota
	kindExclude
	kindComputed // expression or {$literal: ...}
	kindSlice
	kindElemMatch
	kindMeta
)

// Compile validates and compiles a projection specification document,
// implementing spec.md §4.5's exclusivity rule: a projection is either
// inclusion, exclusion, or computed/mixed, except that "_id" may always be
// excluded (0) alongside an otherwise-inclusion projection.
func Compile(spec *types.Document) (*Projection, error) {
	if spec.Len() == 0 {
		return &Projection{mode: modeInclusion}, nil
	}

	p := &Projection{}

	var sawInclusion, sawExclusion, sawComputed bool

	for _, key := range spec.Keys() {
		v, _ := spec.Get(key)

		path, err := types.NewPathFromString(key)
		if err != nil {
			path = types.NewPathFromElements(key)
		}

		f := field{path: path}

		switch val := v.(type) {
		case *types.Document:
			switch {
			case val.Has("$slice"):
				f.kind = kindSlice
				f.arg, _ = val.Get("$slice")
				sawComputed = true
			case val.Has("$elemMatch"):
				f.kind = kindElemMatch
				f.arg, _ = val.Get("$elemMatch")
				sawComputed = true
			case val.Has("$meta"):
				f.kind = kindMeta
				f.arg, _ = val.Get("$meta")
				sawComputed = true
			default:
				f.kind = kindComputed
				f.arg = val
				sawComputed = true
			}
		case float64, int32, int64:
			if toBoolValue(val) {
				if key == "_id" {
					f.kind = kindInclude
				} else {
					f.kind = kindInclude
					sawInclusion = true
				}
			} else {
				f.kind = kindExclude

				if key == "_id" {
					// _id:0 is always permitted regardless of mode.
				} else {
					sawExclusion = true
				}
			}
		case bool:
			if val {
				f.kind = kindInclude

				if key != "_id" {
					sawInclusion = true
				}
			} else {
				f.kind = kindExclude

				if key != "_id" {
					sawExclusion = true
				}
			}
		default:
			f.kind = kindComputed
			f.arg = v
			sawComputed = true
		}

		p.fields = append(p.fields, f)
	}

	switch {
	case sawComputed || sawInclusion:
		p.mode = modeInclusion
	case sawExclusion:
		p.mode = modeExclusion
	default:
		p.mode = modeInclusion
	}

	if sawInclusion && sawExclusion {
		return nil, handlererrors.NewCommandErrorMsg(
			handlererrors.ErrBadValue,
			"Projection cannot have a mix of inclusion and exclusion.",
		)
	}

	if sawComputed && sawExclusion {
		return nil, handlererrors.NewCommandErrorMsg(
			handlererrors.ErrBadValue,
			"Projection cannot have a mix of exclusion and computed fields.",
		)
	}

	return p, nil
}

// WithTextScore records the $text match score to satisfy $meta:"textScore"
// projections for this document; it must be called before Apply.
func (p *Projection) WithTextScore(score float64) {
	p.textScore = score
	p.hasTextScore = true
}

// Apply shapes doc according to the compiled projection.
func (p *Projection) Apply(doc *types.Document) (*types.Document, error) {
	switch p.mode {
	case modeExclusion:
		return p.applyExclusion(doc)
	default:
		return p.applyInclusion(doc)
	}
}

func (p *Projection) applyExclusion(doc *types.Document) (*types.Document, error) {
	out := doc.DeepCopy()

	for _, f := range p.fields {
		if f.kind == kindExclude {
			out.RemoveByPath(f.path)
		}
	}

	return out, nil
}

func (p *Projection) applyInclusion(doc *types.Document) (*types.Document, error) {
	out := types.MakeDocument(0)

	if doc.Has("_id") {
		idVal, _ := doc.Get("_id")
		out.Set("_id", idVal)
	}

	excludeID := false

	for _, f := range p.fields {
		if f.path.String() == "_id" {
			if f.kind == kindExclude {
				excludeID = true
			}

			continue
		}

		switch f.kind {
		case kindInclude:
			out = walkProjectionPath(f.path, true, out, doc)
		case kindComputed:
			ctx := operators.NewContext(doc)

			val, err := ctx.Eval(f.arg)
			if err != nil {
				return nil, err
			}

			if !types.IsMissing(val) {
				out.SetByPath(f.path, val) //nolint:errcheck // path is a single validated element or dotted string
			}
		case kindSlice:
			if err := applySlice(out, doc, f.path, f.arg); err != nil {
				return nil, err
			}
		case kindElemMatch:
			if err := applyElemMatch(out, doc, f.path, f.arg); err != nil {
				return nil, err
			}
		case kindMeta:
			if s, ok := f.arg.(string); ok && s == "textScore" && p.hasTextScore {
				out.SetByPath(f.path, p.textScore) //nolint:errcheck // see above
			}
		}
	}

	if excludeID {
		out.Remove("_id")
	}

	return out, nil
}

// walkProjectionPath copies the portion of doc named by path from doc into
// projected, preserving intermediate documents along the way; mirrors the
// recursive merge a nested inclusion projection like {"a.b": 1} needs.
func walkProjectionPath(path types.Path, inclusion bool, projected *types.Document, doc *types.Document) *types.Document {
	elements := path.Slice()
	if len(elements) == 0 {
		return projected
	}

	head := elements[0]

	val, err := doc.Get(head)
	if err != nil {
		return projected
	}

	if len(elements) == 1 {
		projected.Set(head, val)
		return projected
	}

	sub, ok := val.(*types.Document)
	if !ok {
		// The path runs through a non-document value (or an array); keep the
		// whole value rather than attempting to project further down it.
		projected.Set(head, val)
		return projected
	}

	var nested *types.Document

	if existing, err := projected.Get(head); err == nil {
		if ed, ok := existing.(*types.Document); ok {
			nested = ed
		}
	}

	if nested == nil {
		nested = types.MakeDocument(0)
	}

	nested = walkProjectionPath(types.NewPathFromElements(elements[1:]...), inclusion, nested, sub)
	projected.Set(head, nested)

	return projected
}

func toBoolValue(v any) bool {
	switch v := v.(type) {
	case float64:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	default:
		return false
	}
}
