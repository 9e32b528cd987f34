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

// Package matcher implements the query filter compiler/evaluator (spec.md
// §4.3): Matches(doc, filter) and the positional first-match tracking the
// update engine (§4.4) needs to resolve a bare "$" path element.
package matcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/embeddocs/docstore/internal/handler/common/aggregations/operators"
	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/metrics"
)

// Result carries a match outcome plus the positional context the update
// engine's "$" placeholder needs (spec.md §4.3 "Positional matched path").
type Result struct {
	Matched bool

	// PositionalPath, when non-empty, is the dotted path (relative to the
	// document root) of the first array element that satisfied an
	// $elemMatch-style subterm anywhere in the filter, used to resolve a
	// bare "$" in an update path.
	PositionalPath string

	// TextScore is the $text relevance score (spec.md §4.3), set only when
	// HasTextScore is true. A caller projecting {$meta: "textScore"} passes
	// this to projection.Projection.WithTextScore before Apply.
	TextScore    float64
	HasTextScore bool
}

// Matches reports whether doc satisfies filter, implementing spec.md §4.3's
// top-level "implicit $and across sibling keys" rule.
func Matches(doc *types.Document, filter *types.Document) (bool, error) {
	res, err := MatchWithPosition(doc, filter)
	if err != nil {
		return false, err
	}

	return res.Matched, nil
}

// MatchWithPosition is Matches, additionally reporting the first positional
// array index touched by an $elemMatch-style subterm, for C4's "$" support.
func MatchWithPosition(doc *types.Document, filter *types.Document) (Result, error) {
	return MatchWithVars(doc, filter, nil)
}

// MatchWithVars is MatchWithPosition, additionally binding vars as "$$name"
// references inside any $expr subterm — the lexical environment a $lookup
// sub-pipeline's "let" bindings need (spec.md §4.6's $lookup row). A filter
// containing $text against this entry point always fails with NoTextIndex,
// since no text-indexed fields are known; use MatchWithTextIndex when the
// collection has a declared text index.
func MatchWithVars(doc *types.Document, filter *types.Document, vars map[string]any) (Result, error) {
	return MatchWithTextIndex(doc, filter, vars, nil)
}

// MatchWithTextIndex is MatchWithVars, additionally supplying the names of
// the collection's text-indexed fields, so a $text term in filter can be
// tokenized and scored against them (spec.md §4.3). textFields is nil or
// empty when the collection declares no text index.
func MatchWithTextIndex(doc *types.Document, filter *types.Document, vars map[string]any, textFields []string) (Result, error) {
	pc := &positionCapture{vars: vars, textFields: textFields}

	matched, err := matchDocument(doc, filter, pc)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Matched:        matched,
		PositionalPath: pc.path,
		TextScore:      pc.textScore,
		HasTextScore:   pc.hasTextScore,
	}, nil
}

// positionCapture records the first positional path encountered while
// evaluating a filter, in left-to-right, depth-first field order; it also
// carries $lookup "let" variable bindings down into $expr evaluation, and
// the collection's declared text-index fields for $text.
type positionCapture struct {
	path string
	vars map[string]any

	textFields []string

	textScore    float64
	hasTextScore bool
}

func (pc *positionCapture) record(path string) {
	if pc.path == "" {
		pc.path = path
	}
}

// matchDocument implements the top-level "field path or logical operator,
// implicit $and across siblings" dispatch.
func matchDocument(doc *types.Document, filter *types.Document, pc *positionCapture) (bool, error) {
	for _, key := range filter.Keys() {
		value, _ := filter.Get(key)

		ok, err := matchTopLevel(doc, key, value, pc)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func matchTopLevel(doc *types.Document, key string, value any, pc *positionCapture) (bool, error) {
	switch key {
	case "$comment":
		return true, nil
	case "$and":
		return matchLogical(doc, value, pc, "$and", func(results []bool) bool {
			for _, r := range results {
				if !r {
					return false
				}
			}

			return true
		})
	case "$or":
		return matchLogical(doc, value, pc, "$or", func(results []bool) bool {
			for _, r := range results {
				if r {
					return true
				}
			}

			return false
		})
	case "$nor":
		return matchLogical(doc, value, pc, "$nor", func(results []bool) bool {
			for _, r := range results {
				if r {
					return false
				}
			}

			return true
		})
	case "$expr":
		evalCtx := operators.NewContext(doc)
		if len(pc.vars) > 0 {
			evalCtx = evalCtx.Child(pc.vars)
		}

		res, err := evalCtx.Eval(value)
		if err != nil {
			return false, err
		}

		return operators.Truthy(res), nil
	case "$jsonSchema":
		schema, ok := value.(*types.Document)
		if !ok {
			return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$jsonSchema must be an object")
		}

		return matchJSONSchema(doc, schema)
	case "$text":
		return matchText(doc, value, pc)
	case "$where":
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrNotImplemented, "$where is not supported")
	default:
		return matchFieldPredicate(doc, key, value, pc)
	}
}

func matchLogical(doc *types.Document, value any, pc *positionCapture, op string, combine func([]bool) bool) (bool, error) {
	arr, ok := value.(*types.Array)
	if !ok {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, op+" must be an array")
	}

	if arr.Len() == 0 {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, op+" must be a nonempty array")
	}

	results := make([]bool, arr.Len())

	for i, sub := range arr.Slice() {
		subDoc, ok := sub.(*types.Document)
		if !ok {
			return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, op+"'s elements must be objects")
		}

		m, err := matchDocument(doc, subDoc, pc)
		if err != nil {
			return false, err
		}

		results[i] = m
	}

	return combine(results), nil
}

// matchFieldPredicate implements spec.md §4.3's field-predicate rules: a
// scalar RHS is structural-equality-with-array-contains, a regex RHS means
// $regex, and an operator-object RHS applies each operator conjunctively.
func matchFieldPredicate(doc *types.Document, key string, rhs any, pc *positionCapture) (bool, error) {
	path, err := types.NewPathFromString(key)
	if err != nil {
		path = types.NewPathFromElements(key)
	}

	candidates := types.FindValues(doc, path)

	switch r := rhs.(type) {
	case *types.Document:
		if isOperatorDoc(r) {
			return matchOperators(doc, path, candidates, r, pc)
		}

		return matchesAnyCandidate(candidates, func(v any) bool {
			return types.Compare(v, r) == types.Equal
		}), nil
	case types.Regex:
		re, err := compileRegex(r.Pattern, r.Options)
		if err != nil {
			return false, err
		}

		return matchesAnyCandidate(candidates, func(v any) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		}), nil
	default:
		return matchesAnyCandidate(candidates, func(v any) bool {
			return types.Compare(v, r) == types.Equal
		}) || matchesNullEquivalence(candidates, r), nil
	}
}

// isOperatorDoc reports whether d is shaped like {$op: ..., ...} rather
// than a literal sub-document to match structurally.
func isOperatorDoc(d *types.Document) bool {
	if d.Len() == 0 {
		return false
	}

	for _, k := range d.Keys() {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}

	return true
}

func matchesAnyCandidate(candidates []any, pred func(any) bool) bool {
	for _, c := range candidates {
		if types.IsMissing(c) {
			continue
		}

		if pred(c) {
			return true
		}
	}

	// Missing candidates never satisfy pred; callers that let a Null
	// predicate match a Missing field add matchesNullEquivalence.
	return false
}

// matchOperators applies every operator in opsDoc conjunctively to the
// resolved candidates at path.
func matchOperators(root *types.Document, path types.Path, candidates []any, opsDoc *types.Document, pc *positionCapture) (bool, error) {
	var regexOptions string

	if optV, err := opsDoc.Get("$options"); err == nil {
		if s, ok := optV.(string); ok {
			regexOptions = s
		}
	}

	for _, op := range opsDoc.Keys() {
		arg, _ := opsDoc.Get(op)

		// $options only ever modifies a sibling $regex; it is folded in
		// there and is otherwise a no-op (spec.md §4.3).
		if op == "$options" {
			continue
		}

		if op == "$regex" && regexOptions != "" {
			if s, ok := arg.(string); ok {
				arg = types.Regex{Pattern: s, Options: regexOptions}
			}
		}

		ok, err := applyOperator(root, path, candidates, op, arg, pc)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func applyOperator(root *types.Document, path types.Path, candidates []any, op string, arg any, pc *positionCapture) (bool, error) {
	metrics.Default.IncOperator("match", op)

	switch op {
	case "$eq":
		return matchesAnyCandidate(candidates, func(v any) bool { return types.Compare(v, arg) == types.Equal }) ||
			matchesNullEquivalence(candidates, arg), nil
	case "$ne":
		return !matchesAnyCandidate(candidates, func(v any) bool { return types.Compare(v, arg) == types.Equal }), nil
	case "$gt":
		return matchesAnyCandidate(candidates, func(v any) bool { return types.Compare(v, arg) == types.Greater }), nil
	case "$gte":
		return matchesAnyCandidate(candidates, func(v any) bool {
			c := types.Compare(v, arg)
			return c == types.Greater || c == types.Equal
		}), nil
	case "$lt":
		return matchesAnyCandidate(candidates, func(v any) bool { return types.Compare(v, arg) == types.Less }), nil
	case "$lte":
		return matchesAnyCandidate(candidates, func(v any) bool {
			c := types.Compare(v, arg)
			return c == types.Less || c == types.Equal
		}), nil
	case "$in":
		arr, ok := arg.(*types.Array)
		if !ok {
			return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$in needs an array")
		}

		for _, want := range arr.Slice() {
			if re, ok := want.(types.Regex); ok {
				cre, err := compileRegex(re.Pattern, re.Options)
				if err != nil {
					return false, err
				}

				if matchesAnyCandidate(candidates, func(v any) bool { s, ok := v.(string); return ok && cre.MatchString(s) }) {
					return true, nil
				}

				continue
			}

			if matchesAnyCandidate(candidates, func(v any) bool { return types.Compare(v, want) == types.Equal }) {
				return true, nil
			}
		}

		return false, nil
	case "$nin":
		in, err := applyOperator(root, path, candidates, "$in", arg, pc)
		if err != nil {
			return false, err
		}

		return !in, nil
	case "$exists":
		want, _ := arg.(bool)
		exists := !(len(candidates) == 1 && types.IsMissing(candidates[0]))

		return exists == want, nil
	case "$type":
		return matchType(candidates, arg)
	case "$mod":
		return matchMod(candidates, arg)
	case "$regex":
		var pattern, options string

		switch a := arg.(type) {
		case types.Regex:
			pattern = a.Pattern
			options = a.Options
		case string:
			pattern = a
		default:
			return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$regex has to be a string")
		}

		re, err := compileRegex(pattern, options)
		if err != nil {
			return false, err
		}

		return matchesAnyCandidate(candidates, func(v any) bool { s, ok := v.(string); return ok && re.MatchString(s) }), nil
	case "$options":
		// $options is consumed together with $regex by the caller's document
		// iteration order; evaluating it standalone is a no-op match.
		return true, nil
	case "$not":
		return matchNot(root, path, candidates, arg, pc)
	case "$all":
		return matchAll(candidates, arg, pc)
	case "$elemMatch":
		return matchElemMatch(path, candidates, arg, pc)
	case "$size":
		return matchSize(candidates, arg)
	case "$geoWithin":
		return matchGeoWithin(candidates, arg)
	case "$geoIntersects":
		return matchGeoIntersects(candidates, arg)
	case "$near":
		return matchNear(candidates, arg, false)
	case "$nearSphere":
		return matchNear(candidates, arg, true)
	default:
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, fmt.Sprintf("unknown operator: %s", op))
	}
}

func matchesNullEquivalence(candidates []any, arg any) bool {
	if _, ok := arg.(types.NullType); !ok {
		return false
	}

	for _, c := range candidates {
		if types.IsMissing(c) {
			return true
		}
	}

	return false
}

func matchType(candidates []any, arg any) (bool, error) {
	var wantNames []string

	switch a := arg.(type) {
	case *types.Array:
		for _, v := range a.Slice() {
			name, err := typeAliasName(v)
			if err != nil {
				return false, err
			}

			wantNames = append(wantNames, name)
		}
	default:
		name, err := typeAliasName(a)
		if err != nil {
			return false, err
		}

		wantNames = append(wantNames, name)
	}

	for _, c := range candidates {
		if types.IsMissing(c) {
			continue
		}

		actual := types.TypeName(c)

		for _, want := range wantNames {
			if actual == want {
				return true, nil
			}
		}
	}

	return false, nil
}

// typeAliasName resolves a $type argument (a string alias or the BSON
// numeric type code) to the canonical type name types.TypeName produces.
func typeAliasName(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case int32:
		return numericTypeAlias(int(v))
	case int64:
		return numericTypeAlias(int(v))
	case float64:
		return numericTypeAlias(int(v))
	default:
		return "", handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$type needs a string or number")
	}
}

func numericTypeAlias(code int) (string, error) {
	names := map[int]string{
		1: "double", 2: "string", 3: "object", 4: "array", 5: "binData",
		6: "undefined", 7: "objectId", 8: "bool", 9: "date", 10: "null",
		11: "regex", 16: "int", 17: "timestamp", 18: "long", 19: "decimal",
	}

	name, ok := names[code]
	if !ok {
		return "", handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, fmt.Sprintf("Invalid numerical type code: %d", code))
	}

	return name, nil
}

func matchMod(candidates []any, arg any) (bool, error) {
	arr, ok := arg.(*types.Array)
	if !ok || arr.Len() != 2 {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$mod requires a 2-element array")
	}

	divisorV, _ := arr.Get(0)
	remainderV, _ := arr.Get(1)

	divisor := toInt64(divisorV)
	remainder := toInt64(remainderV)

	if divisor == 0 {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$mod divisor cannot be 0")
	}

	for _, c := range candidates {
		n, ok := toIntOK(c)
		if !ok {
			continue
		}

		if n%divisor == remainder {
			return true, nil
		}
	}

	return false, nil
}

func toInt64(v any) int64 {
	n, _ := toIntOK(v)
	return n
}

func toIntOK(v any) (int64, bool) {
	switch v := v.(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func matchNot(root *types.Document, path types.Path, candidates []any, arg any, pc *positionCapture) (bool, error) {
	switch a := arg.(type) {
	case *types.Document:
		m, err := matchOperators(root, path, candidates, a, pc)
		if err != nil {
			return false, err
		}

		return !m, nil
	case types.Regex:
		re, err := compileRegex(a.Pattern, a.Options)
		if err != nil {
			return false, err
		}

		return !matchesAnyCandidate(candidates, func(v any) bool { s, ok := v.(string); return ok && re.MatchString(s) }), nil
	default:
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$not needs a regex or a document")
	}
}

// matchAll implements spec.md §4.3's $all: every listed value (or, for
// $elemMatch subterms, every subterm) must be satisfied by the field's
// array, each independently (not necessarily by the same element).
func matchAll(candidates []any, arg any, pc *positionCapture) (bool, error) {
	wantArr, ok := arg.(*types.Array)
	if !ok {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$all needs an array")
	}

	var arr *types.Array

	for _, c := range candidates {
		if a, ok := c.(*types.Array); ok {
			arr = a
			break
		}
	}

	if arr == nil {
		return false, nil
	}

	for _, want := range wantArr.Slice() {
		if wantDoc, ok := want.(*types.Document); ok && wantDoc.Len() == 1 && wantDoc.Keys()[0] == "$elemMatch" {
			sub, _ := wantDoc.Get("$elemMatch")

			subDoc, ok := sub.(*types.Document)
			if !ok {
				return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$elemMatch needs an object")
			}

			found := false

			for _, elem := range arr.Slice() {
				elemDoc, ok := elem.(*types.Document)
				if !ok {
					continue
				}

				m, err := matchDocument(elemDoc, subDoc, pc)
				if err != nil {
					return false, err
				}

				if m {
					found = true
					break
				}
			}

			if !found {
				return false, nil
			}

			continue
		}

		if !arr.Contains(want) {
			return false, nil
		}
	}

	return true, nil
}

// matchElemMatch implements spec.md §4.3's $elemMatch: a single array
// element must satisfy the whole sub-predicate. When the sub-predicate is
// an operator document (rather than a field-name document), each operator
// is applied directly to the element's own value.
func matchElemMatch(path types.Path, candidates []any, arg any, pc *positionCapture) (bool, error) {
	subDoc, ok := arg.(*types.Document)
	if !ok {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$elemMatch needs an object")
	}

	var arr *types.Array

	for _, c := range candidates {
		if a, ok := c.(*types.Array); ok {
			arr = a
			break
		}
	}

	if arr == nil {
		return false, nil
	}

	operatorForm := isOperatorDoc(subDoc)

	for i, elem := range arr.Slice() {
		var m bool

		var err error

		if operatorForm {
			m, err = matchOperators(nil, types.Path{}, []any{elem}, subDoc, pc)
		} else if elemDoc, ok := elem.(*types.Document); ok {
			m, err = matchDocument(elemDoc, subDoc, pc)
		}

		if err != nil {
			return false, err
		}

		if m {
			pc.record(path.String() + "." + strconv.Itoa(i))
			return true, nil
		}
	}

	return false, nil
}

func matchSize(candidates []any, arg any) (bool, error) {
	n, ok := toIntOK(arg)
	if !ok {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$size needs a number")
	}

	for _, c := range candidates {
		if arr, ok := c.(*types.Array); ok && int64(arr.Len()) == n {
			return true, nil
		}
	}

	return false, nil
}
