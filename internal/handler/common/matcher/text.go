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

package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
)

// TextScoreKey is the reserved field a $match stage stamps a matched
// document with when $text produced a score, so a later $project stage can
// surface it via {$meta: "textScore"} without widening every stage's
// Process signature. A "$"-prefixed key can never collide with a real
// document field (spec.md §4.3's $meta row).
const TextScoreKey = "$textScore"

// caseFolder performs the "simple Unicode-aware lowercase fold" spec.md §4.3
// asks of the $text tokenizer — deliberately not a stemmer, which the
// Non-goals (spec.md §1) exclude.
var caseFolder = cases.Lower(language.Und)

// textTerm is one parsed term of a $text $search string: a single word or a
// quoted phrase (possibly multi-token), optionally negated with a leading "-".
type textTerm struct {
	tokens []string
	negate bool
	phrase bool
}

// matchText implements $text (spec.md §4.3): tokenize the collection's
// declared text-indexed fields, tokenize the query the same way, and test
// the parsed terms against them. Returns NoTextIndex when pc carries no
// text-indexed fields, i.e. the collection declared none.
func matchText(doc *types.Document, arg any, pc *positionCapture) (bool, error) {
	if len(pc.textFields) == 0 {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrNoTextIndex, "NoTextIndex: $text requires a text index")
	}

	search, caseSensitive, err := parseTextArg(arg)
	if err != nil {
		return false, err
	}

	terms := parseSearchTerms(search, caseSensitive)
	if len(terms) == 0 {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$text requires a non-empty $search string")
	}

	var fieldTokens [][]string

	for _, f := range pc.textFields {
		path, err := types.NewPathFromString(f)
		if err != nil {
			path = types.NewPathFromElements(f)
		}

		v, err := types.GetByPath(doc, path)
		if err != nil {
			continue
		}

		s, ok := v.(string)
		if !ok {
			continue
		}

		fieldTokens = append(fieldTokens, tokenizeText(s, caseSensitive))
	}

	matched, score := evalTextTerms(terms, fieldTokens)
	if matched {
		pc.hasTextScore = true
		pc.textScore = score
	}

	return matched, nil
}

// parseTextArg extracts the $search string and $caseSensitive flag from a
// $text operand, which is either a bare string or a {$search: ...} object.
func parseTextArg(arg any) (search string, caseSensitive bool, err error) {
	switch a := arg.(type) {
	case string:
		return a, false, nil
	case *types.Document:
		s, getErr := a.Get("$search")
		if getErr != nil {
			return "", false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$text requires a $search string")
		}

		search, ok := s.(string)
		if !ok {
			return "", false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$search must be a string")
		}

		if cs, getErr := a.Get("$caseSensitive"); getErr == nil {
			if b, ok := cs.(bool); ok {
				caseSensitive = b
			}
		}

		return search, caseSensitive, nil
	default:
		return "", false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$text needs a string or an object with $search")
	}
}

// tokenizeText implements the tokenizer itself: Unicode-aware lowercase fold
// (unless caseSensitive) followed by a whitespace split (spec.md §4.3).
func tokenizeText(s string, caseSensitive bool) []string {
	if !caseSensitive {
		s = caseFolder.String(s)
	}

	return strings.Fields(s)
}

// parseSearchTerms parses a $search string into its plain words, quoted
// phrases, and "-term"/-"phrase" negations (spec.md §4.3).
func parseSearchTerms(search string, caseSensitive bool) []textTerm {
	var terms []textTerm

	runes := []rune(search)
	i := 0

	for i < len(runes) {
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}

		if i >= len(runes) {
			break
		}

		negate := false

		if runes[i] == '-' {
			negate = true
			i++
		}

		if i < len(runes) && runes[i] == '"' {
			i++
			start := i

			for i < len(runes) && runes[i] != '"' {
				i++
			}

			phrase := string(runes[start:i])
			if i < len(runes) {
				i++ // consume closing quote
			}

			if toks := tokenizeText(phrase, caseSensitive); len(toks) > 0 {
				terms = append(terms, textTerm{tokens: toks, negate: negate, phrase: true})
			}

			continue
		}

		start := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}

		if toks := tokenizeText(string(runes[start:i]), caseSensitive); len(toks) > 0 {
			terms = append(terms, textTerm{tokens: toks, negate: negate})
		}
	}

	return terms
}

// evalTextTerms reports whether fieldTokens (one token slice per indexed
// field present on the document) satisfies terms, and a relevance score:
// the total occurrence count of every matched positive term's tokens,
// across all fields (spec.md §4.3's "numeric score").
func evalTextTerms(terms []textTerm, fieldTokens [][]string) (bool, float64) {
	var positives, negatives []textTerm

	for _, t := range terms {
		if t.negate {
			negatives = append(negatives, t)
		} else {
			positives = append(positives, t)
		}
	}

	for _, t := range negatives {
		if termPresent(t, fieldTokens) {
			return false, 0
		}
	}

	if len(positives) == 0 {
		return true, 0
	}

	var score float64

	anyMatched := false

	for _, t := range positives {
		count := termOccurrences(t, fieldTokens)
		if count > 0 {
			anyMatched = true
			score += float64(count)
		}
	}

	return anyMatched, score
}

// termPresent reports whether t (a word or phrase) occurs anywhere in
// fieldTokens, used for negation (any single occurrence is disqualifying).
func termPresent(t textTerm, fieldTokens [][]string) bool {
	return termOccurrences(t, fieldTokens) > 0
}

// termOccurrences counts how many times t occurs across fieldTokens: for a
// plain word, the number of equal tokens; for a phrase, the number of
// contiguous-subsequence matches within a single field's token list (a
// phrase cannot span two distinct indexed fields).
func termOccurrences(t textTerm, fieldTokens [][]string) int {
	count := 0

	if !t.phrase {
		word := t.tokens[0]

		for _, tokens := range fieldTokens {
			for _, tok := range tokens {
				if tok == word {
					count++
				}
			}
		}

		return count
	}

	for _, tokens := range fieldTokens {
		count += countContiguous(tokens, t.tokens)
	}

	return count
}

// countContiguous counts non-overlapping occurrences of needle as a
// contiguous subsequence of haystack.
func countContiguous(haystack, needle []string) int {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return 0
	}

	count := 0

	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true

		for j, n := range needle {
			if haystack[i+j] != n {
				match = false
				break
			}
		}

		if match {
			count++
			i += len(needle) - 1
		}
	}

	return count
}
