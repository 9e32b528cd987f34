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
	"fmt"
	"regexp"
	"strings"

	"github.com/embeddocs/docstore/internal/handler/handlererrors"
)

// compileRegex translates a MongoDB regex pattern/options pair (PCRE-ish,
// option letters i/m/s/x) into Go's RE2-based regexp, the same translation
// the expression evaluator's $regexMatch family uses.
func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	var flags string

	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		case 'x':
			pattern = stripExtendedWhitespace(pattern)
		case 'u':
			// unicode is Go's regexp default; nothing to translate.
		default:
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, fmt.Sprintf("invalid regex option: %c", o))
		}
	}

	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrRegexMissingParen, fmt.Sprintf("invalid regular expression: %s", err))
	}

	return re, nil
}

// stripExtendedWhitespace implements the 'x' (extended) regex option:
// unescaped whitespace and '#'-to-end-of-line comments are removed before
// compilation.
func stripExtendedWhitespace(pattern string) string {
	var b strings.Builder

	inComment := false

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]

		switch {
		case inComment:
			if c == '\n' {
				inComment = false
				b.WriteByte(c)
			}
		case c == '\\' && i+1 < len(pattern):
			b.WriteByte(c)
			b.WriteByte(pattern[i+1])
			i++
		case c == '#':
			inComment = true
		case c == ' ' || c == '\t' || c == '\n':
			// skip unescaped whitespace
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}
