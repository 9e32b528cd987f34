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

package operators

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/embeddocs/docstore/internal/types"
)

var stringOps = map[string]opFunc{
	"$concat":        evalConcat,
	"$toUpper":       unaryString("$toUpper", strings.ToUpper),
	"$toLower":       unaryString("$toLower", strings.ToLower),
	"$substrCP":      evalSubstrCP,
	"$substrBytes":   evalSubstrBytes,
	"$strLenCP":      evalStrLenCP,
	"$strLenBytes":   evalStrLenBytes,
	"$split":         evalSplit,
	"$trim":          trimOp(strings.TrimSpace, strings.Trim),
	"$ltrim":         trimOp(strings.TrimLeft, strings.TrimLeft),
	"$rtrim":         trimOp(strings.TrimRight, strings.TrimRight),
	"$toString":      evalToStringOp,
	"$indexOfCP":     evalIndexOfCP,
	"$indexOfBytes":  evalIndexOfBytes,
	"$regexFind":     evalRegexFind,
	"$regexFindAll":  evalRegexFindAll,
	"$regexMatch":    evalRegexMatch,
	"$replaceOne":    replaceOp(false),
	"$replaceAll":    replaceOp(true),
	"$strcasecmp":    evalStrcasecmp,
}

func asString(op string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s requires a string argument, found: %s", op, types.TypeName(v))
	}

	return s, nil
}

func evalConcat(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	var b strings.Builder

	for _, a := range args {
		if isNullish(a) {
			return types.Null, nil
		}

		s, err := asString("$concat", a)
		if err != nil {
			return nil, err
		}

		b.WriteString(s)
	}

	return b.String(), nil
}

func unaryString(name string, f func(string) string) opFunc {
	return func(raw any, ctx *Context) (any, error) {
		args, err := evalArgs(raw, ctx)
		if err != nil {
			return nil, err
		}

		if len(args) != 1 {
			return nil, wrongArgCount(name, "exactly 1", len(args))
		}

		if isNullish(args[0]) {
			return types.Null, nil
		}

		s, err := asString(name, args[0])
		if err != nil {
			return nil, err
		}

		return f(s), nil
	}
}

func evalSubstrCP(raw any, ctx *Context) (any, error) {
	return substr(raw, ctx, "$substrCP", true)
}

func evalSubstrBytes(raw any, ctx *Context) (any, error) {
	return substr(raw, ctx, "$substrBytes", false)
}

func substr(raw any, ctx *Context, name string, byCodePoint bool) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 3 {
		return nil, wrongArgCount(name, "exactly 3", len(args))
	}

	s, err := asString(name, args[0])
	if err != nil {
		return nil, err
	}

	start := int(toFloat(args[1]))
	length := int(toFloat(args[2]))

	if byCodePoint {
		runes := []rune(s)

		if start < 0 || start > len(runes) {
			return "", nil
		}

		end := start + length
		if length < 0 || end > len(runes) {
			end = len(runes)
		}

		return string(runes[start:end]), nil
	}

	b := []byte(s)

	if start < 0 || start > len(b) {
		return "", nil
	}

	end := start + length
	if length < 0 || end > len(b) {
		end = len(b)
	}

	return string(b[start:end]), nil
}

func evalStrLenCP(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$strLenCP", "exactly 1", len(args))
	}

	s, err := asString("$strLenCP", args[0])
	if err != nil {
		return nil, err
	}

	return int32(utf8.RuneCountInString(s)), nil
}

func evalStrLenBytes(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$strLenBytes", "exactly 1", len(args))
	}

	s, err := asString("$strLenBytes", args[0])
	if err != nil {
		return nil, err
	}

	return int32(len(s)), nil
}

func evalSplit(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$split", "exactly 2", len(args))
	}

	if isNullish(args[0]) || isNullish(args[1]) {
		return types.Null, nil
	}

	s, err := asString("$split", args[0])
	if err != nil {
		return nil, err
	}

	delim, err := asString("$split", args[1])
	if err != nil {
		return nil, err
	}

	parts := strings.Split(s, delim)
	out := types.MakeArray(len(parts))

	for _, p := range parts {
		out.Append(p)
	}

	return out, nil
}

func trimOp(noCharsF func(string) string, withCharsF func(string, string) string) opFunc {
	return func(raw any, ctx *Context) (any, error) {
		d, ok := raw.(*types.Document)
		if !ok {
			return nil, fmt.Errorf("$trim requires an object as an argument")
		}

		inputE, err := requireField(d, "input", "$trim")
		if err != nil {
			return nil, err
		}

		input, err := ctx.Eval(inputE)
		if err != nil {
			return nil, err
		}

		if isNullish(input) {
			return types.Null, nil
		}

		s, err := asString("$trim", input)
		if err != nil {
			return nil, err
		}

		if !d.Has("chars") {
			return noCharsF(s), nil
		}

		charsE, _ := d.Get("chars")

		chars, err := ctx.Eval(charsE)
		if err != nil {
			return nil, err
		}

		charsS, err := asString("$trim", chars)
		if err != nil {
			return nil, err
		}

		return withCharsF(s, charsS), nil
	}
}

func evalToStringOp(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 1 {
		return nil, wrongArgCount("$toString", "exactly 1", len(args))
	}

	return ToString(args[0])
}

// ToString implements the reference server's value->string coercion shared
// by $toString and $convert.
func ToString(v any) (any, error) {
	if isNullish(v) {
		return types.Null, nil
	}

	switch v := v.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case types.ObjectID:
		return v.Hex(), nil
	case types.DateTime:
		return v.Time().UTC().Format("2006-01-02T15:04:05.000Z"), nil
	default:
		return nil, fmt.Errorf("%s is not supported by $toString", types.TypeName(v))
	}
}

func evalIndexOfCP(raw any, ctx *Context) (any, error) {
	return indexOf(raw, ctx, "$indexOfCP", true)
}

func evalIndexOfBytes(raw any, ctx *Context) (any, error) {
	return indexOf(raw, ctx, "$indexOfBytes", false)
}

func indexOf(raw any, ctx *Context, name string, byCodePoint bool) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) < 2 || len(args) > 4 {
		return nil, wrongArgCount(name, "between 2 and 4", len(args))
	}

	if isNullish(args[0]) {
		return types.Null, nil
	}

	s, err := asString(name, args[0])
	if err != nil {
		return nil, err
	}

	sub, err := asString(name, args[1])
	if err != nil {
		return nil, err
	}

	start := 0
	if len(args) >= 3 {
		start = int(toFloat(args[2]))
	}

	if byCodePoint {
		runes := []rune(s)
		subRunes := []rune(sub)

		end := len(runes)
		if len(args) == 4 {
			end = int(toFloat(args[3]))
			if end > len(runes) {
				end = len(runes)
			}
		}

		if start < 0 {
			start = 0
		}

		for i := start; i+len(subRunes) <= end; i++ {
			if string(runes[i:i+len(subRunes)]) == sub {
				return int32(i), nil
			}
		}

		return int32(-1), nil
	}

	end := len(s)
	if len(args) == 4 {
		end = int(toFloat(args[3]))
		if end > len(s) {
			end = len(s)
		}
	}

	if start < 0 {
		start = 0
	}

	if start > end {
		return int32(-1), nil
	}

	idx := strings.Index(s[start:end], sub)
	if idx < 0 {
		return int32(-1), nil
	}

	return int32(start + idx), nil
}

func compileRegexArgs(d *types.Document, ctx *Context) (*regexp.Regexp, error) {
	inputV, err := requireField(d, "input", "$regex")
	if err != nil {
		return nil, err
	}

	input, err := ctx.Eval(inputV)
	if err != nil {
		return nil, err
	}

	s, err := asString("$regex", input)
	if err != nil {
		return nil, err
	}

	regexV, err := requireField(d, "regex", "$regex")
	if err != nil {
		return nil, err
	}

	regexExpr, err := ctx.Eval(regexV)
	if err != nil {
		return nil, err
	}

	var pattern, options string

	switch r := regexExpr.(type) {
	case types.Regex:
		pattern, options = r.Pattern, r.Options
	case string:
		pattern = r
	default:
		return nil, fmt.Errorf("$regex has to be a string or regex")
	}

	if d.Has("options") {
		optV, _ := d.Get("options")

		opt, err := ctx.Eval(optV)
		if err != nil {
			return nil, err
		}

		if s, ok := opt.(string); ok {
			options = s
		}
	}

	goPattern := pattern

	if strings.Contains(options, "i") {
		goPattern = "(?i)" + goPattern
	}

	if strings.Contains(options, "s") {
		goPattern = "(?s)" + goPattern
	}

	if strings.Contains(options, "m") {
		goPattern = "(?m)" + goPattern
	}

	re, err := regexp.Compile(goPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression: %w", err)
	}

	_ = s

	return re, nil
}

// evalRegexFind implements "no global" mode (spec.md §9's design note):
// returns the first match's {match, idx, captures}, or Null if none.
func evalRegexFind(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$regexFind requires an object as an argument")
	}

	input, _ := d.Get("input")
	s, _ := ctx.Eval(input)

	if isNullish(s) {
		return types.Null, nil
	}

	re, err := compileRegexArgs(d, ctx)
	if err != nil {
		return nil, err
	}

	str, _ := s.(string)

	loc := re.FindStringSubmatchIndex(str)
	if loc == nil {
		return types.Null, nil
	}

	return regexMatchResult(str, re, loc), nil
}

// evalRegexFindAll implements "global" mode, returning an array of every match.
func evalRegexFindAll(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$regexFindAll requires an object as an argument")
	}

	input, _ := d.Get("input")
	s, _ := ctx.Eval(input)

	if isNullish(s) {
		return types.MakeArray(0), nil
	}

	re, err := compileRegexArgs(d, ctx)
	if err != nil {
		return nil, err
	}

	str, _ := s.(string)

	locs := re.FindAllStringSubmatchIndex(str, -1)
	out := types.MakeArray(len(locs))

	for _, loc := range locs {
		out.Append(regexMatchResult(str, re, loc))
	}

	return out, nil
}

func evalRegexMatch(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$regexMatch requires an object as an argument")
	}

	input, _ := d.Get("input")
	s, _ := ctx.Eval(input)

	if isNullish(s) {
		return false, nil
	}

	re, err := compileRegexArgs(d, ctx)
	if err != nil {
		return nil, err
	}

	str, _ := s.(string)

	return re.MatchString(str), nil
}

func regexMatchResult(str string, re *regexp.Regexp, loc []int) *types.Document {
	match := str[loc[0]:loc[1]]

	captures := types.MakeArray(0)
	for i := 1; i*2 < len(loc); i++ {
		if loc[i*2] < 0 {
			captures.Append(types.Null)
			continue
		}

		captures.Append(str[loc[i*2]:loc[i*2+1]])
	}

	// idx is the code-point offset of the match, matching $regexFind's contract.
	idx := utf8.RuneCountInString(str[:loc[0]])

	doc := types.MakeDocument(3)
	doc.Set("match", match)
	doc.Set("idx", int32(idx))
	doc.Set("captures", captures)

	return doc
}

func replaceOp(all bool) opFunc {
	return func(raw any, ctx *Context) (any, error) {
		d, ok := raw.(*types.Document)
		if !ok {
			return nil, fmt.Errorf("$replaceOne requires an object as an argument")
		}

		inputV, err := requireField(d, "input", "$replaceOne")
		if err != nil {
			return nil, err
		}

		input, err := ctx.Eval(inputV)
		if err != nil {
			return nil, err
		}

		findV, err := requireField(d, "find", "$replaceOne")
		if err != nil {
			return nil, err
		}

		find, err := ctx.Eval(findV)
		if err != nil {
			return nil, err
		}

		replV, err := requireField(d, "replacement", "$replaceOne")
		if err != nil {
			return nil, err
		}

		repl, err := ctx.Eval(replV)
		if err != nil {
			return nil, err
		}

		if isNullish(input) || isNullish(find) || isNullish(repl) {
			return types.Null, nil
		}

		s, _ := input.(string)
		findS, _ := find.(string)
		replS, _ := repl.(string)

		if all {
			return strings.ReplaceAll(s, findS, replS), nil
		}

		return strings.Replace(s, findS, replS, 1), nil
	}
}

func evalStrcasecmp(raw any, ctx *Context) (any, error) {
	args, err := evalArgs(raw, ctx)
	if err != nil {
		return nil, err
	}

	if len(args) != 2 {
		return nil, wrongArgCount("$strcasecmp", "exactly 2", len(args))
	}

	a, err := asString("$strcasecmp", args[0])
	if err != nil {
		return nil, err
	}

	b, err := asString("$strcasecmp", args[1])
	if err != nil {
		return nil, err
	}

	switch strings.Compare(strings.ToUpper(a), strings.ToUpper(b)) {
	case -1:
		return int32(-1), nil
	case 1:
		return int32(1), nil
	default:
		return int32(0), nil
	}
}
