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

// Package operators implements the aggregation expression language (spec.md
// §4.2): the ~120 operators ($add, $map, $let, $cond, ...), field path and
// variable resolution, and the $$ROOT/$$CURRENT/$let lexical scoping rules.
package operators

import (
	"fmt"
	"strings"
	"time"

	"github.com/embeddocs/docstore/internal/types"
)

// RedactAction is the value returned by $$PRUNE, $$KEEP, and $$DESCEND, the
// three sentinels $redact's sub-expression must evaluate to.
type RedactAction string

// RedactAction values, spec.md §4.2.
const (
	Prune   RedactAction = "PRUNE"
	Keep    RedactAction = "KEEP"
	Descend RedactAction = "DESCEND"
)

// Context is the lexical environment an expression is evaluated against: a
// current document, the pipeline-stage root, and a chain of $let-bound
// variables. Context is immutable; Child and WithCurrent return new,
// extended contexts, implementing spec.md's "immutable environment chain"
// design note (§9) so that nested $let/$map scopes can shadow without
// mutating an enclosing scope's bindings.
type Context struct {
	Root    *types.Document
	Current any
	Vars    map[string]any
	now     *types.DateTime
}

// NewContext creates a root Context for evaluating expressions against doc,
// as both $$ROOT and $$CURRENT.
func NewContext(doc *types.Document) *Context {
	return &Context{Root: doc, Current: doc, Vars: map[string]any{}}
}

// NewContextWithNow is like NewContext, but pins $$NOW to now instead of
// capturing the wall clock lazily. The pipeline stages in this repository do
// not call it: they use NewContext, which reads the clock the first time
// $$NOW is evaluated in each per-document Context, so documents of one
// pipeline run can observe different $$NOW values.
func NewContextWithNow(doc *types.Document, now types.DateTime) *Context {
	return &Context{Root: doc, Current: doc, Vars: map[string]any{}, now: &now}
}

// Child returns a new Context with vars merged into the current variable
// scope (new bindings shadow same-named outer ones), used by $let, $map,
// $filter, and $reduce to introduce their loop/let variables.
func (c *Context) Child(vars map[string]any) *Context {
	merged := make(map[string]any, len(c.Vars)+len(vars))
	for k, v := range c.Vars {
		merged[k] = v
	}

	for k, v := range vars {
		merged[k] = v
	}

	return &Context{Root: c.Root, Current: c.Current, Vars: merged, now: c.now}
}

// WithCurrent returns a new Context with $$CURRENT (and plain $field
// resolution) rebound to cur, used when a stage or operator changes what
// "the current document" means (e.g. $unwind's per-element sub-document).
func (c *Context) WithCurrent(cur any) *Context {
	return &Context{Root: c.Root, Current: cur, Vars: c.Vars, now: c.now}
}

func (c *Context) nowValue() types.DateTime {
	if c.now == nil {
		n := types.NewDateTimeFromTime(time.Now())
		c.now = &n
	}

	return *c.now
}

// Eval evaluates expr — a literal, a "$field.path" string, a "$$VAR" string,
// or an operator document {$op: args} — against c, implementing the
// recursive-descent evaluator spec.md §4.2 describes.
func (c *Context) Eval(expr any) (any, error) {
	switch e := expr.(type) {
	case string:
		return c.evalString(e)
	case *types.Document:
		return c.evalDocument(e)
	case *types.Array:
		out := types.MakeArray(e.Len())

		for _, v := range e.Slice() {
			r, err := c.Eval(v)
			if err != nil {
				return nil, err
			}

			out.Append(r)
		}

		return out, nil
	case nil:
		return types.Null, nil
	default:
		return e, nil
	}
}

func (c *Context) evalString(s string) (any, error) {
	switch {
	case strings.HasPrefix(s, "$$"):
		return c.evalVariable(s[2:])
	case strings.HasPrefix(s, "$"):
		return c.evalFieldPath(s[1:])
	default:
		return s, nil
	}
}

func (c *Context) evalFieldPath(path string) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("operators: FieldPath cannot be empty string")
	}

	p, err := types.NewPathFromString(path)
	if err != nil {
		// A single top-level key with no dots is always a valid path element.
		p = types.NewPathFromElements(path)
	}

	v, _ := types.GetByPath(c.Current, p)

	return v, nil
}

func (c *Context) evalVariable(name string) (any, error) {
	base, rest, hasRest := strings.Cut(name, ".")

	var baseVal any

	switch base {
	case "ROOT":
		baseVal = c.Root
	case "CURRENT":
		baseVal = c.Current
	case "REMOVE":
		baseVal = types.Missing
	case "NOW":
		baseVal = c.nowValue()
	case "PRUNE":
		baseVal = Prune
	case "KEEP":
		baseVal = Keep
	case "DESCEND":
		baseVal = Descend
	default:
		v, ok := c.Vars[base]
		if !ok {
			return nil, fmt.Errorf("operators: use of undefined variable: %s", base)
		}

		baseVal = v
	}

	if !hasRest || rest == "" {
		return baseVal, nil
	}

	p, err := types.NewPathFromString(rest)
	if err != nil {
		return nil, err
	}

	v, _ := types.GetByPath(baseVal, p)

	return v, nil
}

func (c *Context) evalDocument(d *types.Document) (any, error) {
	if IsOperator(d) {
		key := d.Keys()[0]

		if key == "$literal" {
			return d.GetOrDefault(key, types.Null), nil
		}

		raw, _ := d.Get(key)

		return evalOperator(key, raw, c)
	}

	out := types.MakeDocument(d.Len())

	for _, k := range d.Keys() {
		v, _ := d.Get(k)

		r, err := c.Eval(v)
		if err != nil {
			return nil, err
		}

		if types.IsMissing(r) {
			continue
		}

		out.Set(k, r)
	}

	return out, nil
}

// Truthy implements MongoDB truthiness (spec.md §4.2 Logical group):
// false, 0 (of any numeric type), Null, and Missing are false; everything
// else, including the empty string and empty arrays/documents, is true.
func Truthy(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case int32:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case types.NullType:
		return false
	default:
		return !types.IsMissing(v)
	}
}
