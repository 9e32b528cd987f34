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
	"regexp"

	"github.com/embeddocs/docstore/internal/types"
)

// matchJSONSchema implements spec.md §4.3's $jsonSchema subset: bsonType,
// required, properties (constraining only fields that exist), and the
// scalar/array/string keyword families, plus allOf/anyOf/oneOf/not.
func matchJSONSchema(doc *types.Document, schema *types.Document) (bool, error) {
	return schemaMatchesValue(doc, schema)
}

func schemaMatchesValue(v any, schema *types.Document) (bool, error) {
	if btV, err := schema.Get("bsonType"); err == nil {
		if !matchesBSONType(v, btV) {
			return false, nil
		}
	}

	if enumV, err := schema.Get("enum"); err == nil {
		arr, ok := enumV.(*types.Array)
		if ok && !arr.Contains(v) {
			return false, nil
		}
	}

	if doc, ok := v.(*types.Document); ok {
		if ok, err := matchObjectSchema(doc, schema); !ok || err != nil {
			return ok, err
		}
	}

	if arr, ok := v.(*types.Array); ok {
		if ok, err := matchArraySchema(arr, schema); !ok || err != nil {
			return ok, err
		}
	}

	if s, ok := v.(string); ok {
		if !matchStringSchema(s, schema) {
			return false, nil
		}
	}

	if n, ok := toNumberSchema(v); ok {
		if !matchNumberSchema(n, schema) {
			return false, nil
		}
	}

	for _, combinator := range []string{"allOf", "anyOf", "oneOf"} {
		if ok, err := matchCombinator(v, schema, combinator); !ok || err != nil {
			return ok, err
		}
	}

	if notV, err := schema.Get("not"); err == nil {
		notSchema, ok := notV.(*types.Document)
		if ok {
			m, err := schemaMatchesValue(v, notSchema)
			if err != nil {
				return false, err
			}

			if m {
				return false, nil
			}
		}
	}

	return true, nil
}

func matchObjectSchema(doc *types.Document, schema *types.Document) (bool, error) {
	if reqV, err := schema.Get("required"); err == nil {
		arr, ok := reqV.(*types.Array)
		if ok {
			for _, f := range arr.Slice() {
				name, ok := f.(string)
				if ok && !doc.Has(name) {
					return false, nil
				}
			}
		}
	}

	if propsV, err := schema.Get("properties"); err == nil {
		props, ok := propsV.(*types.Document)
		if ok {
			for _, field := range props.Keys() {
				if !doc.Has(field) {
					continue
				}

				propSchemaV, _ := props.Get(field)

				propSchema, ok := propSchemaV.(*types.Document)
				if !ok {
					continue
				}

				val, _ := doc.Get(field)

				m, err := schemaMatchesValue(val, propSchema)
				if err != nil {
					return false, err
				}

				if !m {
					return false, nil
				}
			}
		}
	}

	if addlV, err := schema.Get("additionalProperties"); err == nil {
		if allowed, ok := addlV.(bool); ok && !allowed {
			propsV, _ := schema.Get("properties")

			props, _ := propsV.(*types.Document)

			for _, k := range doc.Keys() {
				if props == nil || !props.Has(k) {
					return false, nil
				}
			}
		}
	}

	return true, nil
}

func matchArraySchema(arr *types.Array, schema *types.Document) (bool, error) {
	if minV, err := schema.Get("minItems"); err == nil {
		if n, ok := toIntOK(minV); ok && int64(arr.Len()) < n {
			return false, nil
		}
	}

	if maxV, err := schema.Get("maxItems"); err == nil {
		if n, ok := toIntOK(maxV); ok && int64(arr.Len()) > n {
			return false, nil
		}
	}

	if uniqueV, err := schema.Get("uniqueItems"); err == nil {
		if want, ok := uniqueV.(bool); ok && want {
			seen := make([]any, 0, arr.Len())

			for _, v := range arr.Slice() {
				for _, s := range seen {
					if types.Compare(s, v) == types.Equal {
						return false, nil
					}
				}

				seen = append(seen, v)
			}
		}
	}

	if itemsV, err := schema.Get("items"); err == nil {
		itemSchema, ok := itemsV.(*types.Document)
		if ok {
			for _, v := range arr.Slice() {
				m, err := schemaMatchesValue(v, itemSchema)
				if err != nil {
					return false, err
				}

				if !m {
					return false, nil
				}
			}
		}
	}

	return true, nil
}

func matchStringSchema(s string, schema *types.Document) bool {
	if minV, err := schema.Get("minLength"); err == nil {
		if n, ok := toIntOK(minV); ok && int64(len(s)) < n {
			return false
		}
	}

	if maxV, err := schema.Get("maxLength"); err == nil {
		if n, ok := toIntOK(maxV); ok && int64(len(s)) > n {
			return false
		}
	}

	if patV, err := schema.Get("pattern"); err == nil {
		if p, ok := patV.(string); ok {
			re, err := regexp.Compile(p)
			if err == nil && !re.MatchString(s) {
				return false
			}
		}
	}

	return true
}

func toNumberSchema(v any) (float64, bool) {
	switch v := v.(type) {
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func matchNumberSchema(n float64, schema *types.Document) bool {
	if v, err := schema.Get("minimum"); err == nil {
		if min, ok := toNumberSchema(v); ok && n < min {
			return false
		}
	}

	if v, err := schema.Get("maximum"); err == nil {
		if max, ok := toNumberSchema(v); ok && n > max {
			return false
		}
	}

	if v, err := schema.Get("exclusiveMinimum"); err == nil {
		if min, ok := toNumberSchema(v); ok && n <= min {
			return false
		}
	}

	if v, err := schema.Get("exclusiveMaximum"); err == nil {
		if max, ok := toNumberSchema(v); ok && n >= max {
			return false
		}
	}

	return true
}

func matchCombinator(v any, schema *types.Document, key string) (bool, error) {
	listV, err := schema.Get(key)
	if err != nil {
		return true, nil
	}

	arr, ok := listV.(*types.Array)
	if !ok {
		return true, nil
	}

	var matches int

	for _, s := range arr.Slice() {
		sub, ok := s.(*types.Document)
		if !ok {
			continue
		}

		m, err := schemaMatchesValue(v, sub)
		if err != nil {
			return false, err
		}

		if m {
			matches++
		}
	}

	switch key {
	case "allOf":
		return matches == arr.Len(), nil
	case "anyOf":
		return matches > 0, nil
	case "oneOf":
		return matches == 1, nil
	default:
		return true, nil
	}
}

func matchesBSONType(v any, want any) bool {
	switch w := want.(type) {
	case string:
		return bsonTypeMatches(v, w)
	case *types.Array:
		for _, t := range w.Slice() {
			if name, ok := t.(string); ok && bsonTypeMatches(v, name) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func bsonTypeMatches(v any, want string) bool {
	if want == "number" {
		_, ok := toNumberSchema(v)
		return ok
	}

	return types.TypeName(v) == want
}
