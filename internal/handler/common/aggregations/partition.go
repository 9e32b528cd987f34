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

package aggregations

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/embeddocs/docstore/internal/types"
)

// CanonicalKey renders v as a stable, JSON-like string, used to key hash
// groups ($group's _id, $bucket's boundary key, a Partitioner's partition
// tuple) by structural rather than pointer identity (spec.md §4.7).
func CanonicalKey(v any) string {
	var b strings.Builder

	writeCanonical(&b, v)

	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch v := v.(type) {
	case *types.Document:
		b.WriteByte('{')

		for i, k := range v.Keys() {
			if i > 0 {
				b.WriteByte(',')
			}

			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')

			val, _ := v.Get(k)
			writeCanonical(b, val)
		}

		b.WriteByte('}')
	case *types.Array:
		b.WriteByte('[')

		for i, e := range v.Slice() {
			if i > 0 {
				b.WriteByte(',')
			}

			writeCanonical(b, e)
		}

		b.WriteByte(']')
	case string:
		b.WriteString(strconv.Quote(v))
	case types.NullType:
		b.WriteString("null")
	case nil:
		b.WriteString("null")
	default:
		if types.IsMissing(v) {
			b.WriteString("missing")
			return
		}

		fmt.Fprintf(b, "%v:%T", v, v)
	}
}

// Partitioner groups documents under caller-computed keys (typically
// CanonicalKey of a partition value), used by $group, $bucket and
// $setWindowFields. It keeps each partition in insertion order and does not
// sort; callers that need a per-partition order sort it themselves.
type Partitioner struct {
	keys  []string
	order []string // insertion order of distinct keys
	groups map[string][]*types.Document
}

// NewPartitioner creates an empty Partitioner.
func NewPartitioner() *Partitioner {
	return &Partitioner{groups: map[string][]*types.Document{}}
}

// Add assigns doc to the partition named by key (typically CanonicalKey of a
// partitionBy expression's value), preserving first-seen partition order.
func (p *Partitioner) Add(key string, doc *types.Document) {
	if _, ok := p.groups[key]; !ok {
		p.order = append(p.order, key)
	}

	p.groups[key] = append(p.groups[key], doc)
}

// Keys returns partition keys in first-seen order.
func (p *Partitioner) Keys() []string {
	return p.order
}

// Partition returns the documents assigned to key.
func (p *Partitioner) Partition(key string) []*types.Document {
	return p.groups[key]
}
