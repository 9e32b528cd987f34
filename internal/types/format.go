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

package types

import (
	"fmt"
	"strings"
)

// FormatAnyValue renders a Value the way the reference server's error
// messages do: documents and arrays use their JSON-like shape, strings are
// quoted, and everything else uses its natural representation. It is used
// to embed the offending value in command-error messages (e.g.
// "Cannot apply $inc to a value of non-numeric type").
func FormatAnyValue(v any) string {
	var sb strings.Builder
	formatInto(&sb, v)

	return sb.String()
}

func formatInto(sb *strings.Builder, v any) {
	switch v := v.(type) {
	case NullType, missingType:
		sb.WriteString("null")
	case string:
		fmt.Fprintf(sb, "%q", v)
	case *Document:
		sb.WriteByte('{')

		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}

			fmt.Fprintf(sb, "%q: ", k)
			formatInto(sb, v.m[k])
		}

		sb.WriteByte('}')
	case *Array:
		sb.WriteByte('[')

		for i, e := range v.Slice() {
			if i > 0 {
				sb.WriteString(", ")
			}

			formatInto(sb, e)
		}

		sb.WriteByte(']')
	case *Binary:
		fmt.Fprintf(sb, "BinData(%d, %x)", v.Subtype, v.B)
	default:
		fmt.Fprintf(sb, "%v", v)
	}
}
