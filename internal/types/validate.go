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

// ValidateData recursively checks that doc is safe to store: field names
// at the top level of a stored document may not start with "$" (reserved
// for update/query operators), and no field name at any depth may contain
// an embedded NUL byte; "$"-prefixed names in nested documents are
// accepted. It does not reject
// "_id" of any Value type; the storage port is responsible for uniqueness.
func (d *Document) ValidateData() error {
	return validateDoc(d, true)
}

func validateDoc(d *Document, topLevel bool) error {
	if d == nil {
		return nil
	}

	for _, k := range d.Keys() {
		if strings.Contains(k, "\x00") {
			return fmt.Errorf("types.ValidateData: key %q contains a NUL byte", k)
		}

		if topLevel && strings.HasPrefix(k, "$") {
			return fmt.Errorf("types.ValidateData: field name %q cannot start with '$'", k)
		}

		if err := validateValue(d.m[k]); err != nil {
			return err
		}
	}

	return nil
}

func validateValue(v any) error {
	switch v := v.(type) {
	case *Document:
		return validateDoc(v, false)
	case *Array:
		for _, e := range v.Slice() {
			if err := validateValue(e); err != nil {
				return err
			}
		}

		return nil
	default:
		return nil
	}
}
