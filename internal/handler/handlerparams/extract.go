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

package handlerparams

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/AlekSi/pointer"
	"go.uber.org/zap"

	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
)

// ExtractParams fills the fields of the struct pointed to by params from
// doc, a top-level command document, using the `ferretdb:"name,opt..."`
// struct tag convention:
//
//   - name is the field's key in doc, or "-" to skip the field entirely
//     (populated some other way by the caller).
//   - "collection" marks the field that holds the command's collection
//     name argument, i.e. the value of the key named after the command
//     itself (e.g. {find: "people"} → name is "find").
//   - "opt" marks the field optional: a missing key leaves the field at
//     its Go zero value instead of failing.
//   - "ignored" accepts the key if present but never reports an error and
//     never assigns it (legacy driver/wire-protocol parameters this core
//     doesn't act on, e.g. lsid, writeConcern).
//   - "unimplemented" rejects the command outright if the key is present at all.
//   - "unimplemented-non-default" rejects the command only if the key is
//     present with a non-default value.
//   - "positiveNumber"/"wholePositiveNumber" coerce a numeric field via
//     GetWholeNumberParam and require it to be >= 0.
//   - "numericBool" accepts bool or a 0/1 number for a bool field.
//   - "zeroOrOneAsBool" is numericBool's mirror for fields that are
//     conventionally named after a limit but used as a boolean switch.
//
// Unset fields with no matching key and no "opt"/"ignored" tag make
// ExtractParams fail with a handlererrors.CommandError (code ErrMissingField).
func ExtractParams(doc *types.Document, command string, params any, l *zap.Logger) error {
	v := reflect.ValueOf(params).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag, ok := field.Tag.Lookup("ferretdb")
		if !ok || tag == "-" {
			continue
		}

		parts := strings.Split(tag, ",")
		name, opts := parts[0], parts[1:]

		fv := v.Field(i)

		if has(opts, "collection") {
			val, err := doc.Get(name)
			if err != nil {
				return handlererrors.NewCommandErrorMsgWithArgument(
					handlererrors.ErrInvalidNamespace,
					fmt.Sprintf("collection name is missing for command %q", command),
					command,
				)
			}

			s, ok := val.(string)
			if !ok || s == "" {
				return handlererrors.NewCommandErrorMsgWithArgument(
					handlererrors.ErrInvalidNamespace,
					fmt.Sprintf("collection name has invalid type %s", AliasFromType(val)),
					command,
				)
			}

			fv.SetString(s)

			continue
		}

		val, err := doc.Get(name)
		missing := err != nil

		if missing {
			if has(opts, "opt") || has(opts, "ignored") || has(opts, "unimplemented") || has(opts, "unimplemented-non-default") {
				continue
			}

			if l != nil {
				l.Debug("required parameter is missing", zap.String("command", command), zap.String("field", name))
			}

			return handlererrors.NewCommandErrorMsgWithArgument(
				handlererrors.ErrMissingField,
				fmt.Sprintf("BSON field '%s.%s' is missing but a required field", command, name),
				command,
			)
		}

		if has(opts, "ignored") {
			continue
		}

		if has(opts, "unimplemented") {
			return handlererrors.NewCommandErrorMsgWithArgument(
				handlererrors.ErrNotImplemented,
				fmt.Sprintf("support for field %q is not implemented yet", name),
				command,
			)
		}

		if has(opts, "unimplemented-non-default") {
			if !isDefaultValue(val) {
				return handlererrors.NewCommandErrorMsgWithArgument(
					handlererrors.ErrNotImplemented,
					fmt.Sprintf("support for non-default value of field %q is not implemented yet", name),
					command,
				)
			}

			continue
		}

		if err := assign(fv, val, opts); err != nil {
			return handlererrors.NewCommandErrorMsgWithArgument(
				handlererrors.ErrTypeMismatch,
				fmt.Sprintf("BSON field '%s.%s' is the wrong type: %s", command, name, err),
				command,
			)
		}
	}

	return nil
}

func has(opts []string, want string) bool {
	for _, o := range opts {
		if o == want {
			return true
		}
	}

	return false
}

// isDefaultValue reports whether val is the BSON-level "default" the
// reference server treats as equivalent to the field being absent: false,
// zero, an empty string, or null.
func isDefaultValue(val any) bool {
	switch v := val.(type) {
	case bool:
		return !v
	case int32:
		return v == 0
	case int64:
		return v == 0
	case float64:
		return v == 0
	case string:
		return v == ""
	case types.NullType:
		return true
	default:
		return false
	}
}

// assign coerces val into fv, applying any numeric/boolean coercion flags in opts.
func assign(fv reflect.Value, val any, opts []string) error {
	switch fv.Kind() {
	case reflect.String:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("expected string, got %s", AliasFromType(val))
		}

		fv.SetString(s)

	case reflect.Bool:
		switch {
		case has(opts, "numericBool"):
			b, err := asNumericBool(val)
			if err != nil {
				return err
			}

			fv.SetBool(b)
		case has(opts, "zeroOrOneAsBool"):
			n, err := GetWholeNumberParam(val)
			if err != nil {
				return err
			}

			fv.SetBool(n != 0)
		default:
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("expected bool, got %s", AliasFromType(val))
			}

			fv.SetBool(b)
		}

	case reflect.Int64, reflect.Int32, reflect.Int:
		n, err := GetWholeNumberParam(val)
		if err != nil {
			return err
		}

		if (has(opts, "positiveNumber") || has(opts, "wholePositiveNumber")) && n < 0 {
			return fmt.Errorf("expected a non-negative number, got %d", n)
		}

		fv.SetInt(n)

	case reflect.Interface:
		fv.Set(reflect.ValueOf(val))

	case reflect.Ptr:
		if err := assignPointer(fv, val); err != nil {
			return err
		}

	case reflect.Slice:
		if err := assignSlice(fv, val); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported field kind %s", fv.Kind())
	}

	return nil
}

// assignPointer fills an optional *bool/*int32/*int64 field (e.g.
// Update.Upsert, FindAndModifyParams.Remove) from a primitive BSON value,
// using pointer.To* so the field can distinguish "false/0" from "absent"
// the way a bare bool/int field cannot.
func assignPointer(fv reflect.Value, val any) error {
	rv := reflect.ValueOf(val)
	if rv.IsValid() && rv.Type().AssignableTo(fv.Type()) {
		fv.Set(rv)
		return nil
	}

	switch fv.Type().Elem().Kind() {
	case reflect.Bool:
		b, err := asNumericBool(val)
		if err != nil {
			return err
		}

		fv.Set(reflect.ValueOf(pointer.ToBool(b)))

	case reflect.Int32:
		n, err := GetWholeNumberParam(val)
		if err != nil {
			return err
		}

		fv.Set(reflect.ValueOf(pointer.ToInt32(int32(n))))

	case reflect.Int64:
		n, err := GetWholeNumberParam(val)
		if err != nil {
			return err
		}

		fv.Set(reflect.ValueOf(pointer.ToInt64(n)))

	default:
		return fmt.Errorf("expected %s, got %s", fv.Type(), AliasFromType(val))
	}

	return nil
}

// assignSlice fills a []T field (e.g. UpdateParams.Updates []Update) from a
// *types.Array of *types.Document, decoding each element document's tagged
// fields with extractInto.
func assignSlice(fv reflect.Value, val any) error {
	arr, ok := val.(*types.Array)
	if !ok {
		return fmt.Errorf("expected array, got %s", AliasFromType(val))
	}

	elemType := fv.Type().Elem()
	out := reflect.MakeSlice(fv.Type(), 0, arr.Len())

	for i := 0; i < arr.Len(); i++ {
		elem, err := arr.Get(i)
		if err != nil {
			return err
		}

		elemDoc, ok := elem.(*types.Document)
		if !ok {
			return fmt.Errorf("expected array of documents, got element of type %s", AliasFromType(elem))
		}

		ev := reflect.New(elemType)
		if err := extractInto(elemDoc, ev.Elem()); err != nil {
			return err
		}

		out = reflect.Append(out, ev.Elem())
	}

	fv.Set(out)

	return nil
}

// extractInto fills v (a struct value, no "collection"/"$db" handling since
// per-element structs like Update never carry those) from doc.
func extractInto(doc *types.Document, v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag, ok := field.Tag.Lookup("ferretdb")
		if !ok || tag == "-" {
			continue
		}

		parts := strings.Split(tag, ",")
		name, opts := parts[0], parts[1:]

		fv := v.Field(i)

		val, err := doc.Get(name)
		if err != nil {
			if has(opts, "opt") || has(opts, "ignored") || has(opts, "unimplemented") || has(opts, "unimplemented-non-default") {
				continue
			}

			return fmt.Errorf("missing required field %q", name)
		}

		if has(opts, "ignored") {
			continue
		}

		if has(opts, "unimplemented") {
			return fmt.Errorf("field %q is not implemented", name)
		}

		if has(opts, "unimplemented-non-default") {
			if !isDefaultValue(val) {
				return fmt.Errorf("non-default value for field %q is not implemented", name)
			}

			continue
		}

		if err := assign(fv, val, opts); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}

	return nil
}

func asNumericBool(val any) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case int32:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("expected bool or number, got %s", AliasFromType(val))
	}
}
