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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/must"
)

func TestConcatAndCase(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$concat", "foo", "bar")
	require.NoError(t, err)
	assert.Equal(t, "foobar", got)

	got, err = evalExpr(t, "$toUpper", "mixedCase")
	require.NoError(t, err)
	assert.Equal(t, "MIXEDCASE", got)

	got, err = evalExpr(t, "$toLower", "MixedCase")
	require.NoError(t, err)
	assert.Equal(t, "mixedcase", got)
}

func TestStrLenCPCountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	// "héllo" has 5 code points but 6 bytes (é is 2 bytes in UTF-8).
	got, err := evalExpr(t, "$strLenCP", "héllo")
	require.NoError(t, err)
	assert.Equal(t, int32(5), got)

	got, err = evalExpr(t, "$strLenBytes", "héllo")
	require.NoError(t, err)
	assert.Equal(t, int32(6), got)
}

func TestSplit(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument())

	expr := must.NotFail(types.NewDocument("$split", must.NotFail(types.NewArray("a,b,c", ","))))

	got, err := Eval(expr, doc)
	require.NoError(t, err)

	out, ok := got.(*types.Array)
	require.True(t, ok)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, "a", must.NotFail(out.Get(0)))
	assert.Equal(t, "b", must.NotFail(out.Get(1)))
	assert.Equal(t, "c", must.NotFail(out.Get(2)))
}

func TestStrcasecmp(t *testing.T) {
	t.Parallel()

	got, err := evalExpr(t, "$strcasecmp", "ABC", "abc")
	require.NoError(t, err)
	assert.Equal(t, int32(0), got)
}
