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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/must"
)

func textFilter(search string) *types.Document {
	return must.NotFail(types.NewDocument("$text", must.NotFail(types.NewDocument("$search", search))))
}

func TestTextRequiresTextIndex(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument("body", "the quick fox"))

	_, err := MatchWithTextIndex(doc, textFilter("fox"), nil, nil)
	require.Error(t, err)

	var cmdErr *handlererrors.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, handlererrors.ErrNoTextIndex, cmdErr.Code())
}

func TestTextMatchesCaseInsensitive(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument("body", "The Quick Fox"))

	res, err := MatchWithTextIndex(doc, textFilter("fox"), nil, []string{"body"})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.True(t, res.HasTextScore)
	assert.Greater(t, res.TextScore, 0.0)
}

func TestTextNegatedTermExcludes(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument("body", "the quick fox jumps"))

	res, err := MatchWithTextIndex(doc, textFilter("fox -jumps"), nil, []string{"body"})
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestTextQuotedPhraseRequiresContiguity(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument("body", "a quick brown fox"))

	res, err := MatchWithTextIndex(doc, textFilter(`"quick fox"`), nil, []string{"body"})
	require.NoError(t, err)
	assert.False(t, res.Matched)

	doc2 := must.NotFail(types.NewDocument("body", "a quick fox jumps"))

	res, err = MatchWithTextIndex(doc2, textFilter(`"quick fox"`), nil, []string{"body"})
	require.NoError(t, err)
	assert.True(t, res.Matched)
}

func TestTextScoreCountsOccurrences(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument("body", "fox fox fox"))

	res, err := MatchWithTextIndex(doc, textFilter("fox"), nil, []string{"body"})
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, 3.0, res.TextScore)
}

func TestTextNoFieldMatchesFails(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument("body", "unrelated content"))

	res, err := MatchWithTextIndex(doc, textFilter("nonexistentterm"), nil, []string{"body"})
	require.NoError(t, err)
	assert.False(t, res.Matched)
}
