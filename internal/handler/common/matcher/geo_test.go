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

	"github.com/stretchr/testify/require"

	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/must"
)

func geoPointDoc(lng, lat float64) *types.Array {
	return must.NotFail(types.NewArray(lng, lat))
}

func TestMatchGeoWithinBox(t *testing.T) {
	t.Parallel()

	doc := must.NotFail(types.NewDocument("loc", geoPointDoc(5, 5)))

	filter := must.NotFail(types.NewDocument(
		"loc", must.NotFail(types.NewDocument(
			"$geoWithin", must.NotFail(types.NewDocument(
				"$box", must.NotFail(types.NewArray(
					geoPointDoc(0, 0),
					geoPointDoc(10, 10),
				)),
			)),
		)),
	))

	matched, err := Matches(doc, filter)
	require.NoError(t, err)
	require.True(t, matched)

	outside := must.NotFail(types.NewDocument("loc", geoPointDoc(20, 20)))
	matched, err = Matches(outside, filter)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestMatchGeoWithinCenterSphere(t *testing.T) {
	t.Parallel()

	filter := must.NotFail(types.NewDocument(
		"loc", must.NotFail(types.NewDocument(
			"$geoWithin", must.NotFail(types.NewDocument(
				"$centerSphere", must.NotFail(types.NewArray(geoPointDoc(0, 0), 0.01)),
			)),
		)),
	))

	near := must.NotFail(types.NewDocument("loc", geoPointDoc(0, 0.001)))
	matched, err := Matches(near, filter)
	require.NoError(t, err)
	require.True(t, matched)

	far := must.NotFail(types.NewDocument("loc", geoPointDoc(50, 50)))
	matched, err = Matches(far, filter)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestMatchGeoWithinGeoJSONPolygon(t *testing.T) {
	t.Parallel()

	ring := must.NotFail(types.NewArray(
		geoPointDoc(0, 0),
		geoPointDoc(0, 10),
		geoPointDoc(10, 10),
		geoPointDoc(10, 0),
		geoPointDoc(0, 0),
	))

	polygon := must.NotFail(types.NewDocument(
		"type", "Polygon",
		"coordinates", must.NotFail(types.NewArray(ring)),
	))

	filter := must.NotFail(types.NewDocument(
		"loc", must.NotFail(types.NewDocument(
			"$geoWithin", must.NotFail(types.NewDocument("$geometry", polygon)),
		)),
	))

	inside := must.NotFail(types.NewDocument("loc", geoPointDoc(5, 5)))
	matched, err := Matches(inside, filter)
	require.NoError(t, err)
	require.True(t, matched)

	outside := must.NotFail(types.NewDocument("loc", geoPointDoc(50, 50)))
	matched, err = Matches(outside, filter)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestMatchGeoIntersects(t *testing.T) {
	t.Parallel()

	ring := must.NotFail(types.NewArray(
		geoPointDoc(0, 0),
		geoPointDoc(0, 10),
		geoPointDoc(10, 10),
		geoPointDoc(10, 0),
		geoPointDoc(0, 0),
	))

	polygon := must.NotFail(types.NewDocument(
		"type", "Polygon",
		"coordinates", must.NotFail(types.NewArray(ring)),
	))

	filter := must.NotFail(types.NewDocument(
		"loc", must.NotFail(types.NewDocument(
			"$geoIntersects", must.NotFail(types.NewDocument("$geometry", polygon)),
		)),
	))

	inside := must.NotFail(types.NewDocument("loc", geoPointDoc(3, 3)))
	matched, err := Matches(inside, filter)
	require.NoError(t, err)
	require.True(t, matched)
}

func TestMatchNearWithDistanceBounds(t *testing.T) {
	t.Parallel()

	filter := must.NotFail(types.NewDocument(
		"loc", must.NotFail(types.NewDocument(
			"$near", must.NotFail(types.NewDocument(
				"$geometry", must.NotFail(types.NewDocument(
					"type", "Point",
					"coordinates", geoPointDoc(0, 0),
				)),
				"$maxDistance", float64(5),
			)),
		)),
	))

	near := must.NotFail(types.NewDocument("loc", geoPointDoc(1, 1)))
	matched, err := Matches(near, filter)
	require.NoError(t, err)
	require.True(t, matched)

	far := must.NotFail(types.NewDocument("loc", geoPointDoc(100, 100)))
	matched, err = Matches(far, filter)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestMatchNearSphereLegacyPoint(t *testing.T) {
	t.Parallel()

	filter := must.NotFail(types.NewDocument(
		"loc", must.NotFail(types.NewDocument(
			"$nearSphere", geoPointDoc(0, 0),
		)),
	))

	doc := must.NotFail(types.NewDocument("loc", geoPointDoc(0.001, 0.001)))

	matched, err := Matches(doc, filter)
	require.NoError(t, err)
	require.True(t, matched)
}
