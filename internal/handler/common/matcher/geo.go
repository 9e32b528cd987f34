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
	"math"

	"github.com/embeddocs/docstore/internal/handler/handlererrors"
	"github.com/embeddocs/docstore/internal/types"
	"github.com/embeddocs/docstore/internal/util/must"
)

// earthRadiusMeters is the sphere radius $centerSphere/$nearSphere/$maxDistance
// assume for "sphere" (radians-based) geometries, matching the reference
// server's default.
const earthRadiusMeters = 6378137.0

// geoPoint is a parsed [longitude, latitude] pair.
type geoPoint struct {
	lng, lat float64
}

// matchGeoWithin implements spec.md §4.3's $geoWithin: candidates (points)
// are tested against one of the legacy shape operators ($box, $polygon,
// $center, $centerSphere) or a GeoJSON $geometry Polygon/MultiPolygon, by
// plain point-in-shape arithmetic. There is no index acceleration (no
// candidate pruning by a spatial index) — every stored point is tested
// directly, matching spec.md §1's allowance for predicate-evaluation-only
// geo support.
func matchGeoWithin(candidates []any, arg any) (bool, error) {
	shapeDoc, ok := arg.(*types.Document)
	if !ok || shapeDoc.Len() == 0 {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$geoWithin needs an object")
	}

	test, err := compileGeoWithinShape(shapeDoc)
	if err != nil {
		return false, err
	}

	for _, c := range candidates {
		p, ok := parseGeoPoint(c)
		if !ok {
			continue
		}

		if test(p) {
			return true, nil
		}
	}

	return false, nil
}

// matchGeoIntersects implements spec.md §4.3's $geoIntersects, restricted to
// Point-vs-Polygon/MultiPolygon intersection (a stored Point "intersects" a
// Polygon iff pointInPolygon reports it inside) — the common shape for a
// document-store predicate check; line/polygon-vs-polygon intersection is
// out of scope for plain arithmetic evaluation.
func matchGeoIntersects(candidates []any, arg any) (bool, error) {
	geomDoc, ok := arg.(*types.Document)
	if !ok {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$geoIntersects needs an object")
	}

	geometry, err := geomDoc.Get("$geometry")
	if err != nil {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$geoIntersects needs a $geometry field")
	}

	polys, err := parseGeoJSONPolygons(geometry)
	if err != nil {
		return false, err
	}

	for _, c := range candidates {
		p, ok := parseGeoPoint(c)
		if !ok {
			continue
		}

		for _, poly := range polys {
			if pointInPolygon(p, poly) {
				return true, nil
			}
		}
	}

	return false, nil
}

// matchNear implements spec.md §4.3's $near/$nearSphere as a filter
// predicate (distance-bounded membership, not the sort-by-distance ordering
// a real $geoNear aggregation stage would add): candidates within
// [$minDistance, $maxDistance] of the query point match.
func matchNear(candidates []any, arg any, sphere bool) (bool, error) {
	var (
		center      geoPoint
		maxDistance = math.Inf(1)
		minDistance = 0.0
		haveCenter  bool
	)

	switch a := arg.(type) {
	case *types.Document:
		if geometry, err := a.Get("$geometry"); err == nil {
			p, ok := parseGeoPoint(geometry)
			if !ok {
				return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$geometry needs a GeoJSON Point")
			}

			center, haveCenter = p, true
		}

		if v, err := a.Get("$maxDistance"); err == nil {
			if f, ok := toFloatOK(v); ok {
				maxDistance = f
			}
		}

		if v, err := a.Get("$minDistance"); err == nil {
			if f, ok := toFloatOK(v); ok {
				minDistance = f
			}
		}
	default:
		if p, ok := parseGeoPoint(arg); ok {
			center, haveCenter = p, true
		}
	}

	if !haveCenter {
		return false, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$near/$nearSphere needs a point")
	}

	for _, c := range candidates {
		p, ok := parseGeoPoint(c)
		if !ok {
			continue
		}

		d := distance(center, p, sphere)
		if d >= minDistance && d <= maxDistance {
			return true, nil
		}
	}

	return false, nil
}

// compileGeoWithinShape returns a point-membership test for one of
// $geoWithin's shape operators.
func compileGeoWithinShape(shapeDoc *types.Document) (func(geoPoint) bool, error) {
	if v, err := shapeDoc.Get("$geometry"); err == nil {
		polys, err := parseGeoJSONPolygons(v)
		if err != nil {
			return nil, err
		}

		return func(p geoPoint) bool {
			for _, poly := range polys {
				if pointInPolygon(p, poly) {
					return true
				}
			}

			return false
		}, nil
	}

	if v, err := shapeDoc.Get("$box"); err == nil {
		corners, ok := v.(*types.Array)
		if !ok || corners.Len() != 2 {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$box needs two corner points")
		}

		lo, ok1 := parseGeoPoint(must.NotFail(corners.Get(0)))
		hi, ok2 := parseGeoPoint(must.NotFail(corners.Get(1)))

		if !ok1 || !ok2 {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$box corners must be coordinate pairs")
		}

		return func(p geoPoint) bool {
			return p.lng >= math.Min(lo.lng, hi.lng) && p.lng <= math.Max(lo.lng, hi.lng) &&
				p.lat >= math.Min(lo.lat, hi.lat) && p.lat <= math.Max(lo.lat, hi.lat)
		}, nil
	}

	if v, err := shapeDoc.Get("$center"); err == nil {
		center, radius, err := parseCenterSpec(v)
		if err != nil {
			return nil, err
		}

		return func(p geoPoint) bool { return distance(center, p, false) <= radius }, nil
	}

	if v, err := shapeDoc.Get("$centerSphere"); err == nil {
		center, radiusRadians, err := parseCenterSpec(v)
		if err != nil {
			return nil, err
		}

		radiusMeters := radiusRadians * earthRadiusMeters

		return func(p geoPoint) bool { return distance(center, p, true) <= radiusMeters }, nil
	}

	if v, err := shapeDoc.Get("$polygon"); err == nil {
		poly, err := parseLegacyPolygon(v)
		if err != nil {
			return nil, err
		}

		return func(p geoPoint) bool { return pointInPolygon(p, poly) }, nil
	}

	return nil, handlererrors.NewCommandErrorMsg(
		handlererrors.ErrBadValue,
		"$geoWithin needs one of $geometry, $box, $center, $centerSphere, or $polygon",
	)
}

// parseCenterSpec parses $center/$centerSphere's [point, radius] array.
func parseCenterSpec(v any) (geoPoint, float64, error) {
	arr, ok := v.(*types.Array)
	if !ok || arr.Len() != 2 {
		return geoPoint{}, 0, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "needs a [center, radius] array")
	}

	center, ok := parseGeoPoint(must.NotFail(arr.Get(0)))
	if !ok {
		return geoPoint{}, 0, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "center must be a coordinate pair")
	}

	radius, ok := toFloatOK(must.NotFail(arr.Get(1)))
	if !ok {
		return geoPoint{}, 0, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "radius must be a number")
	}

	return center, radius, nil
}

// parseLegacyPolygon parses $polygon's array-of-[x,y]-pairs form.
func parseLegacyPolygon(v any) ([]geoPoint, error) {
	arr, ok := v.(*types.Array)
	if !ok || arr.Len() < 3 {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$polygon needs at least 3 points")
	}

	poly := make([]geoPoint, 0, arr.Len())

	for _, v := range arr.Slice() {
		p, ok := parseGeoPoint(v)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$polygon points must be coordinate pairs")
		}

		poly = append(poly, p)
	}

	return poly, nil
}

// parseGeoJSONPolygons parses a GeoJSON Polygon or MultiPolygon's outer ring(s),
// ignoring any interior (hole) rings.
func parseGeoJSONPolygons(v any) ([][]geoPoint, error) {
	doc, ok := v.(*types.Document)
	if !ok {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$geometry needs a GeoJSON object")
	}

	typ, _ := doc.Get("type")
	coords, err := doc.Get("coordinates")
	if err != nil {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "$geometry needs a coordinates field")
	}

	switch typ {
	case "Polygon":
		ringsArr, ok := coords.(*types.Array)
		if !ok || ringsArr.Len() == 0 {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "Polygon needs an array of rings")
		}

		ring, err := geoJSONRing(must.NotFail(ringsArr.Get(0)))
		if err != nil {
			return nil, err
		}

		return [][]geoPoint{ring}, nil
	case "MultiPolygon":
		polysArr, ok := coords.(*types.Array)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "MultiPolygon needs an array of polygons")
		}

		var polys [][]geoPoint

		for _, polyVal := range polysArr.Slice() {
			polyArr, ok := polyVal.(*types.Array)
			if !ok || polyArr.Len() == 0 {
				continue
			}

			ring, err := geoJSONRing(must.NotFail(polyArr.Get(0)))
			if err != nil {
				return nil, err
			}

			polys = append(polys, ring)
		}

		return polys, nil
	default:
		return nil, handlererrors.NewCommandErrorMsg(
			handlererrors.ErrBadValue,
			"$geometry type must be Polygon or MultiPolygon",
		)
	}
}

// geoJSONRing parses a GeoJSON Polygon's outer ring: an array of [lng, lat] pairs.
func geoJSONRing(v any) ([]geoPoint, error) {
	arr, ok := v.(*types.Array)
	if !ok || arr.Len() < 3 {
		return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "polygon ring needs at least 3 points")
	}

	ring := make([]geoPoint, 0, arr.Len())

	for _, v := range arr.Slice() {
		p, ok := parseGeoPoint(v)
		if !ok {
			return nil, handlererrors.NewCommandErrorMsg(handlererrors.ErrBadValue, "polygon ring points must be coordinate pairs")
		}

		ring = append(ring, p)
	}

	return ring, nil
}

// parseGeoPoint accepts either a legacy [x, y] coordinate pair array or a
// GeoJSON {type: "Point", coordinates: [lng, lat]} document.
func parseGeoPoint(v any) (geoPoint, bool) {
	switch v := v.(type) {
	case *types.Array:
		if v.Len() != 2 {
			return geoPoint{}, false
		}

		x, ok1 := toFloatOK(must.NotFail(v.Get(0)))
		y, ok2 := toFloatOK(must.NotFail(v.Get(1)))

		if !ok1 || !ok2 {
			return geoPoint{}, false
		}

		return geoPoint{lng: x, lat: y}, true

	case *types.Document:
		typ, _ := v.Get("type")
		if typ != "Point" {
			return geoPoint{}, false
		}

		coords, err := v.Get("coordinates")
		if err != nil {
			return geoPoint{}, false
		}

		return parseGeoPoint(coords)

	default:
		return geoPoint{}, false
	}
}

// pointInPolygon reports whether p lies inside the ring via the standard
// even-odd ray-casting test. A point exactly on an edge is not treated
// specially and may be reported either inside or outside.
func pointInPolygon(p geoPoint, ring []geoPoint) bool {
	inside := false

	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]

		if (a.lat > p.lat) != (b.lat > p.lat) {
			x := (b.lng-a.lng)*(p.lat-a.lat)/(b.lat-a.lat) + a.lng
			if p.lng < x {
				inside = !inside
			}
		}
	}

	return inside
}

// distance returns the distance between a and b: planar (degrees, scaled as
// plain Euclidean units) when sphere is false, or great-circle meters (via
// the haversine formula) when sphere is true.
func distance(a, b geoPoint, sphere bool) float64 {
	if !sphere {
		dx, dy := a.lng-b.lng, a.lat-b.lat
		return math.Sqrt(dx*dx + dy*dy)
	}

	lat1, lat2 := a.lat*math.Pi/180, b.lat*math.Pi/180
	dLat := (b.lat - a.lat) * math.Pi / 180
	dLng := (b.lng - a.lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// toFloatOK converts a numeric Value to float64.
func toFloatOK(v any) (float64, bool) {
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
