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
	"fmt"
	"strings"
	"time"

	"github.com/embeddocs/docstore/internal/types"
)

var dateOps = map[string]opFunc{
	"$year":            dateField(func(t time.Time) any { return int32(t.Year()) }),
	"$month":           dateField(func(t time.Time) any { return int32(t.Month()) }),
	"$dayOfMonth":      dateField(func(t time.Time) any { return int32(t.Day()) }),
	"$hour":            dateField(func(t time.Time) any { return int32(t.Hour()) }),
	"$minute":          dateField(func(t time.Time) any { return int32(t.Minute()) }),
	"$second":          dateField(func(t time.Time) any { return int32(t.Second()) }),
	"$millisecond":     dateField(func(t time.Time) any { return int32(t.Nanosecond() / 1e6) }),
	"$dayOfWeek":       dateField(func(t time.Time) any { return int32(t.Weekday()) + 1 }),
	"$dayOfYear":       dateField(func(t time.Time) any { return int32(t.YearDay()) }),
	"$week":            dateField(func(t time.Time) any { return int32(sundayWeek(t)) }),
	"$isoWeek":         dateField(func(t time.Time) any { _, w := t.ISOWeek(); return int32(w) }),
	"$isoWeekYear":     dateField(func(t time.Time) any { y, _ := t.ISOWeek(); return int32(y) }),
	"$isoDayOfWeek":    dateField(func(t time.Time) any { return int32(isoWeekday(t)) }),
	"$dateToString":    evalDateToString,
	"$dateFromString":  evalDateFromString,
	"$dateAdd":         evalDateAdd,
	"$dateSubtract":    evalDateSubtract,
	"$dateDiff":        evalDateDiff,
	"$dateFromParts":   evalDateFromParts,
	"$dateToParts":     evalDateToParts,
}

// sundayWeek implements $week: the week number (0-53) of a Sunday-starting
// calendar, where the first Sunday of the year begins week 1.
func sundayWeek(t time.Time) int {
	yday := t.YearDay() - 1
	wday := int(t.Weekday())

	return (yday - wday + 7) / 7
}

// isoWeekday converts Go's Sunday=0 weekday into ISO's Monday=1..Sunday=7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}

	return wd
}

func asDateTime(op string, v any) (time.Time, error) {
	dt, ok := v.(types.DateTime)
	if !ok {
		return time.Time{}, fmt.Errorf("%s requires a date argument, found: %s", op, types.TypeName(v))
	}

	return dt.Time().UTC(), nil
}

// timezoneArg extracts a {date, timezone} document's optional IANA timezone
// name, defaulting to UTC, per spec.md §4.2's date-extraction operators.
func timezoneArg(d *types.Document, ctx *Context) (time.Time, error) {
	dateV, err := requireField(d, "date", "date operator")
	if err != nil {
		return time.Time{}, err
	}

	date, err := ctx.Eval(dateV)
	if err != nil {
		return time.Time{}, err
	}

	t, err := asDateTime("date operator", date)
	if err != nil {
		return time.Time{}, err
	}

	if tzV, err := d.Get("timezone"); err == nil {
		tzS, err := ctx.Eval(tzV)
		if err != nil {
			return time.Time{}, err
		}

		tzName, ok := tzS.(string)
		if !ok {
			return time.Time{}, fmt.Errorf("timezone must be a string")
		}

		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown time zone identifier: %s", tzName)
		}

		t = t.In(loc)
	}

	return t, nil
}

// dateField adapts a single time.Time -> value extractor (e.g. $year) to
// the opFunc signature, accepting either a bare date expression or the
// {date, timezone} document form.
func dateField(f func(time.Time) any) opFunc {
	return func(raw any, ctx *Context) (any, error) {
		var t time.Time

		switch r := raw.(type) {
		case *types.Document:
			if _, err := r.Get("date"); err == nil {
				var err error

				t, err = timezoneArg(r, ctx)
				if err != nil {
					return nil, err
				}

				break
			}

			fallthrough
		default:
			v, err := ctx.Eval(raw)
			if err != nil {
				return nil, err
			}

			if isNullish(v) {
				return types.Null, nil
			}

			t, err = asDateTime("date operator", v)
			if err != nil {
				return nil, err
			}
		}

		return f(t), nil
	}
}

// evalDateToString implements $dateToString: {date, format, timezone, onNull}.
func evalDateToString(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$dateToString requires an object as an argument")
	}

	dateV, err := requireField(d, "date", "$dateToString")
	if err != nil {
		return nil, err
	}

	date, err := ctx.Eval(dateV)
	if err != nil {
		return nil, err
	}

	if isNullish(date) {
		if onNullE, err := d.Get("onNull"); err == nil {
			return ctx.Eval(onNullE)
		}

		return types.Null, nil
	}

	t, err := timezoneArg(d, ctx)
	if err != nil {
		return nil, err
	}

	format := "%Y-%m-%dT%H:%M:%S.%LZ"

	if formatV, err := d.Get("format"); err == nil {
		f, err := ctx.Eval(formatV)
		if err != nil {
			return nil, err
		}

		formatS, ok := f.(string)
		if !ok {
			return nil, fmt.Errorf("$dateToString's 'format' must be a string")
		}

		format = formatS
	}

	return strftime(t, format), nil
}

// strftime renders t according to MongoDB's %-directive date format mini
// language (spec.md §4.2), the subset $dateToString/$dateFromString use.
func strftime(t time.Time, format string) string {
	var b strings.Builder

	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i == len(format)-1 {
			b.WriteByte(format[i])
			continue
		}

		i++

		switch format[i] {
		case 'Y':
			fmt.Fprintf(&b, "%04d", t.Year())
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", t.Second())
		case 'L':
			fmt.Fprintf(&b, "%03d", t.Nanosecond()/1e6)
		case 'j':
			fmt.Fprintf(&b, "%03d", t.YearDay())
		case 'u':
			fmt.Fprintf(&b, "%d", isoWeekday(t))
		case 'G':
			y, _ := t.ISOWeek()
			fmt.Fprintf(&b, "%04d", y)
		case 'V':
			_, w := t.ISOWeek()
			fmt.Fprintf(&b, "%02d", w)
		case 'Z':
			b.WriteString("+00:00")
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}

	return b.String()
}

// dateFromStringDirectives maps the %Y, %m, %d, %H, %M, %S and %L directives
// to Go reference-time layout fragments, for $dateFromString's format parsing;
// strftime's other directives are not parsed.
var dateFromStringDirectives = map[byte]string{
	'Y': "2006", 'm': "01", 'd': "02",
	'H': "15", 'M': "04", 'S': "05", 'L': "000",
}

func strptimeLayout(format string) string {
	var b strings.Builder

	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i == len(format)-1 {
			b.WriteByte(format[i])
			continue
		}

		i++

		if layout, ok := dateFromStringDirectives[format[i]]; ok {
			b.WriteString(layout)
		} else {
			b.WriteByte(format[i])
		}
	}

	return b.String()
}

// evalDateFromString implements $dateFromString: {dateString, format,
// timezone, onError, onNull}.
func evalDateFromString(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$dateFromString requires an object as an argument")
	}

	strV, err := requireField(d, "dateString", "$dateFromString")
	if err != nil {
		return nil, err
	}

	str, err := ctx.Eval(strV)
	if err != nil {
		return nil, err
	}

	if isNullish(str) {
		if onNullE, err := d.Get("onNull"); err == nil {
			return ctx.Eval(onNullE)
		}

		return types.Null, nil
	}

	strS, ok := str.(string)
	if !ok {
		return nil, fmt.Errorf("$dateFromString requires 'dateString' to be a string")
	}

	onError := func(convErr error) (any, error) {
		if onErrorE, err := d.Get("onError"); err == nil {
			return ctx.Eval(onErrorE)
		}

		return nil, convErr
	}

	if formatV, err := d.Get("format"); err == nil {
		f, err := ctx.Eval(formatV)
		if err != nil {
			return nil, err
		}

		formatS, ok := f.(string)
		if !ok {
			return nil, fmt.Errorf("$dateFromString's 'format' must be a string")
		}

		t, perr := time.Parse(strptimeLayout(formatS), strS)
		if perr != nil {
			return onError(fmt.Errorf("$dateFromString could not parse date string '%s'", strS))
		}

		return types.NewDateTimeFromTime(t), nil
	}

	for _, layout := range dateLayouts {
		if t, perr := time.Parse(layout, strS); perr == nil {
			return types.NewDateTimeFromTime(t), nil
		}
	}

	return onError(fmt.Errorf("$dateFromString could not parse date string '%s'", strS))
}

// dateAddUnit advances t by amount units, the shared arithmetic for
// $dateAdd (positive amount) and $dateSubtract (amount negated beforehand).
func dateAddUnit(t time.Time, unit string, amount int64) (time.Time, error) {
	switch unit {
	case "year":
		return t.AddDate(int(amount), 0, 0), nil
	case "quarter":
		return t.AddDate(0, int(amount)*3, 0), nil
	case "month":
		return t.AddDate(0, int(amount), 0), nil
	case "week":
		return t.AddDate(0, 0, int(amount)*7), nil
	case "day":
		return t.AddDate(0, 0, int(amount)), nil
	case "hour":
		return t.Add(time.Duration(amount) * time.Hour), nil
	case "minute":
		return t.Add(time.Duration(amount) * time.Minute), nil
	case "second":
		return t.Add(time.Duration(amount) * time.Second), nil
	case "millisecond":
		return t.Add(time.Duration(amount) * time.Millisecond), nil
	default:
		return time.Time{}, fmt.Errorf("unknown date unit: %s", unit)
	}
}

func evalDateAdd(raw any, ctx *Context) (any, error) {
	return dateAddOrSubtract(raw, ctx, "$dateAdd", 1)
}

func evalDateSubtract(raw any, ctx *Context) (any, error) {
	return dateAddOrSubtract(raw, ctx, "$dateSubtract", -1)
}

// dateAddOrSubtract implements $dateAdd/$dateSubtract: {startDate, unit,
// amount}. A timezone field is not read.
func dateAddOrSubtract(raw any, ctx *Context, op string, sign int64) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("%s requires an object as an argument", op)
	}

	startV, err := requireField(d, "startDate", op)
	if err != nil {
		return nil, err
	}

	start, err := ctx.Eval(startV)
	if err != nil {
		return nil, err
	}

	t, err := asDateTime(op, start)
	if err != nil {
		return nil, err
	}

	unitV, err := requireField(d, "unit", op)
	if err != nil {
		return nil, err
	}

	unitS, err := ctx.Eval(unitV)
	if err != nil {
		return nil, err
	}

	unit, ok := unitS.(string)
	if !ok {
		return nil, fmt.Errorf("%s's 'unit' must be a string", op)
	}

	amountV, err := requireField(d, "amount", op)
	if err != nil {
		return nil, err
	}

	amountE, err := ctx.Eval(amountV)
	if err != nil {
		return nil, err
	}

	if !isNumber(amountE) {
		return nil, fmt.Errorf("%s's 'amount' must be numeric", op)
	}

	amount := int64(toFloat(amountE)) * sign

	out, err := dateAddUnit(t, unit, amount)
	if err != nil {
		return nil, err
	}

	return types.NewDateTimeFromTime(out), nil
}

// evalDateDiff implements $dateDiff: {startDate, endDate, unit}, truncating
// toward zero at the unit's resolution. Timezone and startOfWeek fields are
// not read.
func evalDateDiff(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$dateDiff requires an object as an argument")
	}

	startV, err := requireField(d, "startDate", "$dateDiff")
	if err != nil {
		return nil, err
	}

	start, err := ctx.Eval(startV)
	if err != nil {
		return nil, err
	}

	startT, err := asDateTime("$dateDiff", start)
	if err != nil {
		return nil, err
	}

	endV, err := requireField(d, "endDate", "$dateDiff")
	if err != nil {
		return nil, err
	}

	end, err := ctx.Eval(endV)
	if err != nil {
		return nil, err
	}

	endT, err := asDateTime("$dateDiff", end)
	if err != nil {
		return nil, err
	}

	unitV, err := requireField(d, "unit", "$dateDiff")
	if err != nil {
		return nil, err
	}

	unitS, err := ctx.Eval(unitV)
	if err != nil {
		return nil, err
	}

	unit, ok := unitS.(string)
	if !ok {
		return nil, fmt.Errorf("$dateDiff's 'unit' must be a string")
	}

	delta := endT.Sub(startT)

	var n int64

	switch unit {
	case "millisecond":
		n = delta.Milliseconds()
	case "second":
		n = int64(delta.Seconds())
	case "minute":
		n = int64(delta.Minutes())
	case "hour":
		n = int64(delta.Hours())
	case "day":
		n = int64(delta.Hours() / 24)
	case "week":
		n = int64(delta.Hours() / 24 / 7)
	case "month":
		n = int64((endT.Year()-startT.Year())*12 + int(endT.Month()) - int(startT.Month()))
	case "quarter":
		n = int64((endT.Year()-startT.Year())*12+int(endT.Month())-int(startT.Month())) / 3
	case "year":
		n = int64(endT.Year() - startT.Year())
	default:
		return nil, fmt.Errorf("$dateDiff's 'unit' is not recognized: %s", unit)
	}

	return n, nil
}

// evalDateFromParts implements $dateFromParts: {year, month, day, hour,
// minute, second, millisecond, timezone} (the ISO week variant is
// intentionally unsupported; spec.md §9 Open Questions notes it as a
// possible follow-up).
func evalDateFromParts(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$dateFromParts requires an object as an argument")
	}

	get := func(key string, def int) (int, error) {
		v, err := d.Get(key)
		if err != nil {
			return def, nil
		}

		ev, err := ctx.Eval(v)
		if err != nil {
			return 0, err
		}

		if !isNumber(ev) {
			return 0, fmt.Errorf("$dateFromParts's '%s' must be numeric", key)
		}

		return int(toFloat(ev)), nil
	}

	year, err := get("year", 1970)
	if err != nil {
		return nil, err
	}

	month, err := get("month", 1)
	if err != nil {
		return nil, err
	}

	day, err := get("day", 1)
	if err != nil {
		return nil, err
	}

	hour, err := get("hour", 0)
	if err != nil {
		return nil, err
	}

	minute, err := get("minute", 0)
	if err != nil {
		return nil, err
	}

	second, err := get("second", 0)
	if err != nil {
		return nil, err
	}

	ms, err := get("millisecond", 0)
	if err != nil {
		return nil, err
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, ms*1e6, time.UTC)

	return types.NewDateTimeFromTime(t), nil
}

// evalDateToParts implements $dateToParts: {date, timezone, iso8601}.
func evalDateToParts(raw any, ctx *Context) (any, error) {
	d, ok := raw.(*types.Document)
	if !ok {
		return nil, fmt.Errorf("$dateToParts requires an object as an argument")
	}

	t, err := timezoneArg(d, ctx)
	if err != nil {
		return nil, err
	}

	iso := false

	if isoV, err := d.Get("iso8601"); err == nil {
		ev, err := ctx.Eval(isoV)
		if err != nil {
			return nil, err
		}

		iso = Truthy(ev)
	}

	out := types.MakeDocument(8)

	if iso {
		y, w := t.ISOWeek()
		out.Set("isoWeekYear", int32(y))
		out.Set("isoWeek", int32(w))
		out.Set("isoDayOfWeek", int32(isoWeekday(t)))
	} else {
		out.Set("year", int32(t.Year()))
		out.Set("month", int32(t.Month()))
		out.Set("day", int32(t.Day()))
	}

	out.Set("hour", int32(t.Hour()))
	out.Set("minute", int32(t.Minute()))
	out.Set("second", int32(t.Second()))
	out.Set("millisecond", int32(t.Nanosecond()/1e6))

	return out, nil
}
