// Package extract recognizes German date, time and duration fragments inside
// loosely formatted table cell text.
//
// Every extractor is an ordered list of patterns; the first one that matches
// wins. The table formatting of the source application is not consistent, so
// none of these are grammars.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	timePattern = `\d{1,2}[:.]\d{2}`

	// optUhr absorbs "Uhr", spaced or glued: "08:00 Uhr", "08:00Uhr".
	optUhr = `(?i:\s*uhr\b)?`

	// timeEnd closes a time: an optional "Uhr", then a non-word character or
	// the end of the text. The closing character is captured so replacements
	// can keep it. "1.25h" stays a duration.
	timeEnd = optUhr + `(\W|$)`
)

// MaxDurationMinutes bounds a parsed duration. Longer values are treated as
// absent.
const MaxDurationMinutes = 24 * 60

var (
	// Four-digit years first: leftmost-first matching would otherwise cut
	// "12.03.2025" down to "12.03.20".
	dateRe = regexp.MustCompile(`\d{1,2}\.\d{1,2}\.(?:\d{4}|\d{2})`)

	dashRangeRe = regexp.MustCompile(`\b(` + timePattern + `)` + optUhr + `\s*[-–]\s*(` + timePattern + `)` + timeEnd)
	vonBisRe    = regexp.MustCompile(`(?i)von\s*(` + timePattern + `)\s*(?:uhr\s*)?bis\s*(` + timePattern + `)` + timeEnd)
	colonTimeRe = regexp.MustCompile(`\b(\d{1,2}:\d{2})` + timeEnd)
	dotTimeRe   = regexp.MustCompile(`\b(\d{1,2}\.\d{2})` + timeEnd)

	minutesRe = regexp.MustCompile(`(?i)(\d+)\s*(?:minuten|minute|min)\b`)
	hoursRe   = regexp.MustCompile(`(?i)(\d+)(?:[,.](\d{1,2}))?\s*(?:stunden|stunde|std|h)?\b`)

	// Row-level hour units: a spelled unit, or a lowercase "h" glued to the
	// number ("1,5h"). "12 H" in a street address is not a duration.
	unitHoursRe  = regexp.MustCompile(`(?i)(\d+)(?:[,.](\d{1,2}))?\s*(?:stunden|stunde|std)\b`)
	gluedHoursRe = regexp.MustCompile(`(\d+)(?:[,.](\d{1,2}))?h\b`)

	scheduleNoiseRe = regexp.MustCompile(`(?i)\b(?:von|bis|uhr|ca)\b|[-–|:.,;/()]`)
)

// Clean applies NFC normalization and trims surrounding whitespace. Cell text
// coming out of HTML may carry decomposed umlauts, which would otherwise make
// identical rows hash differently.
func Clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Date returns the first D.M.YY or D.M.YYYY substring of text.
func Date(text string) (string, bool) {
	m := dateRe.FindString(text)
	return m, m != ""
}

// ExpandYear widens a two-digit year: 00-69 -> 20xx, 70-99 -> 19xx.
// Four-digit years pass through.
func ExpandYear(year int) int {
	switch {
	case year >= 100:
		return year
	case year < 70:
		return 2000 + year
	default:
		return 1900 + year
	}
}

// TimeRange extracts a start and optional end time from text. Empty strings
// mean absent. Date-shaped substrings are removed first so that "13.08" in
// "13.08.25" is never read as a time.
func TimeRange(text string) (start, end string) {
	text = dateRe.ReplaceAllString(text, " ")

	if m := dashRangeRe.FindStringSubmatch(text); m != nil {
		return m[1], m[2]
	}
	if m := vonBisRe.FindStringSubmatch(text); m != nil {
		return m[1], m[2]
	}
	if m := colonTimeRe.FindStringSubmatch(text); m != nil {
		return m[1], ""
	}
	if m := dotTimeRe.FindStringSubmatch(text); m != nil {
		return m[1], ""
	}
	return "", ""
}

// DurationMinutes parses a duration phrase. Minute phrases win over hour
// phrases; a bare number without unit counts as hours.
func DurationMinutes(text string) (int, bool) {
	if m := minutesRe.FindStringSubmatch(text); m != nil {
		return boundedMinutes(m[1])
	}
	if m := hoursRe.FindStringSubmatch(text); m != nil {
		return hoursToMinutes(m[1], m[2])
	}
	return 0, false
}

// UnitDurationMinutes is DurationMinutes without the bare-number rule: an
// explicit minute or hour unit must be present.
func UnitDurationMinutes(text string) (int, bool) {
	if m := minutesRe.FindStringSubmatch(text); m != nil {
		return boundedMinutes(m[1])
	}
	if m := unitHoursRe.FindStringSubmatch(text); m != nil {
		return hoursToMinutes(m[1], m[2])
	}
	if m := gluedHoursRe.FindStringSubmatch(text); m != nil {
		return hoursToMinutes(m[1], m[2])
	}
	return 0, false
}

func boundedMinutes(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil || n > MaxDurationMinutes {
		return 0, false
	}
	return n, true
}

// hoursToMinutes converts "2" + "5" (2,5 h) or "2" + "25" (2,25 h) to minutes.
// One fractional digit is tenths, two are hundredths of an hour.
func hoursToMinutes(whole, frac string) (int, bool) {
	hours, err := strconv.Atoi(whole)
	if err != nil || hours > MaxDurationMinutes/60 {
		return 0, false
	}
	minutes := hours * 60
	if frac != "" {
		f, err := strconv.Atoi(frac)
		if err != nil {
			return 0, false
		}
		base := 10.0
		if len(frac) == 2 {
			base = 100.0
		}
		minutes += int(math.Round(float64(f) / base * 60))
	}
	if minutes > MaxDurationMinutes {
		return 0, false
	}
	return minutes, true
}

// StripSchedule removes dates, times, ranges and their connecting words. A
// line that is empty afterwards carries no descriptive content.
func StripSchedule(text string) string {
	text = WithoutDatesAndTimes(text)
	text = minutesRe.ReplaceAllString(text, " ")
	text = unitHoursRe.ReplaceAllString(text, " ")
	text = gluedHoursRe.ReplaceAllString(text, " ")
	text = scheduleNoiseRe.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// WithoutDatesAndTimes blanks out every date, time range and single time.
func WithoutDatesAndTimes(text string) string {
	text = dateRe.ReplaceAllString(text, " ")
	text = dashRangeRe.ReplaceAllString(text, " ${3}")
	text = vonBisRe.ReplaceAllString(text, " ${3}")
	text = colonTimeRe.ReplaceAllString(text, " ${2}")
	return dotTimeRe.ReplaceAllString(text, " ${2}")
}
