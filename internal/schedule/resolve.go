// Package schedule turns raw table rows into schedule entries and resolves
// them into concrete, identified time slots.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // the schedule zone must resolve on hosts without zoneinfo

	"github.com/Bonii97/Heimbas-Calender/internal/extract"
	"github.com/Bonii97/Heimbas-Calender/internal/identity"
	"github.com/Bonii97/Heimbas-Calender/internal/model"
)

// TimezoneName is the civil zone of the source application. It is fixed; the
// tables never carry an offset.
const TimezoneName = "Europe/Berlin"

// DefaultTitle is used when a description yields no usable first sentence.
const DefaultTitle = "Einsatz"

const (
	defaultDuration  = 60 * time.Minute
	invertedFallback = 30 * time.Minute
)

var (
	// Location is the loaded TimezoneName.
	Location = mustLoadLocation(TimezoneName)

	sentenceEndRe = regexp.MustCompile(`[.!?]`)
)

// ErrInvalidValue marks a date or time that does not exist on the calendar.
var ErrInvalidValue = errors.New("schedule: value out of range")

// ResolveError reports which field of an entry failed validation.
type ResolveError struct {
	Field string
	Value string
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("schedule: invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("schedule: load %s: %v", name, err))
	}
	return loc
}

// Resolve computes start and end instants, the title and the identifier.
//
// End precedence: an explicit end time, unless it is not after the start (a
// known data-quality problem, replaced by a 30 minute slot); else a positive
// duration of at most a day; else 60 minutes.
func Resolve(e model.Entry) (model.ResolvedEntry, error) {
	year, month, day, err := ParseDate(e.DateText)
	if err != nil {
		return model.ResolvedEntry{}, &ResolveError{Field: "date", Value: e.DateText, Err: err}
	}
	sh, sm, err := ParseTime(e.StartText)
	if err != nil {
		return model.ResolvedEntry{}, &ResolveError{Field: "start time", Value: e.StartText, Err: err}
	}
	start := time.Date(year, month, day, sh, sm, 0, 0, Location)

	var end time.Time
	switch {
	case e.EndText != "":
		eh, em, err := ParseTime(e.EndText)
		if err != nil {
			return model.ResolvedEntry{}, &ResolveError{Field: "end time", Value: e.EndText, Err: err}
		}
		end = time.Date(year, month, day, eh, em, 0, 0, Location)
		if !end.After(start) {
			end = start.Add(invertedFallback)
		}
	case e.HasDuration && e.DurationMinutes > 0 && e.DurationMinutes <= extract.MaxDurationMinutes:
		end = start.Add(time.Duration(e.DurationMinutes) * time.Minute)
	default:
		end = start.Add(defaultDuration)
	}

	title := Title(e.Description)
	return model.ResolvedEntry{
		Entry:      e,
		Start:      start,
		End:        end,
		Title:      title,
		Identifier: identity.Compute(start, end, e.Address, title),
	}, nil
}

// ParseDate splits D.M.YY / D.M.YYYY and rejects combinations time.Date would
// silently roll over, such as 31.02. or 32.01. Only a two-digit year is
// widened; "0025" is the year 25.
func ParseDate(text string) (int, time.Month, int, error) {
	parts := strings.Split(strings.TrimSpace(text), ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: expected D.M.YYYY", ErrInvalidValue)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		nums[i] = n
	}
	day, month, year := nums[0], time.Month(nums[1]), nums[2]
	switch len(parts[2]) {
	case 2:
		year = extract.ExpandYear(year)
	case 4:
	default:
		return 0, 0, 0, fmt.Errorf("%w: year %q must have two or four digits", ErrInvalidValue, parts[2])
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return 0, 0, 0, fmt.Errorf("%w: no such day", ErrInvalidValue)
	}
	return year, month, day, nil
}

// ParseTime accepts H:MM and H.MM.
func ParseTime(text string) (int, int, error) {
	text = strings.TrimSpace(text)
	sep := strings.IndexAny(text, ":.")
	if sep < 0 {
		return 0, 0, fmt.Errorf("%w: expected H:MM", ErrInvalidValue)
	}
	hour, err := strconv.Atoi(text[:sep])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	minute, err := strconv.Atoi(text[sep+1:])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %02d:%02d", ErrInvalidValue, hour, minute)
	}
	return hour, minute, nil
}

// Title takes the first description line that says something beyond the
// schedule itself and cuts it at the first sentence terminator. Address lines
// are skipped as well, they end up in the location.
func Title(description string) string {
	for _, line := range descriptionLines(description) {
		if addressLabelRe.MatchString(line) || extract.StripSchedule(line) == "" {
			continue
		}
		line = strings.Join(strings.Fields(extract.WithoutDatesAndTimes(line)), " ")
		line = strings.Trim(line, " -–:,;")
		if loc := sentenceEndRe.FindStringIndex(line); loc != nil {
			line = line[:loc[0]]
		}
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
		break
	}
	return DefaultTitle
}
