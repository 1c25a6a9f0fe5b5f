package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "github.com/Bonii97/Heimbas-Calender/internal/log"
	"github.com/Bonii97/Heimbas-Calender/internal/model"
	"github.com/Bonii97/Heimbas-Calender/internal/schedule"
)

const (
	ProductID    = "-//Heimbas Einsatz-Vorschau zu ICS//DE"
	CalendarName = "Dienstplan"

	// UIDDomain is appended to an entry identifier to form the VEVENT UID.
	UIDDomain = "@heimbas-ics"

	localTimestampFormat = "20060102T150405"
)

// UID returns the calendar UID for an entry identifier.
func UID(identifier string) string {
	return identifier + UIDDomain
}

// Build creates one VEVENT per entry. Entries sharing an identifier collapse
// into a single event carrying the last entry's content, in the position of
// the first occurrence. now becomes DTSTAMP.
func Build(entries []model.ResolvedEntry, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetVersion("2.0")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(CalendarName)
	cal.SetXWRTimezone(schedule.TimezoneName)

	for _, e := range dedupe(entries) {
		ev := cal.AddEvent(UID(e.Identifier))
		ev.SetDtStampTime(now.UTC())
		ev.SetProperty(ical.ComponentPropertyDtStart, e.Start.In(schedule.Location).Format(localTimestampFormat), tzid())
		ev.SetProperty(ical.ComponentPropertyDtEnd, e.End.In(schedule.Location).Format(localTimestampFormat), tzid())
		ev.SetSummary(e.Title)
		if e.Address != "" {
			ev.SetLocation(e.Address)
		}
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
	}
	return cal
}

// Render serializes the calendar for entries in full. Nothing is written
// anywhere; callers persist the bytes in one step.
func Render(entries []model.ResolvedEntry, now time.Time) []byte {
	return []byte(Build(entries, now).Serialize())
}

func tzid() ical.PropertyParameter {
	return &ical.KeyValues{
		Key:   string(ical.ParameterTzid),
		Value: []string{schedule.TimezoneName},
	}
}

func dedupe(entries []model.ResolvedEntry) []model.ResolvedEntry {
	out := make([]model.ResolvedEntry, 0, len(entries))
	pos := make(map[string]int, len(entries))
	for _, e := range entries {
		if i, ok := pos[e.Identifier]; ok {
			appLog.Debug("ics: duplicate identifier, keeping last", "uid", UID(e.Identifier), "title", e.Title)
			out[i] = e
			continue
		}
		pos[e.Identifier] = len(out)
		out = append(out, e)
	}
	return out
}
