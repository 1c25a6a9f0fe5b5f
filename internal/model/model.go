package model

import "time"

// Entry is one schedule row after text extraction and before any time
// arithmetic. It only exists when both DateText and StartText were found.
type Entry struct {
	DateText  string // D.M.YY or D.M.YYYY as found in the row
	StartText string // H:MM or H.MM
	EndText   string // optional, same format as StartText

	// DurationMinutes is only meaningful when HasDuration is set.
	DurationMinutes int
	HasDuration     bool

	Description string
	Address     string // empty when none could be inferred
}

// ResolvedEntry is an Entry with concrete instants in the schedule timezone,
// a derived title and its content-stable identifier. Resolved entries are
// never modified after construction; the calendar emitter and the webhook
// forwarder both read the same slice.
type ResolvedEntry struct {
	Entry

	Start time.Time
	End   time.Time

	Title      string
	Identifier string
}
