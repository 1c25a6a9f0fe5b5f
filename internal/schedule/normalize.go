package schedule

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Bonii97/Heimbas-Calender/internal/extract"
	"github.com/Bonii97/Heimbas-Calender/internal/model"
)

// CellSeparator joins the cells of a row into one searchable text.
const CellSeparator = " | "

var (
	addressLabelRe = regexp.MustCompile(`(?i)adresse\s*[:\-]\s*(.+)$`)
	postalCodeRe   = regexp.MustCompile(`\b\d{5}\b`)
	germanDecimal  = regexp.MustCompile(`^\d{1,2},\d{1,2}$`)
)

// Normalize turns one table row into a schedule entry. Rows without a date or
// a start time are header, spacer or summary rows; they yield ok == false.
func Normalize(row []string) (model.Entry, bool) {
	if len(row) < 2 {
		return model.Entry{}, false
	}

	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = extract.Clean(c)
	}
	combined := strings.Join(cells, CellSeparator)

	dateText, ok := extract.Date(combined)
	if !ok {
		return model.Entry{}, false
	}
	start, end := extract.TimeRange(combined)
	if start == "" {
		return model.Entry{}, false
	}

	description := longestCell(cells)
	entry := model.Entry{
		DateText:    dateText,
		StartText:   start,
		EndText:     end,
		Description: description,
		Address:     inferAddress(description, cells),
	}
	entry.DurationMinutes, entry.HasDuration = inferDuration(combined, cells)
	return entry, true
}

// longestCell picks the cell with the most characters; the first one wins ties.
func longestCell(cells []string) string {
	best, bestLen := "", -1
	for _, c := range cells {
		if n := utf8.RuneCountInString(c); n > bestLen {
			best, bestLen = c, n
		}
	}
	return best
}

// descriptionLines splits a description on line breaks and on the cell
// separator some tables embed inside a single cell.
func descriptionLines(description string) []string {
	var out []string
	for _, line := range strings.Split(description, "\n") {
		for _, part := range strings.Split(line, "|") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func inferAddress(description string, cells []string) string {
	lines := descriptionLines(description)

	for _, line := range lines {
		if m := addressLabelRe.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	for _, line := range lines {
		if postalCodeRe.MatchString(line) {
			return line
		}
	}
	for _, c := range cells {
		if c == description {
			continue
		}
		if postalCodeRe.MatchString(c) {
			return strings.TrimSpace(c)
		}
	}
	if len(lines) > 0 {
		last := lines[len(lines)-1]
		if utf8.RuneCountInString(last) > 10 {
			return last
		}
	}
	return ""
}

// inferDuration looks for a unit-qualified phrase in the whole row first. A
// bare number is only trusted when a cell holds nothing but a German decimal
// such as "2,5", since plain integers in a row are usually row numbers.
func inferDuration(combined string, cells []string) (int, bool) {
	if m, ok := extract.UnitDurationMinutes(extract.WithoutDatesAndTimes(combined)); ok {
		return m, true
	}
	for _, c := range cells {
		if germanDecimal.MatchString(c) {
			return extract.DurationMinutes(c)
		}
	}
	return 0, false
}
