// Package table locates the schedule table in an HTML page and flattens it
// into rows of cell text.
package table

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrNoTable means the document has no <table> at all, typically a login
	// or error page.
	ErrNoTable = errors.New("table: no table in document")
	// ErrNoScheduleTable means tables exist but none looks like a schedule.
	ErrNoScheduleTable = errors.New("table: no schedule table recognized")
)

// Keywords mark a table as the schedule table when any of them occurs in its
// cell text (case-insensitive).
var Keywords = []string{"datum", "einsatz", "uhrzeit", "beschreibung", "adresse", "von", "bis"}

// Row is the ordered cell text of one <tr>.
type Row []string

// Find parses doc and returns the rows of the first schedule-like table.
func Find(doc string) ([]Row, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("table: parse html: %w", err)
	}

	tables := findAll(root, atom.Table)
	if len(tables) == 0 {
		return nil, ErrNoTable
	}
	for _, t := range tables {
		rows := rowsOf(t)
		if looksLikeSchedule(rows) {
			return rows, nil
		}
	}
	return nil, fmt.Errorf("%w (%d tables inspected)", ErrNoScheduleTable, len(tables))
}

// Contains reports whether doc holds a recognizable schedule table.
func Contains(doc string) bool {
	_, err := Find(doc)
	return err == nil
}

func looksLikeSchedule(rows []Row) bool {
	var b strings.Builder
	for _, r := range rows {
		for _, c := range r {
			b.WriteString(strings.ToLower(c))
			b.WriteByte(' ')
		}
	}
	text := b.String()
	for _, k := range Keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// rowsOf collects the rows belonging to t. Rows of nested tables are left to
// those tables.
func rowsOf(t *html.Node) []Row {
	var rows []Row
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				continue
			case atom.Tr:
				rows = append(rows, cellsOf(c))
			default:
				walk(c)
			}
		}
	}
	walk(t)
	return rows
}

func cellsOf(tr *html.Node) Row {
	var cells Row
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, cellText(c))
		}
	}
	return cells
}

// cellText joins the text nodes under n with newlines, trimming each one and
// dropping empty ones, so <br> separated lines stay separate lines.
func cellText(n *html.Node) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, strings.Join(strings.Fields(s), " "))
			}
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, "\n")
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}
