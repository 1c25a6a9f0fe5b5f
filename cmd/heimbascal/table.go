package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/Bonii97/Heimbas-Calender/internal/model"
	"github.com/Bonii97/Heimbas-Calender/internal/schedule"
)

var entryHeaders = table.Row{"Datum", "Start", "Ende", "Titel", "Adresse", "ID"}

func renderEntries(entries []model.ResolvedEntry, colorize bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if colorize {
		tw.Style().Color.Header = text.Colors{text.Bold, text.FgHiBlue}
	}
	tw.AppendHeader(entryHeaders)

	for _, e := range entries {
		start := e.Start.In(schedule.Location)
		tw.AppendRow(table.Row{
			start.Format("02.01.2006"),
			start.Format("15:04"),
			e.End.In(schedule.Location).Format("15:04"),
			e.Title,
			e.Address,
			shortID(e.Identifier),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 40},
		{Number: 5, WidthMax: 40},
	})
	return tw.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
