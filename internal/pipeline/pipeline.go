// Package pipeline turns a fetched Einsatz-Vorschau page into calendar output
// and webhook records, one user at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Bonii97/Heimbas-Calender/internal/capture"
	"github.com/Bonii97/Heimbas-Calender/internal/config"
	"github.com/Bonii97/Heimbas-Calender/internal/ics"
	appLog "github.com/Bonii97/Heimbas-Calender/internal/log"
	"github.com/Bonii97/Heimbas-Calender/internal/model"
	"github.com/Bonii97/Heimbas-Calender/internal/schedule"
	"github.com/Bonii97/Heimbas-Calender/internal/table"
	"github.com/Bonii97/Heimbas-Calender/internal/webhook"
)

// ErrNoEntries means a schedule table was found but none of its rows
// produced a usable entry.
var ErrNoEntries = errors.New("pipeline: schedule table has no valid entries")

// Stats counts what happened to the rows of one table.
type Stats struct {
	Rows int `json:"rows"`
	// Dropped rows had no date or start time (headers, spacers, totals).
	Dropped int `json:"dropped"`
	// Skipped rows normalized but failed to resolve.
	Skipped int `json:"skipped"`
	Entries int `json:"entries"`
}

// Extract locates the schedule table in doc and resolves its rows.
func Extract(doc string) ([]model.ResolvedEntry, Stats, error) {
	rows, err := table.Find(doc)
	if err != nil {
		return nil, Stats{}, err
	}
	entries, stats := ResolveRows(rows)
	if len(entries) == 0 {
		return nil, stats, fmt.Errorf("%w (%d rows inspected)", ErrNoEntries, stats.Rows)
	}
	return entries, stats, nil
}

// ResolveRows normalizes and resolves rows in document order. Rows without a
// date or start time are dropped silently; rows with invalid values are
// logged and skipped.
func ResolveRows(rows []table.Row) ([]model.ResolvedEntry, Stats) {
	stats := Stats{Rows: len(rows)}
	entries := make([]model.ResolvedEntry, 0, len(rows))
	for i, row := range rows {
		e, ok := schedule.Normalize(row)
		if !ok {
			stats.Dropped++
			continue
		}
		r, err := schedule.Resolve(e)
		if err != nil {
			stats.Skipped++
			appLog.Warn("pipeline: skipping entry", "row", i, "date", e.DateText, "start", e.StartText, "err", err)
			continue
		}
		entries = append(entries, r)
	}
	stats.Entries = len(entries)
	return entries, stats
}

// Result is the outcome of one user's run.
type Result struct {
	User      string
	RunID     string
	Entries   []model.ResolvedEntry
	Stats     Stats
	Calendar  []byte
	Output    string
	Forwarded webhook.Report
	Finished  time.Time
}

// Fetcher returns the schedule page for one portal session.
type Fetcher func(ctx context.Context, opts capture.Options) (string, error)

// Sink receives every successful Result, e.g. the web server's store.
type Sink interface {
	Publish(res Result)
}

// Runner executes runs against a configuration. The zero values of Fetch and
// Now select the headless browser and the wall clock.
type Runner struct {
	Config *config.Config
	Fetch  Fetcher
	Now    func() time.Time
	Sink   Sink
}

// NewRunner creates a Runner using the browser fetcher and wall clock.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{
		Config: cfg,
		Fetch:  capture.FetchScheduleHTML,
		Now:    time.Now,
	}
}

// RunAll runs every configured user in order. A failing user is logged and
// does not stop the others; the returned error joins all user failures.
func (r *Runner) RunAll(ctx context.Context) error {
	var errs []error
	for _, u := range r.Config.Users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := r.RunUser(ctx, u); err != nil {
			appLog.Error("pipeline: user run failed", err, "user", u.Label)
			errs = append(errs, fmt.Errorf("user %s: %w", u.Label, err))
		}
	}
	return errors.Join(errs...)
}

// RunUser fetches the schedule page for u and converts it.
func (r *Runner) RunUser(ctx context.Context, u config.UserConfig) (Result, error) {
	username, password, err := u.Credentials()
	if err != nil {
		return Result{}, err
	}

	runID := uuid.NewString()
	appLog.Info("pipeline: fetching schedule", "user", u.Label, "run_id", runID)

	fetch := r.Fetch
	if fetch == nil {
		fetch = capture.FetchScheduleHTML
	}
	doc, err := fetch(ctx, capture.Options{
		BaseURL:  r.Config.BaseURL,
		Username: username,
		Password: password,
		DumpPath: DumpPath(u),
		Timeout:  r.Config.CaptureTimeout,
	})
	if err != nil {
		return Result{}, err
	}
	return r.convert(ctx, doc, u, runID)
}

// Convert processes an already fetched page for u.
func (r *Runner) Convert(ctx context.Context, doc string, u config.UserConfig) (Result, error) {
	return r.convert(ctx, doc, u, uuid.NewString())
}

func (r *Runner) convert(ctx context.Context, doc string, u config.UserConfig, runID string) (Result, error) {
	entries, stats, err := Extract(doc)
	if err != nil {
		return Result{}, err
	}

	now := r.now()
	data := ics.Render(entries, now)
	if err := ics.WriteFile(u.Output, data); err != nil {
		return Result{}, err
	}
	appLog.Info("pipeline: calendar written",
		"user", u.Label,
		"run_id", runID,
		"path", u.Output,
		"entries", stats.Entries,
		"dropped", stats.Dropped,
		"skipped", stats.Skipped,
	)

	fwd := webhook.NewForwarder(r.Config.Webhook.URL, u.Label, runID, r.Config.Webhook.Timeout)
	report := fwd.Forward(ctx, entries)

	res := Result{
		User:      u.Label,
		RunID:     runID,
		Entries:   entries,
		Stats:     stats,
		Calendar:  data,
		Output:    u.Output,
		Forwarded: report,
		Finished:  now,
	}
	if r.Sink != nil {
		r.Sink.Publish(res)
	}
	return res, nil
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// DumpPath is where an unrecognized page is saved for u: next to the
// calendar output, one file per user.
func DumpPath(u config.UserConfig) string {
	name := capture.DefaultDumpName
	if u.Label != config.DefaultUserLabel {
		name = "lastpage-" + u.Label + ".html"
	}
	return filepath.Join(filepath.Dir(u.Output), name)
}
