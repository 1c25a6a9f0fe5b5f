package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bonii97/Heimbas-Calender/internal/capture"
	"github.com/Bonii97/Heimbas-Calender/internal/config"
	"github.com/Bonii97/Heimbas-Calender/internal/table"
	"github.com/Bonii97/Heimbas-Calender/internal/webhook"
)

const vorschauPage = `<html><body>
<table><tr><td>Menü</td></tr></table>
<table>
  <tr><th>Datum</th><th>Uhrzeit</th><th>Beschreibung</th></tr>
  <tr><td>12.03.2025</td><td>10:00 - 11:30</td><td>Hausbesuch Müller<br>Adresse: Gartenstr. 5</td></tr>
  <tr><td>32.01.2025</td><td>10:00</td><td>Kaputt</td></tr>
  <tr><td>13.08.25</td><td>8:00</td><td>Einkauf Rewe</td></tr>
  <tr><td colspan="3">Summe</td></tr>
</table>
</body></html>`

const headerOnlyPage = `<table><tr><th>Datum</th><th>Uhrzeit</th><th>Beschreibung</th></tr></table>`

var fixedNow = time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC)

type memorySink struct {
	mu      sync.Mutex
	results []Result
}

func (s *memorySink) Publish(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
}

func TestExtract(t *testing.T) {
	entries, stats, err := Extract(vorschauPage)
	require.NoError(t, err)

	assert.Equal(t, Stats{Rows: 5, Dropped: 2, Skipped: 1, Entries: 2}, stats)
	require.Len(t, entries, 2)

	assert.Equal(t, "Hausbesuch Müller", entries[0].Title)
	assert.Equal(t, "Gartenstr. 5", entries[0].Address)
	assert.Equal(t, 90*time.Minute, entries[0].End.Sub(entries[0].Start))

	assert.Equal(t, "Einkauf Rewe", entries[1].Title)
	assert.Equal(t, 2025, entries[1].Start.Year())
	assert.Equal(t, time.Hour, entries[1].End.Sub(entries[1].Start))
}

func TestExtractDistinguishesFatalErrors(t *testing.T) {
	_, _, err := Extract(`<p>Bitte anmelden</p>`)
	assert.ErrorIs(t, err, table.ErrNoTable)

	_, stats, err := Extract(headerOnlyPage)
	assert.ErrorIs(t, err, ErrNoEntries)
	assert.False(t, errors.Is(err, table.ErrNoTable))
	assert.Equal(t, 1, stats.Dropped)
}

func TestExtractIsDeterministic(t *testing.T) {
	first, _, err := Extract(vorschauPage)
	require.NoError(t, err)
	second, _, err := Extract(vorschauPage)
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].Identifier, second[i].Identifier)
	}
	assert.NotEqual(t, first[0].Identifier, first[1].Identifier)
}

func newTestRunner(t *testing.T, pages map[string]string, hookURL string) (*Runner, *memorySink) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = "https://portal.example"
	cfg.Webhook.URL = hookURL
	cfg.Webhook.Timeout = time.Second

	sink := &memorySink{}
	r := &Runner{
		Config: cfg,
		Fetch: func(_ context.Context, opts capture.Options) (string, error) {
			doc, ok := pages[opts.Username]
			if !ok {
				return "", capture.ErrNoScheduleTable
			}
			return doc, nil
		},
		Now:  func() time.Time { return fixedNow },
		Sink: sink,
	}
	return r, sink
}

func TestRunUserWritesCalendarAndForwards(t *testing.T) {
	var mu sync.Mutex
	var received []webhook.Record
	var runIDs []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var rec webhook.Record
		require.NoError(t, json.NewDecoder(req.Body).Decode(&rec))
		mu.Lock()
		received = append(received, rec)
		runIDs = append(runIDs, req.Header.Get("X-Run-ID"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	r, sink := newTestRunner(t, map[string]string{"anna": vorschauPage}, hook.URL)
	out := filepath.Join(t.TempDir(), "anna.ics")
	u := config.UserConfig{Label: "anna", Username: "anna", Password: "pw", Output: out}

	res, err := r.RunUser(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, webhook.Report{Sent: 2}, res.Forwarded)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, fixedNow, res.Finished)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, res.Calendar, written)
	assert.Contains(t, string(written), "SUMMARY:Hausbesuch Müller")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, "anna", received[0].User)
	assert.Equal(t, "12.03.2025", received[0].Datum)
	assert.Equal(t, res.Entries[0].Identifier, received[0].EinsatzID)
	assert.Equal(t, []string{res.RunID, res.RunID}, runIDs)

	require.Len(t, sink.results, 1)
	assert.Equal(t, "anna", sink.results[0].User)
}

func TestRunUserDoesNotWriteOnFatalError(t *testing.T) {
	r, sink := newTestRunner(t, map[string]string{"anna": headerOnlyPage}, "")
	out := filepath.Join(t.TempDir(), "anna.ics")

	_, err := r.RunUser(context.Background(), config.UserConfig{Label: "anna", Username: "anna", Password: "pw", Output: out})
	assert.ErrorIs(t, err, ErrNoEntries)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, sink.results)
}

func TestRunAllIsolatesUserFailures(t *testing.T) {
	t.Setenv(config.EnvUser, "")
	t.Setenv(config.EnvPass, "")

	dir := t.TempDir()
	r, sink := newTestRunner(t, map[string]string{"ben": vorschauPage}, "")
	r.Config.Users = []config.UserConfig{
		{Label: "anna", Output: filepath.Join(dir, "anna.ics")},
		{Label: "carla", Username: "carla", Password: "pw", Output: filepath.Join(dir, "carla.ics")},
		{Label: "ben", Username: "ben", Password: "pw", Output: filepath.Join(dir, "ben.ics")},
	}

	err := r.RunAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.ErrorIs(t, err, capture.ErrNoScheduleTable)
	assert.Contains(t, err.Error(), "user anna")
	assert.Contains(t, err.Error(), "user carla")

	_, statErr := os.Stat(filepath.Join(dir, "ben.ics"))
	assert.NoError(t, statErr)
	require.Len(t, sink.results, 1)
	assert.Equal(t, "ben", sink.results[0].User)
}

func TestRunAllStopsWhenCancelled(t *testing.T) {
	r, sink := newTestRunner(t, map[string]string{"ben": vorschauPage}, "")
	r.Config.Users = []config.UserConfig{{Label: "ben", Username: "ben", Password: "pw", Output: filepath.Join(t.TempDir(), "ben.ics")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, r.RunAll(ctx), context.Canceled)
	assert.Empty(t, sink.results)
}

func TestDumpPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "lastpage.html"), DumpPath(config.UserConfig{Label: config.DefaultUserLabel, Output: "out/dienstplan.ics"}))
	assert.Equal(t, "lastpage-anna.html", DumpPath(config.UserConfig{Label: "anna", Output: "anna.ics"}))
}
