package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bonii97/Heimbas-Calender/internal/model"
	"github.com/Bonii97/Heimbas-Calender/internal/schedule"
)

func entry(t *testing.T, date, start, end, desc, addr string) model.ResolvedEntry {
	t.Helper()
	r, err := schedule.Resolve(model.Entry{DateText: date, StartText: start, EndText: end, Description: desc, Address: addr})
	require.NoError(t, err)
	return r
}

// recorder collects posted records in order.
type recorder struct {
	mu      sync.Mutex
	records []Record
	runIDs  []string
}

func (r *recorder) add(rec Record, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	r.runIDs = append(r.runIDs, runID)
}

func (r *recorder) snapshot() ([]Record, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...), append([]string(nil), r.runIDs...)
}

func TestNewRecord(t *testing.T) {
	e := entry(t, "5.3.2025", "8:00", "9:15", "Hausbesuch Müller", "Gartenstr. 5")

	rec := NewRecord(e, "anna")
	assert.Equal(t, Record{
		Type:      "plan",
		User:      "anna",
		EinsatzID: e.Identifier,
		Datum:     "05.03.2025",
		StartPlan: "08:00",
		EndePlan:  "09:15",
		Titel:     "Hausbesuch Müller",
		Adresse:   "Gartenstr. 5",
	}, rec)
}

func TestNewRecordWithoutEndUsesDefault(t *testing.T) {
	e := entry(t, "5.3.2025", "8:00", "", "Einkauf", "")
	e.End = time.Time{}

	assert.Equal(t, "09:00", NewRecord(e, "anna").EndePlan)
}

func TestForwardPostsEachRecord(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var got Record
		require.NoError(t, json.Unmarshal(body, &got))
		rec.add(got, r.Header.Get("X-Run-ID"))

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	entries := []model.ResolvedEntry{
		entry(t, "5.3.2025", "8:00", "9:00", "Einkauf", ""),
		entry(t, "6.3.2025", "10:00", "11:00", "Arzt", ""),
	}

	f := NewForwarder(server.URL, "anna", "run-1", time.Second)
	rep := f.Forward(context.Background(), entries)

	assert.Equal(t, Report{Sent: 2}, rep)
	records, runIDs := rec.snapshot()
	require.Len(t, records, 2)
	assert.Equal(t, "Einkauf", records[0].Titel)
	assert.Equal(t, "Arzt", records[1].Titel)
	assert.Equal(t, []string{"run-1", "run-1"}, runIDs)
}

func TestForwardContinuesAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "sheet locked", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	entries := []model.ResolvedEntry{
		entry(t, "5.3.2025", "8:00", "9:00", "Einkauf", ""),
		entry(t, "6.3.2025", "10:00", "11:00", "Arzt", ""),
		entry(t, "7.3.2025", "12:00", "13:00", "Spaziergang", ""),
	}

	rep := NewForwarder(server.URL, "anna", "", time.Second).Forward(context.Background(), entries)
	assert.Equal(t, Report{Sent: 2, Failed: 1}, rep)
	assert.Equal(t, int32(3), calls.Load())
}

func TestForwardTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	entries := []model.ResolvedEntry{entry(t, "5.3.2025", "8:00", "9:00", "Einkauf", "")}
	rep := NewForwarder(url, "anna", "", time.Second).Forward(context.Background(), entries)
	assert.Equal(t, Report{Failed: 1}, rep)
}

func TestForwardDisabledWithoutURL(t *testing.T) {
	f := NewForwarder("", "anna", "", 0)
	assert.False(t, f.Enabled())

	rep := f.Forward(context.Background(), []model.ResolvedEntry{entry(t, "5.3.2025", "8:00", "9:00", "Einkauf", "")})
	assert.Equal(t, Report{Skipped: true}, rep)
}
