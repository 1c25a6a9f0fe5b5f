// Package webhook forwards resolved schedule entries to an external record
// store, one HTTP POST per entry.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appLog "github.com/Bonii97/Heimbas-Calender/internal/log"
	"github.com/Bonii97/Heimbas-Calender/internal/model"
	"github.com/Bonii97/Heimbas-Calender/internal/schedule"
)

// DefaultTimeout bounds each POST.
const DefaultTimeout = 15 * time.Second

// RecordType is the fixed "type" of every forwarded record.
const RecordType = "plan"

// Record is the wire payload expected by the receiver.
type Record struct {
	Type      string `json:"type"`
	User      string `json:"user"`
	EinsatzID string `json:"einsatzId"`
	Datum     string `json:"datum"`
	StartPlan string `json:"start_plan"`
	EndePlan  string `json:"ende_plan"`
	Titel     string `json:"titel"`
	Adresse   string `json:"adresse"`
}

// Report summarizes one Forward call.
type Report struct {
	Sent   int
	Failed int
	// Skipped is true when no destination was configured.
	Skipped bool
}

// Forwarder posts records to URL. The zero URL disables forwarding.
type Forwarder struct {
	url        string
	user       string
	runID      string
	httpClient *http.Client
}

// NewForwarder creates a forwarder for the given user label. runID is sent as
// X-Run-ID so the receiver can group the records of one run.
func NewForwarder(url, user, runID string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Forwarder{
		url:   url,
		user:  user,
		runID: runID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether a destination is configured.
func (f *Forwarder) Enabled() bool {
	return f != nil && f.url != ""
}

// NewRecord maps an entry onto the wire format.
func NewRecord(e model.ResolvedEntry, user string) Record {
	start := e.Start.In(schedule.Location)
	end := e.End
	if end.IsZero() {
		end = e.Start.Add(time.Hour)
	}
	return Record{
		Type:      RecordType,
		User:      user,
		EinsatzID: e.Identifier,
		Datum:     start.Format("02.01.2006"),
		StartPlan: start.Format("15:04"),
		EndePlan:  end.In(schedule.Location).Format("15:04"),
		Titel:     e.Title,
		Adresse:   e.Address,
	}
}

// Forward posts every entry in order. A failed record is logged and counted;
// it never stops the remaining ones.
func (f *Forwarder) Forward(ctx context.Context, entries []model.ResolvedEntry) Report {
	if !f.Enabled() {
		return Report{Skipped: true}
	}

	var rep Report
	for _, e := range entries {
		rec := NewRecord(e, f.user)
		if err := f.post(ctx, rec); err != nil {
			rep.Failed++
			appLog.Error("webhook: record not forwarded", err,
				"einsatz_id", rec.EinsatzID,
				"datum", rec.Datum,
				"start", rec.StartPlan,
				"user", f.user,
			)
			continue
		}
		rep.Sent++
	}

	appLog.Info("webhook: forwarding finished", "user", f.user, "sent", rep.Sent, "failed", rep.Failed)
	return rep
}

func (f *Forwarder) post(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("webhook: encode record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.runID != "" {
		req.Header.Set("X-Run-ID", f.runID)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	// Drain so the connection can be reused for the next record.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
