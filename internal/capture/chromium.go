// Package capture drives a headless Chromium through the portal login and
// returns the HTML of the Einsatz-Vorschau page.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	appLog "github.com/Bonii97/Heimbas-Calender/internal/log"
	"github.com/Bonii97/Heimbas-Calender/internal/table"
)

const (
	DefaultTimeoutSec = 120
	DefaultDumpName   = "lastpage.html"

	// PreviewPath is tried directly when no navigation link was found.
	PreviewPath = "/einsatz-vorschau"

	settleDelay = 1500 * time.Millisecond
	tableWait   = 20 * time.Second
)

// ErrNoScheduleTable is returned when the final page has no schedule table.
var ErrNoScheduleTable = errors.New("capture: no schedule table on page")

var (
	userSelectors = []string{
		`input[name="username"]`,
		`input[id*="user" i]`,
		`input[placeholder*="utzer" i]`,
		`input[type="email"]`,
		`input[type="text"]`,
	}
	passSelectors = []string{
		`input[name="password"]`,
		`input[id*="pass" i]`,
		`input[placeholder*="ass" i]`,
		`input[type="password"]`,
	}
	submitLabels  = []string{"Anmelden", "Login", "Einloggen", "Anmeldung"}
	previewLabels = []string{"Einsatz-Vorschau", "Einsatz Vorschau", "Vorschau"}
)

// Options defines one portal session.
type Options struct {
	// BaseURL is the portal start page, e.g.
	// "https://homecare.example.cloud/apps/cg_homecare_1017".
	BaseURL  string
	Username string
	Password string

	// DumpPath receives the last loaded page when no schedule table was
	// found. Defaults to DefaultDumpName in the working directory.
	DumpPath string

	// Timeout bounds the entire session. If zero, DefaultTimeoutSec is used.
	Timeout time.Duration
}

func (o *Options) normalize() error {
	o.BaseURL = strings.TrimSpace(o.BaseURL)
	if o.BaseURL == "" {
		return fmt.Errorf("capture: base URL is required")
	}
	if o.Username == "" || o.Password == "" {
		return fmt.Errorf("capture: username and password are required")
	}
	if o.DumpPath == "" {
		o.DumpPath = DefaultDumpName
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return nil
}

// FetchScheduleHTML logs in at opts.BaseURL, opens the Einsatz-Vorschau and
// returns the page HTML.
//
// Navigation is best effort: login fields and links are located through
// selector and label cascades, and a direct request to PreviewPath follows
// the link attempt. Only the final page is checked. When it carries no
// schedule table the HTML is written to opts.DumpPath and ErrNoScheduleTable
// is returned.
func FetchScheduleHTML(parentCtx context.Context, opts Options) (string, error) {
	if err := opts.normalize(); err != nil {
		return "", err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	appLog.Debug("capture: opening login page", "url", opts.BaseURL)
	if err := chromedp.Run(ctx,
		chromedp.Navigate(opts.BaseURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	); err != nil {
		return "", fmt.Errorf("capture: open %s: %w", opts.BaseURL, err)
	}

	if err := login(ctx, opts); err != nil {
		return "", err
	}

	appLog.Debug("capture: switching to Einsatz-Vorschau")
	if ok, err := clickByLabel(ctx, "a, button, [role=link], [role=tab], li, span", previewLabels); err != nil {
		appLog.Debug("capture: preview link lookup failed", "err", err)
	} else if ok {
		_ = chromedp.Run(ctx, chromedp.Sleep(settleDelay))
	}

	target := previewURL(opts.BaseURL)
	if err := chromedp.Run(ctx, chromedp.Navigate(target)); err != nil {
		appLog.Debug("capture: direct preview navigation failed", "url", target, "err", err)
	}

	_ = chromedp.Run(ctx, chromedp.Sleep(settleDelay))
	waitCtx, waitCancel := context.WithTimeout(ctx, tableWait)
	if err := chromedp.Run(waitCtx, chromedp.WaitReady("table", chromedp.ByQuery)); err != nil {
		appLog.Debug("capture: no table appeared", "err", err)
	}
	waitCancel()

	var doc string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &doc, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capture: read page html: %w", err)
	}

	if err := checkPage(doc, opts.DumpPath); err != nil {
		return "", err
	}
	return doc, nil
}

func login(ctx context.Context, opts Options) error {
	userSel, err := firstPresent(ctx, userSelectors)
	if err != nil {
		return fmt.Errorf("capture: inspect login form: %w", err)
	}
	passSel, err := firstPresent(ctx, passSelectors)
	if err != nil {
		return fmt.Errorf("capture: inspect login form: %w", err)
	}
	if userSel == "" || passSel == "" {
		appLog.Info("capture: no login form found, assuming SSO or existing session")
		return nil
	}

	if err := chromedp.Run(ctx,
		chromedp.Clear(userSel, chromedp.ByQuery),
		chromedp.SendKeys(userSel, opts.Username, chromedp.ByQuery),
		chromedp.Clear(passSel, chromedp.ByQuery),
		chromedp.SendKeys(passSel, opts.Password, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("capture: fill login form: %w", err)
	}

	appLog.Debug("capture: submitting login")
	clicked, err := clickByLabel(ctx, "button, input[type=submit], a", submitLabels)
	if err != nil {
		return fmt.Errorf("capture: submit login: %w", err)
	}
	if !clicked {
		clicked, err = clickSelector(ctx, `button[type="submit"]`)
		if err != nil {
			return fmt.Errorf("capture: submit login: %w", err)
		}
	}
	if !clicked {
		if err := chromedp.Run(ctx, chromedp.SendKeys(passSel, kb.Enter, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("capture: submit login: %w", err)
		}
	}

	// There is no network-idle signal, so give the post-login redirect time
	// to settle.
	return chromedp.Run(ctx,
		chromedp.Sleep(2*time.Second),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// firstPresent returns the first selector matching an element, or "".
func firstPresent(ctx context.Context, selectors []string) (string, error) {
	for _, sel := range selectors {
		var found bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(presenceScript(sel), &found)); err != nil {
			return "", err
		}
		if found {
			return sel, nil
		}
	}
	return "", nil
}

func clickSelector(ctx context.Context, sel string) (bool, error) {
	var clicked bool
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) return false; el.click(); return true; })()`, jsString(sel))
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

// clickByLabel clicks the first element matching scope whose visible text or
// value matches one of labels, trying labels in order.
func clickByLabel(ctx context.Context, scope string, labels []string) (bool, error) {
	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(labelClickScript(scope, labels), &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

func presenceScript(sel string) string {
	return fmt.Sprintf(`!!document.querySelector(%s)`, jsString(sel))
}

func labelClickScript(scope string, labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = jsString(l)
	}
	return fmt.Sprintf(`(() => {
  const nodes = Array.from(document.querySelectorAll(%s));
  for (const label of [%s]) {
    const want = label.toLowerCase();
    const el = nodes.find(n => {
      const text = (n.innerText || n.textContent || n.value || "").trim().toLowerCase();
      return text.includes(want);
    });
    if (el) { el.click(); return true; }
  }
  return false;
})()`, jsString(scope), strings.Join(quoted, ", "))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func previewURL(base string) string {
	return strings.TrimRight(base, "/") + PreviewPath
}

// checkPage accepts doc if it holds a schedule table; otherwise doc is
// written to dumpPath for inspection.
func checkPage(doc, dumpPath string) error {
	if table.Contains(doc) {
		return nil
	}
	if dir := filepath.Dir(dumpPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w (dump failed: %v)", ErrNoScheduleTable, err)
		}
	}
	if err := os.WriteFile(dumpPath, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("%w (dump failed: %v)", ErrNoScheduleTable, err)
	}
	return fmt.Errorf("%w; last page saved to %s", ErrNoScheduleTable, dumpPath)
}
