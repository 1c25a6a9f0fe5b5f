package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Bonii97/Heimbas-Calender/internal/config"
	"github.com/Bonii97/Heimbas-Calender/internal/ics"
	appLog "github.com/Bonii97/Heimbas-Calender/internal/log"
	"github.com/Bonii97/Heimbas-Calender/internal/pipeline"
)

// Store keeps the latest successful result per user. It is the pipeline
// Sink used in watch mode.
type Store struct {
	mu      sync.RWMutex
	results map[string]pipeline.Result
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{results: make(map[string]pipeline.Result)}
}

// Publish replaces the stored result for res.User.
func (st *Store) Publish(res pipeline.Result) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.results[res.User] = res
}

// Get returns the latest result for label.
func (st *Store) Get(label string) (pipeline.Result, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	res, ok := st.results[label]
	return res, ok
}

// Labels returns the users with a stored result, sorted.
func (st *Store) Labels() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]string, 0, len(st.results))
	for l := range st.results {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Server exposes the synchronized calendars over HTTP.
type Server struct {
	cfg   *config.Config
	store *Store
	mux   *http.ServeMux
}

// NewServer constructs a new Server reading from store.
func NewServer(cfg *config.Config, store *Store) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Dienstplan", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, cfg *config.Config, store *Store) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewServer(cfg, store).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /calendar/{file}", s.handleCalendar)
	s.mux.HandleFunc("GET /api/entries", s.handleEntries)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendar serves the last emitted document for /calendar/<label>.ics.
// Conditional requests are answered from the run's finish time.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	label, ok := strings.CutSuffix(file, ".ics")
	if !ok || label == "" {
		http.NotFound(w, r)
		return
	}

	res, ok := s.store.Get(label)
	if !ok {
		http.Error(w, "calendar not synchronized yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, file, res.Finished, bytes.NewReader(res.Calendar))
}

type entryDTO struct {
	ID          string    `json:"id"`
	UID         string    `json:"uid"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Address     string    `json:"address,omitempty"`
	Description string    `json:"description,omitempty"`
}

type entriesResponse struct {
	User      string         `json:"user"`
	RunID     string         `json:"run_id"`
	UpdatedAt time.Time      `json:"updated_at"`
	Stats     pipeline.Stats `json:"stats"`
	Entries   []entryDTO     `json:"entries"`
}

// handleEntries returns the last resolved entries of ?user=<label>. The
// parameter may be omitted when exactly one user has been synchronized.
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	label := strings.TrimSpace(r.URL.Query().Get("user"))
	if label == "" {
		labels := s.store.Labels()
		if len(labels) != 1 {
			writeError(w, http.StatusBadRequest, "query parameter user is required")
			return
		}
		label = labels[0]
	}

	res, ok := s.store.Get(label)
	if !ok {
		writeError(w, http.StatusNotFound, "no entries for user "+label)
		return
	}

	resp := entriesResponse{
		User:      res.User,
		RunID:     res.RunID,
		UpdatedAt: res.Finished,
		Stats:     res.Stats,
		Entries:   make([]entryDTO, 0, len(res.Entries)),
	}
	for _, e := range res.Entries {
		resp.Entries = append(resp.Entries, entryDTO{
			ID:          e.Identifier,
			UID:         ics.UID(e.Identifier),
			Title:       e.Title,
			Start:       e.Start,
			End:         e.End,
			Address:     e.Address,
			Description: e.Description,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
