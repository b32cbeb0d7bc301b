package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kikoe/internal/client"
	"github.com/hyperjump/kikoe/internal/corpus"
	"github.com/hyperjump/kikoe/internal/export"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/race"
	"github.com/hyperjump/kikoe/internal/search"
	"github.com/hyperjump/kikoe/internal/synthesis"
	"github.com/hyperjump/kikoe/internal/workspace"
	"go.uber.org/zap"
)

// Search stream event types. Progress steps reuse models.TypeStatus.
const (
	typeRaces = "races"
	typeError = "error"
	typeTheme = "theme"
)

type searchRequest struct {
	Query   string `json:"query"`
	Unified bool   `json:"unified,omitempty"`
}

type statusEvent struct {
	Type    string `json:"type"`
	Step    string `json:"step"`
	Message string `json:"message"`
}

type racesEvent struct {
	Type    string              `json:"type"`
	Query   string              `json:"query"`
	Outcome workspace.Outcome   `json:"outcome"`
	Stats   *models.SearchStats `json:"stats,omitempty"`
	Races   []*race.Group       `json:"races"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type themeEvent struct {
	Type  string       `json:"type"`
	Theme models.Theme `json:"theme"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Bool("unified", req.Unified))

	if req.Unified {
		outcome, err := s.ws.SearchUnified(r.Context(), req.Query)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, s.racesEvent(outcome))
		return
	}

	sess, err := s.ws.Search(r.Context(), req.Query)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	for u := range sess.Updates() {
		if u.Kind != search.UpdateStep {
			continue
		}
		_ = enc.Encode(statusEvent{Type: models.TypeStatus, Step: u.Step.Step, Message: u.Step.Message})
		flush(w)
	}

	outcome, err := s.ws.Wait(r.Context(), sess)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, search.ErrSuperseded):
		_ = enc.Encode(errorEvent{Type: typeError, Error: err.Error()})
	case err != nil:
		_ = enc.Encode(errorEvent{Type: typeError, Error: search.UserMessage(err)})
	default:
		_ = enc.Encode(s.racesEvent(outcome))
	}
	flush(w)
}

func (s *Server) racesEvent(outcome workspace.Outcome) racesEvent {
	ev := racesEvent{Type: typeRaces, Query: s.ws.Query(), Outcome: outcome, Races: s.ws.Races()}
	if res := s.ws.Response(); res != nil {
		stats := res.Stats
		ev.Stats = &stats
	}
	if ev.Races == nil {
		ev.Races = []*race.Group{}
	}
	return ev
}

func (s *Server) handleSearchReset(w http.ResponseWriter, r *http.Request) {
	s.ws.Reset()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type macroState struct {
	State    synthesis.MacroState `json:"state"`
	Text     string               `json:"text,omitempty"`
	Error    string               `json:"error,omitempty"`
	Ready    bool                 `json:"ready"`
	Done     int                  `json:"done"`
	Total    int                  `json:"total"`
	Selected synthesis.Selection  `json:"selection"`
}

type stateResponse struct {
	Query     string                                        `json:"query"`
	Outcome   workspace.Outcome                             `json:"outcome"`
	Error     string                                        `json:"error,omitempty"`
	Steps     []models.SearchStep                           `json:"steps"`
	Races     []*race.Group                                 `json:"races"`
	Syntheses map[synthesis.Kind]map[string]synthesis.State `json:"syntheses"`
	Macro     macroState                                    `json:"macro"`
}

func (s *Server) macroState() macroState {
	c := s.ws.Coordinator()
	done, total := c.Progress()
	m := macroState{
		State:    c.State(),
		Ready:    c.Ready(),
		Done:     done,
		Total:    total,
		Selected: c.Selected(),
	}
	switch m.State {
	case synthesis.MacroComplete:
		m.Text = c.Text()
	case synthesis.MacroFailed:
		m.Text = c.Text()
		if err := c.Err(); err != nil {
			m.Error = err.Error()
		}
	}
	return m
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		Query:     s.ws.Query(),
		Outcome:   s.ws.Outcome(),
		Steps:     s.ws.Steps(),
		Races:     s.ws.Races(),
		Syntheses: make(map[synthesis.Kind]map[string]synthesis.State),
		Macro:     s.macroState(),
	}
	if err := s.ws.Err(); err != nil {
		resp.Error = search.UserMessage(err)
	}
	for _, kind := range []synthesis.Kind{
		synthesis.FocusGroupSummary, synthesis.StrategySummary,
		synthesis.FocusGroupDeep, synthesis.StrategyDeep,
	} {
		resp.Syntheses[kind] = s.ws.Store().Snapshot(kind)
	}
	if resp.Steps == nil {
		resp.Steps = []models.SearchStep{}
	}
	if resp.Races == nil {
		resp.Races = []*race.Group{}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleSummaries requests every light summary and waits for them unless wait=false.
func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	if s.ws.Response() == nil {
		s.respondErr(w, synthesis.ErrNotReady)
		return
	}
	done := make(chan error, 1)
	go func() { done <- s.ws.Summarize(s.jobs) }()

	if !queryBool(r, "wait", true) {
		s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}
	select {
	case err := <-done:
		if err != nil {
			s.respondErr(w, err)
			return
		}
	case <-r.Context().Done():
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		string(synthesis.FocusGroupSummary): s.ws.Store().Snapshot(synthesis.FocusGroupSummary),
		string(synthesis.StrategySummary):   s.ws.Store().Snapshot(synthesis.StrategySummary),
	})
}

func (s *Server) synthesisKey(w http.ResponseWriter, r *http.Request) (synthesis.Key, bool) {
	kind, err := synthesis.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return synthesis.Key{}, false
	}
	return synthesis.Key{Kind: kind, ID: chi.URLParam(r, "id")}, true
}

// handleSynthesize starts a synthesis and streams its text as it grows. A synthesis that
// is already loading or has produced text is not restarted: the response is 409 with the
// current state.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	key, ok := s.synthesisKey(w, r)
	if !ok {
		return
	}
	if key.Kind == synthesis.Macro {
		s.respondError(w, http.StatusBadRequest, "use /api/v1/macro for macro synthesis")
		return
	}

	wrote := false
	st, started, err := s.ws.Store().Follow(r.Context(), key, func() (bool, error) {
		return s.ws.StartSynthesis(s.jobs, key)
	}, func(delta string) {
		if !wrote {
			wrote = true
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		}
		_, _ = io.WriteString(w, delta)
		flush(w)
	})
	switch {
	case err != nil && !started:
		s.respondErr(w, err)
		return
	case err != nil:
		return
	case !started:
		s.respondJSON(w, http.StatusConflict, st)
		return
	}

	if st.Status == synthesis.StatusFailed {
		if !wrote {
			s.respondError(w, http.StatusBadGateway, st.Text)
			return
		}
		_, _ = io.WriteString(w, "\n\n"+st.Text)
		return
	}
	if !wrote {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleGetSynthesis(w http.ResponseWriter, r *http.Request) {
	key, ok := s.synthesisKey(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, s.ws.Store().Get(key))
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var sel synthesis.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.ws.SetSelection(sel)
	s.respondJSON(w, http.StatusOK, s.macroState())
}

// handleMacro requests a macro synthesis of the selection. It does not wait for it unless
// wait=true; a queued request fires on its own once the summaries it needs complete.
func (s *Server) handleMacro(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ws.RequestMacro(s.jobs); err != nil {
		s.respondErr(w, err)
		return
	}
	if queryBool(r, "wait", false) {
		if _, err := s.ws.Coordinator().Wait(r.Context()); err != nil {
			return
		}
	}
	m := s.macroState()
	status := http.StatusOK
	if m.State == synthesis.MacroQueued || m.State == synthesis.MacroLoading {
		status = http.StatusAccepted
	}
	s.respondJSON(w, status, m)
}

// handleThemes runs deep macro synthesis and streams its progress as NDJSON: status
// events, then one theme event per theme, or an error event.
func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	headerWritten := false
	writeHeader := func() {
		if !headerWritten {
			headerWritten = true
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
		}
	}
	enc := json.NewEncoder(w)
	themes, err := s.ws.Themes(r.Context(), func(ev models.EventStatus) {
		writeHeader()
		_ = enc.Encode(statusEvent{Type: models.TypeStatus, Step: ev.Step, Message: ev.Message})
		flush(w)
	})
	if err != nil {
		if !headerWritten {
			s.respondErr(w, err)
			return
		}
		_ = enc.Encode(errorEvent{Type: typeError, Error: search.UserMessage(err)})
		return
	}
	writeHeader()
	for _, t := range themes {
		_ = enc.Encode(themeEvent{Type: typeTheme, Theme: t})
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.ws.Response() == nil {
		s.respondError(w, http.StatusConflict, "no results to export")
		return
	}
	data := s.ws.ExportData()
	var buf bytes.Buffer
	if err := export.Write(&buf, format, data, export.Options{IncludeSources: queryBool(r, "sources", false)}); err != nil {
		s.logger.Error("export failed", zap.String("format", string(format)), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(data.Query, string(format))))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type corpusResponse struct {
	Query      string           `json:"query,omitempty"`
	Total      int              `json:"total"`
	Sections   []corpus.Section `json:"sections"`
	Suggestion string           `json:"suggestion,omitempty"`
}

func (s *Server) handleCorpus(w http.ResponseWriter, r *http.Request) {
	if !s.corpus.Loaded() || queryBool(r, "reload", false) {
		if err := s.corpus.Load(r.Context()); err != nil {
			s.logger.Error("corpus load failed", zap.Error(err))
			s.respondErr(w, err)
			return
		}
	}
	q := r.URL.Query().Get("q")
	items, err := s.corpus.Filter(q)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	resp := corpusResponse{Query: q, Total: len(items), Sections: corpus.GroupByRace(items)}
	if len(items) == 0 && q != "" {
		resp.Suggestion = s.corpus.Suggest(q)
	}
	if resp.Sections == nil {
		resp.Sections = []corpus.Section{}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCorpusDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.corpus.Document(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps err to a status code and message.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	switch {
	case errors.Is(err, models.ErrEmptyQuery), errors.Is(err, client.ErrUnavailable):
		message = search.UserMessage(err)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyQuery),
		errors.Is(err, models.ErrInvalidPayload),
		errors.Is(err, synthesis.ErrEmptySelection):
		return http.StatusBadRequest
	case errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, synthesis.ErrNotReady),
		errors.Is(err, synthesis.ErrPrerequisiteFailed),
		errors.Is(err, search.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, client.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryBool(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func flush(w http.ResponseWriter) {
	_ = http.NewResponseController(w).Flush()
}
