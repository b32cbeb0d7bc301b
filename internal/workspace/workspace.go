// Package workspace holds the state of one research session: the current search, its
// race groups, per-item and macro syntheses, the macro selection and expanded cards.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/kikoe/internal/client"
	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/export"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/race"
	"github.com/hyperjump/kikoe/internal/search"
	"github.com/hyperjump/kikoe/internal/synthesis"
	"github.com/hyperjump/kikoe/pkg/utils"
	"go.uber.org/zap"
)

// Outcome is the coarse state shown for a workspace.
type Outcome string

const (
	OutcomeIdle      Outcome = "idle"
	OutcomeSearching Outcome = "searching"
	OutcomeResults   Outcome = "results"
	OutcomeEmpty     Outcome = "empty"
	OutcomeError     Outcome = "error"
)

// ErrNotFound is returned for a focus group or race id that is not in the current results.
var ErrNotFound = errors.New("not in results")

// Backend is everything the workspace needs from the API client.
type Backend interface {
	search.StreamOpener
	synthesis.Backend
	SearchUnified(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
}

var _ Backend = (*client.Client)(nil)

// Workspace is an explicit, injectable state store. It is safe for concurrent use.
type Workspace struct {
	backend     Backend
	cfg         config.Config
	logger      *zap.Logger
	controller  *search.Controller
	store       *synthesis.Store
	summarizer  *synthesis.Summarizer
	coordinator *synthesis.Coordinator

	// searchMu orders starting a search with clearing the state of the previous one.
	searchMu sync.Mutex

	mu        sync.RWMutex
	session   string
	scope     context.Context
	endScope  context.CancelFunc
	query     string
	response  *models.SearchResponse
	races     []*race.Group
	overrides race.Overrides
	expanded  map[string]bool
	themes    []models.Theme
	searchErr error
	direct    bool
}

// New creates a Workspace. Call Close to release it.
func New(backend Backend, cfg config.Config, logger *zap.Logger) *Workspace {
	logger = utils.OrNop(logger)
	store := synthesis.NewStore(backend, cfg.Synthesis.ErrorMessage, logger.Named("synthesis"))
	scope, endScope := context.WithCancel(context.Background())
	return &Workspace{
		backend:     backend,
		cfg:         cfg,
		logger:      logger,
		controller:  search.NewController(backend, cfg.Search, logger.Named("search")),
		store:       store,
		summarizer:  synthesis.NewSummarizer(store, cfg.Synthesis.Stagger, logger),
		coordinator: synthesis.NewCoordinator(store, backend, logger.Named("macro")),
		overrides:   race.Overrides(cfg.Races.Overrides).Clone(),
		expanded:    make(map[string]bool),
		scope:       scope,
		endScope:    endScope,
	}
}

// Close aborts running syntheses and searches.
func (w *Workspace) Close() {
	w.mu.Lock()
	w.endScope()
	w.mu.Unlock()
	w.controller.Reset()
	w.coordinator.Close()
	w.store.Close()
}

// Store returns the synthesis store.
func (w *Workspace) Store() *synthesis.Store { return w.store }

// Coordinator returns the macro coordinator.
func (w *Workspace) Coordinator() *synthesis.Coordinator { return w.coordinator }

// Search starts a streaming search. It clears all state derived from the previous
// search; the returned session reports progress. Results are applied when the session
// completes, so callers that do not read the session may call Wait.
func (w *Workspace) Search(ctx context.Context, query string) (*search.Session, error) {
	w.searchMu.Lock()
	sess, err := w.controller.Search(ctx, query)
	if err != nil {
		w.searchMu.Unlock()
		return nil, err
	}
	w.clear(sess.Query(), sess.ID(), false)
	w.searchMu.Unlock()

	go func() {
		res, err := sess.Wait(context.Background())
		if err != nil {
			return
		}
		w.apply(sess.ID(), res)
	}()
	return sess, nil
}

// Wait blocks until the active search finishes and its results are applied.
func (w *Workspace) Wait(ctx context.Context, sess *search.Session) (Outcome, error) {
	res, err := sess.Wait(ctx)
	if err != nil {
		return w.Outcome(), err
	}
	w.apply(sess.ID(), res)
	return w.Outcome(), nil
}

// SearchUnified runs a one-shot unified search and applies its results.
func (w *Workspace) SearchUnified(ctx context.Context, query string) (Outcome, error) {
	req := models.SearchRequest{Query: query, TopK: w.cfg.Search.TopK, ScoreThreshold: w.cfg.Search.ScoreThreshold}
	if err := req.Validate(); err != nil {
		return w.Outcome(), err
	}
	w.searchMu.Lock()
	w.controller.Reset()
	w.clear(req.Query, "", true)
	w.searchMu.Unlock()

	res, err := w.backend.SearchUnified(ctx, req)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.query != req.Query || !w.direct {
		return w.outcomeLocked(), search.ErrSuperseded
	}
	if err != nil {
		w.searchErr = err
		w.logger.Error("unified search failed", zap.Error(err))
		return OutcomeError, err
	}
	w.setResponseLocked(res)
	return w.outcomeLocked(), nil
}

// clear drops everything derived from the previous search and ends its scope, which
// stops summaries still waiting to be dispatched for it.
func (w *Workspace) clear(query, session string, direct bool) {
	w.mu.Lock()
	w.endScope()
	w.scope, w.endScope = context.WithCancel(context.Background())
	w.session = session
	w.mu.Unlock()

	w.store.ResetAll()
	w.coordinator.Reset()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.query = query
	w.response = nil
	w.races = nil
	w.themes = nil
	w.searchErr = nil
	w.direct = direct
	w.expanded = make(map[string]bool)
}

// apply stores results of the session if it is still the active one.
func (w *Workspace) apply(sessionID string, res *models.SearchResponse) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.direct || w.session != sessionID || w.response == res {
		return
	}
	w.setResponseLocked(res)
}

func (w *Workspace) setResponseLocked(res *models.SearchResponse) {
	w.response = res
	w.races = race.Sorted(res.FocusGroups(), res.Lessons, w.overrides)
	w.coordinator.Load(w.query, res.FocusGroups(), res.Lessons)
	w.logger.Debug("results applied",
		zap.Int("focus_groups", len(res.FocusGroups())),
		zap.Int("lessons", len(res.Lessons)),
		zap.Int("races", len(w.races)))
}

// SetOverrides replaces the race override table and regroups the current results.
func (w *Workspace) SetOverrides(overrides map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.overrides = race.Overrides(overrides).Clone()
	if w.response != nil {
		w.races = race.Sorted(w.response.FocusGroups(), w.response.Lessons, w.overrides)
	}
}

// Reset abandons the search and clears everything.
func (w *Workspace) Reset() {
	w.searchMu.Lock()
	defer w.searchMu.Unlock()
	w.controller.Reset()
	w.clear("", "", false)
}

// Query returns the current query.
func (w *Workspace) Query() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.query
}

// Response returns the current search response, or nil.
func (w *Workspace) Response() *models.SearchResponse {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.response
}

// Races returns the sorted race groups of the current results.
func (w *Workspace) Races() []*race.Group {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.races
}

// Steps returns the progress steps of the current search.
func (w *Workspace) Steps() []models.SearchStep {
	return w.controller.Snapshot().Steps
}

// Outcome returns the coarse workspace state.
func (w *Workspace) Outcome() Outcome {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.outcomeLocked()
}

func (w *Workspace) outcomeLocked() Outcome {
	if w.direct {
		switch {
		case w.searchErr != nil:
			return OutcomeError
		case w.response == nil:
			return OutcomeSearching
		case w.response.IsEmpty():
			return OutcomeEmpty
		default:
			return OutcomeResults
		}
	}
	switch w.controller.Snapshot().State {
	case search.StateSearching:
		return OutcomeSearching
	case search.StateFailed:
		return OutcomeError
	case search.StateEmpty:
		return OutcomeEmpty
	case search.StateComplete:
		if w.response == nil {
			return OutcomeSearching
		}
		return OutcomeResults
	default:
		return OutcomeIdle
	}
}

// Err returns the search error, if any.
func (w *Workspace) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.direct {
		return w.searchErr
	}
	return w.controller.Snapshot().Err
}

// Summarize requests light summaries for every focus group and race of the current
// results and waits for them. A new search or a reset ends it with search.ErrSuperseded.
func (w *Workspace) Summarize(ctx context.Context) error {
	w.mu.RLock()
	query, res, scope := w.query, w.response, w.scope
	w.mu.RUnlock()
	if res == nil {
		return fmt.Errorf("summarize: %w", synthesis.ErrNotReady)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(scope, cancel)
	defer stop()

	errc := make(chan error, 2)
	go func() { errc <- w.summarizer.SummarizeFocusGroups(ctx, query, res.FocusGroups()) }()
	go func() { errc <- w.summarizer.SummarizeRaces(ctx, query, res.Lessons) }()
	err1, err2 := <-errc, <-errc
	if scope.Err() != nil {
		return search.ErrSuperseded
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// DeepFocusGroup starts a deep synthesis for a focus group. It reports whether a request
// was started; false means one is running or already produced text.
func (w *Workspace) DeepFocusGroup(ctx context.Context, id string) (synthesis.Key, bool, error) {
	key := synthesis.Key{Kind: synthesis.FocusGroupDeep, ID: id}
	w.mu.RLock()
	query, res := w.query, w.response
	w.mu.RUnlock()
	g, ok := res.FocusGroup(id)
	if !ok {
		return key, false, fmt.Errorf("focus group %q: %w", id, ErrNotFound)
	}
	return key, w.store.Start(ctx, key, synthesis.FocusGroupDeepJob(query, *g)), nil
}

// DeepRace starts a deep strategy analysis for a race.
func (w *Workspace) DeepRace(ctx context.Context, id string) (synthesis.Key, bool, error) {
	key := synthesis.Key{Kind: synthesis.StrategyDeep, ID: id}
	w.mu.RLock()
	query, res := w.query, w.response
	w.mu.RUnlock()
	l, ok := res.Lesson(id)
	if !ok {
		return key, false, fmt.Errorf("race %q: %w", id, ErrNotFound)
	}
	return key, w.store.Start(ctx, key, synthesis.StrategyDeepJob(query, *l)), nil
}

// StartSynthesis starts the synthesis addressed by key.
func (w *Workspace) StartSynthesis(ctx context.Context, key synthesis.Key) (bool, error) {
	switch key.Kind {
	case synthesis.FocusGroupDeep:
		_, started, err := w.DeepFocusGroup(ctx, key.ID)
		return started, err
	case synthesis.StrategyDeep:
		_, started, err := w.DeepRace(ctx, key.ID)
		return started, err
	case synthesis.FocusGroupSummary:
		w.mu.RLock()
		query, res := w.query, w.response
		w.mu.RUnlock()
		g, ok := res.FocusGroup(key.ID)
		if !ok {
			return false, fmt.Errorf("focus group %q: %w", key.ID, ErrNotFound)
		}
		return w.store.Start(ctx, key, synthesis.FocusGroupSummaryJob(query, *g)), nil
	case synthesis.StrategySummary:
		w.mu.RLock()
		query, res := w.query, w.response
		w.mu.RUnlock()
		l, ok := res.Lesson(key.ID)
		if !ok {
			return false, fmt.Errorf("race %q: %w", key.ID, ErrNotFound)
		}
		return w.store.Start(ctx, key, synthesis.StrategySummaryJob(query, *l)), nil
	default:
		return false, fmt.Errorf("synthesis kind %q cannot be started directly", key.Kind)
	}
}

// ToggleExpanded flips whether a card is expanded.
func (w *Workspace) ToggleExpanded(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.expanded[id] {
		delete(w.expanded, id)
		return false
	}
	w.expanded[id] = true
	return true
}

// Expanded reports whether a card is expanded.
func (w *Workspace) Expanded(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.expanded[id]
}

// Selection returns the macro selection.
func (w *Workspace) Selection() synthesis.Selection {
	return w.coordinator.Selected()
}

// SetSelection replaces the macro selection.
func (w *Workspace) SetSelection(sel synthesis.Selection) {
	w.coordinator.SetFocusGroups(sel.FocusGroups)
	w.coordinator.SetRaces(sel.Races)
}

// RequestMacro requests a macro synthesis of the selection; see Coordinator.Request.
func (w *Workspace) RequestMacro(ctx context.Context) (synthesis.MacroState, error) {
	return w.coordinator.Request(ctx)
}

// Themes runs deep macro synthesis and keeps the themes for export.
func (w *Workspace) Themes(ctx context.Context, onStep func(models.EventStatus)) ([]models.Theme, error) {
	themes, err := w.coordinator.Themes(ctx, onStep)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.themes = themes
	w.mu.Unlock()
	return themes, nil
}

// ExportData collects everything needed for a report.
func (w *Workspace) ExportData() export.Data {
	w.mu.RLock()
	query, res, themes := w.query, w.response, w.themes
	w.mu.RUnlock()

	data := export.Data{
		Query:             query,
		Summaries:         w.store.Texts(synthesis.FocusGroupSummary),
		DeepSyntheses:     w.store.Texts(synthesis.FocusGroupDeep),
		StrategySummaries: w.store.Texts(synthesis.StrategySummary),
		StrategyDeep:      w.store.Texts(synthesis.StrategyDeep),
		Themes:            append([]models.Theme(nil), themes...),
		GeneratedAt:       time.Now(),
	}
	if w.coordinator.State() == synthesis.MacroComplete {
		data.MacroResult = w.coordinator.Text()
	}
	if res != nil {
		data.Results = res.FocusGroups()
		data.Lessons = res.Lessons
		data.Stats = res.Stats
	}
	return data
}
