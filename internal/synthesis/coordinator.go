package synthesis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/kikoe/internal/client"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/pkg/utils"
	"go.uber.org/zap"
)

// MissingSummary stands in for a per-item summary absent from a macro payload.
const MissingSummary = "Summary not available"

// MacroKey is the store key of the macro synthesis.
var MacroKey = Key{Kind: Macro, ID: "selection"}

// MacroState is the state of the macro synthesis.
type MacroState int

const (
	MacroIdle MacroState = iota
	MacroQueued
	MacroLoading
	MacroComplete
	MacroFailed
)

func (s MacroState) String() string {
	switch s {
	case MacroIdle:
		return "idle"
	case MacroQueued:
		return "queued"
	case MacroLoading:
		return "loading"
	case MacroComplete:
		return "complete"
	case MacroFailed:
		return "failed"
	default:
		return fmt.Sprintf("MacroState(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s MacroState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *MacroState) UnmarshalText(text []byte) error {
	for st := MacroIdle; st <= MacroFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown macro state %q", text)
}

// Coordinator fires a macro synthesis over the selected focus groups and races once all
// of their light summaries are complete. A request made before that is queued and fires
// as soon as the last summary completes.
type Coordinator struct {
	store   *Store
	backend Backend
	logger  *zap.Logger

	mu            sync.Mutex
	query         string
	results       []models.GroupedResult
	lessons       []models.StrategyGroupedResult
	selectedFG    map[string]bool
	selectedRaces map[string]bool
	queued        bool
	queuedCtx     context.Context
	queueErr      error
	firing        string
	lastSignature string
	changed       chan struct{}

	unsubscribe func()
	stopped     chan struct{}
}

// NewCoordinator creates a Coordinator watching store. Call Close to release it.
func NewCoordinator(store *Store, backend Backend, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		store:         store,
		backend:       backend,
		logger:        utils.OrNop(logger),
		selectedFG:    make(map[string]bool),
		selectedRaces: make(map[string]bool),
		stopped:       make(chan struct{}),
		changed:       make(chan struct{}),
	}
	events, unsubscribe := store.Subscribe()
	c.unsubscribe = unsubscribe
	go c.watch(events)
	return c
}

// Close stops watching the store.
func (c *Coordinator) Close() {
	c.unsubscribe()
	<-c.stopped
}

func (c *Coordinator) watch(events <-chan Event) {
	defer close(c.stopped)
	for ev := range events {
		if !ev.Kind.Terminal() {
			continue
		}
		switch ev.Key.Kind {
		case FocusGroupSummary, StrategySummary:
			c.onSummary()
		case Macro:
			c.onMacro()
		}
	}
}

func (c *Coordinator) onSummary() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.queued {
		return
	}
	defer c.notifyLocked()
	if c.prerequisiteFailedLocked() {
		c.queued = false
		c.queuedCtx = nil
		c.queueErr = ErrPrerequisiteFailed
		c.logger.Warn("queued macro synthesis dropped: a selected summary failed")
		return
	}
	if !c.readyLocked() {
		return
	}
	ctx := c.queuedCtx
	c.queued = false
	c.queuedCtx = nil
	c.logger.Debug("queued macro synthesis ready")
	c.fireLocked(ctx)
}

func (c *Coordinator) onMacro() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firing != "" {
		c.lastSignature = c.firing
		c.firing = ""
	}
	c.notifyLocked()
}

// notifyLocked wakes every Wait call.
func (c *Coordinator) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Load replaces the result set the selection refers to. Every race is selected and every
// focus group deselected. Any macro state is cleared.
func (c *Coordinator) Load(query string, results []models.GroupedResult, lessons []models.StrategyGroupedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.query = query
	c.results = results
	c.lessons = lessons
	for _, l := range lessons {
		c.selectedRaces[l.RaceID] = true
	}
}

// Reset clears the result set, the selection and the macro synthesis.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Coordinator) resetLocked() {
	c.query = ""
	c.results = nil
	c.lessons = nil
	c.selectedFG = make(map[string]bool)
	c.selectedRaces = make(map[string]bool)
	c.queued = false
	c.queuedCtx = nil
	c.queueErr = nil
	c.firing = ""
	c.lastSignature = ""
	c.store.Reset(MacroKey)
	c.notifyLocked()
}

// ToggleFocusGroup flips the selection of a focus group.
func (c *Coordinator) ToggleFocusGroup(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	toggle(c.selectedFG, id)
}

// ToggleRace flips the selection of a race.
func (c *Coordinator) ToggleRace(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	toggle(c.selectedRaces, id)
}

// SetFocusGroups replaces the focus-group selection.
func (c *Coordinator) SetFocusGroups(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedFG = toSet(ids)
}

// SetRaces replaces the race selection.
func (c *Coordinator) SetRaces(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedRaces = toSet(ids)
}

// SelectAll selects every loaded focus group.
func (c *Coordinator) SelectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.results {
		c.selectedFG[r.FocusGroupID] = true
	}
}

// Clear deselects every focus group.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedFG = make(map[string]bool)
}

// Selection is the current macro selection.
type Selection struct {
	FocusGroups []string `json:"focus_groups"`
	Races       []string `json:"races"`
}

// Selected returns the sorted selected ids.
func (c *Coordinator) Selected() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Selection{FocusGroups: sortedKeys(c.selectedFG), Races: sortedKeys(c.selectedRaces)}
}

// Signature identifies the current selection.
func (c *Coordinator) Signature() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signatureLocked()
}

func (c *Coordinator) signatureLocked() string {
	return strings.Join(sortedKeys(c.selectedFG), ",") + "|" + strings.Join(sortedKeys(c.selectedRaces), ",")
}

// Ready reports whether every selected item has a complete light summary.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readyLocked()
}

// Progress returns how many selected items have a complete summary, and how many are
// selected.
func (c *Coordinator) Progress() (done, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.prerequisitesLocked()
	for _, k := range keys {
		if c.store.Completed(k) {
			done++
		}
	}
	return done, len(keys)
}

func (c *Coordinator) prerequisitesLocked() []Key {
	keys := make([]Key, 0, len(c.selectedFG)+len(c.selectedRaces))
	for _, id := range sortedKeys(c.selectedFG) {
		keys = append(keys, Key{Kind: FocusGroupSummary, ID: id})
	}
	for _, id := range sortedKeys(c.selectedRaces) {
		keys = append(keys, Key{Kind: StrategySummary, ID: id})
	}
	return keys
}

func (c *Coordinator) readyLocked() bool {
	keys := c.prerequisitesLocked()
	return len(keys) > 0 && c.store.Completed(keys...)
}

func (c *Coordinator) prerequisiteFailedLocked() bool {
	for _, k := range c.prerequisitesLocked() {
		if c.store.Get(k).Status == StatusFailed {
			return true
		}
	}
	return false
}

// Request asks for a macro synthesis of the current selection. It fires immediately when
// ready and queues otherwise; ctx governs the request either way. When a selected summary
// has already failed it returns ErrPrerequisiteFailed instead of queueing. A selection that was
// already synthesized, with its output still present, is not requested again.
func (c *Coordinator) Request(ctx context.Context) (MacroState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.selectedFG) == 0 && len(c.selectedRaces) == 0 {
		return c.stateLocked(), ErrEmptySelection
	}
	macro := c.store.Get(MacroKey)
	if macro.Status.Busy() {
		return MacroLoading, nil
	}
	sig := c.signatureLocked()
	if macro.Status == StatusComplete && macro.Text != "" && (c.lastSignature == sig || c.firing == sig) {
		return MacroComplete, nil
	}
	c.queueErr = nil
	if c.prerequisiteFailedLocked() {
		c.queueErr = ErrPrerequisiteFailed
		c.notifyLocked()
		c.logger.Warn("macro synthesis not requested: a selected summary failed", zap.String("signature", sig))
		return MacroFailed, ErrPrerequisiteFailed
	}
	if !c.readyLocked() {
		c.queued = true
		c.queuedCtx = ctx
		c.logger.Debug("macro synthesis queued", zap.String("signature", sig))
		return MacroQueued, nil
	}
	c.fireLocked(ctx)
	return c.stateLocked(), nil
}

func (c *Coordinator) fireLocked(ctx context.Context) {
	path, payload := c.payloadLocked()
	c.store.Reset(MacroKey)
	c.firing = c.signatureLocked()
	c.store.Start(ctx, MacroKey, Job{Path: path, Payload: payload, Stream: true})
	c.logger.Info("macro synthesis started", zap.String("path", path), zap.String("signature", c.firing))
}

func (c *Coordinator) payloadLocked() (string, any) {
	fgSummaries := c.store.Texts(FocusGroupSummary)
	strategySummaries := c.store.Texts(StrategySummary)

	fgText := make(map[string]string)
	fgQuotes := make(map[string][]models.RetrievalChunk)
	fgMeta := make(map[string]models.FocusGroupMetadata)
	for _, r := range c.results {
		if !c.selectedFG[r.FocusGroupID] {
			continue
		}
		fgText[r.FocusGroupID] = summaryOr(fgSummaries, r.FocusGroupID)
		fgQuotes[r.FocusGroupID] = r.Chunks
		fgMeta[r.FocusGroupID] = r.Metadata
	}

	var selectedLessons []models.StrategyGroupedResult
	for _, l := range c.lessons {
		if c.selectedRaces[l.RaceID] {
			selectedLessons = append(selectedLessons, l)
		}
	}
	hasStrategy := false
	for _, l := range selectedLessons {
		if _, ok := strategySummaries[l.RaceID]; ok {
			hasStrategy = true
			break
		}
	}

	if !hasStrategy {
		return client.PathSynthesizeMacroLight, models.LightMacroRequest{
			FGSummaries: fgText,
			TopQuotes:   fgQuotes,
			FGMetadata:  fgMeta,
			Query:       c.query,
		}
	}

	sText := make(map[string]string)
	sChunks := make(map[string][]models.StrategyChunk)
	sMeta := make(map[string]models.StrategyMetadata)
	for _, l := range selectedLessons {
		sText[l.RaceID] = summaryOr(strategySummaries, l.RaceID)
		sChunks[l.RaceID] = l.Chunks
		sMeta[l.RaceID] = l.Metadata
	}
	return client.PathSynthesizeUnifiedMacro, models.UnifiedMacroRequest{
		FGSummaries:       fgText,
		FGQuotes:          fgQuotes,
		FGMetadata:        fgMeta,
		StrategySummaries: sText,
		StrategyChunks:    sChunks,
		StrategyMetadata:  sMeta,
		Query:             c.query,
	}
}

// State returns the macro synthesis state.
func (c *Coordinator) State() MacroState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Err returns why a queued request was dropped, or the macro request error.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queueErr != nil {
		return c.queueErr
	}
	return c.store.Get(MacroKey).Err
}

func (c *Coordinator) stateLocked() MacroState {
	if c.queued {
		return MacroQueued
	}
	if c.queueErr != nil {
		return MacroFailed
	}
	switch st := c.store.Get(MacroKey).Status; {
	case st.Busy():
		return MacroLoading
	case st == StatusComplete:
		return MacroComplete
	case st == StatusFailed:
		return MacroFailed
	default:
		return MacroIdle
	}
}

// Text returns the macro synthesis text so far.
func (c *Coordinator) Text() string {
	return c.store.Text(MacroKey)
}

// Wait blocks until the macro synthesis is no longer queued or loading.
func (c *Coordinator) Wait(ctx context.Context) (MacroState, error) {
	for {
		c.mu.Lock()
		st := c.stateLocked()
		changed := c.changed
		c.mu.Unlock()
		if st != MacroQueued && st != MacroLoading {
			return st, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

func summaryOr(summaries map[string]string, id string) string {
	if s, ok := summaries[id]; ok && s != "" {
		return s
	}
	return MissingSummary
}

func toggle(set map[string]bool, id string) {
	if set[id] {
		delete(set, id)
	} else {
		set[id] = true
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
