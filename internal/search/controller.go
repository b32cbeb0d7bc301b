// Package search drives streaming searches against the research backend and exposes
// their progress and final results.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kikoe/internal/client"
	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/stream"
	"github.com/hyperjump/kikoe/pkg/utils"
	"go.uber.org/zap"
)

var (
	// ErrIncompleteStream is returned when a search stream ends without a results event.
	ErrIncompleteStream = errors.New("search stream ended without results")
	// ErrSuperseded is returned by Session.Wait when a newer search or a reset replaced
	// the session.
	ErrSuperseded = errors.New("search superseded")
)

// UnavailableMessage is shown for any failed search.
const UnavailableMessage = "Unable to connect to search service. Please try again."

// UserMessage maps a search error to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrEmptyQuery):
		return "Please enter a search query."
	default:
		return UnavailableMessage
	}
}

// StreamOpener opens a streaming search.
type StreamOpener interface {
	OpenSearchStream(ctx context.Context, req models.SearchRequest) (io.ReadCloser, error)
}

var _ StreamOpener = (*client.Client)(nil)

// State is the controller state.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateComplete
	StateEmpty
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateComplete:
		return "complete"
	case StateEmpty:
		return "empty"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s ends a search.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateEmpty || s == StateFailed
}

// UpdateKind identifies a session update.
type UpdateKind int

const (
	UpdateStep UpdateKind = iota
	UpdateResults
	UpdateFailed
)

// Update is one event of a search session.
type Update struct {
	Kind   UpdateKind
	Step   models.SearchStep
	Result *models.SearchResponse
	Err    error
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	SessionID string
	Query     string
	State     State
	Steps     []models.SearchStep
	Result    *models.SearchResponse
	Err       error
}

// updateBuffer is the capacity of a session's update channel. The last slot is kept for
// the terminal update so the session never blocks on a slow reader.
const updateBuffer = 64

// Session is one submitted search.
type Session struct {
	id      string
	query   string
	ctx     context.Context
	cancel  context.CancelFunc
	updates chan Update
	done    chan struct{}

	result *models.SearchResponse
	err    error
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Query returns the validated query.
func (s *Session) Query() string { return s.query }

// Updates returns the session's progress: step updates in arrival order, then exactly one
// UpdateResults or UpdateFailed, then the channel is closed. A superseded or reset
// session's channel is closed without a terminal update. Step updates may be skipped if
// the reader falls far behind; Controller.Snapshot always has all of them.
func (s *Session) Updates() <-chan Update { return s.updates }

// Done is closed when the session has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session finishes and returns its result.
func (s *Session) Wait(ctx context.Context) (*models.SearchResponse, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) send(u Update, terminal bool) {
	if !terminal && len(s.updates) >= cap(s.updates)-1 {
		return
	}
	select {
	case s.updates <- u:
	default:
	}
}

// Controller runs at most one active search at a time. Starting a search supersedes and
// cancels the previous one; events of a superseded search are never applied.
type Controller struct {
	opener StreamOpener
	cfg    config.SearchConfig
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	active *Session
	state  State
	query  string
	steps  []models.SearchStep
	result *models.SearchResponse
	err    error
}

// NewController creates a Controller. cfg supplies top_k and score_threshold.
func NewController(opener StreamOpener, cfg config.SearchConfig, logger *zap.Logger) *Controller {
	return &Controller{
		opener: opener,
		cfg:    cfg,
		logger: utils.OrNop(logger),
		now:    time.Now,
	}
}

// Search validates query and starts a new session, superseding any active one. An empty
// query returns models.ErrEmptyQuery and leaves the state unchanged.
func (c *Controller) Search(ctx context.Context, query string) (*Session, error) {
	req := models.SearchRequest{Query: query, TopK: c.cfg.TopK, ScoreThreshold: c.cfg.ScoreThreshold}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	sess := &Session{
		id:      uuid.NewString(),
		query:   req.Query,
		ctx:     sctx,
		cancel:  cancel,
		updates: make(chan Update, updateBuffer),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	if c.active != nil {
		c.logger.Debug("superseding search", zap.String("session", c.active.id))
		c.active.cancel()
	}
	c.active = sess
	c.state = StateSearching
	c.query = req.Query
	c.steps = nil
	c.result = nil
	c.err = nil
	c.mu.Unlock()

	c.logger.Info("search started", zap.String("session", sess.id), zap.String("query", req.Query))
	go c.run(sess, req)
	return sess, nil
}

// Reset abandons the active search and clears steps, result and error.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.cancel()
		c.active = nil
	}
	c.state = StateIdle
	c.query = ""
	c.steps = nil
	c.result = nil
	c.err = nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Query:  c.query,
		State:  c.state,
		Steps:  append([]models.SearchStep(nil), c.steps...),
		Result: c.result,
		Err:    c.err,
	}
	if c.active != nil {
		snap.SessionID = c.active.id
	}
	return snap
}

func (c *Controller) run(sess *Session, req models.SearchRequest) {
	defer close(sess.done)
	defer close(sess.updates)
	defer sess.cancel()

	body, err := c.opener.OpenSearchStream(sess.ctx, req)
	if err != nil {
		c.fail(sess, err)
		return
	}
	defer body.Close()

	gotResults := false
	err = stream.ReadLines(body, func(line []byte) error {
		ev, perr := models.ParseStreamEvent(line)
		if perr != nil {
			c.logger.Warn("skipping malformed stream line",
				zap.String("session", sess.id),
				zap.String("line", utils.Truncate(string(line), 200)),
				zap.Error(perr))
			return nil
		}
		switch ev := ev.(type) {
		case models.EventStatus:
			if gotResults {
				return nil
			}
			step := models.SearchStep{Step: ev.Step, Message: ev.Message, Timestamp: c.now()}
			if !c.addStep(sess, step) {
				return ErrSuperseded
			}
		case models.EventResults:
			if gotResults {
				c.logger.Warn("ignoring repeated results event", zap.String("session", sess.id))
				return nil
			}
			gotResults = true
			resp := ev.Data
			if !c.complete(sess, &resp) {
				return ErrSuperseded
			}
		default:
			c.logger.Debug("ignoring stream event", zap.String("type", ev.EventType()))
		}
		return nil
	})

	switch {
	case !c.isActive(sess):
		if sess.result == nil && sess.err == nil {
			sess.err = ErrSuperseded
		}
	case gotResults:
		if err != nil {
			c.logger.Debug("search stream ended with error after results", zap.Error(err))
		}
	case err != nil:
		c.fail(sess, err)
	default:
		c.fail(sess, ErrIncompleteStream)
	}
}

func (c *Controller) isActive(sess *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == sess
}

func (c *Controller) addStep(sess *Session, step models.SearchStep) bool {
	c.mu.Lock()
	if c.active != sess {
		c.mu.Unlock()
		return false
	}
	c.steps = append(c.steps, step)
	c.mu.Unlock()

	sess.send(Update{Kind: UpdateStep, Step: step}, false)
	return true
}

func (c *Controller) complete(sess *Session, resp *models.SearchResponse) bool {
	c.mu.Lock()
	if c.active != sess {
		c.mu.Unlock()
		return false
	}
	c.result = resp
	if resp.IsEmpty() {
		c.state = StateEmpty
	} else {
		c.state = StateComplete
	}
	state := c.state
	c.mu.Unlock()

	sess.result = resp
	c.logger.Info("search complete",
		zap.String("session", sess.id),
		zap.Stringer("state", state),
		zap.Int("focus_groups", len(resp.FocusGroups())),
		zap.Int("lessons", len(resp.Lessons)))
	sess.send(Update{Kind: UpdateResults, Result: resp}, true)
	return true
}

func (c *Controller) fail(sess *Session, err error) {
	c.mu.Lock()
	if c.active != sess {
		c.mu.Unlock()
		sess.err = ErrSuperseded
		return
	}
	c.state = StateFailed
	c.err = err
	c.mu.Unlock()

	sess.err = err
	c.logger.Error("search failed", zap.String("session", sess.id), zap.Error(err))
	sess.send(Update{Kind: UpdateFailed, Err: err}, true)
}
