package synthesis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/kikoe/pkg/utils"
	"go.uber.org/zap"
)

// Job describes one synthesis request. Streamed jobs accumulate a plain-text body; the
// others decode a JSON {"summary": ...} response.
type Job struct {
	Path    string
	Payload any
	Stream  bool
}

type entry struct {
	state  State
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func (e *entry) finish() {
	if !e.closed {
		e.closed = true
		close(e.done)
	}
}

// Store holds the state machine of every keyed synthesis:
// Idle -> Loading -> Streaming* -> Complete | Failed.
// Each key is written by at most one running job.
type Store struct {
	backend Backend
	acc     *Accumulator
	logger  *zap.Logger

	mu      sync.Mutex
	entries map[Key]*entry
	gen     uint64
	epoch   uint64
	subs    map[int]*subscriber
	nextSub int
	wg      sync.WaitGroup
}

// NewStore creates a Store. errorMessage replaces the text of failed syntheses.
func NewStore(backend Backend, errorMessage string, logger *zap.Logger) *Store {
	logger = utils.OrNop(logger)
	return &Store{
		backend: backend,
		acc:     NewAccumulator(backend, errorMessage, logger),
		logger:  logger,
		entries: make(map[Key]*entry),
		subs:    make(map[int]*subscriber),
	}
}

// ErrorMessage returns the text that replaces a failed synthesis.
func (s *Store) ErrorMessage() string {
	return s.acc.ErrorMessage()
}

// Start runs job for key unless the key is already loading, has failed, or has completed
// with non-empty text. It reports whether a request was started. The job runs until it
// finishes, ctx is canceled, or the key is reset.
func (s *Store) Start(ctx context.Context, key Key, job Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx, key, job)
}

// Epoch identifies the current generation of the whole store. ResetAll advances it.
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// StartIn is Start for work scheduled against epoch. It refuses to run once ResetAll has
// been called since, so a job built for an earlier result set never lands in the
// current one.
func (s *Store) StartIn(ctx context.Context, epoch uint64, key Key, job Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		s.logger.Debug("stale synthesis dropped", zap.Stringer("key", key), zap.Uint64("epoch", epoch))
		return false
	}
	return s.startLocked(ctx, key, job)
}

func (s *Store) startLocked(ctx context.Context, key Key, job Job) bool {
	if e, ok := s.entries[key]; ok {
		switch {
		case e.state.Status.Busy(), e.state.Status == StatusFailed:
			return false
		case e.state.Status == StatusComplete && e.state.Text != "":
			return false
		}
	}

	s.gen++
	jobCtx, cancel := context.WithCancel(ctx)
	e := &entry{
		state:  State{Status: StatusLoading, StartedAt: time.Now()},
		gen:    s.gen,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.entries[key] = e

	s.wg.Add(1)
	go func(gen uint64) {
		defer s.wg.Done()
		defer cancel()
		s.run(jobCtx, key, gen, job)
	}(e.gen)

	s.logger.Debug("synthesis started", zap.Stringer("key", key), zap.String("path", job.Path))
	return true
}

func (s *Store) run(ctx context.Context, key Key, gen uint64, job Job) {
	if job.Stream {
		for ev := range s.acc.Stream(ctx, job.Path, job.Payload) {
			s.apply(key, gen, ev)
		}
		return
	}

	s.apply(key, gen, Event{Kind: EventStarted})
	var out struct {
		Summary string `json:"summary"`
	}
	if err := s.backend.PostJSON(ctx, job.Path, job.Payload, &out); err != nil {
		if ctx.Err() == nil {
			s.logger.Error("summary failed", zap.Stringer("key", key), zap.Error(err))
		}
		s.apply(key, gen, Event{Kind: EventFailed, Text: s.acc.ErrorMessage(), Err: err})
		return
	}
	s.apply(key, gen, Event{Kind: EventComplete, Text: out.Summary})
}

// apply records ev for key if it belongs to the key's current job.
func (s *Store) apply(key Key, gen uint64, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.gen != gen || e.state.Status.Terminal() {
		return
	}
	switch ev.Kind {
	case EventStarted:
		e.state.Status = StatusLoading
	case EventChunk:
		e.state.Status = StatusStreaming
		e.state.Text = ev.Text
	case EventComplete:
		e.state.Status = StatusComplete
		e.state.Text = ev.Text
		e.state.FinishedAt = time.Now()
	case EventFailed:
		e.state.Status = StatusFailed
		e.state.Text = ev.Text
		e.state.Err = ev.Err
		e.state.FinishedAt = time.Now()
	}
	if ev.Kind.Terminal() {
		e.finish()
	}

	ev.Key = key
	for _, sub := range s.subs {
		sub.push(ev)
	}
}

// Get returns the state of key. Unknown keys are Idle.
func (s *Store) Get(key Key) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.state
	}
	return State{}
}

// Text returns the current text of key.
func (s *Store) Text(key Key) string {
	return s.Get(key).Text
}

// Completed reports whether every key has completed successfully.
func (s *Store) Completed(keys ...Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		e, ok := s.entries[k]
		if !ok || e.state.Status != StatusComplete {
			return false
		}
	}
	return true
}

// Texts returns the completed text of every key of kind, by id.
func (s *Store) Texts(kind Kind) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for k, e := range s.entries {
		if k.Kind == kind && e.state.Status == StatusComplete {
			out[k.ID] = e.state.Text
		}
	}
	return out
}

// Snapshot returns the state of every known key of kind, by id.
func (s *Store) Snapshot(kind Kind) map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State)
	for k, e := range s.entries {
		if k.Kind == kind {
			out[k.ID] = e.state
		}
	}
	return out
}

// Keys returns every known key, sorted.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Reset returns key to Idle, aborting a running job. Late events of that job are dropped.
func (s *Store) Reset(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(key)
}

// ResetAll returns every key to Idle and advances the epoch.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	for k := range s.entries {
		s.resetLocked(k)
	}
}

func (s *Store) resetLocked(key Key) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	e.cancel()
	e.finish()
}

// Wait blocks until key is Complete or Failed, or until it is reset, and returns its
// state. It returns immediately for a key that was never started.
func (s *Store) Wait(ctx context.Context, key Key) (State, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return State{}, nil
	}
	done := e.done
	s.mu.Unlock()

	select {
	case <-done:
		return s.Get(key), nil
	case <-ctx.Done():
		return s.Get(key), ctx.Err()
	}
}

// Subscribe returns a channel receiving every keyed event from now on and a function
// that ends the subscription. Delivery never blocks the store; under backpressure chunk
// events may be skipped but started and terminal events are kept.
func (s *Store) Subscribe() (<-chan Event, func()) {
	sub := newSubscriber()
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()

	return sub.out, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.stop()
	}
}

// Close aborts every job and waits for them to exit.
func (s *Store) Close() {
	s.ResetAll()
	s.wg.Wait()
}
