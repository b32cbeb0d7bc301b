// Package synthesis runs streamed and one-shot synthesis requests against the backend,
// tracks their per-key state, and gates cross-item (macro) synthesis on the per-item
// results it depends on.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrNotReady is returned when an operation needs per-item summaries that are not
	// complete yet.
	ErrNotReady = errors.New("summaries not ready")
	// ErrEmptySelection is returned for a macro request with nothing selected.
	ErrEmptySelection = errors.New("nothing selected")
	// ErrPrerequisiteFailed is reported when a queued macro synthesis can no longer
	// fire because a selected item's summary failed.
	ErrPrerequisiteFailed = errors.New("selected summary failed")
)

// Backend is the subset of the API client used here.
type Backend interface {
	OpenStream(ctx context.Context, path string, payload any) (io.ReadCloser, error)
	PostJSON(ctx context.Context, path string, payload, out any) error
}

// EventKind identifies a synthesis event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventChunk
	EventComplete
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventChunk:
		return "chunk"
	case EventComplete:
		return "complete"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Terminal reports whether k ends a synthesis.
func (k EventKind) Terminal() bool {
	return k == EventComplete || k == EventFailed
}

// Event is one step of a synthesis. Text is the accumulated text so far; for
// EventFailed it is the user-facing error message.
type Event struct {
	Key   Key
	Kind  EventKind
	Delta string
	Text  string
	Err   error
}

// Kind is the kind of synthesis a key refers to.
type Kind string

const (
	FocusGroupSummary Kind = "fg_summary"
	StrategySummary   Kind = "strategy_summary"
	FocusGroupDeep    Kind = "fg_deep"
	StrategyDeep      Kind = "strategy_deep"
	Macro             Kind = "macro"
)

// ParseKind parses the string form of a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case FocusGroupSummary, StrategySummary, FocusGroupDeep, StrategyDeep, Macro:
		return k, nil
	}
	return "", fmt.Errorf("unknown synthesis kind %q", s)
}

// Key addresses one synthesis: a kind and the focus group or race id it is for.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

// Status is the state of one keyed synthesis.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusStreaming
	StatusComplete
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusStreaming:
		return "streaming"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for st := StatusIdle; st <= StatusFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown synthesis status %q", text)
}

// Terminal reports whether s is Complete or Failed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Busy reports whether a request is in flight.
func (s Status) Busy() bool {
	return s == StatusLoading || s == StatusStreaming
}

// State is a snapshot of one keyed synthesis.
type State struct {
	Status     Status    `json:"status"`
	Text       string    `json:"text"`
	Err        error     `json:"-"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}
