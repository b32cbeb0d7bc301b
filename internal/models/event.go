package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned for a stream record whose type is missing or unsupported.
var ErrUnknownEvent = errors.New("unknown stream event")

// Stream event type tags.
const (
	TypeStatus  = "status"
	TypeResults = "results"
	TypeTheme   = "theme"
)

// StreamEvent is one decoded record of an NDJSON stream. It is one of
// EventStatus, EventResults or EventTheme.
type StreamEvent interface {
	EventType() string
}

// EventStatus is a progress step.
type EventStatus struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// EventResults carries the final search payload.
type EventResults struct {
	Data SearchResponse `json:"data"`
}

// EventTheme is a theme produced by deep macro synthesis.
type EventTheme struct {
	Name          string   `json:"name"`
	FocusGroupIDs []string `json:"focus_group_ids"`
	Rationale     string   `json:"rationale,omitempty"`
	Synthesis     string   `json:"synthesis"`
}

func (EventStatus) EventType() string  { return TypeStatus }
func (EventResults) EventType() string { return TypeResults }
func (EventTheme) EventType() string   { return TypeTheme }

// ParseStreamEvent decodes a single NDJSON line into its tagged variant.
func ParseStreamEvent(line []byte) (StreamEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch envelope.Type {
	case TypeStatus:
		var ev EventStatus
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode status event: %w", err)
		}
		if ev.Step == "" {
			return nil, fmt.Errorf("%w: status event without step", ErrInvalidPayload)
		}
		return ev, nil
	case TypeResults:
		var ev EventResults
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode results event: %w", err)
		}
		if err := ev.Data.Validate(); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeTheme:
		var ev EventTheme
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode theme event: %w", err)
		}
		if ev.Name == "" {
			return nil, fmt.Errorf("%w: theme event without name", ErrInvalidPayload)
		}
		return ev, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrUnknownEvent)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Type)
	}
}
