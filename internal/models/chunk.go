// Package models defines the wire schemas exchanged with the research backend:
// focus-group and strategy excerpts, their grouped results, search responses, stream
// events, corpus entries and synthesis requests.
package models

import (
	"encoding/json"
	"fmt"
)

// RetrievalChunk is a single quoted focus-group excerpt.
type RetrievalChunk struct {
	ChunkID             string  `json:"chunk_id"`
	Score               float64 `json:"score"`
	Content             string  `json:"content"`
	ContentOriginal     *string `json:"content_original"`
	FocusGroupID        string  `json:"focus_group_id"`
	Participant         string  `json:"participant"`
	ParticipantProfile  string  `json:"participant_profile"`
	Section             string  `json:"section"`
	SourceFile          string  `json:"source_file"`
	LineNumber          int     `json:"line_number"`
	PrecedingModeratorQ string  `json:"preceding_moderator_q"`
}

// ModeratorNotes holds the moderator's structured notes for a session.
type ModeratorNotes struct {
	KeyThemes []string `json:"key_themes,omitempty"`
}

// FocusGroupMetadata describes one focus-group session. Keys the backend adds beyond the
// known ones are kept in Extra and written back out unchanged.
type FocusGroupMetadata struct {
	Location           string          `json:"location,omitempty"`
	Date               string          `json:"date,omitempty"`
	RaceName           string          `json:"race_name,omitempty"`
	ParticipantSummary string          `json:"participant_summary,omitempty"`
	ModeratorNotes     *ModeratorNotes `json:"moderator_notes,omitempty"`
	Outcome            string          `json:"outcome,omitempty"`
	Extra              map[string]any  `json:"-"`
}

var focusGroupMetadataKeys = []string{"location", "date", "race_name", "participant_summary", "moderator_notes", "outcome"}

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (m *FocusGroupMetadata) UnmarshalJSON(data []byte) error {
	type plain FocusGroupMetadata
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraKeys(data, focusGroupMetadataKeys)
	if err != nil {
		return err
	}
	*m = FocusGroupMetadata(p)
	m.Extra = extra
	return nil
}

// MarshalJSON writes known fields and Extra.
func (m FocusGroupMetadata) MarshalJSON() ([]byte, error) {
	type plain FocusGroupMetadata
	return mergeExtra(plain(m), m.Extra)
}

// Clone returns a deep copy.
func (m FocusGroupMetadata) Clone() FocusGroupMetadata {
	out := m
	if m.ModeratorNotes != nil {
		notes := ModeratorNotes{KeyThemes: append([]string(nil), m.ModeratorNotes.KeyThemes...)}
		out.ModeratorNotes = &notes
	}
	out.Extra = cloneMap(m.Extra)
	return out
}

// GroupedResult is one focus-group session with its matching excerpts.
type GroupedResult struct {
	FocusGroupID string             `json:"focus_group_id"`
	Metadata     FocusGroupMetadata `json:"focus_group_metadata"`
	Chunks       []RetrievalChunk   `json:"chunks"`
}

// Validate checks the fields the client relies on.
func (g *GroupedResult) Validate() error {
	if g.FocusGroupID == "" {
		return fmt.Errorf("%w: focus group result without focus_group_id", ErrInvalidPayload)
	}
	return nil
}

// Name returns the display name used for synthesis requests: the location, or the id.
func (g *GroupedResult) Name() string {
	if g.Metadata.Location != "" {
		return g.Metadata.Location
	}
	return g.FocusGroupID
}

func extraKeys(data []byte, known []string) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func mergeExtra(v any, extra map[string]any) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return base, err
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, val := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = val
		}
	}
	return json.Marshal(merged)
}

// cloneMap copies one level; nested values come from JSON decoding and are never mutated.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
