package models

import (
	"encoding/json"
	"fmt"
)

// StrategyChunk is a sectioned excerpt from a campaign strategy memo.
type StrategyChunk struct {
	ChunkID    string  `json:"chunk_id"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
	RaceID     string  `json:"race_id"`
	Section    string  `json:"section"`
	Subsection string  `json:"subsection,omitempty"`
	Outcome    string  `json:"outcome"`
	State      string  `json:"state"`
	Year       int     `json:"year"`
	Margin     float64 `json:"margin"`
	SourceFile string  `json:"source_file"`
	LineNumber int     `json:"line_number"`
}

// StrategyMetadata describes a race. Year and Margin are pointers so an absent value can
// be told apart from zero.
type StrategyMetadata struct {
	State   string         `json:"state,omitempty"`
	Office  string         `json:"office,omitempty"`
	Year    *int           `json:"year,omitempty"`
	Outcome string         `json:"outcome,omitempty"`
	Margin  *float64       `json:"margin,omitempty"`
	Extra   map[string]any `json:"-"`
}

var strategyMetadataKeys = []string{"state", "office", "year", "outcome", "margin"}

// UnmarshalJSON decodes known fields and keeps the rest in Extra.
func (m *StrategyMetadata) UnmarshalJSON(data []byte) error {
	type plain StrategyMetadata
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraKeys(data, strategyMetadataKeys)
	if err != nil {
		return err
	}
	*m = StrategyMetadata(p)
	m.Extra = extra
	return nil
}

// MarshalJSON writes known fields and Extra.
func (m StrategyMetadata) MarshalJSON() ([]byte, error) {
	type plain StrategyMetadata
	return mergeExtra(plain(m), m.Extra)
}

// Clone returns a deep copy.
func (m StrategyMetadata) Clone() StrategyMetadata {
	out := m
	if m.Year != nil {
		y := *m.Year
		out.Year = &y
	}
	if m.Margin != nil {
		v := *m.Margin
		out.Margin = &v
	}
	out.Extra = cloneMap(m.Extra)
	return out
}

// StrategyGroupedResult is one race's strategy excerpts.
type StrategyGroupedResult struct {
	RaceID   string           `json:"race_id"`
	Metadata StrategyMetadata `json:"race_metadata"`
	Chunks   []StrategyChunk  `json:"chunks"`
}

// Validate checks the fields the client relies on.
func (s *StrategyGroupedResult) Validate() error {
	if s.RaceID == "" {
		return fmt.Errorf("%w: strategy result without race_id", ErrInvalidPayload)
	}
	return nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }
