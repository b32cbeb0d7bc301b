package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrInvalidPayload marks a payload that decoded but violates its schema.
	ErrInvalidPayload = errors.New("invalid payload")
)

const maxTopK = 100

// SearchRequest is the body of every search endpoint.
type SearchRequest struct {
	Query          string  `json:"query"`
	TopK           int     `json:"top_k"`
	ScoreThreshold float64 `json:"score_threshold"`
}

// Validate trims the query and normalizes the tuning values.
// Returns ErrEmptyQuery if the query is blank.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return ErrEmptyQuery
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.TopK > maxTopK {
		r.TopK = maxTopK
	}
	if r.ScoreThreshold < 0 {
		r.ScoreThreshold = 0
	}
	if r.ScoreThreshold > 1 {
		r.ScoreThreshold = 1
	}
	return nil
}

// SearchStats summarizes a search.
type SearchStats struct {
	RetrievalTimeMs  int64  `json:"retrieval_time_ms"`
	TotalQuotes      int    `json:"total_quotes"`
	TotalLessons     int    `json:"total_lessons,omitempty"`
	FocusGroupsCount int    `json:"focus_groups_count"`
	RacesCount       int    `json:"races_count,omitempty"`
	RoutedTo         string `json:"routed_to,omitempty"`
	OutcomeFilter    string `json:"outcome_filter,omitempty"`
}

// SearchResponse is the final search payload. It accepts the focus-group-only shape
// (results) as well as the unified shape (quotes and lessons).
type SearchResponse struct {
	ContentType string                  `json:"content_type,omitempty"`
	Results     []GroupedResult         `json:"results,omitempty"`
	Quotes      []GroupedResult         `json:"quotes,omitempty"`
	Lessons     []StrategyGroupedResult `json:"lessons,omitempty"`
	Stats       SearchStats             `json:"stats"`
}

// FocusGroups returns the focus-group results: quotes, falling back to results.
func (r *SearchResponse) FocusGroups() []GroupedResult {
	if r == nil {
		return nil
	}
	if len(r.Quotes) > 0 {
		return r.Quotes
	}
	return r.Results
}

// IsEmpty reports a completed search with no focus groups and no lessons.
func (r *SearchResponse) IsEmpty() bool {
	return len(r.FocusGroups()) == 0 && (r == nil || len(r.Lessons) == 0)
}

// Validate checks every contained result.
func (r *SearchResponse) Validate() error {
	for i := range r.Results {
		if err := r.Results[i].Validate(); err != nil {
			return err
		}
	}
	for i := range r.Quotes {
		if err := r.Quotes[i].Validate(); err != nil {
			return err
		}
	}
	for i := range r.Lessons {
		if err := r.Lessons[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FocusGroup returns the focus-group result with id.
func (r *SearchResponse) FocusGroup(id string) (*GroupedResult, bool) {
	groups := r.FocusGroups()
	for i := range groups {
		if groups[i].FocusGroupID == id {
			return &groups[i], true
		}
	}
	return nil, false
}

// Lesson returns the strategy result with race id.
func (r *SearchResponse) Lesson(raceID string) (*StrategyGroupedResult, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Lessons {
		if r.Lessons[i].RaceID == raceID {
			return &r.Lessons[i], true
		}
	}
	return nil, false
}

// SearchStep is a progress event recorded during a streaming search.
type SearchStep struct {
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (s SearchStep) String() string {
	return fmt.Sprintf("%s: %s", s.Step, s.Message)
}
