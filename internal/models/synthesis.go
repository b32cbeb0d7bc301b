package models

// SynthesisRequest is the body of /synthesize/light and /synthesize/deep.
type SynthesisRequest struct {
	Quotes         []RetrievalChunk `json:"quotes"`
	Query          string           `json:"query"`
	FocusGroupName string           `json:"focus_group_name"`
}

// StrategySynthesisRequest is the body of the strategy light and deep endpoints.
type StrategySynthesisRequest struct {
	Chunks   []StrategyChunk `json:"chunks"`
	Query    string          `json:"query"`
	RaceName string          `json:"race_name"`
}

// LightMacroRequest is the body of /synthesize/macro/light.
type LightMacroRequest struct {
	FGSummaries map[string]string             `json:"fg_summaries"`
	TopQuotes   map[string][]RetrievalChunk   `json:"top_quotes"`
	FGMetadata  map[string]FocusGroupMetadata `json:"fg_metadata"`
	Query       string                        `json:"query"`
}

// DeepMacroRequest is the body of /synthesize/macro/deep.
type DeepMacroRequest LightMacroRequest

// UnifiedMacroRequest is the body of /synthesize/unified/macro.
type UnifiedMacroRequest struct {
	FGSummaries       map[string]string             `json:"fg_summaries"`
	FGQuotes          map[string][]RetrievalChunk   `json:"fg_quotes"`
	FGMetadata        map[string]FocusGroupMetadata `json:"fg_metadata"`
	StrategySummaries map[string]string             `json:"strategy_summaries"`
	StrategyChunks    map[string][]StrategyChunk    `json:"strategy_chunks"`
	StrategyMetadata  map[string]StrategyMetadata   `json:"strategy_metadata"`
	Query             string                        `json:"query"`
}

// LightSummary is the response of the light synthesis endpoints.
type LightSummary struct {
	Summary string `json:"summary"`
}

// Theme is a cross-focus-group theme with its synthesis.
type Theme struct {
	Name        string   `json:"name"`
	Rationale   string   `json:"rationale,omitempty"`
	Synthesis   string   `json:"synthesis"`
	FocusGroups []string `json:"focus_groups"`
}

// ThemeFromEvent converts a stream event to a Theme.
func ThemeFromEvent(ev EventTheme) Theme {
	return Theme{
		Name:        ev.Name,
		Rationale:   ev.Rationale,
		Synthesis:   ev.Synthesis,
		FocusGroups: append([]string(nil), ev.FocusGroupIDs...),
	}
}
