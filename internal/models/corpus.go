package models

// Corpus document types.
const (
	DocFocusGroup   = "focus_group"
	DocStrategyMemo = "strategy_memo"
)

// CorpusItem is one entry of the corpus index.
type CorpusItem struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Date     string `json:"date,omitempty"`
	Location string `json:"location,omitempty"`
	RaceName string `json:"race_name,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	FilePath string `json:"file_path"`
}

// DocumentContent is a corpus document body in Markdown.
type DocumentContent struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
