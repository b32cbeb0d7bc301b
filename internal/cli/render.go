// Package cli renders kikoe results in the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/kikoe/internal/corpus"
	"github.com/hyperjump/kikoe/internal/export"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/race"
	"github.com/hyperjump/kikoe/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat parses an --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

var (
	colorAccent  = lipgloss.Color("#4F46E5")
	colorMuted   = lipgloss.Color("#6B7280")
	colorWin     = lipgloss.Color("#16A34A")
	colorLoss    = lipgloss.Color("#DC2626")
	colorDivider = lipgloss.Color("#D1D5DB")
)

// Styles are the terminal styles of one output. Colors are dropped when the output is
// not a terminal.
type Styles struct {
	Title   lipgloss.Style
	Race    lipgloss.Style
	Muted   lipgloss.Style
	Win     lipgloss.Style
	Loss    lipgloss.Style
	Quote   lipgloss.Style
	Divider lipgloss.Style
}

// NewStyles returns styles rendering for w.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(colorAccent),
		Race:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(colorMuted),
		Win:     r.NewStyle().Bold(true).Foreground(colorWin),
		Loss:    r.NewStyle().Bold(true).Foreground(colorLoss),
		Quote:   r.NewStyle().PaddingLeft(2).BorderLeft(true).BorderStyle(lipgloss.NormalBorder()).BorderForeground(colorDivider),
		Divider: r.NewStyle().Foreground(colorDivider),
	}
}

func (s Styles) outcome(outcome string, margin *float64) string {
	if outcome == "" {
		return ""
	}
	label, style := "LOSS", s.Loss
	if outcome == "win" {
		label, style = "WIN", s.Win
	}
	if m := race.MarginLabel(margin); m != "" {
		label += " " + m
	}
	return style.Render(label)
}

// searchOutput is the JSON shape of a search.
type searchOutput struct {
	Query string              `json:"query"`
	Stats models.SearchStats  `json:"stats"`
	Races []*race.Group       `json:"races"`
	Steps []models.SearchStep `json:"steps,omitempty"`
}

// WriteSearchResults writes race groups to w in the given format.
func WriteSearchResults(w io.Writer, query string, resp *models.SearchResponse, races []*race.Group, format OutputFormat) error {
	if format == OutputJSON {
		out := searchOutput{Query: query, Races: races}
		if resp != nil {
			out.Stats = resp.Stats
		}
		if out.Races == nil {
			out.Races = []*race.Group{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	writeSearchResultsText(w, resp, races)
	return nil
}

func writeSearchResultsText(w io.Writer, resp *models.SearchResponse, races []*race.Group) {
	st := NewStyles(w)
	if resp.IsEmpty() {
		fmt.Fprintln(w, st.Muted.Render("No results found. Try a broader query."))
		return
	}
	stats := resp.Stats
	fmt.Fprintf(w, "\n%s\n\n", st.Muted.Render(fmt.Sprintf("%d quotes from %d focus groups, %d lessons in %dms",
		stats.TotalQuotes, stats.FocusGroupsCount, len(resp.Lessons), stats.RetrievalTimeMs)))

	for _, g := range races {
		header := st.Race.Render(g.DisplayName())
		if y := g.YearLabel(); y != "" && !strings.Contains(g.Name, y) {
			header += " " + st.Muted.Render(y)
		}
		if o := st.outcome(g.Metadata.Outcome, g.Metadata.Margin); o != "" {
			header += "  " + o
		}
		fmt.Fprintln(w, st.Divider.Render(strings.Repeat("─", 57)))
		fmt.Fprintln(w, header)
		fmt.Fprintln(w, st.Muted.Render(fmt.Sprintf("%d focus groups, %d strategy memos", len(g.FocusGroups), len(g.Strategies))))
		fmt.Fprintln(w)

		for _, s := range g.Strategies {
			fmt.Fprintf(w, "  %s %s\n", st.Title.Render("Strategy"), st.Muted.Render(s.RaceID))
			for _, c := range s.Chunks {
				line := TruncateWords(export.CleanQuote(c.Content), 40)
				if c.Section != "" {
					line = c.Section + ": " + line
				}
				fmt.Fprintf(w, "    • %s\n", line)
			}
			fmt.Fprintln(w)
		}
		for _, fg := range g.FocusGroups {
			fmt.Fprintf(w, "  %s %s\n", st.Title.Render(fg.Name()), st.Muted.Render(joinNonEmpty(" · ", fg.FocusGroupID, fg.Metadata.Date)))
			for _, c := range fg.Chunks {
				quote := st.Quote.Render(utils.Truncate(export.CleanQuote(c.Content), 200))
				fmt.Fprintln(w, indent(quote, "    "))
				who := c.Participant
				if c.ParticipantProfile != "" {
					who += " (" + c.ParticipantProfile + ")"
				}
				fmt.Fprintf(w, "      %s\n", st.Muted.Render("— "+who))
			}
			fmt.Fprintln(w)
		}
	}
}

// WriteSummaries writes the light summary of every race and focus group, in race order.
// Items without a summary are skipped.
func WriteSummaries(w io.Writer, races []*race.Group, focusGroups, strategies map[string]string) {
	st := NewStyles(w)
	for _, g := range races {
		var lines []string
		for _, s := range g.Strategies {
			if text := strategies[s.RaceID]; text != "" {
				lines = append(lines, fmt.Sprintf("  %s %s", st.Title.Render("Lessons:"), text))
			}
		}
		for _, fg := range g.FocusGroups {
			if text := focusGroups[fg.FocusGroupID]; text != "" {
				lines = append(lines, fmt.Sprintf("  %s %s", st.Title.Render(fg.Name()+":"), text))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintln(w, st.Race.Render(g.DisplayName()))
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
		fmt.Fprintln(w)
	}
}

// WriteStep writes one search progress step.
func WriteStep(w io.Writer, step models.SearchStep) {
	st := NewStyles(w)
	fmt.Fprintf(w, "%s %s\n", st.Title.Render("•"), step.String())
}

// WriteCorpus writes corpus sections in the given format.
func WriteCorpus(w io.Writer, sections []corpus.Section, format OutputFormat) error {
	if format == OutputJSON {
		if sections == nil {
			sections = []corpus.Section{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sections)
	}
	st := NewStyles(w)
	total := 0
	for _, s := range sections {
		fmt.Fprintln(w, st.Race.Render(strings.ToUpper(s.Race)))
		for _, item := range s.Items {
			name := item.Location
			if name == "" {
				name = item.Title
			}
			marker := st.Loss.Render("●")
			if item.Outcome == "win" {
				marker = st.Win.Render("●")
			}
			fmt.Fprintf(w, "  %s %s %s\n", marker, name, st.Muted.Render(item.Type+"/"+item.ID))
			total++
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, st.Muted.Render(fmt.Sprintf("%d documents", total)))
	return nil
}

// RenderMarkdown renders markdown for the terminal. Pass tty=false for plain output.
func RenderMarkdown(md string, width int, tty bool) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if tty {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	return r.Render(md)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
