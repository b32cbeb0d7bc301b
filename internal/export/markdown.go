package export

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kikoe/internal/race"
)

// Markdown renders data as a Markdown report.
func Markdown(data Data, opts Options) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		if len(args) == 0 {
			b.WriteString(format)
		} else {
			fmt.Fprintf(&b, format, args...)
		}
		b.WriteByte('\n')
	}

	line("# Focus Group Research Report")
	line("")
	line("**Query:** %s", data.Query)
	line("")
	if data.Stats.TotalQuotes > 0 || data.Stats.FocusGroupsCount > 0 {
		line("%d quotes from %d focus groups • %s", data.Stats.TotalQuotes, data.Stats.FocusGroupsCount, dateLabel(data.GeneratedAt))
		line("")
	}

	if macro := strings.TrimSpace(data.MacroResult); macro != "" {
		line("---")
		line("")
		line("## Summary")
		line("")
		line(macro)
		line("")
	}

	if len(data.Themes) > 0 {
		line("---")
		line("")
		line("## Themes")
		line("")
		for i, theme := range data.Themes {
			line("### %d. %s", i+1, theme.Name)
			line("")
			line(strings.TrimSpace(theme.Synthesis))
			line("")
			if len(theme.FocusGroups) > 0 {
				line("*Sources: %s*", strings.Join(theme.FocusGroups, ", "))
				line("")
			}
		}
	}

	if len(data.Lessons) > 0 {
		line("---")
		line("")
		line("## Campaign Lessons")
		line("")
		for _, lesson := range data.Lessons {
			meta := lesson.Metadata
			line("### %s", lessonTitle(meta))
			line("")
			line("*%s*", joinNonEmpty(" • ", outcomeLabel(meta.Outcome), race.MarginLabel(meta.Margin)))
			line("")
			if deep := strings.TrimSpace(data.StrategyDeep[lesson.RaceID]); deep != "" {
				line("#### Deep Analysis")
				line("")
				line(deep)
				line("")
			} else if summary := strings.TrimSpace(data.StrategySummaries[lesson.RaceID]); summary != "" {
				line("**Summary:** %s", summary)
				line("")
			}
			for _, chunk := range lesson.Chunks {
				excerpt := CleanQuote(chunk.Content)
				if chunk.Section != "" {
					line("- **%s:** %s", chunk.Section, excerpt)
				} else {
					line("- %s", excerpt)
				}
			}
			line("")
		}
	}

	line("---")
	line("")
	line("## Findings by Focus Group")
	line("")
	for _, group := range data.Results {
		meta := group.Metadata
		line("### %s %s", group.Name(), outcomeTag(meta.Outcome))
		line("")
		if parts := joinNonEmpty(" • ", meta.Date, meta.RaceName); parts != "" {
			line("*%s*", parts)
			line("")
		}
		if deep := strings.TrimSpace(data.DeepSyntheses[group.FocusGroupID]); deep != "" {
			line("#### Deep Analysis")
			line("")
			line(deep)
			line("")
		} else if summary := data.Summaries[group.FocusGroupID]; summary != "" {
			line("**Synthesis:** %s", summary)
			line("")
		}
		for _, chunk := range group.Chunks {
			profile := ""
			if chunk.ParticipantProfile != "" {
				profile = " (" + chunk.ParticipantProfile + ")"
			}
			line("> \"%s\"  ", CleanQuote(chunk.Content))
			line("> — **%s**%s", chunk.Participant, profile)
			if opts.IncludeSources && chunk.SourceFile != "" {
				if chunk.LineNumber > 0 {
					line("> *Source: %s, line %d*", chunk.SourceFile, chunk.LineNumber)
				} else {
					line("> *Source: %s*", chunk.SourceFile)
				}
			}
			line("")
		}
		line("")
	}
	return b.String()
}
