// Package export writes research reports as Markdown, PDF or XLSX.
package export

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/kikoe/internal/models"
)

// Data is everything a report is generated from. Maps are keyed by focus-group id or
// race id.
type Data struct {
	Query             string
	Results           []models.GroupedResult
	Lessons           []models.StrategyGroupedResult
	Summaries         map[string]string
	DeepSyntheses     map[string]string
	StrategySummaries map[string]string
	StrategyDeep      map[string]string
	MacroResult       string
	Themes            []models.Theme
	Stats             models.SearchStats
	GeneratedAt       time.Time
}

// Options tunes report output.
type Options struct {
	// IncludeSources adds the source file and line under each quote.
	IncludeSources bool
}

// Format is a report format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatPDF      Format = "pdf"
	FormatXLSX     Format = "xlsx"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "pdf":
		return FormatPDF, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown export format %q (want md, pdf or xlsx)", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/markdown; charset=utf-8"
	}
}

// Write writes data to w in format f.
func Write(w io.Writer, f Format, data Data, opts Options) error {
	switch f {
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(data, opts))
		return err
	case FormatPDF:
		return PDF(w, data)
	case FormatXLSX:
		return XLSX(w, data)
	}
	return fmt.Errorf("unknown export format %q", f)
}

var (
	metaPrefixRe   = regexp.MustCompile(`^\[[\s\S]*?\]\s*(?:Q:[\s\S]*?\n)?`)
	questionLineRe = regexp.MustCompile(`(?m)^Q:.*\n?`)
	nonAlnumRe     = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// CleanQuote strips the bracketed metadata prefix, moderator question lines and one
// pair of surrounding quote marks from an excerpt.
func CleanQuote(content string) string {
	s := strings.TrimSpace(metaPrefixRe.ReplaceAllString(content, ""))
	if loc := questionLineRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]] + s[loc[1]:]
	}
	s = strings.TrimSpace(s)
	for _, q := range []string{`"`, "“", "”"} {
		if strings.HasPrefix(s, q) {
			s = s[len(q):]
			break
		}
	}
	for _, q := range []string{`"`, "“", "”"} {
		if strings.HasSuffix(s, q) {
			s = s[:len(s)-len(q)]
			break
		}
	}
	return strings.TrimSpace(s)
}

// Filename returns the download name for a report: "Report_" followed by the first 30
// characters of the query with anything but ASCII letters and digits replaced by "_".
func Filename(query, ext string) string {
	r := []rune(query)
	if len(r) > 30 {
		r = r[:30]
	}
	return "Report_" + nonAlnumRe.ReplaceAllString(string(r), "_") + "." + strings.TrimPrefix(ext, ".")
}

func outcomeTag(outcome string) string {
	if outcome == "win" {
		return "(Win)"
	}
	return "(Loss)"
}

func outcomeLabel(outcome string) string {
	if outcome == "win" {
		return "WIN"
	}
	return "LOSS"
}

func lessonTitle(meta models.StrategyMetadata) string {
	parts := make([]string, 0, 3)
	state := meta.State
	if state == "" {
		state = "Unknown"
	}
	parts = append(parts, state)
	if meta.Office != "" {
		parts = append(parts, meta.Office)
	}
	if meta.Year != nil {
		parts = append(parts, strconv.Itoa(*meta.Year))
	}
	return strings.Join(parts, " ")
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func dateLabel(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("Jan 2, 2006")
}
