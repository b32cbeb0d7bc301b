package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/hyperjump/kikoe/internal/race"
)

type rgb [3]int

var (
	colorPrimary = rgb{79, 70, 229}
	colorGray900 = rgb{17, 24, 39}
	colorGray800 = rgb{31, 41, 55}
	colorGray700 = rgb{55, 65, 81}
	colorGray600 = rgb{75, 85, 99}
	colorGray500 = rgb{107, 114, 128}
	colorGray400 = rgb{156, 163, 175}
	colorGray300 = rgb{209, 213, 219}
	colorGray200 = rgb{229, 231, 235}
	colorGray100 = rgb{243, 244, 246}
	colorSuccess = rgb{22, 163, 74}
	colorError   = rgb{220, 38, 38}
	colorBlack   = rgb{0, 0, 0}
)

const (
	pdfMargin     = 20.0
	pdfFont       = "Helvetica"
	ptToMM        = 0.3527
	pdfLineFactor = 1.15
)

// pdfWriter lays out a report on an fpdf document. Core fonts are cp1252, so all text
// goes through tr.
type pdfWriter struct {
	doc    *fpdf.Fpdf
	tr     func(string) string
	width  float64
	height float64
	date   string
}

// PDF renders data as a PDF report: a cover page, the executive summary, themes,
// campaign lessons and detailed findings per focus group. Pages after the cover carry a
// header and a page number.
func PDF(w io.Writer, data Data) error {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pdfMargin, pdfMargin+10, pdfMargin)
	doc.SetAutoPageBreak(true, pdfMargin)
	doc.SetTitle("Research Report", true)
	doc.SetCreator("kikoe", true)

	p := &pdfWriter{doc: doc, tr: doc.UnicodeTranslatorFromDescriptor(""), date: dateLabel(data.GeneratedAt)}
	p.width, p.height = doc.GetPageSize()
	doc.SetHeaderFunc(p.header)
	doc.SetFooterFunc(p.footer)

	p.cover(data)
	if macro := strings.TrimSpace(data.MacroResult); macro != "" {
		p.newPage()
		p.title("Executive Summary", 18)
		p.markdown(macro, 11, colorGray800, 1.5)
	}
	if len(data.Themes) > 0 {
		if doc.PageNo() == 1 || doc.GetY() > p.height/3 {
			p.newPage()
		} else {
			doc.Ln(10)
		}
		p.themes(data)
	}
	if len(data.Lessons) > 0 {
		p.newPage()
		p.title("Campaign Lessons", 16)
		for i := range data.Lessons {
			p.lesson(data, i)
		}
	}

	p.newPage()
	p.title("Detailed Findings", 16)
	for i := range data.Results {
		p.focusGroup(data, i)
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("write PDF: %w", err)
	}
	return nil
}

func (p *pdfWriter) header() {
	if p.doc.PageNo() == 1 {
		return
	}
	p.style("", 8, colorGray400)
	p.doc.Text(pdfMargin, 10, "Research Report")
	p.doc.Text(p.width-pdfMargin-p.doc.GetStringWidth(p.date), 10, p.tr(p.date))
}

func (p *pdfWriter) footer() {
	if p.doc.PageNo() == 1 {
		return
	}
	p.style("", 9, colorGray400)
	page := fmt.Sprintf("Page %d", p.doc.PageNo())
	p.doc.Text((p.width-p.doc.GetStringWidth(page))/2, p.height-10, page)
}

func (p *pdfWriter) newPage() {
	p.doc.AddPage()
	p.doc.SetY(pdfMargin + 10)
}

func (p *pdfWriter) style(fontStyle string, size float64, c rgb) {
	p.doc.SetFont(pdfFont, fontStyle, size)
	p.doc.SetTextColor(c[0], c[1], c[2])
}

func (p *pdfWriter) title(s string, size float64) {
	p.text(s, size, "B", colorGray900, 0, pdfLineFactor)
	p.doc.Ln(6)
}

// text writes wrapped text at the left margin plus indent.
func (p *pdfWriter) text(s string, size float64, fontStyle string, c rgb, indent, lineFactor float64) {
	if strings.TrimSpace(s) == "" {
		return
	}
	p.style(fontStyle, size, c)
	p.doc.SetX(pdfMargin + indent)
	p.doc.MultiCell(p.width-2*pdfMargin-indent, size*ptToMM*lineFactor, p.tr(s), "", "L", false)
}

// markdown writes a markdown string as flattened blocks.
func (p *pdfWriter) markdown(src string, size float64, c rgb, lineFactor float64) {
	for _, b := range flatten(src) {
		switch b.kind {
		case blockHeading:
			p.doc.Ln(2)
			p.text(b.text, size+1, "B", colorGray900, 0, lineFactor)
		case blockItem:
			p.text(b.text, size, "", c, 4, lineFactor)
		case blockCode:
			p.doc.SetFont("Courier", "", size-1)
			p.doc.SetTextColor(c[0], c[1], c[2])
			p.doc.MultiCell(p.width-2*pdfMargin, size*ptToMM*lineFactor, p.tr(b.text), "", "L", false)
		default:
			p.text(b.text, size, "", c, 0, lineFactor)
		}
		p.doc.Ln(2)
	}
}

func (p *pdfWriter) cover(data Data) {
	doc := p.doc
	doc.AddPage()
	doc.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	doc.Rect(0, 0, 8, p.height, "F")

	x := pdfMargin + 10
	y := p.height / 3
	p.style("B", 36, colorGray900)
	doc.Text(x, y, "Research Report")
	y += 15
	p.style("", 24, colorGray600)
	doc.Text(x, y, "Focus Group Synthesis")
	y += 30
	p.style("B", 14, colorGray700)
	doc.Text(x, y, "Research Query:")
	y += 4

	p.style("", 16, colorGray900)
	doc.SetXY(x, y)
	doc.MultiCell(p.width-2*pdfMargin-10, 8, p.tr(data.Query), "", "L", false)
	y = doc.GetY() + 12

	doc.SetDrawColor(colorGray200[0], colorGray200[1], colorGray200[2])
	doc.Line(x, y, p.width-pdfMargin, y)
	y += 10
	p.style("", 12, colorGray500)
	doc.Text(x, y, "Total Quotes")
	doc.Text(x+60, y, "Focus Groups")
	doc.Text(x+120, y, "Date Generated")
	y += 6
	p.style("B", 14, colorGray900)
	doc.Text(x, y, fmt.Sprint(data.Stats.TotalQuotes))
	doc.Text(x+60, y, fmt.Sprint(data.Stats.FocusGroupsCount))
	doc.Text(x+120, y, p.tr(p.date))
}

func (p *pdfWriter) themes(data Data) {
	p.title("Key Themes", 16)
	for i, theme := range data.Themes {
		p.text(fmt.Sprintf("%d. %s", i+1, theme.Name), 13, "B", colorPrimary, 0, pdfLineFactor)
		p.doc.Ln(2)
		p.markdown(theme.Synthesis, 11, colorGray700, 1.4)
		if len(theme.FocusGroups) > 0 {
			p.text("Evidence from: "+strings.Join(theme.FocusGroups, ", "), 9, "I", colorGray500, 0, pdfLineFactor)
		}
		p.doc.Ln(8)
	}
}

func (p *pdfWriter) lesson(data Data, i int) {
	lesson := data.Lessons[i]
	meta := lesson.Metadata

	p.sectionHeader(lessonTitle(meta), joinNonEmpty(" ", outcomeLabel(meta.Outcome), race.MarginLabel(meta.Margin)), meta.Outcome)
	text := data.StrategyDeep[lesson.RaceID]
	if strings.TrimSpace(text) == "" {
		text = data.StrategySummaries[lesson.RaceID]
	}
	if strings.TrimSpace(text) != "" {
		p.text("Lessons:", 10, "B", colorGray700, 0, pdfLineFactor)
		p.doc.Ln(1)
		p.markdown(text, 10, colorGray600, pdfLineFactor)
		p.doc.Ln(4)
	}
	for _, chunk := range lesson.Chunks {
		excerpt := CleanQuote(chunk.Content)
		if chunk.Section != "" {
			excerpt = chunk.Section + ": " + excerpt
		}
		p.text("• "+excerpt, 10, "", colorBlack, 4, 1.3)
		p.doc.Ln(2)
	}
	p.doc.Ln(5)
}

func (p *pdfWriter) sectionHeader(title, badge, outcome string) {
	doc := p.doc
	if doc.GetY() > p.height/2 {
		p.newPage()
	} else {
		doc.Ln(6)
	}
	y := doc.GetY()
	doc.SetFillColor(colorGray100[0], colorGray100[1], colorGray100[2])
	doc.Rect(pdfMargin, y, p.width-2*pdfMargin, 12, "F")
	p.style("B", 12, colorGray900)
	doc.Text(pdfMargin+4, y+8, p.tr(title))
	if badge != "" {
		c := colorError
		if outcome == "win" {
			c = colorSuccess
		}
		p.style("B", 12, c)
		doc.Text(p.width-pdfMargin-4-doc.GetStringWidth(badge), y+8, p.tr(badge))
	}
	doc.SetY(y + 16)
}

func (p *pdfWriter) focusGroup(data Data, i int) {
	group := data.Results[i]
	meta := group.Metadata
	badge := ""
	if meta.Outcome != "" {
		badge = strings.ToUpper(meta.Outcome)
	}
	p.sectionHeader(group.Name(), badge, meta.Outcome)

	if parts := joinNonEmpty("  •  ", meta.Date, meta.RaceName); parts != "" {
		p.text(parts, 10, "", colorGray600, 0, pdfLineFactor)
		p.doc.Ln(3)
	}

	text := data.DeepSyntheses[group.FocusGroupID]
	if strings.TrimSpace(text) == "" {
		text = data.Summaries[group.FocusGroupID]
	}
	if strings.TrimSpace(text) != "" {
		p.text("Group Synthesis:", 10, "B", colorGray700, 0, pdfLineFactor)
		p.doc.Ln(1)
		p.markdown(text, 10, colorGray600, pdfLineFactor)
		p.doc.Ln(4)
	}

	for _, chunk := range group.Chunks {
		who := chunk.Participant
		if chunk.ParticipantProfile != "" {
			who += " (" + chunk.ParticipantProfile + ")"
		}
		p.text(who, 9, "B", colorGray900, 0, pdfLineFactor)
		p.doc.Ln(1)

		start := p.doc.GetY()
		startPage := p.doc.PageNo()
		p.text(CleanQuote(chunk.Content), 10, "", colorBlack, 4, 1.3)
		if p.doc.PageNo() == startPage {
			p.doc.SetDrawColor(colorGray300[0], colorGray300[1], colorGray300[2])
			p.doc.SetLineWidth(0.5)
			p.doc.Line(pdfMargin, start, pdfMargin, p.doc.GetY())
		}
		p.doc.Ln(4)
	}
	p.doc.Ln(3)
}
