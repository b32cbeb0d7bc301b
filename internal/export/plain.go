package export

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockItem
	blockCode
)

// block is one flattened piece of a markdown document.
type block struct {
	kind  blockKind
	text  string
	level int
}

var mdParser = goldmark.New(goldmark.WithExtensions(extension.GFM))

// flatten parses src as markdown and returns its blocks as plain text. List items are
// prefixed with a bullet or their number.
func flatten(src string) []block {
	source := []byte(src)
	doc := mdParser.Parser().Parse(text.NewReader(source))

	var blocks []block
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			blocks = append(blocks, block{kind: blockHeading, text: inlineText(node, source), level: node.Level})
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			var b strings.Builder
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			blocks = append(blocks, block{kind: blockCode, text: strings.TrimRight(b.String(), "\n")})
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			txt := inlineText(node, source)
			if item, ok := node.Parent().(*ast.ListItem); ok && node.PreviousSibling() == nil {
				blocks = append(blocks, block{kind: blockItem, text: itemMarker(item) + txt})
			} else {
				blocks = append(blocks, block{kind: blockParagraph, text: txt})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}

// PlainText flattens markdown to plain text, one block per line.
func PlainText(src string) string {
	blocks := flatten(src)
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.text != "" {
			parts = append(parts, b.text)
		}
	}
	return strings.Join(parts, "\n")
}

func itemMarker(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return "• "
	}
	n := list.Start
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		n++
	}
	return strconv.Itoa(n) + ". "
}

func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				b.Write(node.Segment.Value(source))
				switch {
				case node.HardLineBreak():
					b.WriteByte('\n')
				case node.SoftLineBreak():
					b.WriteByte(' ')
				}
			case *ast.String:
				b.Write(node.Value)
			case *ast.AutoLink:
				b.Write(node.URL(source))
			case *ast.RawHTML:
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
