package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdown parses source as markdown and returns ANSI-styled output.
// Paragraphs and list items word-wrap at the renderer width. Code block
// lines are kept intact behind a gutter.
func (r *Renderer) markdown(source string) string {
	if source == "" {
		return ""
	}
	src := []byte(source)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))
	var buf bytes.Buffer
	r.blocks(doc, src, &buf)
	return strings.TrimRight(buf.String(), "\n")
}

func (r *Renderer) blocks(node ast.Node, src []byte, buf *bytes.Buffer) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.block(c, src, buf)
	}
}

func (r *Renderer) block(node ast.Node, src []byte, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Paragraph:
		buf.WriteString(lipgloss.NewStyle().Width(r.width).Render(r.inlines(n, src)))
		buf.WriteString("\n")
		blockGap(n, buf)

	case *ast.Heading:
		styled := r.styles.accent.Render(r.inlines(n, src))
		buf.WriteString(lipgloss.NewStyle().Width(r.width).Render(styled))
		buf.WriteString("\n")
		blockGap(n, buf)

	case *ast.FencedCodeBlock:
		if lang := string(n.Language(src)); lang != "" {
			buf.WriteString(r.styles.muted.Render(lang))
			buf.WriteString("\n")
		}
		r.codeLines(n.Lines(), src, buf)
		blockGap(n, buf)

	case *ast.CodeBlock:
		r.codeLines(n.Lines(), src, buf)
		blockGap(n, buf)

	case *ast.List:
		r.list(n, src, buf, 0)
		blockGap(n, buf)

	case *ast.ThematicBreak:
		buf.WriteString("---\n")
		blockGap(n, buf)

	case *ast.HTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}

	default:
		// Blockquotes and other unrecognized blocks: recurse into children.
		r.blocks(node, src, buf)
	}
}

// blockGap separates sibling blocks with a blank line.
func blockGap(node ast.Node, buf *bytes.Buffer) {
	if node.NextSibling() != nil {
		buf.WriteString("\n")
	}
}

func (r *Renderer) codeLines(lines *text.Segments, src []byte, buf *bytes.Buffer) {
	gutter := r.styles.muted.Render("│") + " "
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		content := strings.TrimRight(string(seg.Value(src)), "\n")
		buf.WriteString(gutter + r.styles.code.Render(content))
		buf.WriteString("\n")
	}
}

func (r *Renderer) list(node *ast.List, src []byte, buf *bytes.Buffer, depth int) {
	ordered := node.IsOrdered()
	num := 0

	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		indent := strings.Repeat("  ", depth)
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", node.Start+num)
			num++
		}

		var itemBuf bytes.Buffer
		for ic := item.FirstChild(); ic != nil; ic = ic.NextSibling() {
			switch in := ic.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				itemBuf.WriteString(r.inlines(in, src))
			case *ast.List:
				if itemBuf.Len() > 0 {
					r.listItem(buf, indent, marker, itemBuf.String())
					itemBuf.Reset()
				}
				r.list(in, src, buf, depth+1)
				marker = strings.Repeat(" ", len(marker))
			default:
				r.block(ic, src, &itemBuf)
			}
		}
		if itemBuf.Len() > 0 {
			r.listItem(buf, indent, marker, itemBuf.String())
		}
	}
}

// listItem writes one item with continuation lines indented past the marker.
func (r *Renderer) listItem(buf *bytes.Buffer, indent, marker, content string) {
	prefix := indent + marker
	width := r.width - len(prefix)
	if width < 10 {
		width = 10
	}
	continuation := strings.Repeat(" ", len(prefix))
	for i, line := range strings.Split(lipgloss.NewStyle().Width(width).Render(content), "\n") {
		if i == 0 {
			buf.WriteString(prefix + line + "\n")
			continue
		}
		buf.WriteString(continuation + line + "\n")
	}
}

// inlines collects styled inline text from a node's children.
func (r *Renderer) inlines(node ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.inline(c, src, &buf)
	}
	return buf.String()
}

func (r *Renderer) inline(node ast.Node, src []byte, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Text:
		buf.Write(n.Segment.Value(src))
		if n.SoftLineBreak() {
			buf.WriteByte(' ')
		}
		if n.HardLineBreak() {
			buf.WriteByte('\n')
		}

	case *ast.String:
		buf.Write(n.Value)

	case *ast.Emphasis:
		inner := r.inlines(n, src)
		if n.Level == 1 {
			buf.WriteString(r.styles.italic.Render(inner))
			return
		}
		// ***bold italic*** parses as nested Emphasis nodes, so level 2
		// covers everything else.
		buf.WriteString(r.styles.bold.Render(inner))

	case *ast.CodeSpan:
		buf.WriteString(r.styles.bold.Render(r.inlines(n, src)))

	case *ast.Link:
		buf.WriteString(r.styles.underline.Render(r.inlines(n, src)))
		buf.WriteString(" ")
		buf.WriteString(r.styles.muted.Render("(" + string(n.Destination) + ")"))

	case *ast.AutoLink:
		buf.WriteString(r.styles.underline.Render(string(n.URL(src))))

	case *ast.Image:
		buf.WriteString(r.styles.underline.Render(r.inlines(n, src)))
		buf.WriteString(" ")
		buf.WriteString(r.styles.muted.Render("(" + string(n.Destination) + ")"))

	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			buf.Write(seg.Value(src))
		}

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			r.inline(c, src, buf)
		}
	}
}
