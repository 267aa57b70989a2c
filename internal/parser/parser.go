package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dkellner/chunksmith/pkg/types"
)

// Parser recovers a structural tree from raw document text. It is a
// best-effort parser: malformed input (missing top-level headings, skipped
// heading levels, unterminated code fences, broken tables) still produces a
// usable tree, never an error.
type Parser struct {
	md goldmark.Markdown
}

// New creates a new Parser instance. GFM extensions are enabled so pipe
// tables and other common extras are recognized.
func New() *Parser {
	return &Parser{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Parse converts raw markdown-like text into an ordered node tree. The root
// is a synthetic container node; heading nodes own all content up to the
// next heading of equal or lower level. Positions increase in source order.
func (p *Parser) Parse(input string) *types.DocumentNode {
	src := []byte(input)
	doc := p.md.Parser().Parse(text.NewReader(src))

	b := &treeBuilder{
		root: &types.DocumentNode{Kind: types.NodeMixed, Level: 0},
	}
	b.stack = []*types.DocumentNode{b.root}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		b.addBlock(n, src)
	}

	return b.root
}

// treeBuilder maintains the heading stack while blocks are appended in
// source order. The stack top is the node new content attaches to; the
// synthetic root covers inputs with no (or late) headings.
type treeBuilder struct {
	root    *types.DocumentNode
	stack   []*types.DocumentNode
	nextPos int
}

func (b *treeBuilder) addBlock(n ast.Node, src []byte) {
	switch block := n.(type) {
	case *ast.Heading:
		b.pushHeading(block.Level, headingTitle(block, src))
	case *ast.FencedCodeBlock:
		lang := string(block.Language(src))
		b.appendLeaf(types.NodeCode, renderFence(lang, blockLines(block, src)))
	case *ast.CodeBlock:
		b.appendLeaf(types.NodeCode, renderFence("", blockLines(block, src)))
	case *ast.List:
		b.appendLeaf(types.NodeList, renderList(block, src))
	case *east.Table:
		b.appendLeaf(types.NodeTable, renderTable(block, src))
	case *ast.Blockquote:
		// Flatten quote content into a paragraph node.
		b.appendLeaf(types.NodeParagraph, inlineText(block, src))
	case *ast.ThematicBreak:
		// Structural noise, no content.
	default:
		if t := inlineText(n, src); t != "" {
			b.appendLeaf(types.NodeParagraph, t)
		}
	}
}

// pushHeading pops the stack until the top is a strictly shallower heading
// (or the root), then attaches and enters the new heading.
func (b *treeBuilder) pushHeading(level int, title string) {
	for len(b.stack) > 1 && b.top().Level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	b.nextPos++
	node := &types.DocumentNode{
		Kind:     types.NodeHeading,
		Level:    level,
		Text:     title,
		Position: b.nextPos,
	}
	top := b.top()
	top.Children = append(top.Children, node)
	b.stack = append(b.stack, node)
}

func (b *treeBuilder) appendLeaf(kind types.NodeKind, content string) {
	content = strings.TrimRight(content, "\n")
	if strings.TrimSpace(content) == "" {
		return
	}
	b.nextPos++
	top := b.top()
	top.Children = append(top.Children, &types.DocumentNode{
		Kind:     kind,
		Text:     content,
		Position: b.nextPos,
	})
}

func (b *treeBuilder) top() *types.DocumentNode {
	return b.stack[len(b.stack)-1]
}

// headingTitle extracts the rendered title text of a heading.
func headingTitle(h *ast.Heading, src []byte) string {
	return strings.TrimSpace(inlineText(h, src))
}

// blockLines joins the raw source lines covered by a block node. An
// unterminated fence is already closed by the markdown parser at end of
// input, so whatever content was collected comes back as-is.
func blockLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}

// inlineText collects the visible text of a node and its inline children.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.FirstChild() == nil {
		return strings.TrimSpace(blockLines(n, src))
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch child := c.(type) {
		case *ast.Text:
			buf.Write(child.Value(src))
			if child.HardLineBreak() || child.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(child.Value)
		default:
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(inlineText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}

// renderFence normalizes a code block back to fenced form so chunk content
// stays recognizable as code.
func renderFence(lang, body string) string {
	body = strings.TrimRight(body, "\n")
	return fmt.Sprintf("```%s\n%s\n```", lang, body)
}

// renderList flattens a list into marker-prefixed lines. Ordered lists keep
// their numbering; nested lists are indented.
func renderList(list *ast.List, src []byte) string {
	var lines []string
	renderListInto(list, src, 0, &lines)
	return strings.Join(lines, "\n")
}

func renderListInto(list *ast.List, src []byte, depth int, lines *[]string) {
	indent := strings.Repeat("  ", depth)
	num := list.Start
	if num == 0 {
		num = 1
	}
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "-"
		if list.IsOrdered() {
			marker = fmt.Sprintf("%d.", num)
			num++
		}
		// The item's own line lands before its sublists so nesting keeps
		// source order.
		var itemText []string
		var nested []*ast.List
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				nested = append(nested, sub)
				continue
			}
			if t := inlineText(c, src); t != "" {
				itemText = append(itemText, t)
			}
		}
		if len(itemText) > 0 {
			*lines = append(*lines, fmt.Sprintf("%s%s %s", indent, marker, strings.Join(itemText, " ")))
		}
		for _, sub := range nested {
			renderListInto(sub, src, depth+1, lines)
		}
	}
}

// renderTable rebuilds pipe-delimited rows from a parsed table. Rows with
// inconsistent column counts are kept rather than dropped.
func renderTable(table *east.Table, src []byte) string {
	var rows []string
	for r := table.FirstChild(); r != nil; r = r.NextSibling() {
		var cells []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, inlineText(c, src))
		}
		rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
		if _, ok := r.(*east.TableHeader); ok {
			sep := make([]string, len(cells))
			for i := range sep {
				sep[i] = "---"
			}
			rows = append(rows, "| "+strings.Join(sep, " | ")+" |")
		}
	}
	return strings.Join(rows, "\n")
}
