package parser

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/dkellner/chunksmith/pkg/types"
)

// ParseHTML converts an HTML document into the same node tree shape as
// Parse. Heading tags drive the hierarchy; lists, tables, and pre blocks
// keep their structural kind. The only error path is a failing reader.
func (p *Parser) ParseHTML(r io.Reader) (*types.DocumentNode, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	b := &treeBuilder{
		root: &types.DocumentNode{Kind: types.NodeMixed, Level: 0},
	}
	b.stack = []*types.DocumentNode{b.root}

	var para strings.Builder
	flushPara := func() {
		if t := strings.TrimSpace(para.String()); t != "" {
			b.appendLeaf(types.NodeParagraph, t)
		}
		para.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				flushPara()
				b.pushHeading(level, htmlText(n))
				return
			}
			switch n.Data {
			case "script", "style", "head", "nav", "noscript":
				return
			case "ul", "ol":
				flushPara()
				if t := renderHTMLList(n, 0); t != "" {
					b.appendLeaf(types.NodeList, t)
				}
				return
			case "table":
				flushPara()
				if t := renderHTMLTable(n); t != "" {
					b.appendLeaf(types.NodeTable, t)
				}
				return
			case "pre":
				flushPara()
				if t := strings.TrimSpace(htmlText(n)); t != "" {
					b.appendLeaf(types.NodeCode, renderFence("", t))
				}
				return
			case "p", "div", "section", "article", "blockquote", "li", "br":
				flushPara()
			}
		}
		if n.Type == html.TextNode {
			para.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "section", "article", "blockquote":
				flushPara()
			}
		}
	}
	walk(doc)
	flushPara()

	return b.root, nil
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// htmlText returns the concatenated text content of an element subtree.
func htmlText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func renderHTMLList(n *html.Node, depth int) string {
	var lines []string
	indent := strings.Repeat("  ", depth)
	num := 1
	ordered := n.Data == "ol"
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		marker := "-"
		if ordered {
			marker = fmt.Sprintf("%d.", num)
			num++
		}
		var itemParts []string
		for g := c.FirstChild; g != nil; g = g.NextSibling {
			if g.Type == html.ElementNode && (g.Data == "ul" || g.Data == "ol") {
				if nested := renderHTMLList(g, depth+1); nested != "" {
					itemParts = append(itemParts, "\n"+nested)
				}
				continue
			}
			if t := htmlText(g); t != "" {
				itemParts = append(itemParts, t)
			}
		}
		if len(itemParts) > 0 {
			lines = append(lines, fmt.Sprintf("%s%s %s", indent, marker, strings.Join(itemParts, " ")))
		}
	}
	return strings.Join(lines, "\n")
}

func renderHTMLTable(n *html.Node) string {
	var rows []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, htmlText(c))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(rows, "\n")
}
